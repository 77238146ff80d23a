// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package discovery is the endpoint discovery collaborator described in
// spec.md §6: given the seed list the driver was configured with, it
// returns the next candidate endpoint to dial. This revision picks
// uniformly at random among the seeds rather than performing a gossip
// round-trip, grounded on cluster.Cluster.SelectServer's
// rand.Intn(len(suitable)) selection in cluster/cluster.go — a real
// discovery round-trip (DNS SRV, gossip, a seed-node cluster-info call) is
// a natural place to extend this package without touching the driver.
package discovery

import (
	"context"
	"errors"
	"math/rand"
	"sync"
)

// Endpoint names a single host:port candidate the connection collaborator
// can dial.
type Endpoint struct {
	Address string
}

// Discoverer resolves the next endpoint to try.
type Discoverer interface {
	Discover(ctx context.Context) (Endpoint, error)
}

// ErrNoSeeds is returned when a Discoverer has no candidates configured.
var ErrNoSeeds = errors.New("discovery: no seed endpoints configured")

// Static is a Discoverer over a fixed seed list, matching spec.md's
// description of discovery as "resolve one of the configured seeds."
type Static struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	seeds []Endpoint
}

// NewStatic returns a Discoverer over seeds. seed is the PRNG seed used to
// pick among them; callers normally derive it from time.Now().UnixNano().
func NewStatic(seeds []Endpoint, seed int64) *Static {
	return &Static{
		rnd:   rand.New(rand.NewSource(seed)),
		seeds: append([]Endpoint(nil), seeds...),
	}
}

// Discover returns a uniformly random seed. It never performs I/O, so ctx
// is only honored for cancellation that happened before the call.
func (s *Static) Discover(ctx context.Context) (Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return Endpoint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.seeds) == 0 {
		return Endpoint{}, ErrNoSeeds
	}
	return s.seeds[s.rnd.Intn(len(s.seeds))], nil
}
