// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package registry tracks outstanding request/response exchanges by
// correlation identifier (spec.md §4.3). Correlation uniqueness is global
// per driver lifetime, so entries tolerate packages that arrive correlated
// to an exchange issued on a previous connection.
package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/EventStore/EventStore-Client-Go/internal/errs"
	"github.com/EventStore/EventStore-Client-Go/internal/wire"
)

// maxConcurrentDrain bounds how many exchange continuations run at once
// during DrainWithError, so a continuation that blocks (e.g. on an
// application channel send) cannot fan out into an unbounded goroutine
// burst when every entry fails at once.
const maxConcurrentDrain = 32

// Sender is the narrow slice of the candidate connection the registry
// needs: enough to (re)issue a package and to identify which connection it
// went out on.
type Sender interface {
	ID() uuid.UUID
	Enqueue(wire.Package)
}

// Exchange pairs an outbound package with the continuation that consumes
// its response(s), per spec.md §3.
type Exchange struct {
	// Package is mutated in place to set CorrelationID on Register.
	Package wire.Package
	// Credentials, when non-nil, overrides the handshake's session identity
	// for this exchange alone (spec.md §3's optional credential override).
	// It is attached to Package on every issue and re-issue.
	Credentials *wire.Credentials
	// Continuation receives each response package, or a non-nil error if
	// the exchange failed (timeout, shutdown, reconnect exhaustion). It is
	// never called concurrently for the same Exchange.
	Continuation func(wire.Package, error)
	// Terminal reports whether pkg is the last response expected for this
	// exchange. A nil Terminal means single-response (the default for
	// everything except multi-step transactions).
	Terminal func(pkg wire.Package) bool
}

func (e *Exchange) isTerminal(pkg wire.Package) bool {
	if e.Terminal == nil {
		return true
	}
	return e.Terminal(pkg)
}

// outboundPackage returns the package to put on the wire, with Credentials
// attached when the exchange carries a per-operation override.
func (e *Exchange) outboundPackage() wire.Package {
	if e.Credentials == nil {
		return e.Package
	}
	return e.Package.WithCredentials(e.Credentials)
}

type entry struct {
	exchange     *Exchange
	connectionID uuid.UUID
	parked       bool
	started      time.Time
	tries        int
}

// Registry owns the correlation -> entry mapping.
type Registry struct {
	entries map[uuid.UUID]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uuid.UUID]*entry)}
}

// Len reports the number of outstanding entries, used by tests to assert
// the "unknown correlation leaves the registry untouched" invariant.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Register records ex, assigning it a correlation identifier if it doesn't
// already carry one. If conn is non-nil the package is issued immediately;
// otherwise the entry is parked until the driver next enters Connected.
func (r *Registry) Register(ex *Exchange, conn Sender, now time.Time) {
	if ex.Package.CorrelationID == uuid.Nil {
		ex.Package.CorrelationID = uuid.New()
	}

	e := &entry{exchange: ex, started: now}

	if conn != nil {
		e.connectionID = conn.ID()
		conn.Enqueue(ex.outboundPackage())
	} else {
		e.parked = true
	}

	r.entries[ex.Package.CorrelationID] = e
}

// Handle delivers pkg to the exchange registered under its correlation and
// reports whether one was found. A return of false means the package is a
// StalePackage (§7) and must be dropped by the caller. Delivery removes the
// entry unless the exchange reports the response as non-terminal.
func (r *Registry) Handle(pkg wire.Package, conn Sender) bool {
	e, ok := r.entries[pkg.CorrelationID]
	if !ok {
		return false
	}

	e.exchange.Continuation(pkg, nil)

	if e.exchange.isTerminal(pkg) {
		delete(r.entries, pkg.CorrelationID)
		return true
	}

	// Multi-step exchange: traffic arrived, so reset its deadline rather
	// than let check_and_retry immediately consider it overdue.
	e.started = time.Now()
	if conn != nil {
		e.connectionID = conn.ID()
	}
	return true
}

// CheckAndRetry sweeps entries older than operationTimeout: re-issuing
// those under their retry budget, failing the rest with OperationTimeout.
func (r *Registry) CheckAndRetry(now time.Time, conn Sender, operationTimeout time.Duration, maxRetries int) {
	for correlation, e := range r.entries {
		if now.Sub(e.started) < operationTimeout {
			continue
		}

		if e.tries < maxRetries {
			e.tries++
			e.started = now
			e.parked = false
			e.connectionID = conn.ID()
			conn.Enqueue(e.exchange.outboundPackage())
			continue
		}

		delete(r.entries, correlation)
		e.exchange.Continuation(wire.Package{}, errs.New(errs.OperationTimeout, "exchange exceeded its retry budget"))
	}
}

// ReissueParked re-issues every parked entry on conn, preserving
// correlation, called when the driver re-enters Connected.
func (r *Registry) ReissueParked(conn Sender) {
	now := time.Now()
	for _, e := range r.entries {
		if !e.parked {
			continue
		}
		e.parked = false
		e.connectionID = conn.ID()
		e.started = now
		conn.Enqueue(e.exchange.outboundPackage())
	}
}

// DrainWithError fails every outstanding entry with err and empties the
// registry, used on Shutdown (SPEC_FULL.md "Supplemented features",
// graceful Shutdown draining parked operations) and on ReconnectExhausted. Continuations run concurrently,
// bounded by maxConcurrentDrain.
func (r *Registry) DrainWithError(err error) {
	if len(r.entries) == 0 {
		return
	}

	sem := semaphore.NewWeighted(maxConcurrentDrain)
	ctx := context.Background()

	total := len(r.entries)
	done := make(chan struct{}, total)
	for correlation, e := range r.entries {
		delete(r.entries, correlation)

		_ = sem.Acquire(ctx, 1)
		go func(ex *Exchange) {
			defer sem.Release(1)
			ex.Continuation(wire.Package{}, err)
			done <- struct{}{}
		}(e.exchange)
	}

	for i := 0; i < total; i++ {
		<-done
	}
}
