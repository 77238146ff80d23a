// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package health implements the heartbeat liveness tracker (spec.md §4.2).
// pkgNum is a cheap liveness witness: any inbound traffic counts, so a busy
// connection is never probed unnecessarily.
package health

import (
	"time"

	"github.com/EventStore/EventStore-Client-Go/internal/wire"
)

type state int

const (
	stateInit state = iota
	stateDelay
	stateTimeout
)

// Outcome is the result of a ManageHeartbeat call.
type Outcome int

// Valid means the connection is still considered alive. Failure means the
// connection should be closed and the driver should reconnect.
const (
	Valid Outcome = iota
	Failure
)

// Sender is the narrow slice of the candidate connection the tracker needs:
// enough to emit a HeartbeatRequest.
type Sender interface {
	Enqueue(wire.Package)
}

// Tracker maintains the (pkg_num, state) pair described in spec.md §4.2.
type Tracker struct {
	pkgNum uint64

	st  state
	num uint64
	at  time.Time
}

// New returns a Tracker in its initial state.
func New() *Tracker {
	return &Tracker{}
}

// Reset returns the tracker to Init, called whenever the driver moves to a
// fresh connection (after endpoint discovery and on Established, before the
// handshake).
func (t *Tracker) Reset() {
	t.st = stateInit
}

// IncrPkgNum must be called for every inbound package, before
// ManageHeartbeat runs on the same tick, so that tick observes the traffic.
func (t *Tracker) IncrPkgNum() {
	t.pkgNum++
}

// ManageHeartbeat advances the tracker by one tick against conn and returns
// whether the connection is still considered alive.
func (t *Tracker) ManageHeartbeat(now time.Time, conn Sender, heartbeatDelay, heartbeatTimeout time.Duration) Outcome {
	switch t.st {
	case stateInit:
		t.enterDelay(now)
		return Valid

	case stateDelay:
		if t.pkgNum != t.num {
			t.enterDelay(now)
			return Valid
		}
		if now.Sub(t.at) >= heartbeatDelay {
			conn.Enqueue(wire.NewPackage(wire.OpHeartbeatRequest, nil))
			t.st = stateTimeout
			t.num = t.pkgNum
			t.at = now
		}
		return Valid

	case stateTimeout:
		if t.pkgNum != t.num {
			t.enterDelay(now)
			return Valid
		}
		if now.Sub(t.at) >= heartbeatTimeout {
			return Failure
		}
		return Valid
	}

	return Valid
}

func (t *Tracker) enterDelay(now time.Time) {
	t.st = stateDelay
	t.num = t.pkgNum
	t.at = now
}
