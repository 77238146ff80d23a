// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package reconnect implements the bound on reconnection attempts (spec.md
// §4.4). Attempts only tick forward while the driver is in
// Connecting/Reconnecting; any transition to an established state drops the
// Attempt entirely so the next failure starts counting anew.
package reconnect

import "time"

// Attempt is the bookkeeping for one contiguous reconnection run.
type Attempt struct {
	Tries   int
	Started time.Time
}

// Policy bounds reconnection attempts and spaces out discovery calls.
type Policy struct {
	delay        time.Duration
	maxReconnect int // options.Unbounded permitted
}

// New returns a Policy with the given minimum delay between discovery
// attempts and the given bound on tries (options.Unbounded for no limit).
func New(delay time.Duration, maxReconnect int) *Policy {
	return &Policy{delay: delay, maxReconnect: maxReconnect}
}

// NewAttempt starts a fresh Attempt with Tries=0, as happens on `start` and
// on every transition into Reconnecting from an established state.
func (p *Policy) NewAttempt(now time.Time) Attempt {
	return Attempt{Tries: 0, Started: now}
}

// Due reports whether enough time has passed since a.Started to try again.
func (p *Policy) Due(a Attempt, now time.Time) bool {
	return now.Sub(a.Started) >= p.delay
}

// Advance increments Tries and resets Started, returning the updated
// Attempt and whether the bound has now been exceeded (ReconnectExhausted).
func (p *Policy) Advance(a Attempt, now time.Time) (Attempt, bool) {
	a.Tries++
	a.Started = now

	exhausted := p.maxReconnect >= 0 && a.Tries > p.maxReconnect
	return a, exhausted
}
