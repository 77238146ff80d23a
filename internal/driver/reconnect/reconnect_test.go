// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package reconnect_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/EventStore/EventStore-Client-Go/internal/driver/reconnect"
	"github.com/EventStore/EventStore-Client-Go/options"
)

func TestDueRespectsDelay(t *testing.T) {
	p := New(10*time.Millisecond, options.Unbounded)
	now := time.Now()
	a := p.NewAttempt(now)

	require.False(t, p.Due(a, now.Add(5*time.Millisecond)))
	require.True(t, p.Due(a, now.Add(10*time.Millisecond)))
}

func TestAdvanceIncrementsTries(t *testing.T) {
	p := New(time.Millisecond, options.Unbounded)
	now := time.Now()
	a := p.NewAttempt(now)

	a, exhausted := p.Advance(a, now.Add(time.Millisecond))
	require.False(t, exhausted)
	require.Equal(t, 1, a.Tries)

	a, exhausted = p.Advance(a, now.Add(2*time.Millisecond))
	require.False(t, exhausted)
	require.Equal(t, 2, a.Tries)
}

func TestAdvanceExhaustsAtBound(t *testing.T) {
	p := New(time.Millisecond, 2)
	now := time.Now()
	a := p.NewAttempt(now)

	a, exhausted := p.Advance(a, now)
	require.False(t, exhausted)
	a, exhausted = p.Advance(a, now)
	require.False(t, exhausted)
	_, exhausted = p.Advance(a, now)
	require.True(t, exhausted, "tries > max_reconnect must report exhausted")
}

func TestUnboundedNeverExhausts(t *testing.T) {
	p := New(time.Millisecond, options.Unbounded)
	now := time.Now()
	a := p.NewAttempt(now)

	for i := 0; i < 1000; i++ {
		var exhausted bool
		a, exhausted = p.Advance(a, now)
		require.False(t, exhausted)
	}
}
