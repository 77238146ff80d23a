// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package tick_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/EventStore/EventStore-Client-Go/internal/driver/tick"
)

func TestTickerEmitsAtPeriod(t *testing.T) {
	out := make(chan int, 8)
	n := 0
	ticker := Start(5*time.Millisecond, out, func() int { n++; return n })
	defer ticker.Stop()

	select {
	case v := <-out:
		require.GreaterOrEqual(t, v, 1)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for a tick")
	}
}

func TestTickerStopIsIdempotent(t *testing.T) {
	out := make(chan int, 1)
	ticker := Start(time.Millisecond, out, func() int { return 1 })
	ticker.Stop()
	require.NotPanics(t, func() { ticker.Stop() })
}

func TestTickerTerminatesOnBackpressure(t *testing.T) {
	out := make(chan int) // unbuffered: first tick is never drained
	ticker := Start(time.Millisecond, out, func() int { return 1 })
	defer ticker.Stop()

	time.Sleep(50 * time.Millisecond)
	// The ticker should have given up after the first rejected send; a
	// second listener arriving late must not receive a stale backlog.
	select {
	case <-out:
		t.Fatal("ticker must not buffer sends across backpressure")
	case <-time.After(20 * time.Millisecond):
	}
}
