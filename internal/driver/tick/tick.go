// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package tick is the fixed-period wakeup source described in spec.md
// §4.5. It is generic over the message type so it can feed the driver's
// own message queue without importing the driver package.
package tick

import "time"

// Ticker emits a message into out at a fixed period until Stop is called or
// a send is rejected by backpressure.
type Ticker[T any] struct {
	stop chan struct{}
}

// Start spawns the tick goroutine. makeMsg is called once per period to
// build the message sent on out.
func Start[T any](period time.Duration, out chan<- T, makeMsg func() T) *Ticker[T] {
	t := &Ticker[T]{stop: make(chan struct{})}
	go t.run(period, out, makeMsg)
	return t
}

func (t *Ticker[T]) run(period time.Duration, out chan<- T, makeMsg func() T) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			select {
			case out <- makeMsg():
			default:
				// Backpressure: the queue is full or the consumer stopped
				// reading. Per spec.md §4.5 this is a terminal signal for
				// the tick stream, not a dropped tick.
				return
			}
		}
	}
}

// Stop terminates the tick goroutine. Safe to call more than once.
func (t *Ticker[T]) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}
