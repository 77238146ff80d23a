// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	. "github.com/EventStore/EventStore-Client-Go/internal/driver"
	"github.com/EventStore/EventStore-Client-Go/internal/discovery"
	"github.com/EventStore/EventStore-Client-Go/internal/driver/registry"
	"github.com/EventStore/EventStore-Client-Go/internal/elog"
	"github.com/EventStore/EventStore-Client-Go/internal/wire"
	"github.com/EventStore/EventStore-Client-Go/options"
)

type fakeConn struct {
	id  uuid.UUID
	cbs ConnCallbacks

	mu   sync.Mutex
	sent []wire.Package
}

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Enqueue(pkg wire.Package) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, pkg)
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Sent() []wire.Package {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Package(nil), c.sent...)
}

func testLogger() *elog.Logger { return elog.New(nil, nil) }

func testSettings(t *testing.T, configure func(*options.Builder)) *options.Settings {
	t.Helper()
	b := options.New().
		SetHeartbeatDelay(20 * time.Millisecond).
		SetHeartbeatTimeout(20 * time.Millisecond).
		SetOperationTimeout(50 * time.Millisecond).
		SetOperationCheckPeriod(20 * time.Millisecond).
		SetReconnectDelay(10 * time.Millisecond)
	if configure != nil {
		configure(b)
	}
	s, err := b.Build()
	require.NoError(t, err)
	s.TickPeriod = 5 * time.Millisecond
	return s
}

// dialerRecordingConns returns a Dialer that hands every created *fakeConn
// to the returned channel, so the test can drive its callbacks directly.
func dialerRecordingConns() (Dialer, chan *fakeConn) {
	conns := make(chan *fakeConn, 16)
	dial := func(_ context.Context, _ discovery.Endpoint, cbs ConnCallbacks) Conn {
		c := &fakeConn{id: uuid.New(), cbs: cbs}
		conns <- c
		return c
	}
	return dial, conns
}

func oneSeedDiscoverer() discovery.Discoverer {
	return discovery.NewStatic([]discovery.Endpoint{{Address: "127.0.0.1:0"}}, 1)
}

func waitForPackage(t *testing.T, c *fakeConn, cmd wire.OpCode) wire.Package {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, pkg := range c.Sent() {
			if pkg.Command == cmd {
				return pkg
			}
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for a %s package", cmd)
		case <-time.After(time.Millisecond):
		}
	}
}

func waitForConn(t *testing.T, conns chan *fakeConn) *fakeConn {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dial")
		return nil
	}
}

func waitForSnapshot(t *testing.T, d *Driver, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := d.Snapshot()
		if pred(snap) {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot condition, last snapshot: %+v", snap)
		case <-time.After(time.Millisecond):
		}
	}
}

// Scenario 1: clean handshake without credentials.
func TestCleanHandshakeWithoutCredentials(t *testing.T) {
	cfg := testSettings(t, nil)
	dial, conns := dialerRecordingConns()

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	c := waitForConn(t, conns)
	c.cbs.OnEstablished(c.id)

	identify := waitForPackage(t, c, wire.OpIdentifyClient)
	c.cbs.OnPackageArrived(wire.Package{Command: wire.OpClientIdentified, CorrelationID: identify.CorrelationID})

	waitForSnapshot(t, d, func(s Snapshot) bool { return s.State == StateConnected })

	snap := d.Snapshot()
	require.Equal(t, StateConnected, snap.State)
	require.Equal(t, 0, snap.Tries)
}

// Scenario 2: auth then identify, non-fatal NotAuthenticated falls through.
func TestAuthThenIdentify(t *testing.T) {
	cfg := testSettings(t, func(b *options.Builder) {
		b.SetDefaultUserCredentials(&options.Credentials{Username: "alice", Password: "hunter2"})
	})
	dial, conns := dialerRecordingConns()

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	c := waitForConn(t, conns)
	c.cbs.OnEstablished(c.id)

	authenticate := waitForPackage(t, c, wire.OpAuthenticate)
	c.cbs.OnPackageArrived(wire.Package{Command: wire.OpNotAuthenticated, CorrelationID: authenticate.CorrelationID})

	identify := waitForPackage(t, c, wire.OpIdentifyClient)
	require.NotEqual(t, authenticate.CorrelationID, identify.CorrelationID)

	c.cbs.OnPackageArrived(wire.Package{Command: wire.OpClientIdentified, CorrelationID: identify.CorrelationID})
	waitForSnapshot(t, d, func(s Snapshot) bool { return s.State == StateConnected })
}

// Scenario 3 & "every HeartbeatRequest produces exactly one HeartbeatResponse":
// heartbeat recovery on any inbound traffic.
func TestHeartbeatRecoveryOnTraffic(t *testing.T) {
	cfg := testSettings(t, nil)
	dial, conns := dialerRecordingConns()

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	c := waitForConn(t, conns)
	c.cbs.OnEstablished(c.id)
	identify := waitForPackage(t, c, wire.OpIdentifyClient)
	c.cbs.OnPackageArrived(wire.Package{Command: wire.OpClientIdentified, CorrelationID: identify.CorrelationID})
	waitForSnapshot(t, d, func(s Snapshot) bool { return s.State == StateConnected })

	probe := waitForPackage(t, c, wire.OpHeartbeatRequest)

	c.cbs.OnPackageArrived(wire.Package{Command: wire.OpHeartbeatRequest, CorrelationID: probe.CorrelationID})
	response := waitForPackage(t, c, wire.OpHeartbeatResponse)
	require.Equal(t, probe.CorrelationID, response.CorrelationID)

	time.Sleep(cfg.HeartbeatTimeout + 10*time.Millisecond)
	snap := d.Snapshot()
	require.Equal(t, StateConnected, snap.State, "traffic after the probe must avert reconnection")
}

// Scenario 4: heartbeat timeout with no inbound traffic forces a reconnect.
func TestHeartbeatTimeoutForcesReconnect(t *testing.T) {
	cfg := testSettings(t, nil)
	dial, conns := dialerRecordingConns()

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	c := waitForConn(t, conns)
	c.cbs.OnEstablished(c.id)
	identify := waitForPackage(t, c, wire.OpIdentifyClient)
	c.cbs.OnPackageArrived(wire.Package{Command: wire.OpClientIdentified, CorrelationID: identify.CorrelationID})
	waitForSnapshot(t, d, func(s Snapshot) bool { return s.State == StateConnected })

	waitForPackage(t, c, wire.OpHeartbeatRequest)

	waitForSnapshot(t, d, func(s Snapshot) bool {
		return s.State == StateConnecting && s.Phase == PhaseReconnecting
	})
}

// Scenario 5: reconnect exhaustion quits the driver.
func TestReconnectExhaustionQuits(t *testing.T) {
	cfg := testSettings(t, func(b *options.Builder) {
		b.SetMaxReconnects(2)
	})

	dial := func(_ context.Context, _ discovery.Endpoint, cbs ConnCallbacks) Conn {
		id := uuid.New()
		go cbs.OnClosed(id, errors.New("simulated dial failure"))
		return &fakeConn{id: id}
	}

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go d.Run(ctx)

	select {
	case <-d.Done():
	case <-ctx.Done():
		t.Fatal("driver did not quit after exhausting its reconnect budget")
	}
}

// Reconnect exhaustion must also drain any outstanding/parked exchange so
// its continuation fires rather than hanging forever.
func TestReconnectExhaustionDrainsParkedOperations(t *testing.T) {
	cfg := testSettings(t, func(b *options.Builder) {
		b.SetMaxReconnects(1)
	})

	dial := func(_ context.Context, _ discovery.Endpoint, cbs ConnCallbacks) Conn {
		id := uuid.New()
		go cbs.OnClosed(id, errors.New("simulated dial failure"))
		return &fakeConn{id: id}
	}

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go d.Run(ctx)

	results := make(chan error, 1)
	ex := &registry.Exchange{
		Package: wire.NewPackage(wire.OpReadEvent, nil),
		Continuation: func(_ wire.Package, err error) {
			results <- err
		},
	}
	d.Post(NewOperationMessage(ex))

	select {
	case err := <-results:
		require.Error(t, err)
	case <-ctx.Done():
		t.Fatal("parked exchange's continuation never fired after reconnect exhaustion")
	}

	select {
	case <-d.Done():
	case <-ctx.Done():
		t.Fatal("driver did not quit after exhausting its reconnect budget")
	}
}

// Scenario 6: operation timeout with retry, then failure once the budget is spent.
func TestOperationTimeoutWithRetry(t *testing.T) {
	cfg := testSettings(t, func(b *options.Builder) {
		b.SetOperationTimeout(30 * time.Millisecond).
			SetOperationCheckPeriod(15 * time.Millisecond).
			SetMaxOperationRetries(1)
	})
	dial, conns := dialerRecordingConns()

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	c := waitForConn(t, conns)
	c.cbs.OnEstablished(c.id)
	identify := waitForPackage(t, c, wire.OpIdentifyClient)
	c.cbs.OnPackageArrived(wire.Package{Command: wire.OpClientIdentified, CorrelationID: identify.CorrelationID})
	waitForSnapshot(t, d, func(s Snapshot) bool { return s.State == StateConnected })

	results := make(chan error, 1)
	ex := &registry.Exchange{
		Package: wire.NewPackage(wire.OpReadEvent, nil),
		Continuation: func(_ wire.Package, err error) {
			results <- err
		},
	}
	d.Post(NewOperationMessage(ex))

	waitForSnapshot(t, d, func(s Snapshot) bool { return s.RegistrySize == 1 })

	// Wait past one retry window: the entry must still be registered
	// (re-issued), not yet failed.
	time.Sleep(45 * time.Millisecond)
	require.Equal(t, 1, d.Snapshot().RegistrySize)

	select {
	case err := <-results:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the exchange to eventually fail after exhausting its retry budget")
	}
	require.Equal(t, 0, d.Snapshot().RegistrySize)
}

// Universal invariant: ConnectionClosed for a stale/unknown id is a no-op.
func TestConnectionClosedForUnknownIDIsNoOp(t *testing.T) {
	cfg := testSettings(t, nil)
	dial, conns := dialerRecordingConns()

	d := New(cfg, testLogger(), dial, oneSeedDiscoverer())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	c := waitForConn(t, conns)
	c.cbs.OnEstablished(c.id)
	waitForPackage(t, c, wire.OpIdentifyClient)

	before := d.Snapshot()
	d.Post(NewConnectionClosedMessage(uuid.New(), fmt.Errorf("stale")))
	time.Sleep(20 * time.Millisecond)
	after := d.Snapshot()

	require.Equal(t, before.State, after.State)
	require.Equal(t, before.Phase, after.Phase)
}
