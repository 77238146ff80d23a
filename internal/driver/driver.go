// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver is the single-threaded cooperative actor that owns the
// connection lifecycle, handshake, heartbeat, and operation registry
// described in spec.md §2-§4. Exactly one goroutine (the one running Run)
// ever touches a Driver's fields; every other goroutine communicates with
// it exclusively by sending a Message on its queue.
package driver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/EventStore/EventStore-Client-Go/internal/auth"
	"github.com/EventStore/EventStore-Client-Go/internal/discovery"
	"github.com/EventStore/EventStore-Client-Go/internal/driver/health"
	"github.com/EventStore/EventStore-Client-Go/internal/driver/reconnect"
	"github.com/EventStore/EventStore-Client-Go/internal/driver/registry"
	"github.com/EventStore/EventStore-Client-Go/internal/driver/tick"
	"github.com/EventStore/EventStore-Client-Go/internal/elog"
	"github.com/EventStore/EventStore-Client-Go/internal/errs"
	"github.com/EventStore/EventStore-Client-Go/internal/wire"
	"github.com/EventStore/EventStore-Client-Go/options"
)

// ConnectionState is the outer lifecycle state from spec.md §3.
type ConnectionState int

// Outer lifecycle states.
const (
	StateInit ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Phase is the handshake sub-state, only meaningful while Connecting.
type Phase int

// Handshake phases.
const (
	PhaseNone Phase = iota
	PhaseReconnecting
	PhaseEndpointDiscovery
	PhaseEstablishing
	PhaseAuthentication
	PhaseIdentification
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "-"
	case PhaseReconnecting:
		return "Reconnecting"
	case PhaseEndpointDiscovery:
		return "EndpointDiscovery"
	case PhaseEstablishing:
		return "Establishing"
	case PhaseAuthentication:
		return "Authentication"
	case PhaseIdentification:
		return "Identification"
	default:
		return "Unknown"
	}
}

// Conn is the slice of the connection collaborator the driver depends on:
// enough to identify it, push packages, and tear it down.
type Conn interface {
	ID() uuid.UUID
	Enqueue(wire.Package)
	Close() error
}

// Dialer creates a new candidate connection bound to endpoint, wiring cbs
// so the connection collaborator can report back into the driver's own
// message queue. It must return immediately; Established/ConnectionClosed
// follow asynchronously through cbs.
type Dialer func(ctx context.Context, endpoint discovery.Endpoint, cbs ConnCallbacks) Conn

// ConnCallbacks is the narrow set of lifecycle notifications a Dialer's
// connection must deliver back to the driver.
type ConnCallbacks struct {
	OnEstablished    func(id uuid.UUID)
	OnClosed         func(id uuid.UUID, err error)
	OnPackageArrived func(pkg wire.Package)
}

// queueCapacity bounds the driver's own inbound message queue. It is large
// enough to absorb a burst of NewOperation/SendPackage calls between ticks
// without a caller blocking in the common case.
const queueCapacity = 1024

// Driver is the actor described in spec.md §2. Construct with New, then run
// it on a dedicated goroutine with Run.
type Driver struct {
	cfg    *options.Settings
	logger *elog.Logger

	dial       Dialer
	discoverer discovery.Discoverer

	msgs chan Message

	state   ConnectionState
	phase   Phase
	attempt reconnect.Attempt

	candidate    Conn
	lastEndpoint *discovery.Endpoint

	handshakeCorrelation uuid.UUID
	handshakePending     bool
	handshakeStarted     time.Time

	health          *health.Tracker
	registry        *registry.Registry
	reconnectPolicy *reconnect.Policy

	lastOperationCheck time.Time

	ticker *tick.Ticker[Message]
	ctx    context.Context

	done chan struct{}
}

// New constructs a Driver. Call Run to start it.
func New(cfg *options.Settings, logger *elog.Logger, dial Dialer, discoverer discovery.Discoverer) *Driver {
	return &Driver{
		cfg:             cfg,
		logger:          logger,
		dial:            dial,
		discoverer:      discoverer,
		msgs:            make(chan Message, queueCapacity),
		health:          health.New(),
		registry:        registry.New(),
		reconnectPolicy: reconnect.New(cfg.ReconnectDelay, cfg.MaxReconnects),
		done:            make(chan struct{}),
	}
}

// Post enqueues msg on the driver's own queue. Safe to call from any
// goroutine; this is the sole cross-task shared object described in
// spec.md §5.
func (d *Driver) Post(msg Message) {
	d.msgs <- msg
}

// Done is closed once Run returns, whether from Shutdown or from
// ReconnectExhausted/HandshakeIdentifyTimeout returning Quit.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Run is the actor loop. It blocks until the driver quits (reconnect
// exhaustion, a fatal handshake timeout, or Shutdown) or ctx is canceled.
func (d *Driver) Run(ctx context.Context) {
	d.ctx = ctx
	defer close(d.done)

	d.start(time.Now())
	d.ticker = tick.Start(d.cfg.TickPeriod, d.msgs, func() Message { return tickMessage{at: time.Now()} })
	defer d.ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.msgs:
			if quit := d.handle(msg); quit {
				return
			}
		}
	}
}

func (d *Driver) handle(msg Message) (quit bool) {
	switch m := msg.(type) {
	case tickMessage:
		return d.onTick(m.at)
	case establishMessage:
		d.onEstablish(m.endpoint)
	case establishedMessage:
		d.onEstablished(m.id)
	case connectionClosedMessage:
		d.onConnectionClosed(m.id, m.err)
	case packageArrivedMessage:
		d.onPackageArrived(m.pkg)
	case newOperationMessage:
		d.onNewOperation(m.exchange)
	case sendPackageMessage:
		d.onSendPackage(m.pkg)
	case shutdownMessage:
		d.onShutdown()
		return true
	case probeMessage:
		m.reply <- Snapshot{
			State:        d.state,
			Phase:        d.phase,
			Tries:        d.attempt.Tries,
			RegistrySize: d.registry.Len(),
		}
	}
	return false
}

// Snapshot is a point-in-time view of the driver's state, obtained safely
// from any goroutine via Snapshot() — the read happens on the actor's own
// goroutine, not the caller's.
type Snapshot struct {
	State        ConnectionState
	Phase        Phase
	Tries        int
	RegistrySize int
}

// Snapshot posts a probe message onto the queue and blocks for the actor's
// own goroutine to answer it, giving callers (tests, diagnostics) a
// race-free read of otherwise-unsynchronized state.
func (d *Driver) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	d.Post(probeMessage{reply: reply})
	return <-reply
}

// start transitions (Init,*) -> (Connecting, Reconnecting, Attempt{0,now}).
func (d *Driver) start(now time.Time) {
	d.state = StateConnecting
	d.phase = PhaseReconnecting
	d.attempt = d.reconnectPolicy.NewAttempt(now)
	d.discover()
}

// discover is guarded by (Connecting, Reconnecting). It calls the discovery
// collaborator synchronously on the actor goroutine (spec.md §4.1, an
// acknowledged simplification) and posts Establish to the driver's own queue
// rather than transitioning directly, preserving message-ordering (c).
func (d *Driver) discover() {
	if d.state != StateConnecting || d.phase != PhaseReconnecting {
		return
	}

	ep, err := d.discoverer.Discover(d.ctx)
	if err != nil {
		d.logger.Error(elog.ComponentDiscovery, err, "discover failed, will retry on next due tick")
		return
	}

	d.phase = PhaseEndpointDiscovery
	d.health.Reset()
	d.Post(establishMessage{endpoint: ep})
}

// onEstablish is guarded by (Connecting, EndpointDiscovery).
func (d *Driver) onEstablish(endpoint discovery.Endpoint) {
	if d.state != StateConnecting || d.phase != PhaseEndpointDiscovery {
		return
	}

	cbs := ConnCallbacks{
		OnEstablished:    func(id uuid.UUID) { d.Post(establishedMessage{id: id}) },
		OnClosed:         func(id uuid.UUID, err error) { d.Post(connectionClosedMessage{id: id, err: err}) },
		OnPackageArrived: func(pkg wire.Package) { d.Post(packageArrivedMessage{pkg: pkg}) },
	}

	d.candidate = d.dial(d.ctx, endpoint, cbs)
	d.lastEndpoint = &endpoint
	d.phase = PhaseEstablishing
}

// onEstablished is guarded by (Connecting, Establishing) and a matching
// candidate identity, so a stale acknowledgement from a superseded socket
// is discarded.
func (d *Driver) onEstablished(id uuid.UUID) {
	if d.state != StateConnecting || d.phase != PhaseEstablishing {
		return
	}
	if d.candidate == nil || d.candidate.ID() != id {
		return
	}

	d.health.Reset()
	now := time.Now()

	if d.cfg.DefaultUserCredentials != nil {
		d.sendAuthenticate(now)
		return
	}
	d.sendIdentify(now)
}

func (d *Driver) sendAuthenticate(now time.Time) {
	payload, err := auth.BuildAuthenticatePayload(d.cfg.DefaultUserCredentials)
	if err != nil {
		d.logger.Error(elog.ComponentAuth, err, "failed to build authenticate payload, skipping to identification")
		d.sendIdentify(now)
		return
	}

	pkg := wire.NewPackage(wire.OpAuthenticate, payload)
	d.handshakeCorrelation = pkg.CorrelationID
	d.handshakePending = true
	d.handshakeStarted = now
	d.phase = PhaseAuthentication
	d.candidate.Enqueue(pkg)
}

func (d *Driver) sendIdentify(now time.Time) {
	payload := wire.EncodeIdentifyPayload(d.candidate.ID(), d.cfg.ConnectionName)
	pkg := wire.NewPackage(wire.OpIdentifyClient, payload)
	d.handshakeCorrelation = pkg.CorrelationID
	d.handshakePending = true
	d.handshakeStarted = now
	d.phase = PhaseIdentification
	d.candidate.Enqueue(pkg)
}

// onPackageArrived implements spec.md §4.1's dispatch table. incr_pkg_num
// runs unconditionally, before any branch inspects the handshake or
// registry, so the same tick's manage_heartbeat observes the traffic.
func (d *Driver) onPackageArrived(pkg wire.Package) {
	d.health.IncrPkgNum()

	switch {
	case d.isHandshakeReply(pkg, wire.OpClientIdentified, PhaseIdentification):
		d.completeIdentification()

	case d.isHandshakeReply(pkg, wire.OpAuthenticated, PhaseAuthentication),
		d.isHandshakeReply(pkg, wire.OpNotAuthenticated, PhaseAuthentication):
		if pkg.Command == wire.OpNotAuthenticated {
			d.logger.Info(elog.LevelInfo, elog.ComponentAuth, "authentication rejected, continuing to identification")
		}
		d.handshakePending = false
		d.sendIdentify(time.Now())

	case d.state == StateConnected:
		d.onPackageArrivedConnected(pkg)

	default:
		// StalePackage or handshake traffic with a mismatched correlation:
		// silently dropped per spec.md §4.1/§7.
	}
}

func (d *Driver) isHandshakeReply(pkg wire.Package, op wire.OpCode, phase Phase) bool {
	return pkg.Command == op &&
		d.state == StateConnecting &&
		d.phase == phase &&
		d.handshakePending &&
		pkg.CorrelationID == d.handshakeCorrelation
}

func (d *Driver) completeIdentification() {
	d.handshakePending = false
	d.state = StateConnected
	d.phase = PhaseNone
	d.attempt = reconnect.Attempt{}
	d.lastOperationCheck = time.Now()
	d.registry.ReissueParked(d.candidate)
}

func (d *Driver) onPackageArrivedConnected(pkg wire.Package) {
	switch pkg.Command {
	case wire.OpHeartbeatRequest:
		reply := wire.Package{
			Command:       wire.OpHeartbeatResponse,
			CorrelationID: pkg.CorrelationID,
		}
		d.candidate.Enqueue(reply)

	case wire.OpHeartbeatResponse:
		// Liveness already captured by IncrPkgNum above.

	default:
		if !d.registry.Handle(pkg, d.candidate) {
			d.logger.Info(elog.LevelDebug, elog.ComponentRegistry, "dropping package with unknown correlation", "correlation", pkg.CorrelationID)
		}
	}
}

// onConnectionClosed is a no-op unless id names the current candidate,
// satisfying the invariant in spec.md §8.
func (d *Driver) onConnectionClosed(id uuid.UUID, err error) {
	if d.candidate == nil || d.candidate.ID() != id {
		return
	}
	d.tcpConnectionClose(err)
}

// tcpConnectionClose is the unified transition both a transport failure and
// a heartbeat timeout funnel through.
func (d *Driver) tcpConnectionClose(cause error) {
	d.logger.Error(elog.ComponentConnection, cause, "connection closed")

	d.candidate = nil
	d.handshakePending = false

	now := time.Now()
	switch d.state {
	case StateConnected:
		d.attempt = d.reconnectPolicy.NewAttempt(now)
		d.state = StateConnecting
		d.phase = PhaseReconnecting
	case StateConnecting:
		d.phase = PhaseReconnecting
	}
}

// onNewOperation is always accepted: issued immediately if Connected,
// parked otherwise.
func (d *Driver) onNewOperation(exchange *registry.Exchange) {
	var conn registry.Sender
	if d.state == StateConnected {
		conn = d.candidate
	}
	d.registry.Register(exchange, conn, time.Now())
}

// onSendPackage is accepted only while Connected.
func (d *Driver) onSendPackage(pkg wire.Package) {
	if d.state != StateConnected {
		return
	}
	d.candidate.Enqueue(pkg)
}

func (d *Driver) onShutdown() {
	d.registry.DrainWithError(errs.New(errs.Shutdown, "driver is shutting down"))
	if d.candidate != nil {
		d.candidate.Close()
		d.candidate = nil
	}
	d.state = StateClosed
	d.phase = PhaseNone
}

// onTick is the coordinator described in spec.md §4.1. It returns true when
// the driver must quit: no further messages will produce useful work.
func (d *Driver) onTick(now time.Time) bool {
	switch d.state {
	case StateInit, StateClosed:
		return false

	case StateConnecting:
		return d.onTickConnecting(now)

	case StateConnected:
		if now.Sub(d.lastOperationCheck) >= d.cfg.OperationCheckPeriod {
			d.registry.CheckAndRetry(now, d.candidate, d.cfg.OperationTimeout, d.cfg.MaxOperationRetries)
			d.lastOperationCheck = now
		}
		d.runHeartbeat(now)
		return false
	}
	return false
}

func (d *Driver) onTickConnecting(now time.Time) bool {
	switch d.phase {
	case PhaseReconnecting:
		if !d.reconnectPolicy.Due(d.attempt, now) {
			return false
		}
		attempt, exhausted := d.reconnectPolicy.Advance(d.attempt, now)
		d.attempt = attempt
		if exhausted {
			d.logger.Error(elog.ComponentReconnect, errs.New(errs.ReconnectExhausted, "max reconnect attempts exceeded"), "quitting")
			d.registry.DrainWithError(errs.New(errs.ReconnectExhausted, "reconnect attempts exhausted"))
			return true
		}
		d.discover()
		return false

	case PhaseAuthentication:
		if now.Sub(d.handshakeStarted) >= d.cfg.OperationTimeout {
			d.logger.Error(elog.ComponentAuth, errs.New(errs.HandshakeAuthTimeout, "authenticate timed out"), "continuing to identification")
			d.handshakePending = false
			d.sendIdentify(now)
		}
		d.runHeartbeat(now)
		return false

	case PhaseIdentification:
		if now.Sub(d.handshakeStarted) >= d.cfg.OperationTimeout {
			d.logger.Error(elog.ComponentDriver, errs.New(errs.HandshakeIdentifyTimeout, "identify timed out"), "quitting")
			return true
		}
		d.runHeartbeat(now)
		return false

	case PhaseEndpointDiscovery, PhaseEstablishing:
		d.runHeartbeat(now)
		return false
	}
	return false
}

// runHeartbeat is a no-op before a candidate connection exists (possible
// briefly during EndpointDiscovery, before onEstablish has dialed).
func (d *Driver) runHeartbeat(now time.Time) {
	if d.candidate == nil {
		return
	}
	if d.health.ManageHeartbeat(now, d.candidate, d.cfg.HeartbeatDelay, d.cfg.HeartbeatTimeout) == health.Failure {
		d.tcpConnectionClose(errs.New(errs.HeartbeatTimeout, "peer stopped responding to heartbeats"))
	}
}
