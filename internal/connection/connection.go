// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package connection is the TCP connection collaborator described in
// spec.md §6: it dials a remote endpoint, frames outbound packages,
// decodes inbound ones, and notifies the driver of lifecycle events through
// a small set of callbacks. It knows nothing about driver state — it only
// emits Established/Closed/PackageArrived and accepts fire-and-forget
// Enqueue calls, exactly the external contract spec.md promises.
//
// Grounded on core/connection.go in the teacher driver: the dial, the TLS
// handshake-with-context-cancellation, and the length-prefixed read/write
// loop all follow its shape, adapted from BSON wire messages to
// internal/wire.Package framing.
package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/EventStore/EventStore-Client-Go/internal/tlsconfig"
	"github.com/EventStore/EventStore-Client-Go/internal/wire"
	"github.com/EventStore/EventStore-Client-Go/internal/wire/compress"
)

// Callbacks are invoked by the connection's internal goroutines as the
// underlying socket progresses through its lifecycle. They must not block
// for long — the driver expects to treat them as cheap message-queue sends.
type Callbacks struct {
	OnEstablished    func(id uuid.UUID)
	OnClosed         func(id uuid.UUID, err error)
	OnPackageArrived func(pkg wire.Package)
}

// Compression configures optional payload compression above a size
// threshold. It is set from configuration, not negotiated: once enabled,
// every outbound payload of at least Threshold bytes is compressed.
type Compression struct {
	Threshold  int
	Compressor compress.Compressor
}

// Handle is the connection identity + send endpoint described in spec.md
// §3's Data Model. Exactly one Handle is live at a time from the driver's
// point of view; Close tears down the socket and is idempotent.
type Handle struct {
	id   uuid.UUID
	addr string

	mu    sync.Mutex
	queue []wire.Package
	wake  chan struct{}
	conn  net.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial opens a TCP (optionally TLS) connection to addr and begins the
// read/write loops. It returns immediately; OnEstablished or OnClosed fires
// asynchronously once the dial resolves.
func Dial(ctx context.Context, addr string, tlsCfg *tls.Config, comp *Compression, cbs Callbacks) *Handle {
	h := &Handle{
		id:     uuid.New(),
		addr:   addr,
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}

	go h.establish(ctx, tlsCfg, comp, cbs)

	return h
}

// ID returns the connection's stable identity.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) establish(ctx context.Context, tlsCfg *tls.Config, comp *Compression, cbs Callbacks) {
	dialer := &net.Dialer{}
	nc, err := dialer.DialContext(ctx, "tcp", h.addr)
	if err != nil {
		h.fail(fmt.Errorf("connection: dial %s: %w", h.addr, err), cbs)
		return
	}

	if tlsCfg != nil {
		cfg := tlsCfg
		if cfg.ServerName == "" {
			if host, _, err := net.SplitHostPort(h.addr); err == nil {
				cfg = cfg.Clone()
				cfg.ServerName = host
			}
		}
		tlsConn, err := handshakeTLS(ctx, nc, cfg)
		if err != nil {
			nc.Close()
			h.fail(fmt.Errorf("connection: tls handshake: %w", err), cbs)
			return
		}
		if tlsCfg.VerifyPeerCertificate == nil {
			if err := tlsconfig.VerifyStapledResponse(tlsConn.ConnectionState()); err != nil {
				tlsConn.Close()
				h.fail(err, cbs)
				return
			}
		}
		nc = tlsConn
	}

	h.mu.Lock()
	h.conn = nc
	h.mu.Unlock()

	if cbs.OnEstablished != nil {
		cbs.OnEstablished(h.id)
	}

	go h.writeLoop(nc, comp, cbs)
	go h.readLoop(nc, comp, cbs)
}

func handshakeTLS(ctx context.Context, nc net.Conn, cfg *tls.Config) (*tls.Conn, error) {
	client := tls.Client(nc, cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- client.HandshakeContext(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return nil, err
		}
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Enqueue appends pkg to the outbound queue and wakes the writer. It never
// blocks the caller — the outbound queue is unbounded in this revision
// (spec.md §5, documented as an open question for production hardening).
func (h *Handle) Enqueue(pkg wire.Package) {
	h.mu.Lock()
	h.queue = append(h.queue, pkg)
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Handle) dequeueAll() []wire.Package {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.queue) == 0 {
		return nil
	}
	q := h.queue
	h.queue = nil
	return q
}

func (h *Handle) writeLoop(conn net.Conn, comp *Compression, cbs Callbacks) {
	buf := make([]byte, 0, 4096)
	scratch := make([]byte, 0, 4096)

	for {
		select {
		case <-h.closed:
			return
		case <-h.wake:
		}

		pkgs := h.dequeueAll()
		if len(pkgs) == 0 {
			continue
		}

		buf = buf[:0]
		for _, pkg := range pkgs {
			pkg, scratch = maybeCompress(pkg, comp, scratch)

			var err error
			buf, err = wire.Encode(buf, pkg)
			if err != nil {
				h.fail(fmt.Errorf("connection: encode package: %w", err), cbs)
				return
			}
		}

		if _, err := conn.Write(buf); err != nil {
			h.fail(fmt.Errorf("connection: write: %w", err), cbs)
			return
		}
	}
}

func maybeCompress(pkg wire.Package, comp *Compression, scratch []byte) (wire.Package, []byte) {
	if comp == nil || comp.Compressor == nil || len(pkg.Payload) < comp.Threshold {
		return pkg, scratch
	}

	compressed, err := comp.Compressor.CompressBytes(pkg.Payload, scratch[:0])
	if err != nil {
		return pkg, scratch
	}

	pkg.Payload = append([]byte(nil), compressed...)
	pkg.Compressed = true
	return pkg, compressed
}

func (h *Handle) readLoop(conn net.Conn, comp *Compression, cbs Callbacks) {
	for {
		pkg, err := wire.ReadPackage(conn)
		if err != nil {
			h.fail(fmt.Errorf("connection: read: %w", err), cbs)
			return
		}

		if pkg.Compressed && comp != nil && comp.Compressor != nil {
			plain, err := comp.Compressor.UncompressBytes(pkg.Payload, nil)
			if err != nil {
				h.fail(fmt.Errorf("connection: uncompress payload: %w", err), cbs)
				return
			}
			pkg.Payload = plain
			pkg.Compressed = false
		}

		if cbs.OnPackageArrived != nil {
			cbs.OnPackageArrived(pkg)
		}
	}
}

// Close tears down the socket. Safe to call more than once; only the first
// call has effect.
func (h *Handle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		conn := h.conn
		h.mu.Unlock()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}

func (h *Handle) fail(err error, cbs Callbacks) {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.mu.Lock()
		conn := h.conn
		h.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		if cbs.OnClosed != nil {
			cbs.OnClosed(h.id, err)
		}
	})
}
