// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package client is the public entry point: it wires the driver actor
// (internal/driver) to a real connection.Dialer and discovery.Discoverer
// and exposes a request/response call shaped like the teacher's
// topology.New/topo.Init/topo.Subscribe construction in
// mongo/private/examples/cluster_monitoring/main.go, adapted from a
// subscription model to a request/continuation one.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/EventStore/EventStore-Client-Go/internal/connection"
	"github.com/EventStore/EventStore-Client-Go/internal/discovery"
	"github.com/EventStore/EventStore-Client-Go/internal/driver"
	"github.com/EventStore/EventStore-Client-Go/internal/driver/registry"
	"github.com/EventStore/EventStore-Client-Go/internal/elog"
	"github.com/EventStore/EventStore-Client-Go/internal/tlsconfig"
	"github.com/EventStore/EventStore-Client-Go/internal/wire"
	"github.com/EventStore/EventStore-Client-Go/internal/wire/compress"
	"github.com/EventStore/EventStore-Client-Go/options"
)

// Client owns one driver actor and the collaborators it was constructed
// with. The zero value is not usable; construct with New.
type Client struct {
	drv    *driver.Driver
	logger *elog.Logger
	cancel context.CancelFunc
}

// New builds a Client against the given seed addresses ("host:port"). It
// does not dial anything until Start is called.
func New(seeds []string, settings *options.Settings, logger *elog.Logger) (*Client, error) {
	if settings == nil {
		var err error
		settings, err = options.New().Build()
		if err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = elog.New(nil, nil)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("client: at least one seed endpoint is required")
	}

	endpoints := make([]discovery.Endpoint, len(seeds))
	for i, s := range seeds {
		endpoints[i] = discovery.Endpoint{Address: s}
	}
	discoverer := discovery.NewStatic(endpoints, time.Now().UnixNano())

	tlsCfg, err := buildTLSConfig(settings)
	if err != nil {
		return nil, err
	}

	comp, err := buildCompression(settings)
	if err != nil {
		return nil, err
	}

	dial := func(ctx context.Context, ep discovery.Endpoint, cbs driver.ConnCallbacks) driver.Conn {
		return connection.Dial(ctx, ep.Address, tlsCfg, comp, connection.Callbacks{
			OnEstablished:    cbs.OnEstablished,
			OnClosed:         cbs.OnClosed,
			OnPackageArrived: cbs.OnPackageArrived,
		})
	}

	return &Client{
		drv:    driver.New(settings, logger, dial, discoverer),
		logger: logger,
	}, nil
}

func buildTLSConfig(settings *options.Settings) (*tls.Config, error) {
	if settings.TLS == nil {
		return nil, nil
	}
	return tlsconfig.Build(settings.TLS)
}

// Start launches the driver's actor loop on a background goroutine. ctx
// governs the loop's lifetime in addition to Shutdown.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.drv.Run(ctx)
}

// Shutdown drains every outstanding exchange with an error, closes the
// candidate connection, and waits for the actor loop to return.
func (c *Client) Shutdown() {
	c.drv.Post(driver.ShutdownMessage())
	<-c.drv.Done()
	if c.cancel != nil {
		c.cancel()
	}
}

// Done reports when the underlying driver has stopped, whether from
// Shutdown or from exhausting its reconnect budget.
func (c *Client) Done() <-chan struct{} {
	return c.drv.Done()
}

type execResult struct {
	pkg wire.Package
	err error
}

// Execute submits a single-response exchange and blocks until its reply
// arrives, ctx is canceled, or the driver stops. The exchange authenticates
// as the handshake's session identity.
func (c *Client) Execute(ctx context.Context, cmd wire.OpCode, payload []byte) (wire.Package, error) {
	return c.ExecuteAs(ctx, cmd, payload, nil)
}

// ExecuteAs is Execute with a per-operation credential override (spec.md
// §3): when creds is non-nil, the outbound package carries it instead of
// relying on the handshake's session identity, re-attached on every retry
// or re-issue by the registry.
func (c *Client) ExecuteAs(ctx context.Context, cmd wire.OpCode, payload []byte, creds *wire.Credentials) (wire.Package, error) {
	results := make(chan execResult, 1)
	exchange := &registry.Exchange{
		Package:     wire.NewPackage(cmd, payload),
		Credentials: creds,
		Continuation: func(pkg wire.Package, err error) {
			results <- execResult{pkg: pkg, err: err}
		},
	}

	c.drv.Post(driver.NewOperationMessage(exchange))

	select {
	case res := <-results:
		return res.pkg, res.err
	case <-ctx.Done():
		return wire.Package{}, ctx.Err()
	case <-c.drv.Done():
		return wire.Package{}, fmt.Errorf("client: driver stopped before a response arrived")
	}
}

// Send submits an ad-hoc package outside the exchange/continuation flow.
// It is dropped if the driver is not currently Connected.
func (c *Client) Send(pkg wire.Package) {
	c.drv.Post(driver.NewSendPackageMessage(pkg))
}

func buildCompression(settings *options.Settings) (*connection.Compression, error) {
	if settings.CompressionThreshold <= 0 {
		return nil, nil
	}
	comp, ok := compress.ByName(settings.Compressor)
	if !ok {
		return nil, fmt.Errorf("client: unknown compressor %q", settings.Compressor)
	}
	return &connection.Compression{Threshold: settings.CompressionThreshold, Compressor: comp}, nil
}
