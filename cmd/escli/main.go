// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Command escli is a minimal driver smoke-test, shaped after
// mongo/private/examples/cluster_monitoring/main.go: construct, start, and
// observe until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/EventStore/EventStore-Client-Go/client"
	"github.com/EventStore/EventStore-Client-Go/internal/elog"
	"github.com/EventStore/EventStore-Client-Go/internal/wire"
	"github.com/EventStore/EventStore-Client-Go/options"
)

func main() {
	seed := flag.String("seed", "127.0.0.1:1113", "seed endpoint, host:port")
	logLevel := flag.String("log-level", "info", "off|info|debug")
	flag.Parse()

	levels := map[elog.Component]elog.Level{
		elog.ComponentDriver:     elog.ParseLevel(*logLevel),
		elog.ComponentHealth:     elog.ParseLevel(*logLevel),
		elog.ComponentRegistry:   elog.ParseLevel(*logLevel),
		elog.ComponentReconnect:  elog.ParseLevel(*logLevel),
		elog.ComponentConnection: elog.ParseLevel(*logLevel),
		elog.ComponentDiscovery:  elog.ParseLevel(*logLevel),
		elog.ComponentAuth:       elog.ParseLevel(*logLevel),
	}
	logger := elog.New(nil, levels)

	settings, err := options.New().
		SetConnectionName("escli").
		Build()
	if err != nil {
		log.Fatalf("escli: invalid settings: %v", err)
	}

	c, err := client.New([]string{*seed}, settings, logger)
	if err != nil {
		log.Fatalf("escli: could not construct client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c.Start(ctx)
	defer c.Shutdown()

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	reply, err := c.Execute(opCtx, wire.OpReadEvent, nil)
	if err != nil {
		log.Printf("escli: read event failed: %v", err)
	} else {
		log.Printf("escli: received %s correlation=%s", reply.Command, reply.CorrelationID)
	}

	<-ctx.Done()
}
