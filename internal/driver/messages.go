// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"time"

	"github.com/google/uuid"

	"github.com/EventStore/EventStore-Client-Go/internal/discovery"
	"github.com/EventStore/EventStore-Client-Go/internal/driver/registry"
	"github.com/EventStore/EventStore-Client-Go/internal/wire"
)

// Message is the tagged union of events the driver's actor loop consumes,
// matching the Inputs list in spec.md §4.1 exactly.
type Message interface {
	isMessage()
}

type tickMessage struct{ at time.Time }

type establishMessage struct{ endpoint discovery.Endpoint }

type establishedMessage struct{ id uuid.UUID }

type connectionClosedMessage struct {
	id  uuid.UUID
	err error
}

type packageArrivedMessage struct{ pkg wire.Package }

type newOperationMessage struct{ exchange *registry.Exchange }

type sendPackageMessage struct{ pkg wire.Package }

type shutdownMessage struct{}

type probeMessage struct{ reply chan Snapshot }

func (tickMessage) isMessage()             {}
func (establishMessage) isMessage()        {}
func (establishedMessage) isMessage()      {}
func (connectionClosedMessage) isMessage() {}
func (packageArrivedMessage) isMessage()   {}
func (newOperationMessage) isMessage()     {}
func (sendPackageMessage) isMessage()      {}
func (shutdownMessage) isMessage()         {}
func (probeMessage) isMessage()            {}

// NewEstablishedMessage reports that the connection identified by id has
// become writable. Sent by the connection collaborator.
func NewEstablishedMessage(id uuid.UUID) Message {
	return establishedMessage{id: id}
}

// NewConnectionClosedMessage reports that the connection identified by id
// has failed or closed. Sent by the connection collaborator.
func NewConnectionClosedMessage(id uuid.UUID, err error) Message {
	return connectionClosedMessage{id: id, err: err}
}

// NewPackageArrivedMessage carries an inbound package off the wire. Sent by
// the connection collaborator.
func NewPackageArrivedMessage(pkg wire.Package) Message {
	return packageArrivedMessage{pkg: pkg}
}

// NewOperationMessage schedules a new application exchange. Sent by the
// public facade on behalf of a caller.
func NewOperationMessage(exchange *registry.Exchange) Message {
	return newOperationMessage{exchange: exchange}
}

// NewSendPackageMessage schedules an ad-hoc package outside the exchange
// flow. Sent by the public facade.
func NewSendPackageMessage(pkg wire.Package) Message {
	return sendPackageMessage{pkg: pkg}
}

// ShutdownMessage requests a graceful stop: every outstanding exchange is
// failed, the candidate connection is closed, and the actor loop returns.
func ShutdownMessage() Message {
	return shutdownMessage{}
}
