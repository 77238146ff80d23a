// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package errs defines the error kinds the driver core distinguishes (§7),
// grounded on core/connection.Error's {wrapped error, message} shape.
package errs

import "fmt"

// Kind names one of the error kinds enumerated in spec.md §7.
type Kind string

// Error kinds the driver core distinguishes.
const (
	TransportFailure         Kind = "transport_failure"
	HeartbeatTimeout         Kind = "heartbeat_timeout"
	HandshakeAuthTimeout     Kind = "handshake_auth_timeout"
	HandshakeIdentifyTimeout Kind = "handshake_identify_timeout"
	ReconnectExhausted       Kind = "reconnect_exhausted"
	OperationTimeout         Kind = "operation_timeout"
	StalePackage             Kind = "stale_package"
	Shutdown                 Kind = "shutdown"
)

// Error is the driver's error type: a Kind plus an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("driver: %s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("driver: %s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: cause}
}
