// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package wire contains the framing types exchanged with the server:
// opcodes, correlation identifiers, and the length-prefixed Package codec.
// It purposefully knows nothing about the driver state machine that
// consumes it.
package wire

import "fmt"

// OpCode identifies the command or reply carried by a Package.
type OpCode byte

// Opcode catalogue. Values match the wire protocol exactly; unknown values
// are preserved verbatim by the codec so unrecognized commands round-trip.
const (
	OpHeartbeatRequest  OpCode = 0x01
	OpHeartbeatResponse OpCode = 0x02

	OpAuthenticate     OpCode = 0xF2
	OpAuthenticated    OpCode = 0xF3
	OpNotAuthenticated OpCode = 0xF4
	OpIdentifyClient   OpCode = 0xF5
	OpClientIdentified OpCode = 0xF6

	OpWriteEvents          OpCode = 0x82
	OpWriteEventsCompleted OpCode = 0x83

	OpReadEvent          OpCode = 0xB0
	OpReadEventCompleted OpCode = 0xB1

	OpTransactionStart           OpCode = 0x84
	OpTransactionStartCompleted  OpCode = 0x85
	OpTransactionWrite           OpCode = 0x86
	OpTransactionWriteCompleted  OpCode = 0x87
	OpTransactionCommit          OpCode = 0x88
	OpTransactionCommitCompleted OpCode = 0x89
)

var opCodeNames = map[OpCode]string{
	OpHeartbeatRequest:           "HeartbeatRequest",
	OpHeartbeatResponse:          "HeartbeatResponse",
	OpAuthenticate:               "Authenticate",
	OpAuthenticated:              "Authenticated",
	OpNotAuthenticated:           "NotAuthenticated",
	OpIdentifyClient:             "IdentifyClient",
	OpClientIdentified:           "ClientIdentified",
	OpWriteEvents:                "WriteEvents",
	OpWriteEventsCompleted:       "WriteEventsCompleted",
	OpReadEvent:                  "ReadEvent",
	OpReadEventCompleted:         "ReadEventCompleted",
	OpTransactionStart:           "TransactionStart",
	OpTransactionStartCompleted:  "TransactionStartCompleted",
	OpTransactionWrite:           "TransactionWrite",
	OpTransactionWriteCompleted:  "TransactionWriteCompleted",
	OpTransactionCommit:          "TransactionCommit",
	OpTransactionCommitCompleted: "TransactionCommitCompleted",
}

// String implements fmt.Stringer. Unknown opcodes print their hex value
// rather than panicking, since the codec must round-trip them.
func (op OpCode) String() string {
	if name, ok := opCodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02X)", byte(op))
}
