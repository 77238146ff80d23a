// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// EncodeIdentifyPayload builds the IdentifyClient payload: the connection
// handle identity followed by the operator-supplied connection name. This
// mirrors the shape the original Rust driver sends (connection id bytes +
// name string) rather than spec.md's silence on the exact layout.
func EncodeIdentifyPayload(connectionID uuid.UUID, connectionName string) []byte {
	idBytes, _ := connectionID.MarshalBinary()

	buf := make([]byte, 0, 16+4+len(connectionName))
	buf = append(buf, idBytes...)

	var nameLen [4]byte
	binary.LittleEndian.PutUint32(nameLen[:], uint32(len(connectionName)))
	buf = append(buf, nameLen[:]...)
	buf = append(buf, connectionName...)
	return buf
}
