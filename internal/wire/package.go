// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// flag bits set on the wire. FlagAuthenticated mirrors the real protocol's
// use of a single credentials flag; FlagCompressed is this driver's own
// extension for negotiated payload compression (see internal/wire/compress).
type flag byte

const (
	flagAuthenticated flag = 1 << 0
	flagCompressed    flag = 1 << 1
)

// headerSize is the fixed portion of a Package on the wire, not counting the
// 4-byte length prefix: 1 byte opcode, 1 byte flags, 16 byte correlation id.
const headerSize = 1 + 1 + 16

// maxPackageSize guards against a corrupt or hostile length prefix causing
// an unbounded allocation.
const maxPackageSize = 64 * 1024 * 1024

// Credentials authenticate a single package or a handshake attempt.
type Credentials struct {
	Username string
	Password string
}

// Package is the opaque framed unit exchanged with the server. Correlation
// uniquely names a request/response pair; Command identifies which handler
// should process it.
type Package struct {
	Command       OpCode
	CorrelationID uuid.UUID
	Credentials   *Credentials
	Compressed    bool
	Payload       []byte
}

// NewPackage builds a Package with a freshly generated correlation
// identifier.
func NewPackage(cmd OpCode, payload []byte) Package {
	return Package{
		Command:       cmd,
		CorrelationID: uuid.New(),
		Payload:       payload,
	}
}

// WithCredentials returns a copy of the package carrying the given
// credentials, used for per-operation credential overrides (see
// SPEC_FULL.md "Supplemented features").
func (p Package) WithCredentials(c *Credentials) Package {
	p.Credentials = c
	return p
}

// Encode appends the wire representation of p to buf and returns the
// extended slice. The 4-byte length prefix is little-endian and counts
// everything after itself, matching the length-prefixed framing described
// in spec.md §1.
func Encode(buf []byte, p Package) ([]byte, error) {
	var f flag
	if p.Credentials != nil {
		f |= flagAuthenticated
	}
	if p.Compressed {
		f |= flagCompressed
	}

	bodyLen := headerSize + len(p.Payload)
	if p.Credentials != nil {
		bodyLen += len(p.Credentials.Username) + 1 + len(p.Credentials.Password) + 1
	}

	start := len(buf)
	buf = append(buf, make([]byte, 4+bodyLen)...)
	binary.LittleEndian.PutUint32(buf[start:], uint32(bodyLen))

	pos := start + 4
	buf[pos] = byte(p.Command)
	pos++
	buf[pos] = byte(f)
	pos++
	corr, _ := p.CorrelationID.MarshalBinary()
	copy(buf[pos:], corr)
	pos += 16

	if p.Credentials != nil {
		pos += copy(buf[pos:], p.Credentials.Username)
		buf[pos] = 0
		pos++
		pos += copy(buf[pos:], p.Credentials.Password)
		buf[pos] = 0
		pos++
	}

	copy(buf[pos:], p.Payload)
	return buf, nil
}

// ReadPackage reads exactly one length-prefixed Package from r. It is the
// inverse of Encode and is used by the connection collaborator (§6) on
// every inbound frame.
func ReadPackage(r io.Reader) (Package, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Package{}, fmt.Errorf("wire: read length prefix: %w", err)
	}

	bodyLen := binary.LittleEndian.Uint32(lenBuf[:])
	if bodyLen < headerSize || bodyLen > maxPackageSize {
		return Package{}, fmt.Errorf("wire: invalid package length %d", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Package{}, fmt.Errorf("wire: read body: %w", err)
	}

	return decodeBody(body)
}

func decodeBody(body []byte) (Package, error) {
	p := Package{
		Command: OpCode(body[0]),
	}
	f := flag(body[1])
	p.Compressed = f&flagCompressed != 0

	if err := p.CorrelationID.UnmarshalBinary(body[2:18]); err != nil {
		return Package{}, fmt.Errorf("wire: decode correlation id: %w", err)
	}

	pos := 18
	if f&flagAuthenticated != 0 {
		user, next, err := readCString(body, pos)
		if err != nil {
			return Package{}, err
		}
		pass, next, err := readCString(body, next)
		if err != nil {
			return Package{}, err
		}
		p.Credentials = &Credentials{Username: user, Password: pass}
		pos = next
	}

	p.Payload = body[pos:]
	return p, nil
}

func readCString(body []byte, pos int) (string, int, error) {
	for i := pos; i < len(body); i++ {
		if body[i] == 0 {
			return string(body[pos:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("wire: unterminated credential string")
}
