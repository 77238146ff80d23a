// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package compress provides the pluggable payload compressors, grounded on
// the Compressor interface implied by core/connection.go's compressorMap in
// the teacher driver. The compressor is selected by name from configuration;
// nothing is negotiated with the server during the handshake.
package compress

import (
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressor compresses and decompresses Package payloads. Implementations
// must be safe for reuse across packages but not for concurrent use by
// multiple goroutines — the driver is single-threaded per connection.
type Compressor interface {
	// Name identifies the method, matching the name ByName accepts.
	Name() string
	CompressBytes(src, dst []byte) ([]byte, error)
	UncompressBytes(src, dst []byte) ([]byte, error)
}

// Snappy is the default, low-latency compressor.
type Snappy struct{}

// Name implements Compressor.
func (Snappy) Name() string { return "snappy" }

// CompressBytes implements Compressor.
func (Snappy) CompressBytes(src, dst []byte) ([]byte, error) {
	return snappy.Encode(dst[:0], src), nil
}

// UncompressBytes implements Compressor.
func (Snappy) UncompressBytes(src, dst []byte) ([]byte, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return nil, err
	}
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	return snappy.Decode(dst[:n], src)
}

// Zstd trades CPU for a higher compression ratio, useful for large event
// payloads. A new encoder or decoder is constructed on every
// CompressBytes/UncompressBytes call; none is kept on the Zstd value.
type Zstd struct {
	level zstd.EncoderLevel
}

// NewZstd returns a Zstd compressor at the given level. A zero value
// defaults to zstd.SpeedDefault.
func NewZstd(level zstd.EncoderLevel) Zstd {
	if level == 0 {
		level = zstd.SpeedDefault
	}
	return Zstd{level: level}
}

// Name implements Compressor.
func (Zstd) Name() string { return "zstd" }

// CompressBytes implements Compressor.
func (z Zstd) CompressBytes(src, dst []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(z.level))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst[:0]), nil
}

// UncompressBytes implements Compressor.
func (Zstd) UncompressBytes(src, dst []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(src, dst[:0])
}

// ByName returns the built-in compressor with the given configured name, or
// false if unrecognized.
func ByName(name string) (Compressor, bool) {
	switch name {
	case "snappy":
		return Snappy{}, true
	case "zstd":
		return NewZstd(0), true
	default:
		return nil, false
	}
}
