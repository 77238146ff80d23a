// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package options holds the driver's configuration types, built with the
// same deferred-setter builder pattern as the teacher's mongo/options
// package (SetX appends a closure rather than mutating the struct inline).
package options

import "time"

// Default values from spec.md §6.
const (
	DefaultHeartbeatDelay        = 750 * time.Millisecond
	DefaultHeartbeatTimeout      = 1500 * time.Millisecond
	DefaultOperationTimeout      = 7 * time.Second
	DefaultOperationCheckPeriod  = 1 * time.Second
	DefaultReconnectDelay        = 3 * time.Second
	DefaultTickPeriod            = 200 * time.Millisecond
	DefaultMaxOperationRetries   = 3
	// Unbounded is the sentinel value for Settings.MaxReconnects meaning
	// "retry forever".
	Unbounded = -1
)

// Credentials authenticate the handshake when set as DefaultUserCredentials.
type Credentials struct {
	Username string
	Password string
}

// TLS configures the transport security used by the connection
// collaborator (§6). A nil *TLS means plaintext.
type TLS struct {
	// ServerName overrides the TLS ServerName / SNI value. If empty, the
	// endpoint's host is used.
	ServerName string
	// InsecureSkipVerify disables certificate verification. Never use in
	// production — exposed for integration tests against self-signed
	// endpoints.
	InsecureSkipVerify bool
	// CertFile / KeyFile configure a client certificate for mutual TLS.
	CertFile string
	KeyFile  string
	// KeyPassphrase decrypts KeyFile when it is a PKCS#8 encrypted key.
	KeyPassphrase string
	// CAFile overrides the system trust root.
	CAFile string
	// OCSPStapling is not read by the driver: whenever the peer staples an
	// OCSP response, it is checked on every TLS connection, whether this
	// field is set or not.
	OCSPStapling bool
}

// Settings configures a driver instance. Construct with New() and chain
// SetX calls, then call Build, which runs Validate on the result.
type Settings struct {
	ConnectionName         string
	DefaultUserCredentials *Credentials
	TLS                    *TLS

	HeartbeatDelay       time.Duration
	HeartbeatTimeout     time.Duration
	OperationTimeout     time.Duration
	OperationCheckPeriod time.Duration
	ReconnectDelay       time.Duration
	TickPeriod           time.Duration
	MaxReconnects        int
	MaxOperationRetries  int

	// CompressionThreshold is the minimum payload size, in bytes, above
	// which outbound packages are compressed. Zero disables compression.
	CompressionThreshold int
	// Compressor names the compression method ("snappy" or "zstd"); ignored
	// when CompressionThreshold is zero.
	Compressor string
}

// Builder accumulates setter closures applied in order against a Settings
// seeded with defaults, mirroring mongo/options's OptionsSetters pattern.
type Builder struct {
	opts []func(*Settings) error
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// SetConnectionName sets the name sent in the IdentifyClient payload.
func (b *Builder) SetConnectionName(name string) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.ConnectionName = name
		return nil
	})
	return b
}

// SetDefaultUserCredentials sets the credentials used for the Authenticate
// handshake phase. Passing nil skips authentication entirely.
func (b *Builder) SetDefaultUserCredentials(c *Credentials) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.DefaultUserCredentials = c
		return nil
	})
	return b
}

// SetTLS configures transport security.
func (b *Builder) SetTLS(t *TLS) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.TLS = t
		return nil
	})
	return b
}

// SetHeartbeatDelay sets the quiet time before a heartbeat probe is sent.
func (b *Builder) SetHeartbeatDelay(d time.Duration) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.HeartbeatDelay = d
		return nil
	})
	return b
}

// SetHeartbeatTimeout sets the silence duration after a probe before the
// connection is declared dead.
func (b *Builder) SetHeartbeatTimeout(d time.Duration) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.HeartbeatTimeout = d
		return nil
	})
	return b
}

// SetOperationTimeout sets the per-exchange response deadline.
func (b *Builder) SetOperationTimeout(d time.Duration) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.OperationTimeout = d
		return nil
	})
	return b
}

// SetOperationCheckPeriod sets the registry sweep cadence.
func (b *Builder) SetOperationCheckPeriod(d time.Duration) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.OperationCheckPeriod = d
		return nil
	})
	return b
}

// SetReconnectDelay sets the minimum wall-time between discovery attempts.
func (b *Builder) SetReconnectDelay(d time.Duration) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.ReconnectDelay = d
		return nil
	})
	return b
}

// SetMaxReconnects bounds reconnection attempts. Use options.Unbounded for
// no limit.
func (b *Builder) SetMaxReconnects(n int) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.MaxReconnects = n
		return nil
	})
	return b
}

// SetMaxOperationRetries bounds per-exchange retries in the registry.
func (b *Builder) SetMaxOperationRetries(n int) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.MaxOperationRetries = n
		return nil
	})
	return b
}

// SetCompression enables payload compression above threshold bytes using
// the named method ("snappy" or "zstd").
func (b *Builder) SetCompression(threshold int, method string) *Builder {
	b.opts = append(b.opts, func(s *Settings) error {
		s.CompressionThreshold = threshold
		s.Compressor = method
		return nil
	})
	return b
}

// Build applies every accumulated setter over a default-seeded Settings and
// validates the result.
func (b *Builder) Build() (*Settings, error) {
	s := &Settings{
		HeartbeatDelay:       DefaultHeartbeatDelay,
		HeartbeatTimeout:     DefaultHeartbeatTimeout,
		OperationTimeout:     DefaultOperationTimeout,
		OperationCheckPeriod: DefaultOperationCheckPeriod,
		ReconnectDelay:       DefaultReconnectDelay,
		TickPeriod:           DefaultTickPeriod,
		MaxReconnects:        Unbounded,
		MaxOperationRetries:  DefaultMaxOperationRetries,
	}

	for _, opt := range b.opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate reports whether the settings are internally consistent.
func (s *Settings) Validate() error {
	if s.HeartbeatDelay <= 0 {
		return errSettings("HeartbeatDelay must be positive")
	}
	if s.HeartbeatTimeout <= 0 {
		return errSettings("HeartbeatTimeout must be positive")
	}
	if s.OperationTimeout <= 0 {
		return errSettings("OperationTimeout must be positive")
	}
	if s.OperationCheckPeriod <= 0 {
		return errSettings("OperationCheckPeriod must be positive")
	}
	if s.ReconnectDelay < 0 {
		return errSettings("ReconnectDelay must not be negative")
	}
	if s.MaxReconnects < Unbounded {
		return errSettings("MaxReconnects must be Unbounded or >= 0")
	}
	if s.MaxOperationRetries < 0 {
		return errSettings("MaxOperationRetries must not be negative")
	}
	if s.Compressor != "" && s.Compressor != "snappy" && s.Compressor != "zstd" {
		return errSettings("Compressor must be \"snappy\" or \"zstd\"")
	}
	return nil
}

type settingsError string

func (e settingsError) Error() string { return "options: " + string(e) }

func errSettings(msg string) error { return settingsError(msg) }
