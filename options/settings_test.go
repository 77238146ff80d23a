// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	. "github.com/EventStore/EventStore-Client-Go/options"
)

func TestBuildAppliesDefaults(t *testing.T) {
	s, err := New().Build()
	require.NoError(t, err)

	require.Equal(t, DefaultHeartbeatDelay, s.HeartbeatDelay)
	require.Equal(t, DefaultHeartbeatTimeout, s.HeartbeatTimeout)
	require.Equal(t, DefaultOperationTimeout, s.OperationTimeout)
	require.Equal(t, DefaultOperationCheckPeriod, s.OperationCheckPeriod)
	require.Equal(t, DefaultReconnectDelay, s.ReconnectDelay)
	require.Equal(t, DefaultTickPeriod, s.TickPeriod)
	require.Equal(t, Unbounded, s.MaxReconnects)
	require.Equal(t, DefaultMaxOperationRetries, s.MaxOperationRetries)
}

func TestBuilderAppliesSettersInOrder(t *testing.T) {
	s, err := New().
		SetConnectionName("worker-1").
		SetHeartbeatDelay(500 * time.Millisecond).
		SetMaxReconnects(5).
		SetCompression(1024, "snappy").
		Build()

	require.NoError(t, err)
	require.Equal(t, "worker-1", s.ConnectionName)
	require.Equal(t, 500*time.Millisecond, s.HeartbeatDelay)
	require.Equal(t, 5, s.MaxReconnects)
	require.Equal(t, 1024, s.CompressionThreshold)
	require.Equal(t, "snappy", s.Compressor)
}

func TestBuildRejectsInvalidSettings(t *testing.T) {
	_, err := New().SetHeartbeatDelay(0).Build()
	require.Error(t, err)

	_, err = New().SetMaxReconnects(-2).Build()
	require.Error(t, err)

	_, err = New().SetCompression(10, "lz4").Build()
	require.Error(t, err)
}

func TestDefaultUserCredentialsNilUnlessSet(t *testing.T) {
	s, err := New().Build()
	require.NoError(t, err)
	require.Nil(t, s.DefaultUserCredentials)

	s, err = New().SetDefaultUserCredentials(&Credentials{Username: "u", Password: "p"}).Build()
	require.NoError(t, err)
	require.Equal(t, "u", s.DefaultUserCredentials.Username)
}

func TestBuildIsIdempotentForTheSameSetterChain(t *testing.T) {
	build := func() *Settings {
		s, err := New().
			SetConnectionName("worker-1").
			SetHeartbeatTimeout(2 * time.Second).
			SetCompression(2048, "zstd").
			Build()
		require.NoError(t, err)
		return s
	}

	a, b := build(), build()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("two builds of the same setter chain diverged (-a +b):\n%s", diff)
	}
}
