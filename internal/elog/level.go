// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package elog is the driver's internal logging facade. It writes through a
// go-logr/logr LogSink, calling only its Info and Error methods, so the
// application can plug in zap (via go-logr/zapr), zerolog, or anything else
// that already speaks logr.
package elog

import "strings"

// DiffToInfo mirrors the teacher's constant: it is the number of Level
// values that precede Info, ensuring Info maps to logr's conventional 0.
const DiffToInfo = 1

// Level is the severity of a log record.
type Level int

// Supported levels, in increasing verbosity.
const (
	LevelOff Level = iota
	LevelInfo
	LevelDebug
)

// Component names a subsystem whose level can be set independently.
type Component string

// Components the driver logs from.
const (
	ComponentDriver     Component = "driver"
	ComponentHealth     Component = "health"
	ComponentRegistry   Component = "registry"
	ComponentReconnect  Component = "reconnect"
	ComponentConnection Component = "connection"
	ComponentDiscovery  Component = "discovery"
	ComponentAuth       Component = "auth"
)

var levelLiteralMap = map[string]Level{
	"off":   LevelOff,
	"info":  LevelInfo,
	"debug": LevelDebug,
	"trace": LevelDebug,
}

// ParseLevel parses a case-insensitive level literal, defaulting to
// LevelOff when unrecognized.
func ParseLevel(s string) Level {
	for literal, level := range levelLiteralMap {
		if strings.EqualFold(literal, s) {
			return level
		}
	}
	return LevelOff
}
