// Copyright (C) EventStore, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package elog

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
)

// Logger is the driver's logger. Every component (see Component) can be
// muted or raised independently; the zero value logs nothing.
type Logger struct {
	sink            logr.LogSink
	componentLevels map[Component]Level
}

// New constructs a Logger backed by sink. If sink is nil, New falls back to
// an stderr writer, matching the teacher's getEnvLogSink/selectLogSink
// fallback chain.
func New(sink logr.LogSink, componentLevels map[Component]Level) *Logger {
	if componentLevels == nil {
		componentLevels = map[Component]Level{}
	}
	if sink == nil {
		sink = &osSink{w: os.Stderr}
	}
	return &Logger{sink: sink, componentLevels: componentLevels}
}

// Is reports whether the given level is enabled for component.
func (l *Logger) Is(level Level, component Component) bool {
	if l == nil {
		return false
	}
	return l.componentLevels[component] >= level
}

// Info logs an informational or debug message for component, after checking
// Is so callers don't pay formatting cost for muted components.
func (l *Logger) Info(level Level, component Component, msg string, keysAndValues ...interface{}) {
	if l == nil || !l.Is(level, component) {
		return
	}
	kv := append([]interface{}{"component", string(component)}, keysAndValues...)
	l.sink.Info(int(level)-DiffToInfo, msg, kv...)
}

// Error logs err for component regardless of level — errors always surface.
func (l *Logger) Error(component Component, err error, msg string, keysAndValues ...interface{}) {
	if l == nil || l.sink == nil {
		return
	}
	kv := append([]interface{}{"component", string(component)}, keysAndValues...)
	l.sink.Error(err, msg, kv...)
}

// osSink is the fallback LogSink used when no application sink is
// configured. It writes plain lines to an *os.File, matching the teacher's
// own os.Stderr default.
type osSink struct {
	w *os.File
}

func (s *osSink) Init(logr.RuntimeInfo)                   {}
func (s *osSink) Enabled(int) bool                        { return true }
func (s *osSink) WithValues(...interface{}) logr.LogSink  { return s }
func (s *osSink) WithName(string) logr.LogSink            { return s }

func (s *osSink) Info(level int, msg string, keysAndValues ...interface{}) {
	fmt.Fprintf(s.w, "[level=%d] %s %v\n", level, msg, keysAndValues)
}

func (s *osSink) Error(err error, msg string, keysAndValues ...interface{}) {
	fmt.Fprintf(s.w, "[error] %s: %v %v\n", msg, err, keysAndValues)
}
