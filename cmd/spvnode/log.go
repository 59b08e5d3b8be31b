// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"

	"github.com/exccoin/spvpeer/addrmgr"
	"github.com/exccoin/spvpeer/peer"
	"github.com/exccoin/spvpeer/peergroup"
)

// logRotator writes to stdout and a rotated on-disk log simultaneously,
// matching the teacher's usual two-writer logging backend.
var logRotator *rotator.Rotator

// initLogRotator creates a rotating file writer at logFile; setLogLevels
// then backs every package's logger with a slog.Backend over both it and
// stdout.
func initLogRotator(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create log rotator: %w", err)
	}
	logRotator = r
	return nil
}

// subsystemLoggers pairs each package's UseLogger hook with the
// subsystem tag its log lines should carry, so setLogLevels has one
// place to iterate instead of repeating the wiring at every call site.
func subsystemLoggers() map[string]func(slog.Logger) {
	return map[string]func(slog.Logger){
		"ADDR": addrmgr.UseLogger,
		"PEER": peer.UseLogger,
		"PGRP": peergroup.UseLogger,
	}
}

// setLogLevels creates a logger per subsystem at the given level and
// wires each into its package via UseLogger.
func setLogLevels(levelStr string) error {
	level, ok := slog.LevelFromString(levelStr)
	if !ok {
		return fmt.Errorf("unknown log level %q", levelStr)
	}

	var w io.Writer = os.Stdout
	if logRotator != nil {
		w = io.MultiWriter(os.Stdout, logRotator)
	}
	backend := slog.NewBackend(w)

	for tag, use := range subsystemLoggers() {
		logger := backend.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
	return nil
}
