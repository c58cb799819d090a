// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package logging wraps log/slog with a level/format switch and
// process-tagging, the way marmos91-dittofs's internal/logger wraps slog
// for a multi-process system (§10.1). AlohaLuo-gnbsim-backup itself only
// logs via ad hoc fmt.Printf/log.Fatalf, which doesn't scale to
// attributing log lines across this demonstrator's several concurrent
// processes (OBU, RBC, both bridge halves), so this package follows
// dittofs's shape instead.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the level, output format, and destination for one
// process's logger.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

// New builds a *slog.Logger from cfg. An empty Config yields
// info/text/stdout.
func New(cfg Config) (*slog.Logger, error) {
	w, err := resolveOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: resolveLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), nil
}

func resolveOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func resolveLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ForProcess tags logger with the process name and, when non-empty, the
// RBC/train identifier the process is instantiated for — so a shared
// terminal or journal can attribute a line to the right OBU/RBC/bridge
// instance (§4.6/§4.7/§10.1).
func ForProcess(logger *slog.Logger, process, id string) *slog.Logger {
	if id == "" {
		return logger.With("process", process)
	}
	return logger.With("process", process, "id", id)
}
