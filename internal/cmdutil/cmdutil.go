// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package cmdutil holds the startup/shutdown plumbing shared by
// cmd/obu, cmd/rbc, cmd/bridge-forward, and cmd/bridge-reverse: config
// load, logger/metrics bring-up, and the signal-driven shutdown wait,
// grounded on marmos91-dittofs/cmd/dittofs/commands's startCmd (§10.3).
package cmdutil

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hhorai/etcsobu/internal/config"
	"github.com/hhorai/etcsobu/internal/logging"
	"github.com/hhorai/etcsobu/internal/metrics"
)

// Bootstrap is the loaded config plus the logger and metrics instance a
// process's main loop runs with.
type Bootstrap struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Start loads configPath (empty uses ./config.yaml or defaults), builds
// a logger tagged for process/id, and registers metrics if enabled.
func Start(configPath, process, id string) (*Bootstrap, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}
	logger = logging.ForProcess(logger, process, id)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil, process)
	}

	return &Bootstrap{Config: cfg, Logger: logger, Metrics: m}, nil
}

// ServeMetrics mounts m's /metrics endpoint on addr in the background,
// logging (not failing) on listener error. A disabled metrics instance
// (m == nil) is a no-op.
func ServeMetrics(logger *slog.Logger, m *metrics.Metrics, addr string) {
	if m == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then cancels ctx so the
// caller's event loop can unwind (§7's cooperative single-threaded event
// loop model).
func WaitForShutdown(logger *slog.Logger, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("running, press ctrl+c to stop")
	<-sigChan
	signal.Stop(sigChan)
	logger.Info("shutdown signal received")
	cancel()
}
