// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command bridge-forward runs the pub/sub -> durable queue half of
// §4.9: it subscribes to one RBC_ID's ETCS and keys topics, wraps each
// outbound message in a Secure PDU plus meta trailer, and relays it
// onto the matching durable queue.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hhorai/etcsobu/internal/bridge"
	"github.com/hhorai/etcsobu/internal/cmdutil"
	"github.com/hhorai/etcsobu/internal/safety"
	"github.com/hhorai/etcsobu/internal/transport"
)

func main() {
	var configPath, rbcID string

	root := &cobra.Command{
		Use:           "bridge-forward",
		Short:         "Run the pub/sub-to-queue half of the ETCS bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, rbcID)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml)")
	root.Flags().StringVar(&rbcID, "rbc-id", "", "overrides bridge.rbc_id from config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bridge-forward:", err)
		os.Exit(1)
	}
}

func run(configPath, rbcIDFlag string) error {
	bs, err := cmdutil.Start(configPath, "bridge-forward", rbcIDFlag)
	if err != nil {
		return err
	}
	cfg := bs.Config
	log := bs.Logger

	if rbcIDFlag != "" {
		cfg.Bridge.RBCID = rbcIDFlag
	}
	if cfg.Bridge.RBCID == "" {
		return fmt.Errorf("bridge-forward: rbc_id must be set (config or --rbc-id)")
	}

	cmdutil.ServeMetrics(log, bs.Metrics, cfg.Metrics.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc, err := transport.DialMQTT(ctx, cfg.MQTT.Addr, cfg.MQTT.ClientID+"-bridge-forward-"+cfg.Bridge.RBCID)
	if err != nil {
		return fmt.Errorf("bridge-forward: dial mqtt: %w", err)
	}
	defer mc.Disconnect()

	queue, err := transport.DialQueue(cfg.AMQP.URL)
	if err != nil {
		return fmt.Errorf("bridge-forward: dial amqp: %w", err)
	}
	defer queue.Close()

	keys := &safety.KeyStore{}
	f := bridge.NewForward(cfg.Bridge.RBCID, keys, queue, log)
	if err := f.Subscribe(ctx, mc); err != nil {
		return fmt.Errorf("bridge-forward: subscribe: %w", err)
	}

	log.Info("relaying pub/sub to queue", "rbc_id", cfg.Bridge.RBCID)
	cmdutil.WaitForShutdown(log, cancel)
	return nil
}
