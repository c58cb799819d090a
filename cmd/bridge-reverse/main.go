// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command bridge-reverse runs the durable queue -> pub/sub half of
// §4.9: it consumes both durable queues for one RBC_ID, unwraps each
// Secure PDU, extracts the meta trailer, and republishes the decoded
// message with origin="amqp" onto the matching MQTT topic.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hhorai/etcsobu/internal/bridge"
	"github.com/hhorai/etcsobu/internal/cmdutil"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/safety"
	"github.com/hhorai/etcsobu/internal/transport"
)

func main() {
	var configPath, rbcID string

	root := &cobra.Command{
		Use:           "bridge-reverse",
		Short:         "Run the queue-to-pub/sub half of the ETCS bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, rbcID)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml)")
	root.Flags().StringVar(&rbcID, "rbc-id", "", "overrides bridge.rbc_id from config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bridge-reverse:", err)
		os.Exit(1)
	}
}

func run(configPath, rbcIDFlag string) error {
	bs, err := cmdutil.Start(configPath, "bridge-reverse", rbcIDFlag)
	if err != nil {
		return err
	}
	cfg := bs.Config
	log := bs.Logger

	if rbcIDFlag != "" {
		cfg.Bridge.RBCID = rbcIDFlag
	}
	if cfg.Bridge.RBCID == "" {
		return fmt.Errorf("bridge-reverse: rbc_id must be set (config or --rbc-id)")
	}

	cmdutil.ServeMetrics(log, bs.Metrics, cfg.Metrics.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc, err := transport.DialMQTT(ctx, cfg.MQTT.Addr, cfg.MQTT.ClientID+"-bridge-reverse-"+cfg.Bridge.RBCID)
	if err != nil {
		return fmt.Errorf("bridge-reverse: dial mqtt: %w", err)
	}
	defer mc.Disconnect()

	queue, err := transport.DialQueue(cfg.AMQP.URL)
	if err != nil {
		return fmt.Errorf("bridge-reverse: dial amqp: %w", err)
	}
	defer queue.Close()

	// This process's own safety-layer keys: it runs independently of
	// bridge-forward (§4.9 "two unidirectional bridges run as separate
	// processes"), so it subscribes to the keys topic itself rather
	// than sharing a KeyStore instance with the forward half.
	keys := &safety.KeyStore{}
	if err := mc.Subscribe(ctx, transport.KeysTopic(cfg.Bridge.RBCID), transport.QoSETCS, func(_ string, payload []byte) {
		var update handshake.KeyUpdate
		if err := json.Unmarshal(payload, &update); err != nil {
			log.Error("decode key update failed", "err", err)
			return
		}
		keys.Set(update.KS1, update.KS2, update.KS3)
	}); err != nil {
		return fmt.Errorf("bridge-reverse: subscribe keys: %w", err)
	}

	r := bridge.NewReverse(cfg.Bridge.RBCID, keys, mc, nil, log)
	if err := r.Consume(ctx, queue); err != nil {
		return fmt.Errorf("bridge-reverse: consume: %w", err)
	}

	log.Info("relaying queue to pub/sub", "rbc_id", cfg.Bridge.RBCID)
	cmdutil.WaitForShutdown(log, cancel)
	return nil
}
