// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command rbc runs the Radio Block Centre process of §4.7: the
// trackside mirror of cmd/obu, replying to AU1, driving version/
// session/train-data/MA exchange, and granting movement authorities
// from §4.8's topology once an operator issues a grant.
//
// The operator UI that would normally trigger a grant is named but out
// of scope (spec §1); this process substitutes a line-oriented stdin
// command, "grant <from> <to>", as its stand-in trigger.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hhorai/etcsobu/internal/cmdutil"
	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/rbc"
	"github.com/hhorai/etcsobu/internal/statemachine"
	"github.com/hhorai/etcsobu/internal/topology"
	"github.com/hhorai/etcsobu/internal/transport"
)

func main() {
	var configPath, rbcID, topologyPath string

	root := &cobra.Command{
		Use:           "rbc",
		Short:         "Run the ETCS RBC (Radio Block Centre) process",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, rbcID, topologyPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml)")
	root.Flags().StringVar(&rbcID, "rbc-id", "", "overrides rbc.rbc_id from config")
	root.Flags().StringVar(&topologyPath, "topology", "", "overrides rbc.topology_path from config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rbc:", err)
		os.Exit(1)
	}
}

func run(configPath, rbcIDFlag, topologyFlag string) error {
	bs, err := cmdutil.Start(configPath, "rbc", rbcIDFlag)
	if err != nil {
		return err
	}
	cfg := bs.Config
	log := bs.Logger

	if rbcIDFlag != "" {
		cfg.RBC.RBCID = rbcIDFlag
	}
	if topologyFlag != "" {
		cfg.RBC.TopologyPath = topologyFlag
	}
	if cfg.RBC.RBCID == "" {
		return fmt.Errorf("rbc: rbc_id must be set (config or --rbc-id)")
	}

	var topo *topology.Topology
	if cfg.RBC.TopologyPath != "" {
		topo, err = topology.Load(cfg.RBC.TopologyPath)
		if err != nil {
			return fmt.Errorf("rbc: load topology: %w", err)
		}
	}

	cmdutil.ServeMetrics(log, bs.Metrics, cfg.Metrics.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc, err := transport.DialMQTT(ctx, cfg.MQTT.Addr, cfg.MQTT.ClientID+"-"+cfg.RBC.RBCID)
	if err != nil {
		return fmt.Errorf("rbc: dial mqtt: %w", err)
	}
	defer mc.Disconnect()

	root := handshake.RootKeys{K1: cfg.Keys.K1, K2: cfg.Keys.K2, K3: cfg.Keys.K3}
	publish := func(topic string, payload []byte, qos byte) error {
		return mc.Publish(ctx, topic, payload, qos)
	}

	o := rbc.New(cfg.RBC.RBCID, root, publish, nil, nil)

	if err := subscribeRBC(ctx, mc, o, cfg.RBC.RBCID, log); err != nil {
		return err
	}
	o.Machine.Transition(statemachine.EvConnected)
	log.Info("ready for AU1", "rbc_id", cfg.RBC.RBCID)

	go runGrantPrompt(o, topo, log)

	cmdutil.WaitForShutdown(log, cancel)
	return nil
}

func subscribeRBC(ctx context.Context, mc *transport.MQTTClient, o *rbc.Orchestrator, rbcID string, log *slog.Logger) error {
	if err := mc.Subscribe(ctx, transport.HandshakeTopicOBU(rbcID), transport.QoSETCS, func(_ string, payload []byte) {
		var au1 handshake.AU1
		if err := json.Unmarshal(payload, &au1); err != nil {
			log.Error("decode AU1 failed", "err", err)
			return
		}
		if err := o.OnAU1(au1); err != nil {
			log.Error("OnAU1 failed", "err", err)
		}
	}); err != nil {
		return err
	}

	if err := mc.Subscribe(ctx, transport.InTopic(rbcID), transport.QoSETCS, func(_ string, payload []byte) {
		values, err := codec.DecodeValues(payload)
		if err != nil {
			log.Error("decode inbound ETCS message failed", "err", err)
			return
		}
		if err := o.ReceiveFromOBU(values); err != nil {
			log.Error("ReceiveFromOBU failed", "err", err)
		}
	}); err != nil {
		return err
	}

	if err := mc.Subscribe(ctx, transport.TopicAIAlert, transport.QoSAlert, func(_ string, payload []byte) {
		var alert struct {
			MsgID string `json:"msg_id"`
		}
		if err := json.Unmarshal(payload, &alert); err != nil {
			log.Error("decode AI alert failed", "err", err)
			return
		}
		if err := o.HandleAIAlert(alert.MsgID); err != nil {
			log.Error("AI ack failed", "err", err)
		}
	}); err != nil {
		return err
	}

	return nil
}

// runGrantPrompt reads "grant <from> <to>" lines from stdin and issues
// the corresponding movement authority (§4.7/§4.8). It is the
// demonstrator's stand-in for the out-of-scope operator UI.
func runGrantPrompt(o *rbc.Orchestrator, topo *topology.Topology, log *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 || fields[0] != "grant" {
			log.Info(`usage: grant <from-station> <to-station>`)
			continue
		}
		if !o.MARequestReceived() {
			log.Info("no outstanding MA request to grant")
			continue
		}
		if topo == nil {
			log.Error("no topology loaded, cannot generate packet 15")
			continue
		}
		if err := o.OnGrant(topo, topo.Tracks, fields[1], fields[2]); err != nil {
			log.Error("grant failed", "err", err)
		}
	}
}
