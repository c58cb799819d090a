// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Command obu runs the On-Board Unit process of §4.6: one MQTT client,
// one session state machine, one ETCS engine, driving the handshake,
// version/session/train-data/MA exchange, sensor-to-position-report
// mapping, and the auto-stop coordinator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hhorai/etcsobu/internal/cmdutil"
	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/obu"
	"github.com/hhorai/etcsobu/internal/statemachine"
	"github.com/hhorai/etcsobu/internal/transport"
)

func main() {
	var configPath, trainID, rbcID string

	root := &cobra.Command{
		Use:           "obu",
		Short:         "Run the ETCS OBU (On-Board Unit) process",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, trainID, rbcID)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./config.yaml)")
	root.Flags().StringVar(&trainID, "train-id", "", "overrides obu.train_id from config")
	root.Flags().StringVar(&rbcID, "rbc-id", "", "overrides obu.rbc_id from config")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "obu:", err)
		os.Exit(1)
	}
}

func run(configPath, trainIDFlag, rbcIDFlag string) error {
	bs, err := cmdutil.Start(configPath, "obu", trainIDFlag)
	if err != nil {
		return err
	}
	cfg := bs.Config
	log := bs.Logger

	if trainIDFlag != "" {
		cfg.OBU.TrainID = trainIDFlag
	}
	if rbcIDFlag != "" {
		cfg.OBU.RBCID = rbcIDFlag
	}
	if cfg.OBU.TrainID == "" || cfg.OBU.RBCID == "" {
		return fmt.Errorf("obu: train_id and rbc_id must be set (config or --train-id/--rbc-id)")
	}

	cmdutil.ServeMetrics(log, bs.Metrics, cfg.Metrics.Addr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mc, err := transport.DialMQTT(ctx, cfg.MQTT.Addr, cfg.MQTT.ClientID+"-"+cfg.OBU.TrainID)
	if err != nil {
		return fmt.Errorf("obu: dial mqtt: %w", err)
	}
	defer mc.Disconnect()

	root := handshake.RootKeys{K1: cfg.Keys.K1, K2: cfg.Keys.K2, K3: cfg.Keys.K3}
	publish := func(topic string, payload []byte, qos byte) error {
		return mc.Publish(ctx, topic, payload, qos)
	}

	o := obu.New(cfg.OBU.RBCID, cfg.OBU.TrainID, root, cfg.OBU.TotalSections, publish, nil, nil)

	if err := subscribeOBU(ctx, mc, o, cfg.OBU.RBCID, log); err != nil {
		return err
	}

	o.Machine.Transition(statemachine.EvConnected)
	if err := o.OnConnect(); err != nil {
		return fmt.Errorf("obu: handshake init: %w", err)
	}
	log.Info("handshake initiated", "rbc_id", cfg.OBU.RBCID, "train_id", cfg.OBU.TrainID)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := o.CheckMARequest(); err != nil {
					log.Error("ma request check failed", "err", err)
				}
			}
		}
	}()

	cmdutil.WaitForShutdown(log, cancel)
	return nil
}

// sensorEvent is the JSON payload published on esp32/<RBC_ID>/sensor.
type sensorEvent struct {
	SensorID string `json:"sensor_id"`
}

// aiAlert is the JSON payload published on obu/ai/alert.
type aiAlert struct {
	Label   string   `json:"label"`
	Conf    *float64 `json:"conf,omitempty"`
	MsgID   string   `json:"msg_id,omitempty"`
	FrameID string   `json:"frame_id,omitempty"`
}

func subscribeOBU(ctx context.Context, mc *transport.MQTTClient, o *obu.Orchestrator, rbcID string, log *slog.Logger) error {
	if err := mc.Subscribe(ctx, transport.HandshakeTopicRBC(rbcID), transport.QoSETCS, func(_ string, payload []byte) {
		var au2 handshake.AU2
		if err := json.Unmarshal(payload, &au2); err != nil {
			log.Error("decode AU2 failed", "err", err)
			return
		}
		if err := o.OnAU2(au2); err != nil {
			log.Error("OnAU2 failed", "err", err)
		}
	}); err != nil {
		return err
	}

	if err := mc.Subscribe(ctx, transport.OutTopic(rbcID), transport.QoSETCS, func(_ string, payload []byte) {
		dispatchETCS(payload, o, log)
	}); err != nil {
		return err
	}

	if err := mc.Subscribe(ctx, transport.SensorTopic(rbcID), transport.QoSETCS, func(_ string, payload []byte) {
		var ev sensorEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Error("decode sensor event failed", "err", err)
			return
		}
		if err := o.HandleSensorEvent(ev.SensorID); err != nil {
			log.Error("sensor event handling failed", "err", err, "sensor_id", ev.SensorID)
		}
	}); err != nil {
		return err
	}

	if err := mc.Subscribe(ctx, transport.TopicAIAlert, transport.QoSAlert, func(_ string, payload []byte) {
		var alert aiAlert
		if err := json.Unmarshal(payload, &alert); err != nil {
			log.Error("decode AI alert failed", "err", err)
			return
		}
		if err := o.HandleAIAlert(alert.Label, alert.Conf, alert.MsgID, alert.FrameID); err != nil {
			log.Error("auto-stop handling failed", "err", err)
		}
	}); err != nil {
		return err
	}

	// VIDEO_PING RTT probe: echo the received buffer straight back on
	// the pong topic (SPEC_FULL.md §12.3 resolves the undefined
	// `payload` identifier to the callback's own receive buffer).
	if err := mc.Subscribe(ctx, transport.TopicVideoPing, transport.QoSVideo, func(_ string, payload []byte) {
		if err := mc.Publish(ctx, transport.TopicVideoPong, payload, transport.QoSVideo); err != nil {
			log.Error("video pong publish failed", "err", err)
		}
	}); err != nil {
		return err
	}

	return nil
}

func dispatchETCS(payload []byte, o *obu.Orchestrator, log *slog.Logger) {
	values, err := codec.DecodeValues(payload)
	if err != nil {
		log.Error("decode inbound ETCS message failed", "err", err)
		return
	}
	if err := o.ReceiveFromRBC(values); err != nil {
		log.Error("ReceiveFromRBC failed", "err", err)
	}
}
