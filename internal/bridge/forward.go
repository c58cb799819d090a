// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/etcs"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/safety"
	"github.com/hhorai/etcsobu/internal/transport"
)

// QueuePublisher is the subset of transport.Queue the forward bridge
// needs, narrowed for testability.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Forward is the pub/sub -> durable queue half of §4.9. One instance
// serves one RBC_ID's rbc/<id>/in, rbc/<id>/out, and obu/<id>/keys
// topics.
type Forward struct {
	RBCID string

	Registry codec.Registry
	ByNID    map[int]*codec.Template
	Keys     *safety.KeyStore
	Queue    QueuePublisher
	Log      *slog.Logger
}

// NewForward constructs a Forward bridge for rbcID, using the default
// ETCS template registry.
func NewForward(rbcID string, keys *safety.KeyStore, queue QueuePublisher, log *slog.Logger) *Forward {
	reg, byNID := etcs.DefaultRegistry()
	if log == nil {
		log = slog.Default()
	}
	return &Forward{RBCID: rbcID, Registry: reg, ByNID: byNID, Keys: keys, Queue: queue, Log: log}
}

// Subscribe registers this bridge's handler on mc for the three topics
// it forwards, per §4.9's "subscribe to rbc/<id>/in, rbc/<id>/out,
// obu/<id>/keys".
func (f *Forward) Subscribe(ctx context.Context, mc *transport.MQTTClient) error {
	for _, topic := range []string{
		transport.InTopic(f.RBCID),
		transport.OutTopic(f.RBCID),
		transport.KeysTopic(f.RBCID),
	} {
		if err := mc.Subscribe(ctx, topic, transport.QoSETCS, func(topic string, payload []byte) {
			if err := f.Handle(ctx, topic, payload); err != nil {
				f.Log.Error("bridge: forward failed", "topic", topic, "err", err)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one pub/sub delivery on topic. It is exported
// directly (rather than only reachable via Subscribe's closure) so
// tests can drive it without a live MQTT connection.
func (f *Forward) Handle(ctx context.Context, topic string, payload []byte) error {
	if topic == transport.KeysTopic(f.RBCID) {
		return f.handleKeyUpdate(payload)
	}
	return f.handleETCS(ctx, topic, payload)
}

func (f *Forward) handleKeyUpdate(payload []byte) error {
	var update handshake.KeyUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return err
	}
	f.Keys.Set(update.KS1, update.KS2, update.KS3)
	return nil
}

// handleETCS implements §4.9's forward ETCS path: decode the published
// JSON, drop wire-looped messages, wrap the bit-packed payload into a
// Secure PDU keyed by NID, append the metadata trailer, and enqueue.
func (f *Forward) handleETCS(ctx context.Context, topic string, payload []byte) error {
	values, err := codec.DecodeValues(payload)
	if err != nil {
		return err
	}

	if origin, _ := values["origin"].(string); origin == "amqp" {
		return nil
	}

	nid64, ok := values["NID_MESSAGE"].(int64)
	if !ok {
		return etcs.ErrMissingNID
	}
	tmpl, ok := f.ByNID[int(nid64)]
	if !ok {
		return etcs.ErrTemplateMissing
	}

	wireBytes, _, err := codec.Pack(tmpl, values, f.Registry)
	if err != nil {
		return err
	}

	dir := 0
	queue := transport.QueueRBCToOBU
	if strings.HasSuffix(topic, "/in") {
		dir = 1
		queue = transport.QueueOBUToRBC
	}

	pdu, err := safety.Wrap(f.Keys, safety.DefaultHeader(dir), wireBytes)
	if err != nil {
		return err
	}

	framed, err := appendTrailer(pdu, values)
	if err != nil {
		return err
	}

	return f.Queue.Publish(ctx, queue, framed)
}
