// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/etcs"
	"github.com/hhorai/etcsobu/internal/safety"
	"github.com/hhorai/etcsobu/internal/transport"
)

// TopicPublisher is the subset of transport.MQTTClient the reverse
// bridge needs, narrowed for testability.
type TopicPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte) error
}

// QueueConsumer is the subset of transport.Queue the reverse bridge
// needs to drive itself from a live connection.
type QueueConsumer interface {
	Consume(ctx context.Context, queue string, handler func(body []byte)) error
}

// Reverse is the durable queue -> pub/sub half of §4.9. One instance
// drains both obu_to_rbc and rbc_to_obu for one RBC_ID.
type Reverse struct {
	RBCID string

	Registry codec.Registry
	ByNID    map[int]*codec.Template
	Keys     *safety.KeyStore
	Publish  TopicPublisher
	Log      *slog.Logger
	now      func() time.Time
}

// NewReverse constructs a Reverse bridge for rbcID, using the default
// ETCS template registry.
func NewReverse(rbcID string, keys *safety.KeyStore, publish TopicPublisher, now func() time.Time, log *slog.Logger) *Reverse {
	reg, byNID := etcs.DefaultRegistry()
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reverse{RBCID: rbcID, Registry: reg, ByNID: byNID, Keys: keys, Publish: publish, now: now, Log: log}
}

// Consume wires this bridge's delivery handler onto both durable queues.
// Deliveries are acknowledged unconditionally by the queue client
// (§4.9: "decode failures are logged, not requeued") — an error returned
// by Handle is logged here and the delivery is not requeued.
func (r *Reverse) Consume(ctx context.Context, q QueueConsumer) error {
	for queue, topic := range map[string]string{
		transport.QueueOBUToRBC: transport.InTopic(r.RBCID),
		transport.QueueRBCToOBU: transport.OutTopic(r.RBCID),
	} {
		queue, topic := queue, topic
		if err := q.Consume(ctx, queue, func(body []byte) {
			if err := r.Handle(ctx, topic, body); err != nil {
				r.Log.Error("bridge: reverse failed", "queue", queue, "err", err)
			}
		}); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one queue delivery bound for topic (rbc/<id>/in or
// rbc/<id>/out, chosen by the caller from which queue it came from).
func (r *Reverse) Handle(ctx context.Context, topic string, body []byte) error {
	pdu, trailer, _ := extractTrailer(body)

	hdr, wireBytes, err := safety.Unwrap(r.Keys, pdu)
	if err != nil {
		return err
	}
	_ = hdr

	if len(wireBytes) == 0 {
		return etcs.ErrMissingNID
	}
	nid := int(wireBytes[0])
	tmpl, ok := r.ByNID[nid]
	if !ok {
		return etcs.ErrTemplateMissing
	}

	values, warnings := codec.Unpack(tmpl, codec.NewBitReader(wireBytes), r.Registry)
	for _, w := range warnings {
		r.Log.Warn("bridge: decode warning", "detail", w)
	}

	values["origin"] = "amqp"
	nowMS := r.now().UnixMilli()
	values["t_bridge_app_ms"] = nowMS
	values["t_bridge_send_ms"] = nowMS

	for k, v := range trailer {
		if _, present := values[k]; !present {
			values[k] = v
		}
	}

	out, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return r.Publish.Publish(ctx, topic, out, transport.QoSETCS)
}
