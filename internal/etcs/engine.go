// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package etcs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/statemachine"
)

// minMessageInterval is the ETCS emission throttle's minimum inter-
// message gap (§4.5).
const minMessageInterval = 100 * time.Millisecond

// qosETCS is the pub/sub QoS used for the ETCS plane (§5).
const qosETCS = 2

// Publisher sends one built message to topic. Implementations are the
// MQTT/AMQP transport wrappers in internal/transport.
type Publisher func(topic string, msg codec.Values, qos int) error

type queuedMessage struct {
	topic   string
	msg     codec.Values
	publish Publisher
}

// Engine holds the message template registry, the outgoing sequence
// counter, the throttled send queue, and the sent-message RTT table
// (§4.5). It drives transitions on a statemachine.Machine but does not
// own one — the orchestrator supplies it so OBU and RBC can share this
// engine implementation.
type Engine struct {
	Registry codec.Registry
	ByNID    map[int]*codec.Template
	Machine  *statemachine.Machine
	Dedup    *DedupCache

	mu          sync.Mutex
	seq         uint64
	processed   map[int64]bool
	queue       []queuedMessage
	sending     bool
	noThrottle  bool
	sentAtMS    map[int]int64
	now         func() time.Time
	afterFunc   func(time.Duration, func())
}

// New constructs an Engine wired to machine, using the default template
// registry. now and after default to time.Now/time.AfterFunc; tests
// override both for determinism.
func New(machine *statemachine.Machine, now func() time.Time, after func(time.Duration, func())) *Engine {
	reg, byNID := DefaultRegistry()
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Engine{
		Registry:  reg,
		ByNID:     byNID,
		Machine:   machine,
		Dedup:     NewDedupCache(now),
		processed: map[int64]bool{},
		sentAtMS:  map[int]int64{},
		now:       now,
		afterFunc: after,
	}
}

// DisableThrottle makes SendThrottled publish immediately, bypassing the
// queue. Used by tests and by any caller that doesn't need the 100ms
// inter-message gap.
func (e *Engine) DisableThrottle() { e.mu.Lock(); e.noThrottle = true; e.mu.Unlock() }

// BuildFromTemplate merges templates[name].Defaults with overrides,
// auto-stamping SEQUENCE, origin, msg_id (a uuid.NewString() correlation
// ID consumed by the dedup cache's msg_id-first key precedence, §4.10),
// and the T_TRAIN/T_TRAIN_ack timestamp fields when absent (§4.5).
func (e *Engine) BuildFromTemplate(name string, overrides codec.Values) (codec.Values, error) {
	tmpl, ok := e.Registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateMissing, name)
	}

	out := codec.Values{}
	for k, v := range tmpl.Defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}

	if _, ok := out["SEQUENCE"]; !ok {
		e.mu.Lock()
		e.seq++
		out["SEQUENCE"] = int64(e.seq)
		e.mu.Unlock()
	}
	if _, ok := out["origin"]; !ok {
		out["origin"] = "system"
	}
	if _, ok := out["msg_id"]; !ok {
		out["msg_id"] = uuid.NewString()
	}

	nowSec := e.now().Unix()
	if _, ok := out["T_TRAIN"]; !ok {
		out["T_TRAIN"] = nowSec
	}
	if _, ok := out["T_TRAIN_ack"]; !ok {
		out["T_TRAIN_ack"] = nowSec
	}

	return out, nil
}

// SendThrottled publishes msg to topic immediately if throttling is
// disabled; otherwise it enqueues the message and runs the single-shot
// re-entrant-safe pump (§4.5).
func (e *Engine) SendThrottled(topic string, msg codec.Values, publish Publisher) error {
	e.mu.Lock()
	if e.noThrottle {
		e.mu.Unlock()
		return publish(topic, msg, qosETCS)
	}
	e.queue = append(e.queue, queuedMessage{topic: topic, msg: msg, publish: publish})
	e.mu.Unlock()

	e.pump()
	return nil
}

// pump drains one queue entry per call, scheduling its own next attempt
// after minMessageInterval. It is a no-op if already draining.
func (e *Engine) pump() {
	e.mu.Lock()
	if e.sending {
		e.mu.Unlock()
		return
	}
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	e.sending = true
	head := e.queue[0]
	e.queue = e.queue[1:]
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.sending = false
		hasMore := len(e.queue) > 0
		e.mu.Unlock()
		if hasMore {
			e.afterFunc(minMessageInterval, e.pump)
		}
	}()

	seq, _ := codec.Values(head.msg)["SEQUENCE"].(int64)
	e.mu.Lock()
	alreadySent := e.processed[seq]
	e.mu.Unlock()
	if alreadySent {
		return
	}

	nid, _ := head.msg["NID_MESSAGE"].(int64)
	if e.Machine != nil && !e.Machine.ValidateMessage(int(nid)) {
		return
	}

	e.mu.Lock()
	e.processed[seq] = true
	e.sentAtMS[int(nid)] = e.now().UnixMilli()
	e.mu.Unlock()

	_ = head.publish(head.topic, head.msg, qosETCS)
}

// SentAt returns the last recorded send timestamp (epoch ms) for nid, as
// populated by SendThrottled, for KPI purposes (§3 Sent-Message Table).
func (e *Engine) SentAt(nid int) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.sentAtMS[nid]
	return t, ok
}

// ClearSentAt drops the recorded send timestamp for nid, called when the
// matching inbound response arrives.
func (e *Engine) ClearSentAt(nid int) {
	e.mu.Lock()
	delete(e.sentAtMS, nid)
	e.mu.Unlock()
}
