// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package rbc implements the Radio Block Centre orchestrator of §4.7: the
// trackside mirror of internal/obu — AU1 responder, version/session/
// train-data/MA exchange, movement-authority grant via §4.8 topology, and
// the AI_ACK RTT-closing responder.
package rbc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/etcs"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/safety"
	"github.com/hhorai/etcsobu/internal/statemachine"
	"github.com/hhorai/etcsobu/internal/topology"
	"github.com/hhorai/etcsobu/internal/transport"
)

// Publisher sends a JSON-encoded logical ETCS message (pre-safety-layer;
// the bridge applies wrap/unwrap, per §4.9) to a pub/sub topic.
type Publisher func(topic string, payload []byte, qos byte) error

// Orchestrator is the RBC side of one session.
type Orchestrator struct {
	RBCID string

	Machine *statemachine.Machine
	Engine  *etcs.Engine
	Keys    *safety.KeyStore
	Root    handshake.RootKeys

	publish Publisher
	now     func() time.Time
	after   func(time.Duration, func())

	rbcNonces         handshake.NoncePair
	obuID             string
	maRequestReceived bool
}

// New constructs an RBC orchestrator wired to publish and driven by a
// fresh state machine and ETCS engine.
func New(rbcID string, root handshake.RootKeys, publish Publisher, now func() time.Time, after func(time.Duration, func())) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	machine := statemachine.New(now)
	return &Orchestrator{
		RBCID:   rbcID,
		Machine: machine,
		Engine:  etcs.New(machine, now, after),
		Keys:    &safety.KeyStore{},
		Root:    root,
		publish: publish,
		now:     now,
		after:   after,
	}
}

func (o *Orchestrator) publishJSON(topic string, msg any, qos byte) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return o.publish(topic, body, qos)
}

func (o *Orchestrator) etcsPublisher(qos byte) etcs.Publisher {
	return func(topic string, msg codec.Values, _ int) error {
		return o.publishJSON(topic, msg, qos)
	}
}

func (o *Orchestrator) outTopic() string {
	return transport.OutTopic(o.RBCID)
}

func (o *Orchestrator) sendOut(msg codec.Values) error {
	return o.Engine.SendThrottled(o.outTopic(), msg, o.etcsPublisher(transport.QoSETCS))
}

// OnAU1 handles the OBU's AU1: generate fresh RBC nonces, publish AU2,
// derive and install the session keys from both nonce pairs, and
// transition READY -> HANDSHAKE_INITIATED (§4.7). The caller is expected
// to have already driven CONNECTED before calling this.
func (o *Orchestrator) OnAU1(au1 handshake.AU1) error {
	o.obuID = au1.OBUID

	nonces, err := handshake.GenerateNoncePair()
	if err != nil {
		return fmt.Errorf("rbc: generate nonces: %w", err)
	}
	o.rbcNonces = nonces

	au2 := handshake.AU2{OBUID: au1.OBUID, RBCID: o.RBCID, RBCNonces: nonces}
	if err := o.publishJSON(transport.HandshakeTopicRBC(o.RBCID), au2, transport.QoSETCS); err != nil {
		return err
	}

	ks1, ks2, ks3 := handshake.DeriveSessionKeys(o.Root, au1.OBUNonces, nonces)
	o.Keys.Set(ks1, ks2, ks3)

	o.Machine.Transition(statemachine.EvAU1Sent)
	return nil
}

// OnGrant generates Packet 15 from the current topology for the given
// route and emits Message 3 (MA), per §4.7/§4.8. Intended to be called
// once an operator presses the grant button armed by a prior Message 132.
func (o *Orchestrator) OnGrant(t *topology.Topology, tracks []topology.Track, stFrom, stTo string) error {
	p15, err := topology.GeneratePacket15(t, tracks, stFrom, stTo)
	if err != nil {
		return fmt.Errorf("rbc: generate packet 15: %w", err)
	}

	msg, err := o.Engine.BuildFromTemplate("ma", codec.Values{
		"origin":   "rbc",
		"packet15": p15.Values(),
	})
	if err != nil {
		return err
	}
	if err := o.sendOut(msg); err != nil {
		return err
	}
	o.maRequestReceived = false
	o.Machine.Transition(statemachine.EvM3Sent)
	return nil
}

// HandleAIAlert mirrors an inbound obstacle alert straight back to the
// OBU on obu/ai/ack to close the RTT loop (§4.7).
func (o *Orchestrator) HandleAIAlert(msgID string) error {
	ack := map[string]any{"msg_id": msgID, "ts": o.now().UnixMilli()}
	return o.publishJSON(transport.TopicAIAck, ack, transport.QoSAlert)
}
