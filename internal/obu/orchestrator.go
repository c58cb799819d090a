// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package obu implements the On-Board Unit orchestrator of §4.6: session
// lifecycle, the MA request timer, sensor-to-position-report mapping,
// mission completion, and the auto-stop coordinator.
package obu

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/etcs"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/safety"
	"github.com/hhorai/etcsobu/internal/statemachine"
	"github.com/hhorai/etcsobu/internal/transport"
)

// sensorDistance maps sensor_id to a fixed D_LRBG distance, per §6.
var sensorDistance = map[string]int64{
	"S1": 1000, "S2": 2000, "S3": 3000, "S4": 4000,
	"S5": 5000, "S6": 6000, "S7": 7000, "S8": 8000,
}

// Publisher sends a JSON-encoded logical ETCS message (pre-safety-layer;
// the bridge applies wrap/unwrap, per §4.9) to a pub/sub topic.
type Publisher func(topic string, payload []byte, qos byte) error

// Orchestrator is the OBU side of one session.
type Orchestrator struct {
	RBCID   string
	TrainID string

	Machine *statemachine.Machine
	Engine  *etcs.Engine
	Keys    *safety.KeyStore
	Root    handshake.RootKeys

	publish Publisher
	now     func() time.Time
	after   func(time.Duration, func())

	obuNonces          handshake.NoncePair
	maRequestSent      bool
	trainAcceptanceSent bool
	awaiting146        bool
	passedSections     int
	totalSections      int
	lastStopAt         time.Time
}

// New constructs an OBU orchestrator wired to publish and driven by a
// fresh state machine and ETCS engine.
func New(rbcID, trainID string, root handshake.RootKeys, totalSections int, publish Publisher, now func() time.Time, after func(time.Duration, func())) *Orchestrator {
	if now == nil {
		now = time.Now
	}
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	machine := statemachine.New(now)
	return &Orchestrator{
		RBCID:         rbcID,
		TrainID:       trainID,
		Machine:       machine,
		Engine:        etcs.New(machine, now, after),
		Keys:          &safety.KeyStore{},
		Root:          root,
		publish:       publish,
		now:           now,
		after:         after,
		totalSections: totalSections,
	}
}

// publishJSON marshals msg as JSON and publishes it to topic at the
// given QoS.
func (o *Orchestrator) publishJSON(topic string, msg any, qos byte) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return o.publish(topic, body, qos)
}

// etcsPublisher adapts Orchestrator.publishJSON to the etcs.Publisher
// signature SendThrottled expects.
func (o *Orchestrator) etcsPublisher(qos byte) etcs.Publisher {
	return func(topic string, msg codec.Values, _ int) error {
		return o.publishJSON(topic, msg, qos)
	}
}

// OnConnect runs on broker connect: generate a fresh OBU nonce pair,
// publish AU1, and transition READY -> HANDSHAKE_INITIATED (§4.6). The
// caller is expected to have already driven CONNECTED (DISCONNECTED ->
// READY) before calling this.
func (o *Orchestrator) OnConnect() error {
	nonces, err := handshake.GenerateNoncePair()
	if err != nil {
		return fmt.Errorf("obu: generate nonces: %w", err)
	}
	o.obuNonces = nonces

	au1 := handshake.AU1{OBUID: o.TrainID, RBCID: o.RBCID, OBUNonces: nonces}
	if err := o.publishJSON(transport.HandshakeTopicOBU(o.RBCID), au1, transport.QoSETCS); err != nil {
		return err
	}
	o.Machine.Transition(statemachine.EvAU1Sent)
	return nil
}

// OnAU2 handles the RBC's AU2 reply: derive session keys, publish
// KEY_UPDATE, and emit Message 155 to begin version exchange.
func (o *Orchestrator) OnAU2(au2 handshake.AU2) error {
	ks1, ks2, ks3 := handshake.DeriveSessionKeys(o.Root, o.obuNonces, au2.RBCNonces)
	o.Keys.Set(ks1, ks2, ks3)

	update := handshake.KeyUpdate{KS1: ks1, KS2: ks2, KS3: ks3}
	if err := o.publishJSON(transport.KeysTopic(o.RBCID), update, transport.QoSETCS); err != nil {
		return err
	}
	o.Machine.Transition(statemachine.EvAU2Received)

	msg, err := o.Engine.BuildFromTemplate("sessionEstablish", codec.Values{"origin": "obu"})
	if err != nil {
		return err
	}
	return o.Engine.SendThrottled(transport.InTopic(o.RBCID), msg, o.etcsPublisher(transport.QoSETCS))
}

// CheckMARequest implements the 1s-period latch from §4.6: if the
// session is train-data-exchanged or MA-request-ready and no request has
// been sent yet, latch and emit Message 132 exactly once.
func (o *Orchestrator) CheckMARequest() error {
	if o.maRequestSent {
		return nil
	}
	switch o.Machine.State() {
	case statemachine.TrainDataExchanged, statemachine.MARequestReady:
	default:
		return nil
	}

	o.maRequestSent = true
	msg, err := o.Engine.BuildFromTemplate("maRequest", codec.Values{"origin": "obu"})
	if err != nil {
		return err
	}
	return o.Engine.SendThrottled(transport.InTopic(o.RBCID), msg, o.etcsPublisher(transport.QoSETCS))
}

// HandleSensorEvent maps sensorID to its fixed D_LRBG distance and emits
// Message 136 carrying a Packet 0 position report (§4.6).
func (o *Orchestrator) HandleSensorEvent(sensorID string) error {
	dist, ok := sensorDistance[sensorID]
	if !ok {
		return fmt.Errorf("obu: unknown sensor_id %q", sensorID)
	}

	msg, err := o.Engine.BuildFromTemplate("positionReport", codec.Values{
		"origin":  "obu",
		"packet0": codec.Values{"D_LRBG": dist},
	})
	if err != nil {
		return err
	}
	if err := o.Engine.SendThrottled(transport.InTopic(o.RBCID), msg, o.etcsPublisher(transport.QoSETCS)); err != nil {
		return err
	}

	o.Machine.Transition(statemachine.EvMonitoringStarted)
	o.awaiting146 = true
	return nil
}

// HandleGenericAck processes an inbound Message 146. When it acknowledges
// the outstanding position report, it increments passedSections and, at
// the mission-complete threshold, emits 150 then (1s later) 156 (§4.6).
func (o *Orchestrator) HandleGenericAck(ref int64) error {
	if !o.awaiting146 || ref != etcs.NIDPositionReport {
		return nil
	}
	o.awaiting146 = false
	o.passedSections++

	if o.passedSections < o.totalSections+1 {
		return nil
	}

	o.Machine.Transition(statemachine.EvMissionComplete)
	endMsg, err := o.Engine.BuildFromTemplate("endOfMission", codec.Values{"origin": "obu"})
	if err != nil {
		return err
	}
	if err := o.Engine.SendThrottled(transport.InTopic(o.RBCID), endMsg, o.etcsPublisher(transport.QoSETCS)); err != nil {
		return err
	}

	o.after(1*time.Second, func() {
		termMsg, err := o.Engine.BuildFromTemplate("sessionTerminate", codec.Values{"origin": "obu"})
		if err != nil {
			return
		}
		_ = o.Engine.SendThrottled(transport.InTopic(o.RBCID), termMsg, o.etcsPublisher(transport.QoSETCS))
	})
	return nil
}
