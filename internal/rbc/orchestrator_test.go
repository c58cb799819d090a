// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rbc

import (
	"testing"
	"time"

	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/statemachine"
	"github.com/hhorai/etcsobu/internal/topology"
)

func inlineAfter() func(time.Duration, func()) {
	return func(_ time.Duration, f func()) { f() }
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *[]string) {
	t.Helper()
	var topics []string
	publish := func(topic string, _ []byte, _ byte) error {
		topics = append(topics, topic)
		return nil
	}
	root := handshake.RootKeys{K1: 1, K2: 2, K3: 3}
	o := New("RBC1", root, publish, func() time.Time { return time.Unix(0, 0) }, inlineAfter())
	o.Engine.DisableThrottle()
	return o, &topics
}

func inbound(nid int, overrides codec.Values) codec.Values {
	msg := codec.Values{
		"NID_MESSAGE": int64(nid),
		"origin":      "amqp",
		"SEQUENCE":    int64(1),
	}
	for k, v := range overrides {
		msg[k] = v
	}
	return msg
}

func TestOnAU1PublishesAU2AndDerivesKeys(t *testing.T) {
	o, topics := newTestOrchestrator(t)
	o.Machine.Transition(statemachine.EvConnected)

	au1 := handshake.AU1{OBUID: "TRAIN1", RBCID: "RBC1", OBUNonces: handshake.NoncePair{L: 0xAAAA0001, R: 0xAAAA0002}}
	if err := o.OnAU1(au1); err != nil {
		t.Fatalf("OnAU1: %v", err)
	}
	if o.Machine.State() != statemachine.HandshakeInitiated {
		t.Fatalf("expected HANDSHAKE_INITIATED, got %v", o.Machine.State())
	}
	if !o.Keys.Present() {
		t.Fatal("expected session keys to be derived")
	}
	if len(*topics) != 1 {
		t.Fatalf("expected exactly one AU2 publish, got %v", *topics)
	}
}

func driveToMARequestReady(t *testing.T, o *Orchestrator) {
	t.Helper()
	o.Machine.Transition(statemachine.EvConnected)
	au1 := handshake.AU1{OBUID: "TRAIN1", RBCID: "RBC1", OBUNonces: handshake.NoncePair{L: 1, R: 2}}
	if err := o.OnAU1(au1); err != nil {
		t.Fatalf("OnAU1: %v", err)
	}
	if err := o.ReceiveFromOBU(inbound(155, nil)); err != nil {
		t.Fatalf("155: %v", err)
	}
	if err := o.ReceiveFromOBU(inbound(159, nil)); err != nil {
		t.Fatalf("159: %v", err)
	}
	if err := o.ReceiveFromOBU(inbound(129, nil)); err != nil {
		t.Fatalf("129: %v", err)
	}
	if err := o.ReceiveFromOBU(inbound(157, nil)); err != nil {
		t.Fatalf("157: %v", err)
	}
}

func TestSymmetricExchangeReachesMARequestReady(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	driveToMARequestReady(t, o)

	if o.Machine.State() != statemachine.MARequestReady {
		t.Fatalf("expected MA_REQUEST_READY, got %v", o.Machine.State())
	}
}

func TestMARequestArmsGrantButton(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	driveToMARequestReady(t, o)

	if o.MARequestReceived() {
		t.Fatal("expected grant button not yet armed")
	}
	if err := o.ReceiveFromOBU(inbound(132, nil)); err != nil {
		t.Fatalf("132: %v", err)
	}
	if !o.MARequestReceived() {
		t.Fatal("expected grant button armed after 132")
	}
}

func lineTopology() (*topology.Topology, []topology.Track) {
	topo := &topology.Topology{
		Nodes: []topology.Node{
			{ID: "ST_A", X: 0, Y: 0, Station: true},
			{ID: "N1", X: 500, Y: 0, SensorID: "S1"},
			{ID: "ST_B", X: 1000, Y: 0, Station: true},
		},
	}
	tracks := []topology.Track{
		{ID: "T1", From: "ST_A", To: "N1"},
		{ID: "T2", From: "N1", To: "ST_B"},
	}
	return topo, tracks
}

func TestOnGrantEmitsMAFromTopology(t *testing.T) {
	o, topics := newTestOrchestrator(t)
	driveToMARequestReady(t, o)
	if err := o.ReceiveFromOBU(inbound(132, nil)); err != nil {
		t.Fatalf("132: %v", err)
	}
	n := len(*topics)

	topo, tracks := lineTopology()
	if err := o.OnGrant(topo, tracks, "ST_A", "ST_B"); err != nil {
		t.Fatalf("OnGrant: %v", err)
	}
	if o.Machine.State() != statemachine.MissionActive {
		t.Fatalf("expected MISSION_ACTIVE, got %v", o.Machine.State())
	}
	if len(*topics) != n+1 {
		t.Fatalf("expected exactly one Message 3 publish, got %d new", len(*topics)-n)
	}
}

func TestPositionReportAdmitsTerminationSequence(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	driveToMARequestReady(t, o)
	if err := o.ReceiveFromOBU(inbound(132, nil)); err != nil {
		t.Fatalf("132: %v", err)
	}
	topo, tracks := lineTopology()
	if err := o.OnGrant(topo, tracks, "ST_A", "ST_B"); err != nil {
		t.Fatalf("OnGrant: %v", err)
	}

	if err := o.ReceiveFromOBU(inbound(136, nil)); err != nil {
		t.Fatalf("136: %v", err)
	}
	if o.Machine.State() != statemachine.MissionMonitoring {
		t.Fatalf("expected MISSION_MONITORING, got %v", o.Machine.State())
	}

	if err := o.ReceiveFromOBU(inbound(150, nil)); err != nil {
		t.Fatalf("150: %v", err)
	}
	if err := o.ReceiveFromOBU(inbound(156, nil)); err != nil {
		t.Fatalf("156: %v", err)
	}
	if o.Machine.State() != statemachine.SessionTerminated {
		t.Fatalf("expected SESSION_TERMINATED, got %v", o.Machine.State())
	}
}

func TestHandleAIAlertPublishesAck(t *testing.T) {
	o, topics := newTestOrchestrator(t)
	if err := o.HandleAIAlert("m1"); err != nil {
		t.Fatalf("HandleAIAlert: %v", err)
	}
	if len(*topics) != 1 {
		t.Fatalf("expected exactly one ack publish, got %d", len(*topics))
	}
}
