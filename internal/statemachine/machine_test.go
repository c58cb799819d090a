// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package statemachine

import (
	"testing"
	"time"
)

func fixedNow() time.Time { return time.Unix(0, 0) }

func TestHandshakeHappyPath(t *testing.T) {
	m := New(fixedNow)

	if !m.Transition(EvConnected) {
		t.Fatal("CONNECTED should be admitted in DISCONNECTED")
	}
	if m.State() != Ready {
		t.Fatalf("expected READY, got %v", m.State())
	}

	if !m.Transition(EvAU1Sent) {
		t.Fatal("AU1_SENT should be admitted in READY")
	}
	if m.State() != HandshakeInitiated {
		t.Fatalf("expected HANDSHAKE_INITIATED, got %v", m.State())
	}

	if !m.Transition(EvAU2Received) {
		t.Fatal("AU2_RECEIVED should be admitted in HANDSHAKE_INITIATED")
	}
	if m.State() != VersionExchanged {
		t.Fatalf("expected VERSION_EXCHANGED, got %v", m.State())
	}

	if len(m.History()) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(m.History()))
	}
}

func TestUndefinedTransitionIsNoOp(t *testing.T) {
	m := New(fixedNow)
	if m.Transition(EvM3Received) {
		t.Fatal("M3_RECEIVED is not admitted from DISCONNECTED, expected no-op")
	}
	if m.State() != Disconnected {
		t.Fatalf("state should be unchanged, got %v", m.State())
	}
	if len(m.History()) != 0 {
		t.Fatalf("history should be empty, got %d entries", len(m.History()))
	}
}

func TestHistoryStrictlyIncreasesOnSuccess(t *testing.T) {
	m := New(fixedNow)
	m.Transition(EvConnected)
	m.Transition(EvM3Received) // no-op
	if len(m.History()) != 1 {
		t.Fatalf("expected history length 1 after one successful transition, got %d", len(m.History()))
	}
	m.Transition(EvAU1Sent)
	if len(m.History()) != 2 {
		t.Fatalf("expected history length 2, got %d", len(m.History()))
	}
}

func TestValidateMessageAdmitSets(t *testing.T) {
	m := New(fixedNow)
	if m.ValidateMessage(32) {
		t.Fatal("NID 32 should not be admitted in DISCONNECTED")
	}

	m.Transition(EvConnected)
	if !m.ValidateMessage(NIDAU1) {
		t.Fatal("AU1 should be admitted in READY")
	}
	if m.ValidateMessage(146) {
		t.Fatal("NID 146 should not be admitted in READY")
	}
}

func TestResetReturnsToDisconnectedAndClearsHistory(t *testing.T) {
	m := New(fixedNow)
	m.Transition(EvConnected)
	m.Transition(EvAU1Sent)

	entered := false
	m.OnEnter(Disconnected, func(*Machine) { entered = true })
	m.Reset()

	if m.State() != Disconnected {
		t.Fatalf("expected DISCONNECTED after reset, got %v", m.State())
	}
	if len(m.History()) != 0 {
		t.Fatalf("expected history cleared, got %d entries", len(m.History()))
	}
	if !entered {
		t.Fatal("expected Disconnected's onEnter hook to run on reset")
	}
}

func TestOnEnterOnExitHooksRun(t *testing.T) {
	m := New(fixedNow)
	var exited, entered State = -1, -1
	m.OnExit(Disconnected, func(mm *Machine) { exited = Disconnected })
	m.OnEnter(Ready, func(mm *Machine) { entered = Ready })

	m.Transition(EvConnected)

	if exited != Disconnected {
		t.Error("expected onExit(Disconnected) to run")
	}
	if entered != Ready {
		t.Error("expected onEnter(Ready) to run")
	}
}

func TestMissionLifecycleReachesSessionTerminated(t *testing.T) {
	m := New(fixedNow)
	m.Transition(EvConnected)
	m.Transition(EvAU1Sent)
	m.Transition(EvAU2Received)
	m.Transition(EvM32Acked)
	m.Transition(EvM8Received)
	m.Transition(EvM41Acked)
	if m.State() != MARequestReady {
		t.Fatalf("expected MA_REQUEST_READY, got %v", m.State())
	}

	m.Transition(EvM3Sent)
	if m.State() != MissionActive {
		t.Fatalf("expected MISSION_ACTIVE, got %v", m.State())
	}

	m.Transition(EvMonitoringStarted)
	if m.State() != MissionMonitoring {
		t.Fatalf("expected MISSION_MONITORING, got %v", m.State())
	}

	m.Transition(EvMissionComplete)
	if m.State() != SessionTerminated {
		t.Fatalf("expected SESSION_TERMINATED, got %v", m.State())
	}
}
