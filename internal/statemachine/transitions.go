// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package statemachine

// transitions is the sparse TRANSITIONS[state][event] -> state' map from
// §3.2.
var transitions = map[State]map[Event]State{
	Disconnected: {
		EvConnected: Ready,
		EvReset:     Disconnected,
	},
	Ready: {
		EvAU1Sent:    HandshakeInitiated,
		EvDisconnect: Disconnected,
	},
	HandshakeInitiated: {
		EvAU2Received: VersionExchanged,
		EvM32Sent:     VersionExchanged,
		EvTimeout:     Disconnected,
	},
	VersionExchanged: {
		EvM32Acked:        SessionEstablished,
		EvM38Sent:         VersionExchanged,
		EvVersionMismatch: Disconnected,
	},
	SessionEstablished: {
		EvM8Received:        TrainDataExchanged,
		EvM8Acked:           TrainDataExchanged,
		EvM38Sent:           SessionEstablished,
		EvM38Received:       SessionEstablished,
		EvM41Sent:           MARequestReady,
		EvSessionTerminated: Disconnected,
	},
	TrainDataExchanged: {
		EvM3Received:    MissionActive,
		EvM41Acked:      MARequestReady,
		EvM41Received:   TrainDataExchanged,
		EvM8Received:    TrainDataExchanged,
		EvM8Acked:       TrainDataExchanged,
		EvTrainRejected: Disconnected,
	},
	MARequestReady: {
		EvM3Sent:     MissionActive,
		EvM3Received: MissionActive,
	},
	MissionActive: {
		EvMonitoringStarted: MissionMonitoring,
		EvMAExpired:         Disconnected,
		EvEmergencyStop:     Disconnected,
	},
	MissionMonitoring: {
		EvPositionUpdate:  MissionMonitoring,
		EvMissionComplete: SessionTerminated,
	},
	SessionTerminated: {
		EvReset: Disconnected,
	},
}

// admitSets is the per-state inbound NID_MESSAGE admit-set from the
// GLOSSARY's "Admit-set per state" entry. NIDAU1 stands in for the AU1
// handshake message, which precedes NID_MESSAGE numbering.
var admitSets = map[State]map[int]bool{
	Disconnected:        {},
	Ready:                set(NIDAU1),
	HandshakeInitiated:   set(32, 155),
	VersionExchanged:     set(32, 38, 146, 154, 155, 159),
	SessionEstablished:   set(8, 38, 129, 146, 155, 159, 157),
	TrainDataExchanged:   set(3, 41, 157, 146, 40, 132),
	MARequestReady:       set(132, 146, 129, 3),
	MissionActive:        set(15, 16, 42, 132, 136),
	MissionMonitoring:    set(136, 146, 150, 156),
	SessionTerminated:    set(150, 156, 39),
}

func set(nids ...int) map[int]bool {
	m := make(map[int]bool, len(nids))
	for _, n := range nids {
		m[n] = true
	}
	return m
}
