// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package rbc

import (
	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/etcs"
	"github.com/hhorai/etcsobu/internal/statemachine"
)

// ReceiveFromOBU is the inbound entry point for every decoded ETCS
// message the bridge delivers on rbc/<id>/in (origin must be "amqp"). It
// applies the admit-set/dedup gates and dispatches to the canonical
// per-NID handler, the symmetric counterpart of §4.5's OBU-side table.
func (o *Orchestrator) ReceiveFromOBU(msg codec.Values) error {
	return etcs.HandleETCSMessage(msg, o.Engine.Dedup, o.Machine, o.handlers())
}

func (o *Orchestrator) handlers() map[int]etcs.Handler {
	ackRef := func(ref int) (codec.Values, error) {
		return o.Engine.BuildFromTemplate("ack", codec.Values{
			"origin":          "rbc",
			"NID_MESSAGE_REF": int64(ref),
		})
	}

	return map[int]etcs.Handler{
		// 155 session-establish -> 32 system-version; begins version exchange.
		etcs.NIDSessionEstablish: func(msg codec.Values) error {
			sysVer, err := o.Engine.BuildFromTemplate("systemVersion", codec.Values{
				"origin":  "rbc",
				"packet2": codec.Values{"M_VERSION": etcs.ExpectedMVersion},
			})
			if err != nil {
				return err
			}
			if err := o.sendOut(sysVer); err != nil {
				return err
			}
			o.Machine.Transition(statemachine.EvM32Sent)
			return nil
		},
		// 159 keys/auth -> 38 session-ack.
		etcs.NIDKeysAuth: func(msg codec.Values) error {
			ack, err := o.Engine.BuildFromTemplate("sessionAck", codec.Values{"origin": "rbc"})
			if err != nil {
				return err
			}
			if err := o.sendOut(ack); err != nil {
				return err
			}
			o.Machine.Transition(statemachine.EvM32Acked)
			return nil
		},
		// 129 train-data -> 8 train-data-ack.
		etcs.NIDTrainData: func(msg codec.Values) error {
			ack, err := o.Engine.BuildFromTemplate("trainDataAck", codec.Values{"origin": "rbc"})
			if err != nil {
				return err
			}
			if err := o.sendOut(ack); err != nil {
				return err
			}
			o.Machine.Transition(statemachine.EvM8Acked)
			return nil
		},
		// 157 train-acceptance -> 41 train-accepted; the admit-set gate
		// rejects a repeated 157 once the machine has left
		// TRAIN_DATA_EXCHANGED.
		etcs.NIDTrainAcceptance: func(msg codec.Values) error {
			accepted, err := o.Engine.BuildFromTemplate("trainAccepted", codec.Values{"origin": "rbc"})
			if err != nil {
				return err
			}
			if err := o.sendOut(accepted); err != nil {
				return err
			}
			o.Machine.Transition(statemachine.EvM41Acked)
			return nil
		},
		// 132 MA-request -> 146 generic-ack; arms the operator grant button.
		etcs.NIDMARequest: func(msg codec.Values) error {
			ack, err := ackRef(etcs.NIDMARequest)
			if err != nil {
				return err
			}
			if err := o.sendOut(ack); err != nil {
				return err
			}
			o.maRequestReceived = true
			return nil
		},
		// 136 position-report -> 146 generic-ack; closes the KPI RTT. The
		// monitoring transition runs first so the ack's NID is admitted
		// under MISSION_MONITORING rather than the prior MISSION_ACTIVE.
		etcs.NIDPositionReport: func(msg codec.Values) error {
			o.Machine.Transition(statemachine.EvMonitoringStarted)
			ack, err := ackRef(etcs.NIDPositionReport)
			if err != nil {
				return err
			}
			return o.sendOut(ack)
		},
		// 156 session-terminate -> 39 termination-ack. The completion
		// transition runs first so 39 is admitted under SESSION_TERMINATED.
		etcs.NIDSessionTerminate: func(msg codec.Values) error {
			o.Machine.Transition(statemachine.EvMissionComplete)
			ack, err := o.Engine.BuildFromTemplate("terminationAck", codec.Values{"origin": "rbc"})
			if err != nil {
				return err
			}
			return o.sendOut(ack)
		},
	}
}

// MARequestReceived reports whether the operator grant button should be
// armed: a 132 has been seen and no grant has been issued yet.
func (o *Orchestrator) MARequestReceived() bool {
	return o.maRequestReceived
}
