// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package obu

import (
	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/etcs"
	"github.com/hhorai/etcsobu/internal/statemachine"
	"github.com/hhorai/etcsobu/internal/transport"
)

// ReceiveFromRBC is the inbound entry point for every decoded ETCS
// message the bridge delivers on rbc/<id>/out (origin must be "amqp").
// It applies the admit-set/dedup gates and dispatches to the canonical
// per-NID handler from §4.5.
func (o *Orchestrator) ReceiveFromRBC(msg codec.Values) error {
	return etcs.HandleETCSMessage(msg, o.Engine.Dedup, o.Machine, o.handlers())
}

func (o *Orchestrator) handlers() map[int]etcs.Handler {
	out := func(topic string, m codec.Values) error {
		return o.Engine.SendThrottled(topic, m, o.etcsPublisher(transport.QoSETCS))
	}
	inTopic := transport.InTopic(o.RBCID)

	return map[int]etcs.Handler{
		etcs.NIDSystemVersion: func(msg codec.Values) error {
			packet2, _ := msg["packet2"].(codec.Values)
			mVersion, _ := packet2["M_VERSION"].(int64)
			if mVersion != etcs.ExpectedMVersion {
				reject, err := o.Engine.BuildFromTemplate("versionReject", codec.Values{"origin": "obu"})
				if err != nil {
					return err
				}
				if err := out(inTopic, reject); err != nil {
					return err
				}
				o.Machine.Transition(statemachine.EvVersionMismatch)
				return nil
			}

			ack, err := o.Engine.BuildFromTemplate("ack", codec.Values{
				"origin":          "obu",
				"NID_MESSAGE_REF": int64(etcs.NIDSystemVersion),
			})
			if err != nil {
				return err
			}
			if err := out(inTopic, ack); err != nil {
				return err
			}
			keysMsg, err := o.Engine.BuildFromTemplate("keysAuth", codec.Values{"origin": "obu"})
			if err != nil {
				return err
			}
			if err := out(inTopic, keysMsg); err != nil {
				return err
			}
			o.Machine.Transition(statemachine.EvM32Acked)

			trainData, err := o.Engine.BuildFromTemplate("trainData", codec.Values{"origin": "obu"})
			if err != nil {
				return err
			}
			return out(inTopic, trainData)
		},
		etcs.NIDSessionAck: func(msg codec.Values) error {
			ack, err := o.Engine.BuildFromTemplate("ack", codec.Values{
				"origin":          "obu",
				"NID_MESSAGE_REF": int64(etcs.NIDSessionAck),
			})
			if err != nil {
				return err
			}
			return out(inTopic, ack)
		},
		etcs.NIDTrainDataAck: func(msg codec.Values) error {
			ack, err := o.Engine.BuildFromTemplate("ack", codec.Values{
				"origin":          "obu",
				"NID_MESSAGE_REF": int64(etcs.NIDTrainDataAck),
			})
			if err != nil {
				return err
			}
			if err := out(inTopic, ack); err != nil {
				return err
			}
			o.Machine.Transition(statemachine.EvM8Received)

			if o.trainAcceptanceSent {
				return nil
			}
			o.trainAcceptanceSent = true
			acceptance, err := o.Engine.BuildFromTemplate("trainAcceptance", codec.Values{
				"origin":  "obu",
				"packet0": codec.Values{"D_LRBG": int64(0)},
			})
			if err != nil {
				return err
			}
			return out(inTopic, acceptance)
		},
		etcs.NIDTrainAccepted: func(msg codec.Values) error {
			ack, err := o.Engine.BuildFromTemplate("ack", codec.Values{
				"origin":          "obu",
				"NID_MESSAGE_REF": int64(etcs.NIDTrainAccepted),
			})
			if err != nil {
				return err
			}
			if err := out(inTopic, ack); err != nil {
				return err
			}
			o.Machine.Transition(statemachine.EvM41Acked)
			return nil
		},
		etcs.NIDGenericAck: func(msg codec.Values) error {
			ref, _ := msg["NID_MESSAGE_REF"].(int64)
			o.Machine.Transition(statemachine.EvPositionUpdate)
			return o.HandleGenericAck(ref)
		},
		etcs.NIDMA: func(msg codec.Values) error {
			o.Machine.Transition(statemachine.EvM3Received)
			return nil
		},
	}
}
