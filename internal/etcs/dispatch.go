// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package etcs

import (
	"fmt"

	"github.com/hhorai/etcsobu/internal/codec"
)

// Handler reacts to one inbound decoded ETCS message: it validates any
// state-specific precondition beyond admit-set membership, builds and
// sends the canonical response, and drives the state machine with the
// appropriate event. OBU and RBC orchestrators register one Handler per
// NID_MESSAGE they accept (§4.5's "Canonical responses").
type Handler func(msg codec.Values) error

// HandleETCSMessage implements §4.5's handleETCSMessage: it rejects
// messages missing NID_MESSAGE/origin, rejects wire messages whose
// origin isn't "amqp" (loop-prevention — a protocol peer publishing
// locally uses "obu"/"rbc", which must never re-enter from the wire),
// rejects NIDs the current state doesn't admit, drops duplicates via
// dedup, and otherwise dispatches to handlers[nid].
func HandleETCSMessage(msg codec.Values, dedup *DedupCache, machine interface {
	ValidateMessage(int) bool
}, handlers map[int]Handler) error {
	rawNID, ok := msg["NID_MESSAGE"]
	if !ok {
		return ErrMissingNID
	}
	nid64, ok := rawNID.(int64)
	if !ok {
		return ErrMissingNID
	}
	nid := int(nid64)

	origin, ok := msg["origin"].(string)
	if !ok || origin == "" {
		return ErrMissingOrigin
	}
	if origin != "amqp" {
		return ErrLoopOrigin
	}

	if !machine.ValidateMessage(nid) {
		return fmt.Errorf("%w: NID %d", ErrNotAdmitted, nid)
	}

	if dedup != nil {
		msgID, _ := msg["msg_id"].(string)
		seq, hasSeq := msg["SEQUENCE"].(int64)
		if dedup.Seen(DedupKey(msgID, nid, seq, hasSeq)) {
			return nil
		}
	}

	handler, ok := handlers[nid]
	if !ok {
		return nil
	}
	return handler(msg)
}
