// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package obu

import (
	"time"

	"github.com/hhorai/etcsobu/internal/transport"
)

const autoStopCooldown = 1500 * time.Millisecond

// TrainEvent is the status-topic payload an auto-stop publishes.
type TrainEvent struct {
	Event            string   `json:"event"`
	Label            string   `json:"label,omitempty"`
	Conf             *float64 `json:"conf,omitempty"`
	MsgID            string   `json:"msg_id,omitempty"`
	FrameID          string   `json:"frame_id,omitempty"`
	TAutoStopSendMS  int64    `json:"t_auto_stop_send_ms"`
	TS               int64    `json:"ts"`
}

// HandleAIAlert implements the auto-stop coordinator of §4.6: a 1.5s
// cooldown gates repeated alerts; an alert with no confidence value
// stops unconditionally, otherwise it stops only if conf >= 0.25.
func (o *Orchestrator) HandleAIAlert(label string, conf *float64, msgID, frameID string) error {
	now := o.now()
	if !o.lastStopAt.IsZero() && now.Sub(o.lastStopAt) < autoStopCooldown {
		return nil
	}
	if conf != nil && *conf < 0.25 {
		return nil
	}

	o.lastStopAt = now
	if err := o.publish(transport.TopicTrain, []byte("0"), transport.QoSAlert); err != nil {
		return err
	}

	event := TrainEvent{
		Event:           "AUTO_STOP_OBSTACLE",
		Label:           label,
		Conf:            conf,
		MsgID:           msgID,
		FrameID:         frameID,
		TAutoStopSendMS: now.UnixMilli(),
		TS:              now.UnixMilli(),
	}
	return o.publishJSON(transport.StatusTopic(o.TrainID), event, transport.QoSAlert)
}
