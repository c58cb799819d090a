// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package transport wraps the MQTT v5 pub/sub client and the durable
// AMQP queue client behind the topic/queue namespace described in §6.
package transport

import "fmt"

// Queue names (durable), per §6.
const (
	QueueOBUToRBC = "obu_to_rbc"
	QueueRBCToOBU = "rbc_to_obu"
)

// QoS levels by plane, per §5.
const (
	QoSETCS  byte = 2
	QoSAlert byte = 1
	QoSVideo byte = 0
)

func HandshakeTopicOBU(rbcID string) string { return fmt.Sprintf("obu/%s/handshake", rbcID) }
func HandshakeTopicRBC(rbcID string) string { return fmt.Sprintf("rbc/%s/handshake", rbcID) }
func KeysTopic(rbcID string) string         { return fmt.Sprintf("obu/%s/keys", rbcID) }
func InTopic(rbcID string) string           { return fmt.Sprintf("rbc/%s/in", rbcID) }
func OutTopic(rbcID string) string          { return fmt.Sprintf("rbc/%s/out", rbcID) }
func SensorTopic(rbcID string) string       { return fmt.Sprintf("esp32/%s/sensor", rbcID) }
func KPIPosTopic(rbcID string) string       { return fmt.Sprintf("kpi/%s/pos", rbcID) }
func StatusTopic(trainID string) string     { return fmt.Sprintf("obu/%s/status", trainID) }

const (
	TopicAIAlert    = "obu/ai/alert"
	TopicAIAck      = "obu/ai/ack"
	TopicTrain      = "obu/train"
	TopicTrainMeta  = "obu/train/meta"
	TopicVideoPing  = "obu/video/ping"
	TopicVideoPong  = "obu/video/pong"
)
