// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package transport

import (
	"context"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/paho"
)

// MQTTClient is a thin wrapper over paho.golang's MQTT v5 client,
// scoped to what the OBU/RBC orchestrators and the bridge need:
// subscribe-with-handler and publish-at-QoS.
type MQTTClient struct {
	cli    *paho.Client
	router *paho.StandardRouter
}

// DialMQTT opens a TCP connection to addr and performs the MQTT v5
// CONNECT handshake under clientID.
func DialMQTT(ctx context.Context, addr, clientID string) (*MQTTClient, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	router := paho.NewStandardRouter()
	cli := paho.NewClient(paho.ClientConfig{
		Conn:   conn,
		Router: router,
	})

	connAck, err := cli.Connect(ctx, &paho.Connect{
		KeepAlive:  30,
		ClientID:   clientID,
		CleanStart: true,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: connect: %w", err)
	}
	if connAck.ReasonCode != 0 {
		return nil, fmt.Errorf("transport: connect refused, reason %d", connAck.ReasonCode)
	}

	return &MQTTClient{cli: cli, router: router}, nil
}

// Subscribe registers handler for topic at qos. Multiple Subscribe calls
// on the same client fan out to one underlying MQTT session, matching
// the orchestrators' "subscribe to several topics on connect" shape
// (§4.6, §4.7).
func (c *MQTTClient) Subscribe(ctx context.Context, topic string, qos byte, handler func(topic string, payload []byte)) error {
	c.router.RegisterHandler(topic, func(p *paho.Publish) {
		handler(p.Topic, p.Payload)
	})

	_, err := c.cli.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: qos}},
	})
	if err != nil {
		return fmt.Errorf("transport: subscribe %s: %w", topic, err)
	}
	return nil
}

// Publish sends payload to topic at qos.
func (c *MQTTClient) Publish(ctx context.Context, topic string, payload []byte, qos byte) error {
	_, err := c.cli.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("transport: publish %s: %w", topic, err)
	}
	return nil
}

// Disconnect cleanly closes the MQTT session.
func (c *MQTTClient) Disconnect() error {
	return c.cli.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
