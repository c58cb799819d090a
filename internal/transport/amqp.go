// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package transport

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue is a thin wrapper over amqp091-go scoped to the bridge's needs:
// declare-and-publish-persistent, and consume-with-unconditional-ack
// (§4.9's "decode failures are logged, not requeued" policy).
type Queue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// DialQueue connects to the durable-queue broker at url and opens one
// channel.
func DialQueue(url string) (*Queue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("transport: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: amqp channel: %w", err)
	}
	return &Queue{conn: conn, ch: ch}, nil
}

func (q *Queue) declare(name string) error {
	_, err := q.ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("transport: declare queue %s: %w", name, err)
	}
	return nil
}

// Publish sends body to queue as a persistent message.
func (q *Queue) Publish(ctx context.Context, queue string, body []byte) error {
	if err := q.declare(queue); err != nil {
		return err
	}
	return q.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consume runs handler for every delivery on queue, acknowledging each
// delivery unconditionally after handler returns — decode failures are
// the handler's responsibility to log, never to requeue (§4.9).
func (q *Queue) Consume(ctx context.Context, queue string, handler func(body []byte)) error {
	if err := q.declare(queue); err != nil {
		return err
	}
	deliveries, err := q.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("transport: consume %s: %w", queue, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				handler(d.Body)
				_ = d.Ack(false)
			}
		}
	}()
	return nil
}

// Close tears down the channel and connection.
func (q *Queue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}
