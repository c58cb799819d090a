// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhorai/etcsobu/internal/codec"
	"github.com/hhorai/etcsobu/internal/handshake"
	"github.com/hhorai/etcsobu/internal/safety"
	"github.com/hhorai/etcsobu/internal/transport"
)

type fakeQueue struct {
	published []struct {
		queue string
		body  []byte
	}
}

func (q *fakeQueue) Publish(_ context.Context, queue string, body []byte) error {
	q.published = append(q.published, struct {
		queue string
		body  []byte
	}{queue, body})
	return nil
}

func newTestForward(t *testing.T) (*Forward, *fakeQueue) {
	t.Helper()
	keys := &safety.KeyStore{}
	keys.Set(1, 2, 3)
	q := &fakeQueue{}
	return NewForward("RBC1", keys, q, nil), q
}

func TestForwardDropsAMQPOrigin(t *testing.T) {
	f, q := newTestForward(t)
	msg := codec.Values{"NID_MESSAGE": int64(146), "origin": "amqp", "SEQUENCE": int64(1), "NID_MESSAGE_REF": int64(32)}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, f.Handle(context.Background(), transport.InTopic("RBC1"), body))
	assert.Empty(t, q.published)
}

func TestForwardInstallsKeyUpdateWithoutForwarding(t *testing.T) {
	f, q := newTestForward(t)
	f.Keys = &safety.KeyStore{} // start unkeyed so we can observe the install

	update := handshake.KeyUpdate{KS1: 11, KS2: 22, KS3: 33}
	body, err := json.Marshal(update)
	require.NoError(t, err)

	require.NoError(t, f.Handle(context.Background(), transport.KeysTopic("RBC1"), body))
	assert.True(t, f.Keys.Present())
	assert.Empty(t, q.published)
}

func TestForwardWrapsInTopicAsDir1ToOBUToRBC(t *testing.T) {
	f, q := newTestForward(t)
	msg := codec.Values{
		"NID_MESSAGE":     int64(146),
		"NID_MESSAGE_REF": int64(32),
		"SEQUENCE":        int64(7),
		"origin":          "rbc",
		"msg_id":          "m-1",
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, f.Handle(context.Background(), transport.InTopic("RBC1"), body))
	require.Len(t, q.published, 1)
	assert.Equal(t, transport.QueueOBUToRBC, q.published[0].queue)

	_, fields, ok := extractTrailer(q.published[0].body)
	require.True(t, ok, "expected a metadata trailer on the enqueued frame")
	assert.Equal(t, "m-1", fields["msg_id"])
}

func TestForwardWrapsOutTopicAsDir0ToRBCToOBU(t *testing.T) {
	f, q := newTestForward(t)
	msg := codec.Values{
		"NID_MESSAGE": int64(32),
		"SEQUENCE":    int64(1),
		"origin":      "rbc",
		"packet2":     codec.Values{"M_VERSION": int64(1)},
	}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	require.NoError(t, f.Handle(context.Background(), transport.OutTopic("RBC1"), body))
	require.Len(t, q.published, 1)
	assert.Equal(t, transport.QueueRBCToOBU, q.published[0].queue)
}

func TestForwardRejectsUnknownNID(t *testing.T) {
	f, _ := newTestForward(t)
	msg := codec.Values{"NID_MESSAGE": int64(99999), "origin": "rbc", "SEQUENCE": int64(1)}
	body, err := json.Marshal(msg)
	require.NoError(t, err)

	err = f.Handle(context.Background(), transport.InTopic("RBC1"), body)
	assert.Error(t, err)
}
