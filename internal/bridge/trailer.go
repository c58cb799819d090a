// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package bridge implements the two-hop translation between the pub/sub
// broker and the durable queue described in §4.9: a forward process that
// wraps ETCS messages into Secure PDUs and enqueues them, and a reverse
// process that unwraps and republishes them. Both sides carry a metadata
// trailer that survives the binary safety layer.
package bridge

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// trailerMagic marks the start of the out-of-band metadata trailer
// appended after a Secure PDU. It is not covered by the PDU's MAC or
// CRC and MUST be treated as untrusted diagnostic data only (§4.9).
var trailerMagic = []byte{0x7E, 0x4D, 0x45, 0x54, 0x41} // "~META"

// appendTrailer appends MAGIC || len32be || json(fields) to pdu.
func appendTrailer(pdu []byte, fields map[string]any) ([]byte, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("bridge: marshal trailer: %w", err)
	}

	out := make([]byte, 0, len(pdu)+len(trailerMagic)+4+len(body))
	out = append(out, pdu...)
	out = append(out, trailerMagic...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	out = append(out, lenBuf[:]...)
	out = append(out, body...)
	return out, nil
}

// extractTrailer locates the last occurrence of the magic in data and
// splits it into the leading Secure PDU and the parsed trailer fields.
// ok is false if no well-formed trailer is present, in which case pdu is
// all of data and fields is nil.
func extractTrailer(data []byte) (pdu []byte, fields map[string]any, ok bool) {
	idx := bytes.LastIndex(data, trailerMagic)
	if idx < 0 {
		return data, nil, false
	}

	lenStart := idx + len(trailerMagic)
	if len(data) < lenStart+4 {
		return data, nil, false
	}
	n := binary.BigEndian.Uint32(data[lenStart : lenStart+4])
	jsonStart := lenStart + 4
	jsonEnd := jsonStart + int(n)
	if jsonEnd > len(data) {
		return data, nil, false
	}

	var parsed map[string]any
	if err := json.Unmarshal(data[jsonStart:jsonEnd], &parsed); err != nil {
		return data, nil, false
	}
	return data[:idx], parsed, true
}
