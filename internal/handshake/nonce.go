// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package handshake implements the AU1/AU2 mutual-nonce exchange and the
// KS1/KS2/KS3 session-key derivation described in §4.3.
package handshake

import (
	"crypto/rand"
	"encoding/binary"
)

// NoncePair is one party's 32-bit nonce pair, L (local) and R (remote-
// facing), as carried in AU1/AU2.
type NoncePair struct {
	L uint32
	R uint32
}

// GenerateNoncePair draws a fresh nonce pair from crypto/rand. Each
// handshake initiator calls this once per session attempt.
func GenerateNoncePair() (NoncePair, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return NoncePair{}, err
	}
	return NoncePair{
		L: binary.BigEndian.Uint32(buf[0:4]),
		R: binary.BigEndian.Uint32(buf[4:8]),
	}, nil
}
