// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// RootKeys is the pre-shared 64-bit key triple both OBU and RBC hold
// before any session starts; session keys are derived from these plus
// the exchanged nonces (§4.3, SPEC_FULL.md §12.2: derivation left
// unspecified by the source beyond "any deterministic mix of all six
// 32-bit nonces and the three 64-bit root keys, agreed by both sides").
type RootKeys struct {
	K1 uint64
	K2 uint64
	K3 uint64
}

// function codes distinguish the three derivations, mirroring the
// single-byte "FC" discriminator the 3GPP KDF chain uses ahead of each
// labeled parameter.
const (
	fcKS1 = 0x41
	fcKS2 = 0x42
	fcKS3 = 0x43
)

// DeriveSessionKeys computes KS1, KS2, KS3 from the pre-shared root keys
// and both parties' nonce pairs. Both OBU and RBC call this with the same
// four nonce values (OBU's own pair plus the peer's pair) after AU2, and
// must therefore agree on argument order: obu is always the OBU-side
// pair, rbc always the RBC-side pair, regardless of which role is
// calling.
func DeriveSessionKeys(root RootKeys, obu, rbc NoncePair) (ks1, ks2, ks3 uint64) {
	return derive(fcKS1, root.K1, obu, rbc),
		derive(fcKS2, root.K2, obu, rbc),
		derive(fcKS3, root.K3, obu, rbc)
}

// derive runs HMAC-SHA256 keyed by the 64-bit root key over
// fc || obu.L || obu.R || rbc.L || rbc.R, then truncates to the low 8
// bytes of the 32-byte MAC to produce one 64-bit session key.
func derive(fc byte, root uint64, obu, rbc NoncePair) uint64 {
	var rootBuf [8]byte
	binary.BigEndian.PutUint64(rootBuf[:], root)

	msg := make([]byte, 0, 1+4*4)
	msg = append(msg, fc)
	msg = appendUint32(msg, obu.L)
	msg = appendUint32(msg, obu.R)
	msg = appendUint32(msg, rbc.L)
	msg = appendUint32(msg, rbc.R)

	mac := hmac.New(sha256.New, rootBuf[:])
	mac.Write(msg)
	sum := mac.Sum(nil)

	return binary.BigEndian.Uint64(sum[len(sum)-8:])
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
