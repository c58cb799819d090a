// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package safety

import (
	"encoding/binary"
	"sync"
)

// KeyStore holds the three session keys derived at handshake (§4.3) for
// the lifetime of one session. It is safe for concurrent use, though the
// orchestrators in this module drive it from a single event loop.
type KeyStore struct {
	mu      sync.RWMutex
	ks1     uint64
	ks2     uint64
	ks3     uint64
	present bool
}

// Set installs the three session keys, replacing any previously installed
// set.
func (s *KeyStore) Set(ks1, ks2, ks3 uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ks1, s.ks2, s.ks3 = ks1, ks2, ks3
	s.present = true
}

// Clear drops the installed keys; subsequent wrap/unwrap calls fail with
// ErrNoKeys until Set is called again.
func (s *KeyStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ks1, s.ks2, s.ks3 = 0, 0, 0
	s.present = false
}

// Present reports whether a key set has been installed.
func (s *KeyStore) Present() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.present
}

// forNID selects the session key that authenticates nid per §4.2: 132
// uses KS2, 136 uses KS3, everything else falls back to KS1.
func (s *KeyStore) forNID(nid int) ([16]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return [16]byte{}, ErrNoKeys
	}
	var k uint64
	switch nid {
	case 132:
		k = s.ks2
	case 136:
		k = s.ks3
	default:
		k = s.ks1
	}
	return expand64to128(k), nil
}

// expand64to128 widens a 64-bit session key to a 128-bit AES key by
// self-concatenation, per §4.2.
func expand64to128(k uint64) [16]byte {
	var half [8]byte
	binary.BigEndian.PutUint64(half[:], k)
	var out [16]byte
	copy(out[0:8], half[:])
	copy(out[8:16], half[:])
	return out
}
