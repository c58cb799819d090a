// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package handshake

// AU1 is the OBU-to-RBC authentication message: OBU identity, target RBC
// identity, and the OBU's nonce pair.
type AU1 struct {
	OBUID     string
	RBCID     string
	OBUNonces NoncePair
}

// AU2 is the RBC-to-OBU reply: both identities and the RBC's nonce pair.
type AU2 struct {
	OBUID     string
	RBCID     string
	RBCNonces NoncePair
}

// KeyUpdate is the plaintext session-key leak the OBU publishes on a
// distinct keys-topic after deriving session keys, so the MQTT-to-queue
// bridge can initialize its own safety layer. This is the only place
// session keys ever appear unencrypted on the wire; it is tolerated only
// because the demonstrator runs on a trusted LAN (§4.3).
type KeyUpdate struct {
	KS1 uint64
	KS2 uint64
	KS3 uint64
}
