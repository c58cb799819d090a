// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package safety implements the Secure PDU framing described in §4.2:
// header || payload || mac(4) || crc(2), with per-NID session-key
// selection and a deliberately non-standard AES-CBC-last-block MAC.
package safety

import "errors"

var (
	ErrNoKeys      = errors.New("safety: no session keys installed")
	ErrCrcMismatch = errors.New("safety: crc mismatch")
	ErrMacMismatch = errors.New("safety: mac mismatch")
	ErrTooShort    = errors.New("safety: pdu shorter than minimum 7 bytes")
)
