// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package codec implements the bit-packed wire encoding for ETCS message
// templates: fixed fields, an optional N_ITER repeated section group, and
// recursively nested sub-packets.
package codec

import "errors"

// ErrOutOfRange is returned when a field value does not fit the declared
// bit width, or is not numeric.
var ErrOutOfRange = errors.New("codec: field value out of range")

// ErrInsufficientBits is a non-fatal decode warning: the remaining bit
// stream is too short for the next field. Decoding stops and the values
// collected so far are returned.
var ErrInsufficientBits = errors.New("codec: insufficient bits remaining")

// ErrTemplateMissing is returned when a sub-packet name has no entry in
// the template registry passed to Pack/Unpack.
var ErrTemplateMissing = errors.New("codec: template missing from registry")
