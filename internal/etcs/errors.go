// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package etcs

import "errors"

var (
	ErrMissingNID    = errors.New("etcs: message missing NID_MESSAGE")
	ErrMissingOrigin = errors.New("etcs: message missing origin")
	ErrLoopOrigin    = errors.New("etcs: message origin not admitted from the wire")
	ErrNotAdmitted   = errors.New("etcs: NID_MESSAGE not admitted in current state")
	ErrTemplateMissing = errors.New("etcs: no template registered for NID_MESSAGE")
)
