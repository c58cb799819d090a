// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package etcs holds the ETCS message template registry and the engine
// that sequences, throttles, and dispatches messages built from it
// (§4.5).
package etcs

import "github.com/hhorai/etcsobu/internal/codec"

// NID_MESSAGE values named in §6.
const (
	NIDMA                = 3
	NIDTrainDataAck      = 8
	NIDSystemVersion     = 32
	NIDSessionAck        = 38
	NIDTerminationAck    = 39
	NIDTrainAccepted     = 41
	NIDMARequest         = 132
	NIDTrainData         = 129
	NIDPositionReport    = 136
	NIDGenericAck        = 146
	NIDEndOfMission      = 150
	NIDVersionReject     = 154
	NIDSessionEstablish  = 155
	NIDSessionTerminate  = 156
	NIDTrainAcceptance   = 157
	NIDKeysAuth          = 159
)

// ExpectedMVersion is the packet2.M_VERSION value the RBC advertises in
// message 32 and the OBU checks on receipt; a mismatch drives
// VERSION_MISMATCH instead of M32_ACKED (§4.5).
const ExpectedMVersion int64 = 1

// Packet 0 (position data) field widths. The spec names only the
// fields, not their widths; 40 bits is chosen so this sub-packet is a
// whole number of bytes. The repeated-section group (46 bits) and the
// fixed Packet 15 portion (93 bits) are not.
func packet0Template() *codec.Template {
	return &codec.Template{
		NID:  0,
		Name: "packet0",
		Fields: []codec.Field{
			{Name: "NID_PACKET", Bits: 8},
			{Name: "L_PACKET", Bits: 8},
			{Name: "Q_SCALE", Bits: 2},
			{Name: "D_LRBG", Bits: 22},
		},
		Defaults: map[string]int64{"NID_PACKET": 0, "L_PACKET": 40},
	}
}

// Packet 15 (Movement Authority), per §4.8. Field widths instantiate the
// spec's two aggregate totals — see DESIGN.md Open Question decision 5.
func packet15Template() *codec.Template {
	return &codec.Template{
		NID:  15,
		Name: "packet15",
		Fields: []codec.Field{
			{Name: "NID_PACKET", Bits: 8},
			{Name: "Q_DIR", Bits: 1},
			{Name: "N_ITER", Bits: 7},
			{Name: "Q_SCALE", Bits: 8},
			{Name: "SPARE_HEADER", Bits: 8},
		},
		RepeatCountField: "N_ITER",
		RepeatFields: []codec.Field{
			{Name: "L_SECTION_k", Bits: 16},
			{Name: "Q_SECTIONTIMER_k", Bits: 1},
			{Name: "T_SECTIONTIMER_k", Bits: 15},
			{Name: "D_SECTIONTIMERSTOPLOC_k", Bits: 14},
		},
		EndFields: []codec.Field{
			{Name: "L_ENDSECTION", Bits: 16},
			{Name: "SPARE_END", Bits: 45},
		},
		Defaults: map[string]int64{"NID_PACKET": 15},
	}
}

// Packet 2 (version), per the GLOSSARY's "Packet 0 / Packet 2 / Packet
// 15" entry: position report, version, and movement authority
// respectively. Carried inside Message 32 (system version).
func packet2Template() *codec.Template {
	return &codec.Template{
		NID:  2,
		Name: "packet2",
		Fields: []codec.Field{
			{Name: "NID_PACKET", Bits: 8},
			{Name: "L_PACKET", Bits: 8},
			{Name: "M_VERSION", Bits: 8},
		},
		Defaults: map[string]int64{"NID_PACKET": 2, "L_PACKET": 24},
	}
}

func systemVersionTemplate() *codec.Template {
	t := envelopeTemplate(NIDSystemVersion, "systemVersion")
	t.SubPackets = []string{"packet2"}
	return t
}

func envelopeTemplate(nid int, name string) *codec.Template {
	return &codec.Template{
		NID:  nid,
		Name: name,
		Fields: []codec.Field{
			{Name: "NID_MESSAGE", Bits: 8},
			{Name: "SEQUENCE", Bits: 8},
		},
		Defaults: map[string]int64{"NID_MESSAGE": int64(nid)},
	}
}

func ackTemplate() *codec.Template {
	t := envelopeTemplate(NIDGenericAck, "ack")
	t.Fields = append(t.Fields, codec.Field{Name: "NID_MESSAGE_REF", Bits: 8})
	return t
}

func maTemplate() *codec.Template {
	t := envelopeTemplate(NIDMA, "ma")
	t.SubPackets = []string{"packet15"}
	return t
}

func positionReportTemplate() *codec.Template {
	t := envelopeTemplate(NIDPositionReport, "positionReport")
	t.SubPackets = []string{"packet0"}
	return t
}

func trainAcceptanceTemplate() *codec.Template {
	t := envelopeTemplate(NIDTrainAcceptance, "trainAcceptance")
	t.SubPackets = []string{"packet0"}
	return t
}

// DefaultRegistry builds the Registry/template set used by the OBU and
// RBC engines. Every NID named in §6's message-identifier list has an
// entry.
func DefaultRegistry() (codec.Registry, map[int]*codec.Template) {
	reg := codec.Registry{
		"packet0":  packet0Template(),
		"packet2":  packet2Template(),
		"packet15": packet15Template(),
	}

	byNID := map[int]*codec.Template{
		NIDMA:               maTemplate(),
		NIDTrainDataAck:     envelopeTemplate(NIDTrainDataAck, "trainDataAck"),
		NIDSystemVersion:    systemVersionTemplate(),
		NIDSessionAck:       envelopeTemplate(NIDSessionAck, "sessionAck"),
		NIDTerminationAck:   envelopeTemplate(NIDTerminationAck, "terminationAck"),
		NIDTrainAccepted:    envelopeTemplate(NIDTrainAccepted, "trainAccepted"),
		NIDMARequest:        envelopeTemplate(NIDMARequest, "maRequest"),
		NIDTrainData:        envelopeTemplate(NIDTrainData, "trainData"),
		NIDPositionReport:   positionReportTemplate(),
		NIDGenericAck:       ackTemplate(),
		NIDEndOfMission:     envelopeTemplate(NIDEndOfMission, "endOfMission"),
		NIDVersionReject:    envelopeTemplate(NIDVersionReject, "versionReject"),
		NIDSessionEstablish: envelopeTemplate(NIDSessionEstablish, "sessionEstablish"),
		NIDSessionTerminate: envelopeTemplate(NIDSessionTerminate, "sessionTerminate"),
		NIDTrainAcceptance:  trainAcceptanceTemplate(),
		NIDKeysAuth:         envelopeTemplate(NIDKeysAuth, "keysAuth"),
	}

	for _, tmpl := range byNID {
		reg[tmpl.Name] = tmpl
	}

	return reg, byNID
}
