// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package codec

import (
	"testing"
)

func simpleTemplate() *Template {
	return &Template{
		NID:  146,
		Name: "ack",
		Fields: []Field{
			{Name: "NID_MESSAGE", Bits: 8},
			{Name: "SEQUENCE", Bits: 8},
			{Name: "NID_MESSAGE_REF", Bits: 8},
		},
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	tmpl := simpleTemplate()
	reg := Registry{}

	values := Values{"NID_MESSAGE": int64(146), "SEQUENCE": int64(7), "NID_MESSAGE_REF": int64(41)}
	b, bits, err := Pack(tmpl, values, reg)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if bits != 24 {
		t.Fatalf("expect bitlen 24, got %d", bits)
	}

	r := NewBitReader(b)
	got, warnings := Unpack(tmpl, r, reg)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	for k, v := range values {
		if got[k] != v {
			t.Errorf("field %s: expect %v, got %v", k, v, got[k])
		}
	}
}

func TestPackOutOfRange(t *testing.T) {
	tmpl := simpleTemplate()
	values := Values{"NID_MESSAGE": int64(300), "SEQUENCE": int64(0), "NID_MESSAGE_REF": int64(0)}
	if _, _, err := Pack(tmpl, values, Registry{}); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func packet0Template() *Template {
	return &Template{
		NID:  0,
		Name: "packet0",
		Fields: []Field{
			{Name: "NID_PACKET", Bits: 8},
			{Name: "L_PACKET", Bits: 8},
			{Name: "Q_SCALE", Bits: 2},
			{Name: "D_LRBG", Bits: 22},
		},
		Defaults: map[string]int64{"NID_PACKET": 0, "L_PACKET": 40},
	}
}

func positionReportTemplate() *Template {
	return &Template{
		NID:  136,
		Name: "positionReport",
		Fields: []Field{
			{Name: "NID_MESSAGE", Bits: 8},
			{Name: "SEQUENCE", Bits: 8},
		},
		SubPackets: []string{"packet0"},
		Defaults:   map[string]int64{"NID_MESSAGE": 136},
	}
}

func TestSubPacketRoundTrip(t *testing.T) {
	reg := Registry{"packet0": packet0Template()}
	tmpl := positionReportTemplate()

	values := Values{
		"NID_MESSAGE": int64(136),
		"SEQUENCE":    int64(3),
		"packet0": Values{
			"D_LRBG": int64(3000),
		},
	}

	b, _, err := Pack(tmpl, values, reg)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	got, warnings := Unpack(tmpl, NewBitReader(b), reg)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	sub, ok := got["packet0"].(Values)
	if !ok {
		t.Fatalf("expected packet0 sub-values, got %#v", got["packet0"])
	}
	if sub["D_LRBG"] != int64(3000) {
		t.Errorf("D_LRBG: expect 3000, got %v", sub["D_LRBG"])
	}
}

func TestSubPacketMismatchIsSkipped(t *testing.T) {
	reg := Registry{"packet0": packet0Template()}
	tmpl := positionReportTemplate()

	// Pack without the sub-packet and follow the fixed fields with a
	// byte (255) that is not packet0's NID_PACKET (0), so the lookahead
	// mismatches; Unpack must warn and skip rather than fail.
	values := Values{"NID_MESSAGE": int64(136), "SEQUENCE": int64(3)}
	b, _, err := Pack(tmpl, values, reg)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	b = append(b, 0xFF)

	got, _ := Unpack(tmpl, NewBitReader(b), reg)
	if _, ok := got["packet0"]; ok {
		t.Errorf("expected no packet0 entry, got %#v", got["packet0"])
	}
}

func packet15Template() *Template {
	return &Template{
		NID:  15,
		Name: "packet15",
		Fields: []Field{
			{Name: "NID_PACKET", Bits: 8},
			{Name: "Q_DIR", Bits: 1},
			{Name: "N_ITER", Bits: 7},
		},
		RepeatCountField: "N_ITER",
		RepeatFields: []Field{
			{Name: "L_SECTION_k", Bits: 16},
			{Name: "Q_SECTIONTIMER_k", Bits: 1},
			{Name: "T_SECTIONTIMER_k", Bits: 15},
			{Name: "D_SECTIONTIMERSTOPLOC_k", Bits: 14},
		},
		EndFields: []Field{
			{Name: "L_ENDSECTION", Bits: 16},
			{Name: "Q_SCALE", Bits: 8},
		},
		Defaults: map[string]int64{"NID_PACKET": 15},
	}
}

func maTemplate() *Template {
	return &Template{
		NID:  3,
		Name: "ma",
		Fields: []Field{
			{Name: "NID_MESSAGE", Bits: 8},
			{Name: "SEQUENCE", Bits: 8},
		},
		SubPackets: []string{"packet15"},
		Defaults:   map[string]int64{"NID_MESSAGE": 3},
	}
}

func TestPacket15RoundTripWithSections(t *testing.T) {
	reg := Registry{"packet15": packet15Template()}
	tmpl := maTemplate()

	sections := []Values{
		{"L_SECTION": int64(500), "Q_SECTIONTIMER": int64(0), "T_SECTIONTIMER": int64(0), "D_SECTIONTIMERSTOPLOC": int64(0)},
		{"L_SECTION": int64(1200), "Q_SECTIONTIMER": int64(1), "T_SECTIONTIMER": int64(30), "D_SECTIONTIMERSTOPLOC": int64(5)},
	}

	values := Values{
		"NID_MESSAGE": int64(3),
		"SEQUENCE":    int64(9),
		"packet15": Values{
			"Q_DIR":        int64(1),
			"N_ITER":       int64(len(sections)),
			"sections":     sections,
			"L_ENDSECTION": int64(300),
			"Q_SCALE":      int64(1),
		},
	}

	b, _, err := Pack(tmpl, values, reg)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	got, warnings := Unpack(tmpl, NewBitReader(b), reg)
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}

	p15, ok := got["packet15"].(Values)
	if !ok {
		t.Fatalf("expected packet15, got %#v", got["packet15"])
	}
	gotSections, ok := p15["sections"].([]Values)
	if !ok || len(gotSections) != len(sections) {
		t.Fatalf("expected %d sections, got %#v", len(sections), p15["sections"])
	}
	for i, want := range sections {
		for k, v := range want {
			if gotSections[i][k] != v {
				t.Errorf("sections[%d].%s: expect %v, got %v", i, k, v, gotSections[i][k])
			}
		}
	}
	if p15["L_ENDSECTION"] != int64(300) {
		t.Errorf("L_ENDSECTION: expect 300, got %v", p15["L_ENDSECTION"])
	}
}

func TestUnpackInsufficientBitsReturnsPartial(t *testing.T) {
	tmpl := simpleTemplate()
	got, warnings := Unpack(tmpl, NewBitReader([]byte{146, 7}), Registry{})
	if len(warnings) == 0 {
		t.Fatal("expected an insufficient-bits warning")
	}
	if got["NID_MESSAGE"] != int64(146) || got["SEQUENCE"] != int64(7) {
		t.Errorf("expected partial decode of the first two fields, got %#v", got)
	}
	if _, ok := got["NID_MESSAGE_REF"]; ok {
		t.Errorf("did not expect NID_MESSAGE_REF to be present")
	}
}

func TestBitWriterReaderAgree(t *testing.T) {
	w := NewBitWriter()
	w.WriteUint(0x3, 2)
	w.WriteUint(0x2A, 7)
	w.WriteUint(0xFF, 8)

	r := NewBitReader(w.Bytes())
	if v, err := r.ReadUint(2); err != nil || v != 0x3 {
		t.Fatalf("expected 0x3, got %v (%v)", v, err)
	}
	if v, err := r.ReadUint(7); err != nil || v != 0x2A {
		t.Fatalf("expected 0x2A, got %v (%v)", v, err)
	}
	if v, err := r.ReadUint(8); err != nil || v != 0xFF {
		t.Fatalf("expected 0xFF, got %v (%v)", v, err)
	}
}

func TestAlignToByte(t *testing.T) {
	r := NewBitReader([]byte{0xFF, 0xFF})
	if _, err := r.ReadUint(3); err != nil {
		t.Fatal(err)
	}
	r.AlignToByte()
	if r.BitPos() != 8 {
		t.Errorf("expected bitpos 8, got %d", r.BitPos())
	}
	r.AlignToByte()
	if r.BitPos() != 8 {
		t.Errorf("AlignToByte should be a no-op when already aligned, got %d", r.BitPos())
	}
}
