// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package topology

import (
	"testing"

	"github.com/hhorai/etcsobu/internal/codec"
)

// A straight line: ST_A --T1--> S1 --T2--> S2 --T3--> ST_B, each track
// 500m, S1/S2 sensors.
func lineTopology() *Topology {
	t := &Topology{
		Nodes: []Node{
			{ID: "ST_A", X: 0, Y: 0, Station: true},
			{ID: "S1", X: 500, Y: 0, SensorID: "S1"},
			{ID: "S2", X: 1000, Y: 0, SensorID: "S2"},
			{ID: "ST_B", X: 1500, Y: 0, Station: true},
		},
		Tracks: []Track{
			{ID: "T1", From: "ST_A", To: "S1"},
			{ID: "T2", From: "S1", To: "S2"},
			{ID: "T3", From: "S2", To: "ST_B"},
		},
	}
	t.index()
	return t
}

func TestGeneratePacket15StraightLine(t *testing.T) {
	topo := lineTopology()
	p, err := GeneratePacket15(topo, topo.Tracks, "ST_A", "ST_B")
	if err != nil {
		t.Fatalf("GeneratePacket15: %v", err)
	}
	if p.QDir != 1 {
		t.Errorf("expected Q_DIR 1 (walk starts at ST_A), got %d", p.QDir)
	}
	if p.NIter != 1 {
		t.Fatalf("expected 1 section between S1 and S2, got %d", p.NIter)
	}
	if p.Sections[0].LSection != 500 {
		t.Errorf("expected L_SECTION 500, got %d", p.Sections[0].LSection)
	}
	if p.LEndSection != 500 {
		t.Errorf("expected L_ENDSECTION 500 (S2 to ST_B), got %d", p.LEndSection)
	}
	if p.LPacketBits != 93+46*1 {
		t.Errorf("expected L_PACKET 139, got %d", p.LPacketBits)
	}
}

func TestGeneratePacket15ReverseDirection(t *testing.T) {
	topo := lineTopology()
	reversed := []Track{
		{ID: "T3r", From: "ST_B", To: "S2"},
		{ID: "T2r", From: "S2", To: "S1"},
		{ID: "T1r", From: "S1", To: "ST_A"},
	}
	p, err := GeneratePacket15(topo, reversed, "ST_A", "ST_B")
	if err != nil {
		t.Fatalf("GeneratePacket15: %v", err)
	}
	if p.QDir != 0 {
		t.Errorf("expected Q_DIR 0 (walk starts at ST_B, not ST_A), got %d", p.QDir)
	}
}

func TestGeneratePacket15NoSensors(t *testing.T) {
	topo := &Topology{
		Nodes: []Node{
			{ID: "ST_A", X: 0, Y: 0, Station: true},
			{ID: "ST_B", X: 300, Y: 0, Station: true},
		},
		Tracks: []Track{{ID: "T1", From: "ST_A", To: "ST_B"}},
	}
	topo.index()

	p, err := GeneratePacket15(topo, topo.Tracks, "ST_A", "ST_B")
	if err != nil {
		t.Fatalf("GeneratePacket15: %v", err)
	}
	if p.NIter != 0 {
		t.Errorf("expected no sections with no sensors, got %d", p.NIter)
	}
	if p.LEndSection != 300 {
		t.Errorf("expected the whole run folded into L_ENDSECTION, got %d", p.LEndSection)
	}
}

func TestGeneratePacket15EmptyTrackList(t *testing.T) {
	topo := lineTopology()
	if _, err := GeneratePacket15(topo, nil, "ST_A", "ST_B"); err == nil {
		t.Fatal("expected an error for an empty track list")
	}
}

func TestValuesRendersCodecCompatibleShape(t *testing.T) {
	topo := lineTopology()
	p, err := GeneratePacket15(topo, topo.Tracks, "ST_A", "ST_B")
	if err != nil {
		t.Fatalf("GeneratePacket15: %v", err)
	}
	vals := p.Values()
	sections, ok := vals["sections"].([]codec.Values)
	if !ok || len(sections) != len(p.Sections) {
		t.Fatalf("expected %d codec.Values sections, got %#v", len(p.Sections), vals["sections"])
	}
	if vals["Q_DIR"] != p.QDir {
		t.Errorf("Q_DIR mismatch: %v vs %v", vals["Q_DIR"], p.QDir)
	}
}
