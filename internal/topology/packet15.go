// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package topology

import (
	"fmt"
	"math"

	"github.com/hhorai/etcsobu/internal/codec"
)

// Section is one emitted L_SECTION record with zero timers, per §4.8
// step 3.
type Section struct {
	LSection              int64
	QSectionTimer         int64
	TSectionTimer         int64
	DSectionTimerStopLoc  int64
}

// Packet15 is the movement-authority data §4.8 derives from a walk over
// an ordered track list.
type Packet15 struct {
	QDir         int64
	NIter        int64
	Sections     []Section
	LEndSection  int64
	LPacketBits  int64
}

// Values renders p as the codec.Values the packet15 template in
// internal/etcs expects.
func (p Packet15) Values() codec.Values {
	sections := make([]codec.Values, len(p.Sections))
	for i, s := range p.Sections {
		sections[i] = codec.Values{
			"L_SECTION":             s.LSection,
			"Q_SECTIONTIMER":        s.QSectionTimer,
			"T_SECTIONTIMER":        s.TSectionTimer,
			"D_SECTIONTIMERSTOPLOC": s.DSectionTimerStopLoc,
		}
	}
	return codec.Values{
		"Q_DIR":        p.QDir,
		"N_ITER":       p.NIter,
		"sections":     sections,
		"L_ENDSECTION": p.LEndSection,
	}
}

// GeneratePacket15 walks tracks in order, starting at tracks[0].From, and
// derives the Movement Authority section block per §4.8:
//
//  1. The ordered sequence of sensor nodes encountered along the walk
//     (each sensor counted once, at its first encounter).
//  2. Q_DIR = 1 if tracks[0].From == stFrom, else 0.
//  3. One section per consecutive sensor pair, length = the Euclidean
//     sum of the tracks between them (inclusive of the track reaching
//     the second sensor).
//  4. L_ENDSECTION = the Euclidean sum from the last sensor (or, if
//     there are no sensors, from the walk's start) to stTo.
func GeneratePacket15(t *Topology, tracks []Track, stFrom, stTo string) (Packet15, error) {
	if len(tracks) == 0 {
		return Packet15{}, fmt.Errorf("topology: empty track list")
	}

	qDir := int64(0)
	if tracks[0].From == stFrom {
		qDir = 1
	}

	cumAt := make([]float64, len(tracks)+1)
	walkNode := make([]string, len(tracks)+1)
	walkNode[0] = tracks[0].From
	for i, tr := range tracks {
		length, err := t.TrackLength(tr)
		if err != nil {
			return Packet15{}, err
		}
		cumAt[i+1] = cumAt[i] + length
		walkNode[i+1] = tr.To
	}

	var sensorIdx []int
	seen := map[string]bool{}
	for i, id := range walkNode {
		n, ok := t.NodeByID(id)
		if !ok || !n.IsSensor() || seen[n.SensorID] {
			continue
		}
		seen[n.SensorID] = true
		sensorIdx = append(sensorIdx, i)
	}

	var sections []Section
	for i := 0; i+1 < len(sensorIdx); i++ {
		length := cumAt[sensorIdx[i+1]] - cumAt[sensorIdx[i]]
		sections = append(sections, Section{LSection: int64(math.Round(length))})
	}

	endStart := 0
	if len(sensorIdx) > 0 {
		endStart = sensorIdx[len(sensorIdx)-1]
	}
	lEnd := int64(math.Round(cumAt[len(cumAt)-1] - cumAt[endStart]))

	nIter := int64(len(sections))
	return Packet15{
		QDir:        qDir,
		NIter:       nIter,
		Sections:    sections,
		LEndSection: lEnd,
		LPacketBits: 93 + 46*nIter,
	}, nil
}
