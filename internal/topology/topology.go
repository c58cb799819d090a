// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

// Package topology holds the track/sensor/station graph the RBC uses to
// generate Packet 15 movement authorities (§4.8).
package topology

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Node is one physical point in the topology: a station, a sensor, or a
// plain waypoint a track passes through.
type Node struct {
	ID       string  `yaml:"id"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	SensorID string  `yaml:"sensor_id,omitempty"`
	Station  bool    `yaml:"station,omitempty"`
}

// IsSensor reports whether this node is one of the physical sensors
// named in §6's S1..S8 mapping.
func (n Node) IsSensor() bool { return n.SensorID != "" }

// Track is one directed segment between two named nodes.
type Track struct {
	ID   string `yaml:"id"`
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Topology is the loaded track/sensor/station graph.
type Topology struct {
	Nodes  []Node  `yaml:"nodes"`
	Tracks []Track `yaml:"tracks"`

	byID map[string]Node
}

// Load reads a Topology from a YAML file (the operator UI's route data
// source, named but out of scope in §1).
func Load(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: read %s: %w", path, err)
	}
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("topology: parse %s: %w", path, err)
	}
	t.index()
	return &t, nil
}

func (t *Topology) index() {
	t.byID = make(map[string]Node, len(t.Nodes))
	for _, n := range t.Nodes {
		t.byID[n.ID] = n
	}
}

// NodeByID looks up a node by its identifier.
func (t *Topology) NodeByID(id string) (Node, bool) {
	if t.byID == nil {
		t.index()
	}
	n, ok := t.byID[id]
	return n, ok
}

// TrackLength returns the Euclidean length of tr, resolving its
// endpoints through the topology's node table.
func (t *Topology) TrackLength(tr Track) (float64, error) {
	from, ok := t.NodeByID(tr.From)
	if !ok {
		return 0, fmt.Errorf("topology: unknown node %q (track %q)", tr.From, tr.ID)
	}
	to, ok := t.NodeByID(tr.To)
	if !ok {
		return 0, fmt.Errorf("topology: unknown node %q (track %q)", tr.To, tr.ID)
	}
	dx := to.X - from.X
	dy := to.Y - from.Y
	return math.Hypot(dx, dy), nil
}
