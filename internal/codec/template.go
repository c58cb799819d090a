// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package codec

// Field is one named bit-field of a Template.
type Field struct {
	Name string
	Bits int
}

// Template is a named record of bit-fields, modeling §3's "Message
// Template": a fixed field list, an optional repeated group (the N_ITER
// section block of Packet 15), fields trailing that group, and the names
// of sub-packets that may be nested after it.
//
// NID is the NID_MESSAGE for a top-level template, or the NID_PACKET a
// sub-packet template is expected to carry as its own first field — it is
// what Unpack compares the lookahead byte against before decoding a
// sub-packet slot (§4.1, alignment rule b).
type Template struct {
	NID      int
	Name     string
	Fields   []Field
	Defaults map[string]int64

	// RepeatFields, if non-empty, names the fields of one repeated-group
	// copy. Each field name conventionally ends in "_k"; Pack/Unpack
	// strip that suffix when reading from / writing to a per-iteration
	// Values map (§4.1: "the field-name suffix `_k` stripped").
	RepeatFields []Field

	// RepeatCountField names the Fields entry holding N_ITER, e.g.
	// "N_ITER". Its decoded value drives how many repeat groups Unpack
	// reads, and its value in `values` drives how many sections Pack
	// writes (callers set it to len(values["sections"])).
	RepeatCountField string

	// EndFields are packed/unpacked immediately after the repeated
	// group (e.g. Packet 15's end-section block).
	EndFields []Field

	// SubPackets names nested templates, in declaration order, resolved
	// against the Registry passed to Pack/Unpack.
	SubPackets []string
}

// Registry maps template names to Templates, used to resolve SubPackets.
type Registry map[string]*Template

// Values is the decoded/to-be-encoded field dictionary for one Template:
// scalar fields keyed by name (int64), "sections" keyed to a []Values for
// the repeated group, and sub-packet names keyed to a nested Values.
type Values map[string]any

func toInt64(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint:
		return int64(v), true
	case uint64:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint8:
		return int64(v), true
	default:
		return 0, false
	}
}
