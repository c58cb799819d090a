// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package codec

import (
	"fmt"
	"strings"
)

// Pack emits tmpl's fixed fields in declaration order, then (if tmpl has a
// repeated group) as many copies of RepeatFields as the RepeatCountField
// value says, copy i drawn from values["sections"][i] (missing entries pack
// as zeros; without a RepeatCountField the count is len(values["sections"])),
// then EndFields, then each declared sub-packet that has a non-nil entry in
// values, packed recursively. No byte alignment is inserted anywhere — the
// bit stream is contiguous at the field level, per §4.1.
//
// Out-of-range or non-numeric field values are fatal (CodecError on
// encode is a caller bug, per §7's propagation policy).
func Pack(tmpl *Template, values Values, reg Registry) ([]byte, int, error) {
	w := NewBitWriter()

	for _, f := range tmpl.Fields {
		v, err := resolveField(f, values, tmpl.Defaults)
		if err != nil {
			return nil, 0, fmt.Errorf("pack %s.%s: %w", tmpl.Name, f.Name, err)
		}
		if err := w.WriteUint(uint64(v), f.Bits); err != nil {
			return nil, 0, fmt.Errorf("pack %s.%s: %w", tmpl.Name, f.Name, err)
		}
	}

	if len(tmpl.RepeatFields) > 0 {
		sections, _ := values["sections"].([]Values)
		n := len(sections)
		if tmpl.RepeatCountField != "" {
			c, err := resolveField(Field{Name: tmpl.RepeatCountField, Bits: 64}, values, tmpl.Defaults)
			if err != nil {
				return nil, 0, fmt.Errorf("pack %s.%s: %w", tmpl.Name, tmpl.RepeatCountField, err)
			}
			n = int(c)
		}
		for i := 0; i < n; i++ {
			var sec Values
			if i < len(sections) {
				sec = sections[i]
			}
			for _, f := range tmpl.RepeatFields {
				key := strings.TrimSuffix(f.Name, "_k")
				v, err := resolveField(Field{Name: key, Bits: f.Bits}, sec, nil)
				if err != nil {
					return nil, 0, fmt.Errorf("pack %s.sections[%d].%s: %w", tmpl.Name, i, key, err)
				}
				if err := w.WriteUint(uint64(v), f.Bits); err != nil {
					return nil, 0, fmt.Errorf("pack %s.sections[%d].%s: %w", tmpl.Name, i, key, err)
				}
			}
		}
		for _, f := range tmpl.EndFields {
			v, err := resolveField(f, values, tmpl.Defaults)
			if err != nil {
				return nil, 0, fmt.Errorf("pack %s.%s: %w", tmpl.Name, f.Name, err)
			}
			if err := w.WriteUint(uint64(v), f.Bits); err != nil {
				return nil, 0, fmt.Errorf("pack %s.%s: %w", tmpl.Name, f.Name, err)
			}
		}
	}

	for _, name := range tmpl.SubPackets {
		raw, ok := values[name]
		if !ok || raw == nil {
			continue
		}
		sub, ok := raw.(Values)
		if !ok {
			return nil, 0, fmt.Errorf("pack %s.%s: %w", tmpl.Name, name, ErrOutOfRange)
		}
		subTmpl, ok := reg[name]
		if !ok {
			return nil, 0, fmt.Errorf("pack %s.%s: %w", tmpl.Name, name, ErrTemplateMissing)
		}
		subBytes, subBits, err := Pack(subTmpl, sub, reg)
		if err != nil {
			return nil, 0, err
		}
		w.AppendBits(subBytes, subBits)
	}

	return w.Bytes(), w.BitLen(), nil
}

func resolveField(f Field, values Values, defaults map[string]int64) (int64, error) {
	raw, ok := values[f.Name]
	if !ok {
		if defaults != nil {
			if d, ok := defaults[f.Name]; ok {
				raw = d
			} else {
				raw = int64(0)
			}
		} else {
			raw = int64(0)
		}
	}
	v, ok := toInt64(raw)
	if !ok {
		return 0, ErrOutOfRange
	}
	if f.Bits < 64 {
		max := int64(1)<<uint(f.Bits) - 1
		if v < 0 || v > max {
			return 0, ErrOutOfRange
		}
	}
	return v, nil
}
