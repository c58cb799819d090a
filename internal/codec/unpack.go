// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package codec

import (
	"fmt"
	"strings"
)

// Unpack mirrors Pack, with the two alignment rules §4.1 requires for wire
// compatibility: the cursor is advanced to the next byte boundary before
// the repeated-section block (if N_ITER > 0) and before each declared
// sub-packet's NID_PACKET lookahead. Insufficient remaining bits is a
// non-fatal warning that stops decoding and returns the partial result;
// a sub-packet NID_PACKET mismatch is a warning that skips that slot
// without consuming the peeked byte.
func Unpack(tmpl *Template, r *BitReader, reg Registry) (Values, []string) {
	values := Values{}
	var warnings []string

	for _, f := range tmpl.Fields {
		v, err := r.ReadUint(f.Bits)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s.%s: %v", tmpl.Name, f.Name, err))
			return values, warnings
		}
		values[f.Name] = int64(v)
	}

	if len(tmpl.RepeatFields) > 0 {
		nIter := 0
		if tmpl.RepeatCountField != "" {
			if v, ok := values[tmpl.RepeatCountField]; ok {
				if n, ok := toInt64(v); ok && n > 0 {
					nIter = int(n)
				}
			}
		}

		if nIter > 0 {
			r.AlignToByte()
			sections := make([]Values, 0, nIter)
		sectionLoop:
			for i := 0; i < nIter; i++ {
				sec := Values{}
				for _, f := range tmpl.RepeatFields {
					v, err := r.ReadUint(f.Bits)
					if err != nil {
						warnings = append(warnings, fmt.Sprintf("%s.sections[%d].%s: %v", tmpl.Name, i, f.Name, err))
						break sectionLoop
					}
					key := strings.TrimSuffix(f.Name, "_k")
					sec[key] = int64(v)
				}
				sections = append(sections, sec)
			}
			values["sections"] = sections
		}

		for _, f := range tmpl.EndFields {
			v, err := r.ReadUint(f.Bits)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("%s.%s: %v", tmpl.Name, f.Name, err))
				return values, warnings
			}
			values[f.Name] = int64(v)
		}
	}

	for _, name := range tmpl.SubPackets {
		subTmpl, ok := reg[name]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s.%s: %v", tmpl.Name, name, ErrTemplateMissing))
			continue
		}

		r.AlignToByte()
		peek, ok := r.PeekUint8()
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s.%s: %v", tmpl.Name, name, ErrInsufficientBits))
			break
		}
		if int(peek) != subTmpl.NID {
			warnings = append(warnings, fmt.Sprintf("%s.%s: NID_PACKET mismatch (got %d want %d)", tmpl.Name, name, peek, subTmpl.NID))
			continue
		}

		subValues, subWarnings := Unpack(subTmpl, r, reg)
		warnings = append(warnings, subWarnings...)
		values[name] = subValues
	}

	return values, warnings
}
