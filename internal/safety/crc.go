// Copyright 2019-2021 hhorai. All rights reserved.
// Use of this source code is governed by a MIT license that can be found
// in the LICENSE file.

package safety

import "sync"

const crc16Poly = 0x1021
const crc16Init = 0xFFFF

var crc16Table = sync.OnceValue(func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
})

// crc16CCITTFalse computes CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF,
// no input/output reflection, no final XOR.
func crc16CCITTFalse(data []byte) uint16 {
	table := crc16Table()
	crc := uint16(crc16Init)
	for _, b := range data {
		crc = (crc << 8) ^ table[byte(crc>>8)^b]
	}
	return crc
}
