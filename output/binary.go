// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package output

// WriteBinary renders words as 512 bytes of big-endian (MSB-first)
// 32-bit words, the raw format some FV-1 programmers load directly.
func WriteBinary(words [128]uint32) []byte {
	b := make([]byte, 4*len(words))
	for i, w := range words {
		b[4*i] = byte(w >> 24)
		b[4*i+1] = byte(w >> 16)
		b[4*i+2] = byte(w >> 8)
		b[4*i+3] = byte(w)
	}
	return b
}
