// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arm

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		raw  uint32
		want Access
	}{
		{LDR, Access{Word, 4, true, false}},
		{STR, Access{Word, 4, false, true}},
		{LDRB, Access{Byte, 1, true, false}},
		{STRB, Access{Byte, 1, false, true}},
		{LDRH, Access{Half, 2, true, false}},
		{STRH, Access{Half, 2, false, true}},
		{LDRSB, Access{SignedByte, 1, true, false}},
		{LDRSH, Access{SignedHalf, 2, true, false}},
		{LDRD, Access{Double, 8, true, false}},
		{STRD, Access{Double, 8, false, true}},
		{RegList(LDM, 3), Access{Multiple, 12, true, false}},
		{RegList(STM, 1), Access{Multiple, 4, false, true}},
		{LDREX, Access{Exclusive, 4, true, false}},
		{STREX, Access{Exclusive, 4, false, true}},
		{SWP, Access{Swap, 4, true, true}},
		{SWPB, Access{Swap, 1, true, true}},
		// Register offset and pre-indexed forms.
		{0xE7910002, Access{Word, 4, true, false}},
		{0xE5B10004, Access{Word, 4, true, false}},
	}
	for _, test := range tests {
		got, err := Decode(test.raw)
		if err != nil {
			t.Errorf("Decode(%#08x): %v", test.raw, err)
			continue
		}
		if got != test.want {
			t.Errorf("Decode(%#08x) = %+v, want %+v", test.raw, got, test.want)
		}
		if !IsLoadStore(test.raw) {
			t.Errorf("IsLoadStore(%#08x) = false", test.raw)
		}
	}
}

func TestDecodeRejects(t *testing.T) {
	for _, raw := range []uint32{ADD, SVC, CLREX, 0xE0000091 /* mul */, LDM, 0xE7910012 /* media */} {
		_, err := Decode(raw)
		var de *DecodeError
		if !errors.As(err, &de) || de.Raw != raw {
			t.Errorf("Decode(%#08x) error = %v, want DecodeError", raw, err)
		}
	}
	for _, raw := range []uint32{ADD, SVC, CLREX} {
		if IsLoadStore(raw) {
			t.Errorf("IsLoadStore(%#08x) = true", raw)
		}
	}
}

func TestMnemonic(t *testing.T) {
	if got := Mnemonic(RegList(STM, 4)); got != "stm" {
		t.Errorf("Mnemonic(stm) = %q", got)
	}
	if got := Mnemonic(LDREX); got != "ldrex" {
		t.Errorf("Mnemonic(ldrex) = %q", got)
	}
	if got := Mnemonic(0x12345678); got != ".word 0x12345678" {
		t.Errorf("Mnemonic(unknown) = %q", got)
	}
}
