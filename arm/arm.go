// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arm decodes the subset of 32-bit ARM (A32) data transfer
// instructions whose memory footprint the checker needs to know.
//
// Given a raw instruction word and the address it faulted on, Decode
// reports how many consecutive bytes starting at that address the
// instruction touches and in which direction. The package also
// provides the canonical encodings the simulated machine uses when it
// synthesizes instructions for client operations.
package arm

import (
	"fmt"
	"math/bits"
)

// Canonical encodings, all with cond=AL, Rn=r1, Rt=r0 and zero
// offset. Register lists for LDM/STM go in the low 16 bits.
const (
	LDR   uint32 = 0xE5910000
	STR   uint32 = 0xE5810000
	LDRB  uint32 = 0xE5D10000
	STRB  uint32 = 0xE5C10000
	LDRH  uint32 = 0xE1D100B0
	STRH  uint32 = 0xE1C100B0
	LDRSB uint32 = 0xE1D100D0
	LDRSH uint32 = 0xE1D100F0
	LDRD  uint32 = 0xE1C100D0
	STRD  uint32 = 0xE1C100F0
	LDM   uint32 = 0xE8910000
	STM   uint32 = 0xE8810000
	SWP   uint32 = 0xE1010092
	SWPB  uint32 = 0xE1410092
	LDREX uint32 = 0xE1910F9F
	STREX uint32 = 0xE1812F90
	CLREX uint32 = 0xF57FF01F
	ADD   uint32 = 0xE2800001
	SVC   uint32 = 0xEF000000
)

// RegList returns the LDM/STM encoding op transferring n registers
// starting at r0.
func RegList(op uint32, n int) uint32 {
	if n < 1 || n > 16 {
		panic(fmt.Sprintf("arm: bad register count %d", n))
	}
	return op | (1<<uint(n) - 1)
}

// A Kind classifies a decoded access.
type Kind uint8

const (
	Word Kind = iota
	Byte
	Half
	SignedByte
	SignedHalf
	Double
	Multiple
	Exclusive
	Swap
)

var kindNames = [...]string{"word", "byte", "halfword", "signed byte", "signed halfword", "doubleword", "multiple", "exclusive", "swap"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// An Access describes the memory footprint of one instruction.
type Access struct {
	Kind Kind
	// Size is the number of bytes touched starting at the
	// faulting address.
	Size int
	// Load and Store report the direction. Swaps do both.
	Load, Store bool
}

// A DecodeError reports an instruction outside the supported subset.
type DecodeError struct {
	Raw uint32
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("arm: cannot decode data transfer instruction %#08x", e.Raw)
}

// Decode returns the memory footprint of raw.
func Decode(raw uint32) (Access, error) {
	if raw>>28 == 0xF {
		// Unconditional space (PLD, CLREX, ...) never moves data.
		return Access{}, &DecodeError{raw}
	}
	load := raw&(1<<20) != 0
	switch {
	case raw&0x0FF00FF0 == 0x01900F90:
		return Access{Kind: Exclusive, Size: 4, Load: true}, nil
	case raw&0x0FF00FF0 == 0x01800F90:
		return Access{Kind: Exclusive, Size: 4, Store: true}, nil
	case raw&0x0FB00FF0 == 0x01000090:
		if raw&(1<<22) != 0 {
			return Access{Kind: Swap, Size: 1, Load: true, Store: true}, nil
		}
		return Access{Kind: Swap, Size: 4, Load: true, Store: true}, nil
	}

	switch (raw >> 25) & 7 {
	case 0:
		// Extra load/store. SH=00 is multiply or swap space.
		if raw&0x90 != 0x90 {
			break
		}
		switch sh := (raw >> 5) & 3; {
		case sh == 1:
			return Access{Kind: Half, Size: 2, Load: load, Store: !load}, nil
		case sh == 2 && load:
			return Access{Kind: SignedByte, Size: 1, Load: true}, nil
		case sh == 3 && load:
			return Access{Kind: SignedHalf, Size: 2, Load: true}, nil
		case sh == 2:
			return Access{Kind: Double, Size: 8, Load: true}, nil
		case sh == 3:
			return Access{Kind: Double, Size: 8, Store: true}, nil
		}
	case 2, 3:
		if (raw>>25)&7 == 3 && raw&(1<<4) != 0 {
			// Media instructions.
			break
		}
		if raw&(1<<22) != 0 {
			return Access{Kind: Byte, Size: 1, Load: load, Store: !load}, nil
		}
		return Access{Kind: Word, Size: 4, Load: load, Store: !load}, nil
	case 4:
		n := bits.OnesCount32(raw & 0xFFFF)
		if n == 0 {
			break
		}
		return Access{Kind: Multiple, Size: 4 * n, Load: load, Store: !load}, nil
	}
	return Access{}, &DecodeError{raw}
}

// IsLoadStore reports whether raw is in the load/store instruction
// classes. It is a cheap class test on the opcode bits, used for
// counting; like the hardware decode tables it accepts some multiply
// encodings in the extra load/store space.
func IsLoadStore(raw uint32) bool {
	if raw>>28 == 0xF {
		return false
	}
	switch (raw >> 25) & 7 {
	case 2, 4:
		return true
	case 3:
		return raw&(1<<4) == 0
	case 0:
		return raw&0x90 == 0x90
	}
	return false
}

// Mnemonic returns a short name for the canonical encodings, for
// logging.
func Mnemonic(raw uint32) string {
	switch raw {
	case LDR:
		return "ldr"
	case STR:
		return "str"
	case LDRB:
		return "ldrb"
	case STRB:
		return "strb"
	case LDRH:
		return "ldrh"
	case STRH:
		return "strh"
	case LDRSB:
		return "ldrsb"
	case LDRSH:
		return "ldrsh"
	case LDRD:
		return "ldrd"
	case STRD:
		return "strd"
	case SWP:
		return "swp"
	case SWPB:
		return "swpb"
	case LDREX:
		return "ldrex"
	case STREX:
		return "strex"
	case CLREX:
		return "clrex"
	case ADD:
		return "add"
	case SVC:
		return "svc"
	}
	switch raw &^ 0xFFFF {
	case LDM:
		return "ldm"
	case STM:
		return "stm"
	}
	return fmt.Sprintf(".word %#08x", raw)
}
