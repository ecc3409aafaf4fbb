// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

import (
	"encoding/binary"
	"fmt"
	"sort"
)

const (
	pageShift = 12
	pageSize  = 1 << pageShift

	// HeapBase is the first address returned by Alloc.
	HeapBase uint32 = 0x00100000
	// StackBase is the lowest address of the first thread stack.
	StackBase uint32 = 0x00800000
	// StackLimit bounds the stack area.
	StackLimit uint32 = 0x01000000
)

// A Segment is a region [Base, Base+Len) of machine memory.
type Segment struct {
	Base uint32
	Len  int
}

// Contains reports whether addr falls in s.
func (s Segment) Contains(addr uint32) bool {
	return addr >= s.Base && uint64(addr) < uint64(s.Base)+uint64(s.Len)
}

// Overlaps reports whether [addr, addr+n) intersects s.
func (s Segment) Overlaps(addr uint32, n int) bool {
	end := uint64(addr) + uint64(n)
	return uint64(addr) < uint64(s.Base)+uint64(s.Len) && end > uint64(s.Base)
}

func (s Segment) String() string {
	return fmt.Sprintf("[%#x, %#x)", s.Base, uint64(s.Base)+uint64(s.Len))
}

// Memory is a sparse little-endian 32-bit address space. Only
// allocated regions may be touched by thread code.
type Memory struct {
	pages map[uint32]*[pageSize]byte

	allocs   []Segment // sorted by Base
	heapNext uint32

	tracked []tracked
}

type tracked struct {
	Segment
	snap []byte
}

func newMemory() *Memory {
	return &Memory{pages: make(map[uint32]*[pageSize]byte), heapNext: HeapBase}
}

func (m *Memory) page(addr uint32) *[pageSize]byte {
	p := m.pages[addr>>pageShift]
	if p == nil {
		p = new([pageSize]byte)
		m.pages[addr>>pageShift] = p
	}
	return p
}

// ReadAt copies len(buf) bytes starting at addr into buf. It is not
// instrumented and may be used during initialization.
func (m *Memory) ReadAt(buf []byte, addr uint32) {
	for len(buf) > 0 {
		p := m.page(addr)
		n := copy(buf, p[addr&(pageSize-1):])
		buf = buf[n:]
		addr += uint32(n)
	}
}

// WriteAt copies buf into memory starting at addr. It is not
// instrumented.
func (m *Memory) WriteAt(buf []byte, addr uint32) {
	for len(buf) > 0 {
		p := m.page(addr)
		n := copy(p[addr&(pageSize-1):], buf)
		buf = buf[n:]
		addr += uint32(n)
	}
}

// Word returns the 32-bit value at addr.
func (m *Memory) Word(addr uint32) uint32 {
	var b [4]byte
	m.ReadAt(b[:], addr)
	return binary.LittleEndian.Uint32(b[:])
}

// SetWord stores v at addr.
func (m *Memory) SetWord(addr, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.WriteAt(b[:], addr)
}

// Half returns the 16-bit value at addr.
func (m *Memory) Half(addr uint32) uint16 {
	var b [2]byte
	m.ReadAt(b[:], addr)
	return binary.LittleEndian.Uint16(b[:])
}

// SetHalf stores v at addr.
func (m *Memory) SetHalf(addr uint32, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	m.WriteAt(b[:], addr)
}

// Byte returns the byte at addr.
func (m *Memory) Byte(addr uint32) byte {
	return m.page(addr)[addr&(pageSize-1)]
}

// SetByte stores v at addr.
func (m *Memory) SetByte(addr uint32, v byte) {
	m.page(addr)[addr&(pageSize-1)] = v
}

// Alloc reserves size bytes of zeroed heap memory aligned to 8 bytes
// and returns its base address.
func (m *Memory) Alloc(size int) uint32 {
	if size <= 0 {
		panic(fmt.Sprintf("machine: bad allocation size %d", size))
	}
	base := m.heapNext
	end := uint64(base) + uint64(size)
	if end > uint64(StackBase) {
		panic(fmt.Sprintf("machine: heap exhausted allocating %d bytes at %#x", size, base))
	}
	m.heapNext = uint32((end + 7) &^ 7)
	m.addSegment(Segment{base, size})
	return base
}

func (m *Memory) addSegment(s Segment) {
	i := sort.Search(len(m.allocs), func(i int) bool { return m.allocs[i].Base > s.Base })
	m.allocs = append(m.allocs, Segment{})
	copy(m.allocs[i+1:], m.allocs[i:])
	m.allocs[i] = s
	m.WriteAt(make([]byte, s.Len), s.Base)
}

func (m *Memory) removeSegment(base uint32) {
	for i, s := range m.allocs {
		if s.Base == base {
			m.allocs = append(m.allocs[:i], m.allocs[i+1:]...)
			return
		}
	}
}

// Allocated reports whether every byte of [addr, addr+n) lies in a
// single allocated region, and returns that region.
func (m *Memory) Allocated(addr uint32, n int) (Segment, bool) {
	i := sort.Search(len(m.allocs), func(i int) bool { return m.allocs[i].Base > addr })
	if i == 0 {
		return Segment{}, false
	}
	s := m.allocs[i-1]
	if !s.Contains(addr) || uint64(addr)+uint64(n) > uint64(s.Base)+uint64(s.Len) {
		return Segment{}, false
	}
	return s, true
}

// Track registers [base, base+size) as tracked state and snapshots
// its current contents. Reset restores the snapshot.
func (m *Memory) Track(base uint32, size int) {
	snap := make([]byte, size)
	m.ReadAt(snap, base)
	m.tracked = append(m.tracked, tracked{Segment{base, size}, snap})
}

// Tracked returns the tracked segments in registration order.
func (m *Memory) Tracked() []Segment {
	out := make([]Segment, len(m.tracked))
	for i, t := range m.tracked {
		out[i] = t.Segment
	}
	return out
}

// Reset restores every tracked segment to its snapshot.
func (m *Memory) Reset() {
	for _, t := range m.tracked {
		m.WriteAt(t.snap, t.Base)
	}
}

// Snapshot returns a copy of the current contents of every tracked
// segment, concatenated in registration order.
func (m *Memory) Snapshot() []byte {
	var out []byte
	for _, t := range m.tracked {
		buf := make([]byte, t.Len)
		m.ReadAt(buf, t.Base)
		out = append(out, buf...)
	}
	return out
}
