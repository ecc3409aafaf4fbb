// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aclements/go-equiv/arm"
)

// A Thread is the execution context of one logical thread: its
// stack, its instruction counters and its exclusive monitor
// reservation. Its methods are the instructions available to client
// code and must only be called from the function the thread runs.
type Thread struct {
	id    int
	m     *Machine
	fn    Function
	stack Segment
	sp    uint32

	insts      int
	loadStores int

	excl struct {
		addr  uint32
		valid bool
	}

	stepper Stepper
}

var errUnaligned = errors.New("unaligned access")

func (t *Thread) String() string {
	return fmt.Sprintf("t%d", t.id)
}

// ID returns the thread identifier.
func (t *Thread) ID() int { return t.id }

// Func returns the function t runs.
func (t *Thread) Func() Function { return t.fn }

// Machine returns the machine t runs on.
func (t *Thread) Machine() *Machine { return t.m }

// Stack returns t's stack region.
func (t *Thread) Stack() Segment { return t.stack }

// SP returns t's stack pointer.
func (t *Thread) SP() uint32 { return t.sp }

// Insts returns the number of instructions t has retired since it
// was last reset.
func (t *Thread) Insts() int { return t.insts }

// LoadStores returns the number of load/store class instructions t
// has retired since it was last reset.
func (t *Thread) LoadStores() int { return t.loadStores }

// SetStepper installs s as t's instruction observer.
func (t *Thread) SetStepper(s Stepper) {
	t.stepper = s
}

// Reset returns t to its entry state: an empty stack, zero counters
// and no exclusive reservation.
func (t *Thread) Reset() {
	t.sp = t.stack.Base + uint32(t.stack.Len)
	t.insts, t.loadStores = 0, 0
	t.excl.valid = false
}

// Run calls t's function on the current goroutine.
func (t *Thread) Run() {
	t.fn.Fn(t, t.fn.Arg)
}

// CheckStack returns a *StackError if t's stack pointer has left its
// stack.
func (t *Thread) CheckStack() error {
	if t.sp < t.stack.Base || t.sp > t.stack.Base+uint32(t.stack.Len) {
		return &StackError{TID: t.id, SP: t.sp, Stack: t.stack}
	}
	return nil
}

// Alloca reserves n bytes (rounded up to 8) on t's stack and returns
// their address. Overflowing the stack faults immediately.
func (t *Thread) Alloca(n int) uint32 {
	size := uint32((n + 7) &^ 7)
	if t.sp-t.stack.Base < size {
		t.fault(0, t.sp, &StackError{TID: t.id, SP: t.sp - size, Stack: t.stack})
	}
	t.sp -= size
	return t.sp
}

// SetSP sets t's stack pointer, for example to pop a frame. The
// value is checked at the next preemption or exit.
func (t *Thread) SetSP(sp uint32) {
	t.sp = sp
}

func (t *Thread) fault(pc, addr uint32, err error) {
	panic(&Fault{TID: t.id, PC: pc, Addr: addr, Err: err})
}

// access validates a data access by raw to [addr, addr+n) and
// delivers it to the trap handler if trapping is armed. It returns
// the instruction's PC.
func (t *Thread) access(raw, addr uint32, n int, write, aligned bool) uint32 {
	m := t.m
	pc := m.text.pc(raw)
	if aligned && addr%4 != 0 {
		t.fault(pc, addr, errUnaligned)
	}
	owner := m.stackOwner(addr, n)
	if owner != nil && owner != t {
		t.fault(pc, addr, &StackError{TID: t.id, SP: t.sp, Stack: owner.stack, Owner: owner.id})
	}
	if _, ok := m.Allocated(addr, n); !ok {
		t.fault(pc, addr, fmt.Errorf("%d byte %s of unallocated memory", n, arm.Mnemonic(raw)))
	}
	if m.armed && owner == nil {
		m.armed = false
		ev := TouchEvent{TID: t.id, PC: pc, Raw: raw, Addr: addr, IsWrite: write}
		if err := m.trap(ev); err != nil {
			t.fault(pc, addr, err)
		}
	}
	return pc
}

// retire counts the instruction and reports it to the stepper.
func (t *Thread) retire(pc, raw uint32) {
	t.insts++
	ls := arm.IsLoadStore(raw)
	if ls {
		t.loadStores++
	}
	if t.stepper != nil {
		t.stepper.Step(t, StepEvent{PC: pc, Raw: raw, IsLoadStore: ls})
	}
}

func (t *Thread) load(raw, addr uint32, buf []byte, aligned bool) {
	pc := t.access(raw, addr, len(buf), false, aligned)
	t.m.ReadAt(buf, addr)
	t.retire(pc, raw)
}

func (t *Thread) store(raw, addr uint32, buf []byte, aligned bool) {
	pc := t.access(raw, addr, len(buf), true, aligned)
	t.m.WriteAt(buf, addr)
	t.m.clearExclusive(t, addr, len(buf))
	t.retire(pc, raw)
}

// Load32 executes LDR.
func (t *Thread) Load32(addr uint32) uint32 {
	var b [4]byte
	t.load(arm.LDR, addr, b[:], false)
	return binary.LittleEndian.Uint32(b[:])
}

// Load16 executes LDRH.
func (t *Thread) Load16(addr uint32) uint16 {
	var b [2]byte
	t.load(arm.LDRH, addr, b[:], false)
	return binary.LittleEndian.Uint16(b[:])
}

// Load8 executes LDRB.
func (t *Thread) Load8(addr uint32) uint8 {
	var b [1]byte
	t.load(arm.LDRB, addr, b[:], false)
	return b[0]
}

// LoadS16 executes LDRSH.
func (t *Thread) LoadS16(addr uint32) int16 {
	var b [2]byte
	t.load(arm.LDRSH, addr, b[:], false)
	return int16(binary.LittleEndian.Uint16(b[:]))
}

// LoadS8 executes LDRSB.
func (t *Thread) LoadS8(addr uint32) int8 {
	var b [1]byte
	t.load(arm.LDRSB, addr, b[:], false)
	return int8(b[0])
}

// Load64 executes LDRD.
func (t *Thread) Load64(addr uint32) uint64 {
	var b [8]byte
	t.load(arm.LDRD, addr, b[:], true)
	return binary.LittleEndian.Uint64(b[:])
}

// Store32 executes STR.
func (t *Thread) Store32(addr, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	t.store(arm.STR, addr, b[:], false)
}

// Store16 executes STRH.
func (t *Thread) Store16(addr uint32, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	t.store(arm.STRH, addr, b[:], false)
}

// Store8 executes STRB.
func (t *Thread) Store8(addr uint32, v uint8) {
	t.store(arm.STRB, addr, []byte{v}, false)
}

// Store64 executes STRD.
func (t *Thread) Store64(addr uint32, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	t.store(arm.STRD, addr, b[:], true)
}

// LoadMultiple executes LDM, loading n consecutive words.
func (t *Thread) LoadMultiple(addr uint32, n int) []uint32 {
	buf := make([]byte, 4*n)
	t.load(arm.RegList(arm.LDM, n), addr, buf, true)
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[4*i:])
	}
	return out
}

// StoreMultiple executes STM, storing vals to consecutive words.
func (t *Thread) StoreMultiple(addr uint32, vals ...uint32) {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], v)
	}
	t.store(arm.RegList(arm.STM, len(vals)), addr, buf, true)
}

// Swap executes SWP, atomically storing v and returning the old
// word.
func (t *Thread) Swap(addr, v uint32) uint32 {
	pc := t.access(arm.SWP, addr, 4, true, true)
	old := t.m.Word(addr)
	t.m.SetWord(addr, v)
	t.m.clearExclusive(t, addr, 4)
	t.retire(pc, arm.SWP)
	return old
}

// SwapByte executes SWPB.
func (t *Thread) SwapByte(addr uint32, v uint8) uint8 {
	pc := t.access(arm.SWPB, addr, 1, true, false)
	old := t.m.Byte(addr)
	t.m.SetByte(addr, v)
	t.m.clearExclusive(t, addr, 1)
	t.retire(pc, arm.SWPB)
	return old
}

// LoadExclusive executes LDREX, loading a word and taking a
// reservation on it.
func (t *Thread) LoadExclusive(addr uint32) uint32 {
	pc := t.access(arm.LDREX, addr, 4, false, true)
	v := t.m.Word(addr)
	t.excl.addr, t.excl.valid = addr, true
	t.retire(pc, arm.LDREX)
	return v
}

// StoreExclusive executes STREX. The store happens, and it returns
// true, only if t still holds a reservation on addr.
func (t *Thread) StoreExclusive(addr, v uint32) bool {
	pc := t.access(arm.STREX, addr, 4, true, true)
	ok := t.excl.valid && t.excl.addr == addr
	t.excl.valid = false
	if ok {
		t.m.SetWord(addr, v)
		t.m.clearExclusive(t, addr, 4)
	}
	t.retire(pc, arm.STREX)
	return ok
}

// ClearExclusive executes CLREX.
func (t *Thread) ClearExclusive() {
	pc := t.m.text.pc(arm.CLREX)
	t.excl.valid = false
	t.retire(pc, arm.CLREX)
}

// Op executes one ALU instruction with no memory effect.
func (t *Thread) Op() {
	t.retire(t.m.text.pc(arm.ADD), arm.ADD)
}

// Yield executes a yield supervisor call: t gives up the processor
// and is resumed once every other runnable thread has run.
func (t *Thread) Yield() {
	t.insts++
	if t.stepper != nil {
		t.stepper.Yield(t)
	}
}
