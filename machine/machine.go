// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package machine simulates the execution collaborator of the
// checker: a 32-bit little-endian machine whose threads run client
// Go functions one instruction at a time.
//
// Client code is written against *Thread, whose methods each execute
// exactly one ARM data transfer or ALU instruction. Every instruction
// is reported to the thread's Stepper after it retires, which is
// where a scheduler can preempt the thread. Memory accesses can
// additionally be trapped one at a time, which is how read and write
// sets are discovered.
package machine

import (
	"fmt"

	"v.io/x/lib/vlog"
)

// DefaultStackSize is the stack size of a thread if Config.StackSize
// is 0.
const DefaultStackSize = 2048

// Config configures a Machine.
type Config struct {
	// StackSize is the size of each thread stack in bytes. It is
	// rounded up to a multiple of 8.
	StackSize int
}

// A Function is a client entry point.
type Function struct {
	Name string
	Fn   func(t *Thread, arg any)
	Arg  any
}

func (f Function) String() string {
	if f.Name == "" {
		return "<anonymous>"
	}
	return f.Name
}

// A StepEvent describes one retired instruction.
type StepEvent struct {
	PC          uint32
	Raw         uint32
	IsLoadStore bool
}

// A TouchEvent describes a trapped memory access. Addr is the lowest
// address the instruction accesses.
type TouchEvent struct {
	TID     int
	PC      uint32
	Raw     uint32
	Addr    uint32
	IsWrite bool
}

// A Stepper observes thread execution. Step is called after every
// retired instruction and Yield when the thread voluntarily gives up
// the processor. Both are called on the thread's goroutine and may
// block it.
type Stepper interface {
	Step(t *Thread, ev StepEvent)
	Yield(t *Thread)
}

// A TouchHandler receives trapped accesses. A non-nil error faults
// the accessing thread.
type TouchHandler func(ev TouchEvent) error

// Machine is a simulated processor plus memory.
type Machine struct {
	*Memory

	stackSize int
	stackNext uint32
	threads   []*Thread

	text *Text

	trap  TouchHandler
	armed bool
}

// New returns a machine with empty memory.
func New(cfg Config) *Machine {
	size := cfg.StackSize
	if size == 0 {
		size = DefaultStackSize
	}
	size = (size + 7) &^ 7
	return &Machine{
		Memory:    newMemory(),
		stackSize: size,
		stackNext: StackBase,
		text:      newText(),
	}
}

// Text returns the synthetic program counter table.
func (m *Machine) Text() *Text {
	return m.text
}

// StackSize returns the per-thread stack size.
func (m *Machine) StackSize() int {
	return m.stackSize
}

// NewThread creates a thread with identifier tid that will run fn,
// allocating its stack.
func (m *Machine) NewThread(tid int, fn Function) *Thread {
	base := m.stackNext
	if uint64(base)+uint64(m.stackSize) > uint64(StackLimit) {
		panic(fmt.Sprintf("machine: out of stack space creating thread %d", tid))
	}
	m.stackNext += uint32(m.stackSize)
	stack := Segment{base, m.stackSize}
	m.addSegment(stack)
	t := &Thread{id: tid, m: m, fn: fn, stack: stack}
	t.Reset()
	m.threads = append(m.threads, t)
	return t
}

// ReleaseThread forgets t and frees its stack. Once no threads
// remain, stack addresses are reused from StackBase.
func (m *Machine) ReleaseThread(t *Thread) {
	for i, t2 := range m.threads {
		if t2 == t {
			m.threads = append(m.threads[:i], m.threads[i+1:]...)
			m.removeSegment(t.stack.Base)
			break
		}
	}
	if len(m.threads) == 0 {
		m.stackNext = StackBase
	}
}

// Threads returns the live threads in creation order.
func (m *Machine) Threads() []*Thread {
	return m.threads
}

// stackOwner returns the thread whose stack overlaps [addr, addr+n),
// or nil.
func (m *Machine) stackOwner(addr uint32, n int) *Thread {
	if uint64(addr)+uint64(n) <= uint64(StackBase) || addr >= StackLimit {
		return nil
	}
	for _, t := range m.threads {
		if t.stack.Overlaps(addr, n) {
			return t
		}
	}
	return nil
}

// SetTrap installs h as the handler for trapped accesses. A nil h
// disarms trapping.
func (m *Machine) SetTrap(h TouchHandler) {
	m.trap = h
	if h == nil {
		m.armed = false
	}
}

// Arm arms access trapping: the next access to non-stack memory is
// delivered to the trap handler, which disarms trapping.
func (m *Machine) Arm() {
	if m.trap == nil {
		panic("machine: Arm without a trap handler")
	}
	m.armed = true
}

// Disarm disarms access trapping.
func (m *Machine) Disarm() {
	m.armed = false
}

// Armed reports whether access trapping is armed.
func (m *Machine) Armed() bool {
	return m.armed
}

// clearExclusive invalidates every reservation other than self's that
// covers [addr, addr+n).
func (m *Machine) clearExclusive(self *Thread, addr uint32, n int) {
	for _, t := range m.threads {
		if t != self && t.excl.valid && (Segment{addr, n}).Overlaps(t.excl.addr, 4) {
			vlog.VI(4).Infof("t%d: store to %#x clears reservation of t%d", self.id, addr, t.id)
			t.excl.valid = false
		}
	}
}

// A Fault is a fatal condition raised by an instruction.
type Fault struct {
	TID  int
	PC   uint32
	Addr uint32
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault in t%d at pc %#x, addr %#x: %v", f.TID, f.PC, f.Addr, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// A StackError reports a stack bounds violation.
type StackError struct {
	TID   int
	SP    uint32
	Stack Segment
	// Owner is the thread whose stack was accessed, if it was
	// not TID's.
	Owner int
}

func (e *StackError) Error() string {
	if e.Owner != 0 {
		return fmt.Sprintf("t%d accessed stack %v of t%d", e.TID, e.Stack, e.Owner)
	}
	return fmt.Sprintf("t%d stack pointer %#x outside stack %v", e.TID, e.SP, e.Stack)
}
