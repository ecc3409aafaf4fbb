// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scenarios is a library of small concurrent client programs
// with known answers, used to exercise the checker.
package scenarios

import (
	"fmt"
	"sort"

	"github.com/aclements/go-equiv/machine"
)

// A Scenario builds a set of functions over shared machine memory.
type Scenario struct {
	Name string
	Doc  string

	// Racy is set if some interleaving with at most two context
	// switches reaches an end state no sequential order reaches.
	Racy bool

	// Build allocates and tracks the scenario's memory on m and
	// returns its functions.
	Build func(m *machine.Machine) *Setup
}

// Setup is a built scenario.
type Setup struct {
	Functions []machine.Function

	// Init, if non-nil, sets the initial contents of tracked
	// memory before every run.
	Init func(m *machine.Machine)

	// Tags labels interesting words for reports.
	Tags map[uint32]string
}

var all = []Scenario{
	counter, lockedCounter, atomicCounter, swapLock,
	rwCross, disjoint, threeLocked,
	stack, lockedStack, ring, publishEarly,
	wideCounter,
}

// All returns every scenario, sorted by name.
func All() []Scenario {
	out := append([]Scenario(nil), all...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the scenario called name.
func Lookup(name string) (Scenario, error) {
	for _, s := range all {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown scenario %q", name)
}

// word allocates and tracks a word of memory.
func word(m *machine.Machine) uint32 {
	addr := m.Alloc(4)
	m.Track(addr, 4)
	return addr
}

// lock allocates and tracks a spin lock.
func lock(m *machine.Machine) machine.SpinLock {
	l := m.NewSpinLock()
	m.Track(l.Addr, 4)
	return l
}

func fn(name string, body func(t *machine.Thread)) machine.Function {
	return machine.Function{Name: name, Fn: func(t *machine.Thread, _ any) { body(t) }}
}

var counter = Scenario{
	Name: "counter",
	Doc:  "unsynchronized increment and decrement of one word",
	Racy: true,
	Build: func(m *machine.Machine) *Setup {
		g := word(m)
		return &Setup{
			Functions: []machine.Function{
				fn("incr", func(t *machine.Thread) { t.Store32(g, t.Load32(g)+1) }),
				fn("decr", func(t *machine.Thread) { t.Store32(g, t.Load32(g)-1) }),
			},
			Init: func(m *machine.Machine) { m.SetWord(g, 10) },
			Tags: map[uint32]string{g: "g"},
		}
	},
}

var lockedCounter = Scenario{
	Name: "locked-counter",
	Doc:  "increment and decrement of one word under a spin lock",
	Build: func(m *machine.Machine) *Setup {
		g, l := word(m), lock(m)
		add := func(delta uint32) func(t *machine.Thread) {
			return func(t *machine.Thread) {
				l.Lock(t)
				t.Store32(g, t.Load32(g)+delta)
				l.Unlock(t)
			}
		}
		return &Setup{
			Functions: []machine.Function{fn("incr", add(1)), fn("decr", add(^uint32(0)))},
			Init:      func(m *machine.Machine) { m.SetWord(g, 10) },
			Tags:      map[uint32]string{g: "g", l.Addr: "lock"},
		}
	},
}

var atomicCounter = Scenario{
	Name: "atomic-counter",
	Doc:  "exclusive-monitor increment and decrement of one word",
	Build: func(m *machine.Machine) *Setup {
		g := word(m)
		return &Setup{
			Functions: []machine.Function{
				fn("incr", func(t *machine.Thread) { t.AtomicAdd(g, 1) }),
				fn("decr", func(t *machine.Thread) { t.AtomicAdd(g, -1) }),
			},
			Tags: map[uint32]string{g: "g"},
		}
	},
}

var swapLock = Scenario{
	Name: "swap-lock",
	Doc:  "counter under a lock taken with SWP",
	Build: func(m *machine.Machine) *Setup {
		g, l := word(m), word(m)
		add := func(delta uint32) func(t *machine.Thread) {
			return func(t *machine.Thread) {
				for t.Swap(l, 1) != 0 {
					t.Yield()
				}
				t.Store32(g, t.Load32(g)+delta)
				t.Store32(l, 0)
			}
		}
		return &Setup{
			Functions: []machine.Function{fn("add1", add(1)), fn("add2", add(2))},
			Tags:      map[uint32]string{g: "g"},
		}
	},
}

var rwCross = Scenario{
	Name: "rw-cross",
	Doc:  "A copies x+1 to y while B copies y+1 to x",
	Racy: true,
	Build: func(m *machine.Machine) *Setup {
		x, y := word(m), word(m)
		return &Setup{
			Functions: []machine.Function{
				fn("A", func(t *machine.Thread) { t.Store32(y, t.Load32(x)+1) }),
				fn("B", func(t *machine.Thread) { t.Store32(x, t.Load32(y)+1) }),
			},
			Tags: map[uint32]string{x: "x", y: "y"},
		}
	},
}

var disjoint = Scenario{
	Name: "disjoint",
	Doc:  "two functions updating private words",
	Build: func(m *machine.Machine) *Setup {
		a, b := word(m), word(m)
		bump := func(addr uint32) func(t *machine.Thread) {
			return func(t *machine.Thread) {
				for i := 0; i < 2; i++ {
					t.Store32(addr, t.Load32(addr)+1)
				}
			}
		}
		return &Setup{
			Functions: []machine.Function{fn("a", bump(a)), fn("b", bump(b))},
			Tags:      map[uint32]string{a: "a", b: "b"},
		}
	},
}

var threeLocked = Scenario{
	Name: "three-locked",
	Doc:  "three functions scaling and offsetting one word under a lock",
	Build: func(m *machine.Machine) *Setup {
		g, l := word(m), lock(m)
		op := func(f func(uint32) uint32) func(t *machine.Thread) {
			return func(t *machine.Thread) {
				l.Lock(t)
				v := t.Load32(g)
				t.Op()
				t.Store32(g, f(v))
				l.Unlock(t)
			}
		}
		return &Setup{
			Functions: []machine.Function{
				fn("double", op(func(v uint32) uint32 { return 2 * v })),
				fn("add3", op(func(v uint32) uint32 { return v + 3 })),
				fn("square", op(func(v uint32) uint32 { return v * v })),
			},
			Init: func(m *machine.Machine) { m.SetWord(g, 1) },
			Tags: map[uint32]string{g: "g"},
		}
	},
}

// stackSlots is the capacity of the array stacks.
const stackSlots = 4

// arrayStack is a bounded stack of words: a top index followed by
// the slots.
type arrayStack struct {
	top, slots uint32
}

func newArrayStack(m *machine.Machine) arrayStack {
	s := arrayStack{top: m.Alloc(4 * (1 + stackSlots))}
	s.slots = s.top + 4
	m.Track(s.top, 4*(1+stackSlots))
	return s
}

func (s arrayStack) push(t *machine.Thread, v uint32) {
	top := t.Load32(s.top)
	t.Store32(s.slots+4*top, v)
	t.Store32(s.top, top+1)
}

var stack = Scenario{
	Name: "stack",
	Doc:  "two unsynchronized pushes onto an array stack",
	Racy: true,
	Build: func(m *machine.Machine) *Setup {
		s := newArrayStack(m)
		return &Setup{
			Functions: []machine.Function{
				fn("push1", func(t *machine.Thread) { s.push(t, 1) }),
				fn("push2", func(t *machine.Thread) { s.push(t, 2) }),
			},
			Tags: map[uint32]string{s.top: "top", s.slots: "s[0]", s.slots + 4: "s[1]"},
		}
	},
}

var lockedStack = Scenario{
	Name: "locked-stack",
	Doc:  "a push and a pop on an array stack under a spin lock",
	Build: func(m *machine.Machine) *Setup {
		s, l := newArrayStack(m), lock(m)
		popped := word(m)
		return &Setup{
			Functions: []machine.Function{
				fn("push", func(t *machine.Thread) {
					l.Lock(t)
					s.push(t, 7)
					l.Unlock(t)
				}),
				fn("pop", func(t *machine.Thread) {
					l.Lock(t)
					if top := t.Load32(s.top); top > 0 {
						t.Store32(popped, t.Load32(s.slots+4*(top-1)))
						t.Store32(s.top, top-1)
					}
					l.Unlock(t)
				}),
			},
			Init: func(m *machine.Machine) {
				m.SetWord(s.top, 1)
				m.SetWord(s.slots, 5)
			},
			Tags: map[uint32]string{s.top: "top", popped: "popped"},
		}
	},
}

// ringSlots is the capacity of the ring buffers.
const ringSlots = 4

type ringBuf struct {
	head, tail, slots, got uint32
}

func newRing(m *machine.Machine) ringBuf {
	r := ringBuf{head: word(m), tail: word(m), got: word(m)}
	r.slots = m.Alloc(4 * ringSlots)
	m.Track(r.slots, 4*ringSlots)
	return r
}

func (r ringBuf) consume(t *machine.Thread) {
	head := t.Load32(r.head)
	if head == t.Load32(r.tail) {
		return
	}
	t.Store32(r.got, t.Load32(r.slots+4*(head%ringSlots)))
	t.Store32(r.head, head+1)
}

func (r ringBuf) tags() map[uint32]string {
	return map[uint32]string{r.head: "head", r.tail: "tail", r.got: "got"}
}

var ring = Scenario{
	Name: "ring",
	Doc:  "single-producer single-consumer ring buffer",
	Build: func(m *machine.Machine) *Setup {
		r := newRing(m)
		return &Setup{
			Functions: []machine.Function{
				fn("produce", func(t *machine.Thread) {
					tail := t.Load32(r.tail)
					t.Store32(r.slots+4*(tail%ringSlots), 42)
					t.Store32(r.tail, tail+1)
				}),
				fn("consume", r.consume),
			},
			Tags: r.tags(),
		}
	},
}

var publishEarly = Scenario{
	Name: "publish-early",
	Doc:  "producer raises a ready flag before writing the data it guards",
	Racy: true,
	Build: func(m *machine.Machine) *Setup {
		flag, data, got := word(m), word(m), word(m)
		return &Setup{
			Functions: []machine.Function{
				fn("produce", func(t *machine.Thread) {
					t.Store32(flag, 1)
					t.Store32(data, 42)
				}),
				fn("consume", func(t *machine.Thread) {
					f := t.Load32(flag)
					d := t.Load32(data)
					t.Op()
					t.Store32(got, 100*f+d)
				}),
			},
			Tags: map[uint32]string{flag: "flag", got: "got"},
		}
	},
}

var wideCounter = Scenario{
	Name: "wide-counter",
	Doc:  "unsynchronized 64-bit counter updated with single LDRD and STRD",
	Racy: true,
	Build: func(m *machine.Machine) *Setup {
		g := m.Alloc(8)
		m.Track(g, 8)
		add := func(delta uint64) func(t *machine.Thread) {
			return func(t *machine.Thread) { t.Store64(g, t.Load64(g)+delta) }
		}
		return &Setup{
			Functions: []machine.Function{fn("add1", add(1)), fn("add16", add(16))},
			Tags:      map[uint32]string{g: "lo"},
		}
	},
}
