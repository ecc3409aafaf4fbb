// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package classify infers which memory a set of functions share.
//
// Each function is run alone with access trapping armed before every
// instruction. Every trapped access is decoded into the exact bytes
// it touched, which accumulate into the function's read and write
// sets. Memory one function reads and another writes is shared: the
// outcome of running the functions concurrently can depend on the
// order of those accesses.
package classify

import (
	"fmt"

	"github.com/aclements/go-equiv/addrset"
	"github.com/aclements/go-equiv/arm"
	"github.com/aclements/go-equiv/machine"
	"github.com/aclements/go-equiv/sched"
	"v.io/x/lib/vlog"
)

// An RWSet is the set of bytes a function reads and writes.
type RWSet struct {
	Read, Write *addrset.Set
}

// All returns the bytes s reads or writes.
func (s RWSet) All() *addrset.Set {
	return addrset.Union(s.Read, s.Write)
}

// A Classifier runs functions on a machine to observe their accesses.
type Classifier struct {
	M *machine.Machine

	// Sched configures the scheduler functions are run under.
	Sched sched.Config

	// Init, if non-nil, is called after tracked memory is reset
	// and before each function runs.
	Init func(m *machine.Machine)
}

// A DecodeError reports a trapped access by an instruction the
// classifier cannot size.
type DecodeError struct {
	TID int
	PC  uint32
	Raw uint32
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("t%d: pc %#x: %v", e.TID, e.PC, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// touched decodes ev into the bytes it accessed.
func (c *Classifier) touched(ev machine.TouchEvent) (arm.Access, error) {
	acc, err := arm.Decode(ev.Raw)
	if err != nil {
		return acc, &DecodeError{ev.TID, ev.PC, ev.Raw, err}
	}
	if _, ok := c.M.Allocated(ev.Addr, acc.Size); !ok {
		return acc, fmt.Errorf("t%d: pc %#x: %d byte access at %#x outside allocated memory", ev.TID, ev.PC, acc.Size, ev.Addr)
	}
	return acc, nil
}

// trace runs fn alone, delivering every trapped access to h.
func (c *Classifier) trace(fn machine.Function, h machine.TouchHandler) error {
	c.M.Reset()
	if c.Init != nil {
		c.Init(c.M)
	}
	s := sched.New(c.M, c.Sched)
	defer s.Reset()
	s.Fork(fn)

	c.M.SetTrap(h)
	defer c.M.SetTrap(nil)
	// Trapping disarms on delivery; re-arm for every instruction.
	c.M.Arm()
	s.OnStep = func(*machine.Thread, machine.StepEvent) { c.M.Arm() }

	if _, err := s.Run(); err != nil {
		return fmt.Errorf("tracing %s: %w", fn, err)
	}
	return nil
}

// FindRWSet runs fn alone and returns the bytes it reads and writes.
// Accesses to its own stack are not included.
func (c *Classifier) FindRWSet(fn machine.Function) (RWSet, error) {
	rw := RWSet{addrset.New(), addrset.New()}
	err := c.trace(fn, func(ev machine.TouchEvent) error {
		acc, err := c.touched(ev)
		if err != nil {
			return err
		}
		vlog.VI(3).Infof("%s: t%d pc %#x %s %d bytes at %#x", fn, ev.TID, ev.PC, arm.Mnemonic(ev.Raw), acc.Size, ev.Addr)
		// Swaps both read and write the word.
		if ev.IsWrite || acc.Kind == arm.Swap {
			rw.Write.AddRange(ev.Addr, acc.Size)
		}
		if !ev.IsWrite || acc.Kind == arm.Swap {
			rw.Read.AddRange(ev.Addr, acc.Size)
		}
		return nil
	})
	return rw, err
}

// FindRWSets returns the RWSet of each function.
func (c *Classifier) FindRWSets(fns []machine.Function) ([]RWSet, error) {
	sets := make([]RWSet, len(fns))
	for i, fn := range fns {
		var err error
		if sets[i], err = c.FindRWSet(fn); err != nil {
			return nil, err
		}
	}
	return sets, nil
}

// SharedMemory returns the union over ordered pairs i != j of the
// bytes sets[i] reads and sets[j] writes.
func SharedMemory(sets []RWSet) *addrset.Set {
	shared := addrset.New()
	for i := range sets {
		for j := range sets {
			if i != j {
				addrset.UnionInPlace(shared, addrset.Intersection(sets[i].Read, sets[j].Write))
			}
		}
	}
	return shared
}

// FindSharedMemory returns the bytes some function reads and another
// writes.
func (c *Classifier) FindSharedMemory(fns []machine.Function) (*addrset.Set, error) {
	sets, err := c.FindRWSets(fns)
	if err != nil {
		return nil, err
	}
	return SharedMemory(sets), nil
}

// FindPCSet runs fn alone and returns the program counters of its
// accesses that touch shared. Text().Format symbolizes them.
func (c *Classifier) FindPCSet(fn machine.Function, shared *addrset.Set) (*addrset.Set, error) {
	pcs := addrset.New()
	err := c.trace(fn, func(ev machine.TouchEvent) error {
		acc, err := c.touched(ev)
		if err != nil {
			return err
		}
		for i := 0; i < acc.Size; i++ {
			if shared.Contains(ev.Addr + uint32(i)) {
				pcs.Insert(ev.PC)
				break
			}
		}
		return nil
	})
	return pcs, err
}
