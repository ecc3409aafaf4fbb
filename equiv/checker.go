// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package equiv checks whether interleaved executions of a set of
// functions are equivalent to some sequential execution.
//
// A Checker first runs every ordering of the functions sequentially
// and records a digest of the memory each leaves behind. Those are
// the valid end states. It then runs the functions interleaved under
// every schedule with a bounded number of context switches and
// reports each schedule whose end state is not valid.
//
// Interleavings are only distinguished at load and store
// instructions (or at every instruction, with sched.CountAll), and
// only the memory the functions share is considered when deciding
// where schedules may differ.
package equiv

import (
	"fmt"
	"sort"

	"github.com/aclements/go-equiv/addrset"
	"github.com/aclements/go-equiv/classify"
	"github.com/aclements/go-equiv/digest"
	"github.com/aclements/go-equiv/machine"
	"github.com/aclements/go-equiv/sched"
	"github.com/aclements/go-equiv/schedule"
	"v.io/x/lib/vlog"
)

// A Checker checks the functions of a Config on a Machine.
//
// The client allocates and tracks the functions' memory on the
// machine before creating the Checker. A Checker is not safe for
// concurrent use, but Checkers on distinct machines are independent.
type Checker struct {
	m   *machine.Machine
	cfg Config
	s   *sched.Scheduler

	tags map[uint32]string

	shared *addrset.Set
	limits []int
	valid  *addrset.Set
}

// New returns a Checker for cfg running on m.
func New(m *machine.Machine, cfg Config) (*Checker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Checker{
		m:    m,
		cfg:  cfg,
		tags: make(map[uint32]string),
	}
	c.s = sched.New(m, c.schedConfig())
	return c, nil
}

func (c *Checker) schedConfig() sched.Config {
	return sched.Config{Count: c.cfg.Count, MaxSteps: c.cfg.MaxSteps, Trace: c.cfg.Trace, StrictPlan: c.cfg.StrictPlan}
}

// Machine returns the machine c runs on.
func (c *Checker) Machine() *machine.Machine {
	return c.m
}

// Close releases c's threads.
func (c *Checker) Close() {
	c.s.Reset()
}

// Tag labels the word at addr in reports. It is an error to tag
// memory that is not allocated.
func (c *Checker) Tag(addr uint32, label string) error {
	if _, ok := c.m.Allocated(addr, 1); !ok {
		return fmt.Errorf("tag %q: address %#x is not allocated", label, addr)
	}
	c.tags[addr] = label
	return nil
}

// A TagValue is the value of a tagged word at the end of a run.
type TagValue struct {
	Addr  uint32
	Label string
	Value uint32
}

func (v TagValue) String() string {
	return fmt.Sprintf("%s=%d", v.Label, int32(v.Value))
}

func (c *Checker) tagValues() []TagValue {
	vals := make([]TagValue, 0, len(c.tags))
	for addr, label := range c.tags {
		var v uint32
		if _, ok := c.m.Allocated(addr, 4); ok {
			v = c.m.Word(addr)
		} else {
			v = uint32(c.m.Byte(addr))
		}
		vals = append(vals, TagValue{addr, label, v})
	}
	sort.Slice(vals, func(i, j int) bool { return vals[i].Addr < vals[j].Addr })
	return vals
}

// logf writes to the output if the verbosity is at least level.
func (c *Checker) logf(level int, format string, args ...interface{}) {
	if c.cfg.Output != nil && c.cfg.Verbosity >= level {
		fmt.Fprintf(c.cfg.Output, format, args...)
	}
}

// reset restores the initial memory state.
func (c *Checker) reset() {
	c.m.Reset()
	if c.cfg.Init != nil {
		c.cfg.Init(c.m)
	}
}

func (c *Checker) classifier() *classify.Classifier {
	return &classify.Classifier{M: c.m, Sched: c.schedConfig(), Init: c.cfg.Init}
}

// FindSharedMemory infers the bytes the functions share and unions
// in Config.SharedHint.
func (c *Checker) FindSharedMemory() (*addrset.Set, error) {
	shared, err := c.classifier().FindSharedMemory(c.cfg.Functions)
	if err != nil {
		return nil, err
	}
	if c.cfg.SharedHint != nil {
		addrset.UnionInPlace(shared, c.cfg.SharedHint)
	}
	c.shared = shared
	return shared, nil
}

// ConflictPCs returns, for each function, the program counters of
// its accesses to shared memory.
func (c *Checker) ConflictPCs() ([]*addrset.Set, error) {
	if c.shared == nil {
		if _, err := c.FindSharedMemory(); err != nil {
			return nil, err
		}
	}
	cls := c.classifier()
	pcs := make([]*addrset.Set, len(c.cfg.Functions))
	for i, fn := range c.cfg.Functions {
		var err error
		if pcs[i], err = cls.FindPCSet(fn, c.shared); err != nil {
			return nil, err
		}
	}
	return pcs, nil
}

// Baseline returns the number of countable instructions each
// function executes when run alone from the initial state. These
// bound the schedules to check.
func (c *Checker) Baseline() ([]int, error) {
	limits := make([]int, len(c.cfg.Functions))
	for i, fn := range c.cfg.Functions {
		c.reset()
		s := sched.New(c.m, c.schedConfig())
		s.Fork(fn)
		stats, err := s.Run()
		s.Reset()
		if err != nil {
			return nil, fmt.Errorf("baseline of %s: %w", fn, err)
		}
		limits[i] = stats.Counts[1]
	}
	c.limits = limits
	return limits, nil
}

// fork creates one thread per function.
func (c *Checker) fork() {
	if c.s.NumThreads() == 0 {
		for _, fn := range c.cfg.Functions {
			c.s.Fork(fn)
		}
	}
}

// digest returns the digest of the current end state.
func (c *Checker) digest() uint32 {
	h := c.cfg.hash().New()
	switch c.cfg.HashMode {
	case HashShared:
		c.shared.Ranges(func(base uint32, n int) {
			buf := make([]byte, n)
			c.m.ReadAt(buf, base)
			h.Write(buf)
		})
	default:
		for _, seg := range c.m.Tracked() {
			buf := make([]byte, seg.Len)
			c.m.ReadAt(buf, seg.Base)
			h.Write(buf)
		}
	}
	return digest.Sum32(h)
}

// FindValidHashes runs the functions sequentially in every order and
// returns the set of end state digests.
func (c *Checker) FindValidHashes() (*addrset.Set, error) {
	if c.cfg.HashMode == HashShared && c.shared == nil {
		if _, err := c.FindSharedMemory(); err != nil {
			return nil, err
		}
	}
	c.fork()
	valid := addrset.New()
	for _, perm := range schedule.Permutations(len(c.cfg.Functions)) {
		order := make([]int, len(perm))
		for i, p := range perm {
			order[i] = p + 1
		}
		c.reset()
		if err := c.s.RefreshOrder(order); err != nil {
			return nil, err
		}
		if err := c.s.SetPlan(nil); err != nil {
			return nil, err
		}
		if _, err := c.s.Run(); err != nil {
			return nil, fmt.Errorf("sequential order %v: %w", order, err)
		}
		h := c.digest()
		if valid.Insert(h) {
			vlog.VI(2).Infof("order %v: new valid hash %#08x", order, h)
		}
	}
	c.valid = valid
	return valid, nil
}

// A Verdict is the result of checking one schedule.
type Verdict int

const (
	// Valid means the end state matches some sequential order.
	Valid Verdict = iota
	// Invalid means no sequential order produces the end state.
	Invalid
)

func (v Verdict) String() string {
	if v == Invalid {
		return "invalid"
	}
	return "valid"
}

// An Outcome is the result of running one schedule.
type Outcome struct {
	Schedule sched.Schedule
	Verdict  Verdict
	Hash     uint32
	Stats    sched.RunStats

	// Values holds the tagged words of an invalid end state.
	Values []TagValue

	// Path is the odometer choice path that produced Schedule, or
	// nil if it was enumerated. ReplayPath checks it again.
	Path []int
}

// Yielded reports whether the run ended before applying every
// planned switch.
func (o Outcome) Yielded() bool {
	return o.Stats.Yielded()
}

func (o Outcome) String() string {
	s := fmt.Sprintf("%s: %s state %#08x", o.Schedule, o.Verdict, o.Hash)
	if o.Yielded() {
		s += fmt.Sprintf(" (applied %d of %d switches)", o.Stats.Applied, o.Stats.Planned)
	}
	for _, v := range o.Values {
		s += " " + v.String()
	}
	if o.Path != nil {
		s += fmt.Sprintf(" path %v", o.Path)
	}
	return s
}

// CheckSchedule runs the functions under s and classifies the end
// state. The valid hashes are computed first if needed.
func (c *Checker) CheckSchedule(s sched.Schedule) (Outcome, error) {
	if c.valid == nil {
		if _, err := c.FindValidHashes(); err != nil {
			return Outcome{}, err
		}
	}
	out := Outcome{Schedule: s}
	c.reset()
	if err := c.s.RefreshAll(); err != nil {
		return out, err
	}
	if err := c.s.SetPlan(s); err != nil {
		return out, err
	}
	stats, err := c.s.Run()
	out.Stats = stats
	if err != nil {
		return out, fmt.Errorf("schedule %v: %w", s, err)
	}
	out.Hash = c.digest()
	if !c.valid.Contains(out.Hash) {
		out.Verdict = Invalid
		out.Values = c.tagValues()
	}
	return out, nil
}

// ReplayPath checks the schedule the odometer produces from path with
// ncs context switches. Paths are reported in Outcome.Path.
func (c *Checker) ReplayPath(ncs int, path []int) (Outcome, error) {
	if c.limits == nil {
		if _, err := c.Baseline(); err != nil {
			return Outcome{}, err
		}
	}
	o := &schedule.Odometer{Limits: c.limits, Switches: ncs}
	s, err := o.Replay(path)
	if err != nil {
		return Outcome{}, err
	}
	out, err := c.CheckSchedule(s)
	out.Path = path
	return out, err
}
