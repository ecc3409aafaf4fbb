// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sched implements a deterministic cooperative scheduler for
// machine threads.
//
// Each thread runs on its own goroutine, but only to hold its
// suspended Go stack: after every instruction the thread reports an
// event to the driver loop in Run and blocks until the driver resumes
// it. The driver alone decides which thread runs next, so exactly one
// thread executes at a time and a run is a deterministic function of
// the threads, the initial memory and the installed Schedule.
//
// With no Schedule installed, threads run to completion one after
// another in fork order. A Schedule preempts threads after exact
// numbers of countable instructions.
package sched

import (
	"errors"
	"fmt"

	"github.com/aclements/go-equiv/machine"
)

// A CountMode selects which instructions advance the preemption
// counter.
type CountMode int

const (
	// CountLoadStore counts load/store class instructions only.
	CountLoadStore CountMode = iota
	// CountAll counts every instruction.
	CountAll
)

func (c CountMode) String() string {
	switch c {
	case CountLoadStore:
		return "loadstore"
	case CountAll:
		return "all"
	}
	return fmt.Sprintf("CountMode(%d)", int(c))
}

// Config configures a Scheduler.
type Config struct {
	Count CountMode

	// MaxSteps bounds the number of instructions in one Run. 0
	// means unlimited.
	MaxSteps int

	// Trace records scheduling events in RunStats and errors.
	Trace bool

	// StrictPlan makes a plan entry that names an exited thread a
	// *PlanError. Otherwise the run continues with the next ready
	// thread and counts a fallback.
	StrictPlan bool
}

// ErrStepLimit is reported when a run exceeds Config.MaxSteps.
var ErrStepLimit = errors.New("step limit exceeded")

// A State is the scheduling state of a thread.
type State int

const (
	Ready State = iota
	Running
	AwaitingSwitch
	Exited
)

var stateNames = [...]string{"ready", "running", "awaiting switch", "exited"}

func (s State) String() string {
	return stateNames[s]
}

type thread struct {
	t     *machine.Thread
	state State

	// resume is non-nil while the thread has a goroutine. The
	// goroutine blocks on it between instructions; false kills
	// it.
	resume chan bool
	killed bool
}

func (th *thread) tid() int {
	return th.t.ID()
}

type eventKind int

const (
	evStep eventKind = iota
	evYield
	evExit
	evFault
)

type event struct {
	kind eventKind
	th   *thread
	step machine.StepEvent
	err  error
}

// Scheduler runs machine threads under a preemption plan.
type Scheduler struct {
	m   *machine.Machine
	cfg Config

	threads []*thread // index tid-1
	runq    runq
	events  chan event

	plan Schedule

	// OnStep, if non-nil, is called by the driver after every
	// instruction, before any preemption it causes.
	OnStep func(t *machine.Thread, ev machine.StepEvent)

	trace []TraceEntry
}

// New returns a Scheduler for threads of m.
func New(m *machine.Machine, cfg Config) *Scheduler {
	return &Scheduler{m: m, cfg: cfg, events: make(chan event)}
}

// Machine returns the machine s schedules.
func (s *Scheduler) Machine() *machine.Machine {
	return s.m
}

// Config returns s's configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Fork creates a thread that will run fn and enqueues it. Thread
// identifiers are assigned 1, 2, 3, ... in fork order.
func (s *Scheduler) Fork(fn machine.Function) int {
	tid := len(s.threads) + 1
	th := &thread{t: s.m.NewThread(tid, fn), state: Ready}
	th.t.SetStepper(s)
	s.threads = append(s.threads, th)
	s.runq.push(th)
	return tid
}

// NumThreads returns the number of forked threads.
func (s *Scheduler) NumThreads() int {
	return len(s.threads)
}

// Thread returns the machine thread tid, or nil.
func (s *Scheduler) Thread(tid int) *machine.Thread {
	if tid < 1 || tid > len(s.threads) {
		return nil
	}
	return s.threads[tid-1].t
}

// State returns the state of thread tid.
func (s *Scheduler) State(tid int) State {
	return s.threads[tid-1].state
}

// Refresh returns an exited thread to its entry state and enqueues
// it. Refreshing a thread that has not started yet resets its
// counters and leaves its queue position alone.
func (s *Scheduler) Refresh(tid int) error {
	if tid < 1 || tid > len(s.threads) {
		return fmt.Errorf("refresh of unknown thread %d", tid)
	}
	th := s.threads[tid-1]
	switch {
	case th.state == Exited:
		th.t.Reset()
		th.state = Ready
		th.resume, th.killed = nil, false
		s.runq.push(th)
	case th.state == Ready && th.resume == nil:
		th.t.Reset()
	default:
		return fmt.Errorf("refresh of %s thread %d", th.state, tid)
	}
	return nil
}

// RefreshAll refreshes every thread and leaves the run queue in fork
// order.
func (s *Scheduler) RefreshAll() error {
	s.runq.clear()
	for _, th := range s.threads {
		if th.state == Ready && th.resume == nil {
			th.state = Exited
		}
		if err := s.Refresh(th.tid()); err != nil {
			return err
		}
	}
	return nil
}

// RefreshOrder refreshes every thread and queues them in order,
// which must name every thread exactly once.
func (s *Scheduler) RefreshOrder(order []int) error {
	if len(order) != len(s.threads) {
		return fmt.Errorf("order %v does not name %d threads", order, len(s.threads))
	}
	if err := s.RefreshAll(); err != nil {
		return err
	}
	s.runq.clear()
	for _, tid := range order {
		if tid < 1 || tid > len(s.threads) {
			return fmt.Errorf("order %v names unknown thread %d", order, tid)
		}
		s.runq.push(s.threads[tid-1])
	}
	return nil
}

// SetPlan installs p as the preemption plan for subsequent runs. A
// nil plan runs threads sequentially.
func (s *Scheduler) SetPlan(p Schedule) error {
	if err := p.Validate(len(s.threads)); err != nil {
		return err
	}
	s.plan = p
	return nil
}

// Plan returns the installed plan.
func (s *Scheduler) Plan() Schedule {
	return s.plan
}

// Close kills the goroutines of every live thread. Killed threads are
// Exited and may be refreshed.
func (s *Scheduler) Close() {
	for _, th := range s.threads {
		s.kill(th)
	}
	s.runq.clear()
}

// Reset closes s and forgets every thread, so the next Fork is
// thread 1 again.
func (s *Scheduler) Reset() {
	s.Close()
	for _, th := range s.threads {
		s.m.ReleaseThread(th.t)
	}
	s.threads = nil
	s.plan = nil
}

func (s *Scheduler) kill(th *thread) {
	if th.resume != nil && th.state != Exited {
		th.killed = true
		th.resume <- false
	}
	th.resume = nil
	th.state = Exited
}

// count returns the preemption counter of th.
func (s *Scheduler) count(th *thread) int {
	if s.cfg.Count == CountAll {
		return th.t.Insts()
	}
	return th.t.LoadStores()
}

// Step implements machine.Stepper. It runs on the thread goroutine.
func (s *Scheduler) Step(t *machine.Thread, ev machine.StepEvent) {
	th := s.threads[t.ID()-1]
	if th.killed {
		panic(errKilled)
	}
	s.events <- event{kind: evStep, th: th, step: ev}
	th.wait()
}

// Yield implements machine.Stepper.
func (s *Scheduler) Yield(t *machine.Thread) {
	th := s.threads[t.ID()-1]
	if th.killed {
		panic(errKilled)
	}
	s.events <- event{kind: evYield, th: th}
	th.wait()
}

var errKilled = errors.New("thread killed")

func (th *thread) wait() {
	if !<-th.resume || th.killed {
		panic(errKilled)
	}
}

// start creates th's goroutine. The goroutine runs the thread
// function once the driver first resumes it, and reports how it ended.
func (s *Scheduler) start(th *thread) {
	th.resume = make(chan bool)
	go func() {
		defer func() {
			p := recover()
			if p == errKilled {
				return
			}
			if p != nil {
				s.events <- event{kind: evFault, th: th, err: panicError(p)}
				return
			}
			s.events <- event{kind: evExit, th: th}
		}()
		th.wait()
		th.t.Run()
	}()
}

func panicError(p interface{}) error {
	if err, ok := p.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", p)
}
