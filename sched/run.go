// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"

	"github.com/aclements/go-equiv/arm"
	"v.io/x/lib/vlog"
)

// RunStats summarizes one Run.
type RunStats struct {
	// Steps is the number of instructions retired by all threads.
	Steps int
	// Counts maps each thread to its countable instruction count
	// at exit.
	Counts map[int]int
	// Switches is the number of preemptions, Yields the number of
	// voluntary yields.
	Switches, Yields int
	// Planned is the length of the plan and Applied the number of
	// its entries that fired.
	Planned, Applied int
	// Fallbacks counts plan switches whose target had already
	// exited, so the run queue head ran instead.
	Fallbacks int
	Trace     []TraceEntry
}

// Yielded reports whether the run ended before applying its whole
// plan, which happens when control flow depends on the interleaving.
func (r RunStats) Yielded() bool {
	return r.Applied < r.Planned
}

// Run runs threads from the run queue until every thread has exited.
// If a plan is installed, the first thread to run is the thread of
// its first entry. Any fatal condition aborts the run, kills every
// live thread and is returned as a *ThreadError or *PlanError.
func (s *Scheduler) Run() (RunStats, error) {
	stats := RunStats{Counts: make(map[int]int), Planned: len(s.plan)}
	s.trace = nil

	var next *thread
	if len(s.plan) > 0 {
		next = s.runq.take(s.plan[0].TID)
		if next == nil {
			return stats, s.abort(&PlanError{s.plan, 0, fmt.Sprintf("thread %d is not ready", s.plan[0].TID)})
		}
	} else {
		next = s.runq.pop()
	}
	idx := 0

	for next != nil {
		s.dispatch(next)

		ev := <-s.events
		th := ev.th
		next = nil

		switch ev.kind {
		case evStep:
			stats.Steps++
			if s.cfg.MaxSteps > 0 && stats.Steps > s.cfg.MaxSteps {
				return s.fail(&stats, th, ErrStepLimit)
			}
			if s.OnStep != nil {
				s.OnStep(th.t, ev.step)
			}
			counted := s.cfg.Count == CountAll || ev.step.IsLoadStore
			if !counted || idx >= len(s.plan) || s.plan[idx].TID != th.tid() || s.plan[idx].Count != s.count(th) {
				// Keep running th.
				next = th
				break
			}

			if err := th.t.CheckStack(); err != nil {
				return s.fail(&stats, th, err)
			}
			th.state = AwaitingSwitch
			idx++
			stats.Applied++
			stats.Switches++
			s.runq.push(th)
			th.state = Ready
			if idx < len(s.plan) {
				target := s.plan[idx].TID
				next = s.runq.take(target)
				if next == nil {
					if st := s.threads[target-1].state; st != Exited || s.cfg.StrictPlan {
						return stats, s.abort(&PlanError{s.plan, idx, fmt.Sprintf("thread %d is %s", target, st)})
					}
					stats.Fallbacks++
					next = s.runq.pop()
				}
			} else {
				next = s.runq.pop()
			}
			vlog.VI(2).Infof("switch t%d -> t%d at %s #%d", th.tid(), next.tid(), arm.Mnemonic(ev.step.Raw), s.count(th))
			s.tracef(th.tid(), "preempted at count %d, switch to t%d", s.count(th), next.tid())

		case evYield:
			stats.Yields++
			if err := th.t.CheckStack(); err != nil {
				return s.fail(&stats, th, err)
			}
			s.runq.push(th)
			th.state = Ready
			next = s.runq.pop()
			vlog.VI(3).Infof("t%d yields to t%d", th.tid(), next.tid())
			s.tracef(th.tid(), "yield to t%d", next.tid())

		case evExit:
			th.resume = nil
			th.state = Exited
			stats.Counts[th.tid()] = s.count(th)
			if err := th.t.CheckStack(); err != nil {
				return s.fail(&stats, th, err)
			}
			s.tracef(th.tid(), "exit after %d instructions", th.t.Insts())
			next = s.runq.pop()

		case evFault:
			th.resume = nil
			th.state = Exited
			return s.fail(&stats, th, ev.err)
		}
	}
	stats.Trace = s.trace
	return stats, nil
}

// dispatch resumes th, starting its goroutine if needed.
func (s *Scheduler) dispatch(th *thread) {
	th.state = Running
	if th.resume == nil {
		s.tracef(th.tid(), "start %s", th.t.Func())
		s.start(th)
	}
	th.resume <- true
}

func (s *Scheduler) fail(stats *RunStats, th *thread, err error) (RunStats, error) {
	s.tracef(th.tid(), "fatal: %v", err)
	stats.Trace = s.trace
	return *stats, s.abort(&ThreadError{TID: th.tid(), Err: err, Trace: s.trace})
}

// abort kills every live thread and returns err.
func (s *Scheduler) abort(err error) error {
	vlog.VI(1).Infof("run aborted: %v", err)
	s.Close()
	return err
}
