// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schedule

import (
	"errors"
	"fmt"

	"github.com/aclements/go-equiv/amb"
	"github.com/aclements/go-equiv/sched"
)

// Odometer generates schedules by walking the (Switches+1)-tuple of
// thread identifiers together with, for each preemption, how far into
// its remaining instructions the thread is preempted. The final
// thread runs to completion. Adjacent entries must name different
// threads.
//
// With amb.StrategyDFS the choices advance like an odometer and the
// walk is exhaustive over this space. With amb.StrategyRandom it
// samples the space, which is how very large instruction counts stay
// tractable. Unlike Generator, nothing guarantees the schedules are
// distinct interleavings or that the plan fits the run: a thread may
// be chosen after it has no instructions left in practice, which the
// scheduler reports as a run that applied fewer entries than planned.
type Odometer struct {
	Limits   []int
	Switches int

	// Strategy explores the choice space. If nil, it defaults to
	// depth-first.
	Strategy amb.Strategy
}

var errStop = errors.New("stop")

// Walk calls visit with each schedule and returns the number of
// schedules visited. Each schedule has Switches+1 entries: one per
// preemption plus the final thread, after which the remaining threads
// run in queue order. If visit returns false, the walk stops.
func (o *Odometer) Walk(visit func(s sched.Schedule) bool) (int, error) {
	return o.WalkPaths(func(s sched.Schedule, _ []int) bool { return visit(s) })
}

// WalkPaths is like Walk, but also passes visit the choice path that
// produced each schedule, for use with Replay. The path is nil if
// Strategy does not implement amb.Pather.
func (o *Odometer) WalkPaths(visit func(s sched.Schedule, path []int) bool) (int, error) {
	active := o.active()
	if len(active) < 2 || o.Switches < 1 {
		return 0, nil
	}
	strategy := o.Strategy
	if strategy == nil {
		strategy = &amb.StrategyDFS{}
	}
	pather, _ := strategy.(amb.Pather)

	w := &amb.Walker{Strategy: strategy}
	n := 0
	err := w.Run(func() error {
		s := o.build(w, active)
		n++
		var path []int
		if pather != nil {
			path = pather.Path()
		}
		if !visit(s, path) {
			return errStop
		}
		return nil
	})
	if err == errStop {
		err = nil
	}
	return n, err
}

// Replay returns the schedule produced by path, as reported by
// WalkPaths with the same Limits and Switches.
func (o *Odometer) Replay(path []int) (sched.Schedule, error) {
	active := o.active()
	if len(active) < 2 || o.Switches < 1 {
		return nil, fmt.Errorf("odometer has no schedules")
	}
	var s sched.Schedule
	w := &amb.Walker{Strategy: &amb.StrategyReplay{Path: path}}
	err := w.Run(func() error {
		s = o.build(w, active)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replaying %v: %w", path, err)
	}
	if s == nil {
		return nil, fmt.Errorf("replaying %v: path does not name a schedule", path)
	}
	return s, nil
}

// active returns the threads with a nonzero limit.
func (o *Odometer) active() []int {
	var active []int
	for i, l := range o.Limits {
		if l > 0 {
			active = append(active, i)
		}
	}
	return active
}

// build makes the choices for one schedule. It abandons the path
// through w if the choices do not form a schedule.
func (o *Odometer) build(w *amb.Walker, active []int) sched.Schedule {
	entries := o.Switches
	used := make([]int, len(o.Limits))
	s := make(sched.Schedule, 0, entries+1)
	for k := 0; k <= entries; k++ {
		sym := active[w.Amb(len(active))]
		if k > 0 && s[k-1].TID == sym+1 {
			w.Prune()
		}
		left := o.Limits[sym] - used[sym]
		if k == entries {
			if left < 1 {
				w.Prune()
			}
			s = append(s, sched.Switch{TID: sym + 1, Count: o.Limits[sym]})
			break
		}
		// Preempt with at least one instruction to go.
		if left < 2 {
			w.Prune()
		}
		used[sym] += 1 + w.Amb(left-1)
		s = append(s, sched.Switch{TID: sym + 1, Count: used[sym]})
	}
	return s
}
