// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package schedule enumerates preemption schedules.
//
// An interleaving of N threads whose isolated runs retire limits[i]
// countable instructions is a sequence containing limits[i] copies of
// each thread index i. A context-switch budget of ncs admits exactly
// the sequences made of ncs+N' maximal runs, where N' is the number
// of threads with a nonzero limit: every thread contributes at least
// one run, and each extra run is one switch away from a thread that
// had more to do. Each sequence compresses to a sched.Schedule.
package schedule

import (
	"github.com/aclements/go-equiv/sched"
)

// Generator enumerates every interleaving of Limits with exactly
// Switches context switches.
type Generator struct {
	Limits   []int
	Switches int
}

func (g *Generator) active() int {
	n := 0
	for _, l := range g.Limits {
		if l > 0 {
			n++
		}
	}
	return n
}

// Entries returns the length of the schedules g produces.
func (g *Generator) Entries() int {
	if n := g.active(); n > 0 {
		return g.Switches + n - 1
	}
	return 0
}

// Interleave calls visit for each interleaving in lexicographic
// order of thread index and returns the number visited. visit must
// not retain seq. If visit returns false, enumeration stops.
func (g *Generator) Interleave(visit func(seq []int) bool) int {
	total := 0
	for _, l := range g.Limits {
		if l < 0 {
			panic("schedule: negative limit")
		}
		total += l
	}
	runs := g.Switches + g.active()
	if total == 0 || g.Switches < 0 {
		return 0
	}

	rem := append([]int(nil), g.Limits...)
	seq := make([]int, total)
	n := 0
	var rec func(pos, have int) bool
	rec = func(pos, have int) bool {
		if pos == total {
			if have != runs {
				return true
			}
			n++
			return visit(seq)
		}
		for i := range rem {
			if rem[i] == 0 {
				continue
			}
			h := have
			if pos == 0 || seq[pos-1] != i {
				h++
			}
			// Each remaining position adds at most one run.
			if h > runs || runs-h > total-pos-1 {
				continue
			}
			seq[pos] = i
			rem[i]--
			ok := rec(pos+1, h)
			rem[i]++
			if !ok {
				return false
			}
		}
		return true
	}
	rec(0, 0)
	return n
}

// Schedules calls visit with the compressed form of each
// interleaving, in the order of Interleave.
func (g *Generator) Schedules(visit func(s sched.Schedule) bool) int {
	return g.Interleave(func(seq []int) bool {
		return visit(Compress(seq))
	})
}

// All returns every schedule.
func (g *Generator) All() []sched.Schedule {
	var out []sched.Schedule
	g.Schedules(func(s sched.Schedule) bool {
		out = append(out, s)
		return true
	})
	return out
}

// Compress converts an interleaving to a schedule: at every position
// where the thread changes, it records the outgoing thread's
// identifier (index+1) and how many of its instructions have run so
// far.
func Compress(seq []int) sched.Schedule {
	var s sched.Schedule
	counts := make(map[int]int)
	for c, sym := range seq {
		counts[sym]++
		if c+1 < len(seq) && seq[c+1] != sym {
			s = append(s, sched.Switch{TID: sym + 1, Count: counts[sym]})
		}
	}
	return s
}
