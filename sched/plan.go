// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"
	"strings"
)

// A Switch is one preemption point: once thread TID has retired Count
// countable instructions since it was refreshed, it is preempted.
type Switch struct {
	TID   int
	Count int
}

// A Schedule is a sequence of preemption points. After entry k fires,
// the thread named by entry k+1 runs next; after the last entry, the
// head of the run queue runs and every remaining thread runs to
// completion in queue order. The first entry's thread runs first.
type Schedule []Switch

func (s Schedule) String() string {
	var b strings.Builder
	for i, sw := range s {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "(%d,%d)", sw.TID, sw.Count)
	}
	return b.String()
}

// Validate checks that s only names threads 1..nthreads, that counts
// are positive and that no two adjacent entries name the same thread.
func (s Schedule) Validate(nthreads int) error {
	for i, sw := range s {
		switch {
		case sw.TID < 1 || sw.TID > nthreads:
			return &PlanError{s, i, fmt.Sprintf("unknown thread %d", sw.TID)}
		case sw.Count < 1:
			return &PlanError{s, i, fmt.Sprintf("bad count %d", sw.Count)}
		case i > 0 && s[i-1].TID == sw.TID:
			return &PlanError{s, i, "switch to the running thread"}
		}
	}
	return nil
}

// Equal reports whether s and o are the same schedule.
func (s Schedule) Equal(o Schedule) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// A PlanError reports a schedule that cannot be applied.
type PlanError struct {
	Plan   Schedule
	Index  int
	Reason string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("bad schedule %v at entry %d: %s", e.Plan, e.Index, e.Reason)
}
