// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import (
	"bytes"
	"fmt"
)

// A TraceEntry records one scheduling event.
type TraceEntry struct {
	TID int
	Msg string
}

func (s *Scheduler) tracef(tid int, msg string, args ...interface{}) {
	if !s.cfg.Trace {
		return
	}
	s.trace = append(s.trace, TraceEntry{tid, fmt.Sprintf(msg, args...)})
}

// A ThreadError is a fatal condition raised while running a thread.
// It carries the scheduling trace leading up to it if tracing is
// enabled.
type ThreadError struct {
	TID   int
	Err   error
	Trace []TraceEntry
}

func (e *ThreadError) Error() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("t%d: %v", e.TID, e.Err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "t%d: %v\n", e.TID, e.Err)
	fmt.Fprintf(&buf, "trace:")
	for _, ent := range e.Trace {
		fmt.Fprintf(&buf, "\n  T%d %s", ent.TID, ent.Msg)
	}
	return buf.String()
}

func (e *ThreadError) Unwrap() error {
	return e.Err
}
