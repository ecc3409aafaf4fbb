// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sched

import "fmt"

// runq is a FIFO of ready threads. A thread appears at most once.
type runq struct {
	q []*thread
}

func (q *runq) push(th *thread) {
	for _, x := range q.q {
		if x == th {
			panic(fmt.Sprintf("thread %d already in run queue", th.tid()))
		}
	}
	q.q = append(q.q, th)
}

// pop removes and returns the head, or nil if q is empty.
func (q *runq) pop() *thread {
	if len(q.q) == 0 {
		return nil
	}
	th := q.q[0]
	q.q = q.q[1:]
	return th
}

// take removes and returns thread tid, or nil if it is not queued.
func (q *runq) take(tid int) *thread {
	for i, th := range q.q {
		if th.tid() == tid {
			q.q = append(q.q[:i:i], q.q[i+1:]...)
			return th
		}
	}
	return nil
}

func (q *runq) len() int {
	return len(q.q)
}

func (q *runq) clear() {
	q.q = nil
}

func (q *runq) tids() []int {
	out := make([]int, len(q.q))
	for i, th := range q.q {
		out[i] = th.tid()
	}
	return out
}
