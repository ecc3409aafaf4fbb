// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amb

import "fmt"

// A Pather is a Strategy that can report the choices made so far on
// the current path. A recorded path can be handed to StrategyReplay
// or StrategyDFS.Start to visit the same point again.
type Pather interface {
	Strategy
	Path() []int
}

// trail is the sequence of choices from the root to the current
// point. Entries at or beyond pos were chosen on an earlier path
// and are replayed before new choices are made.
type trail struct {
	choice []int
	width  []int // 0 if not yet known
	pos    int
}

func depthLimit(max int) int {
	if max == 0 {
		return DefaultMaxDepth
	}
	return max
}

// seed makes path the prefix replayed by the next path.
func (t *trail) seed(path []int) {
	t.choice = append(t.choice[:0], path...)
	t.width = make([]int, len(path))
	t.pos = 0
}

// replay returns the recorded choice at the current position for an
// Amb(n) call, and whether there was one.
func (t *trail) replay(n int) (int, bool) {
	if t.pos >= len(t.choice) {
		return 0, false
	}
	c, w := t.choice[t.pos], t.width[t.pos]
	switch {
	case w == 0 && c >= n:
		panic(&ErrNondeterminism{fmt.Sprintf("choice %d at depth %d does not fit Amb(%d)", c, t.pos, n)})
	case w != 0 && w != n:
		panic(&ErrNondeterminism{fmt.Sprintf("Amb(%d) during replay, but previous call was Amb(%d)", n, w)})
	}
	t.width[t.pos] = n
	t.pos++
	return c, true
}

func (t *trail) push(c, n int) {
	t.choice = append(t.choice, c)
	t.width = append(t.width, n)
	t.pos++
}

// cut drops choices the current path did not reach and rewinds to
// the root.
func (t *trail) cut() {
	t.choice = t.choice[:t.pos]
	t.width = t.width[:t.pos]
	t.pos = 0
}

func (t *trail) path() []int {
	return append([]int(nil), t.choice[:t.pos]...)
}
