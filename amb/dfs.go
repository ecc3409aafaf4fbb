// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amb

// StrategyDFS visits every path in lexicographic order of choices up
// to MaxDepth, like an odometer whose last wheel turns fastest.
type StrategyDFS struct {
	MaxDepth int

	// Start, if non-nil, is the first path to visit. Paths that
	// precede it are skipped, so a walk stopped at a path reported
	// by Path can be resumed from there.
	Start []int

	t trail
}

func (s *StrategyDFS) Reset() {
	s.t = trail{}
	s.t.seed(s.Start)
}

func (s *StrategyDFS) Amb(n int) (int, bool) {
	if c, ok := s.t.replay(n); ok {
		return c, true
	}
	if s.t.pos == depthLimit(s.MaxDepth) {
		return 0, false
	}
	s.t.push(0, n)
	return 0, true
}

func (s *StrategyDFS) Next() bool {
	t := &s.t
	t.cut()
	// Turn the last wheel, carrying into earlier ones.
	for len(t.choice) > 0 {
		last := len(t.choice) - 1
		if t.choice[last]++; t.choice[last] < t.width[last] {
			return true
		}
		t.choice, t.width = t.choice[:last], t.width[:last]
	}
	return false
}

// Path returns the choices made on the current path.
func (s *StrategyDFS) Path() []int {
	return s.t.path()
}
