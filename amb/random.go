// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amb

import "math/rand"

// StrategyRandom samples paths with choices drawn from a source
// seeded by Seed, so two walks with the same seed are identical. It
// may visit a path more than once and never exhausts the space on
// its own; MaxPaths, if positive, bounds the walk.
type StrategyRandom struct {
	MaxDepth int
	MaxPaths int
	Seed     int64

	rng   *rand.Rand
	t     trail
	paths int
}

func (s *StrategyRandom) Reset() {
	s.rng = rand.New(rand.NewSource(s.Seed))
	s.t = trail{}
	s.paths = 0
}

func (s *StrategyRandom) Amb(n int) (int, bool) {
	if s.rng == nil {
		s.Reset()
	}
	if s.t.pos == depthLimit(s.MaxDepth) {
		return 0, false
	}
	c := s.rng.Intn(n)
	s.t.push(c, n)
	return c, true
}

func (s *StrategyRandom) Next() bool {
	s.t = trail{choice: s.t.choice[:0], width: s.t.width[:0]}
	s.paths++
	return s.MaxPaths <= 0 || s.paths < s.MaxPaths
}

// Path returns the choices drawn on the current path.
func (s *StrategyRandom) Path() []int {
	return s.t.path()
}
