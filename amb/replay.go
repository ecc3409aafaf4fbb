// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amb

// StrategyReplay visits exactly one path, given by Path. Choices
// past the end of Path terminate it.
type StrategyReplay struct {
	Path []int

	t trail
}

func (s *StrategyReplay) Reset() {
	s.t.seed(s.Path)
}

func (s *StrategyReplay) Amb(n int) (int, bool) {
	return s.t.replay(n)
}

func (s *StrategyReplay) Next() bool {
	return false
}
