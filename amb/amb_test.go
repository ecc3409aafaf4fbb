// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amb

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func TestDFSOdometer(t *testing.T) {
	w := &Walker{Strategy: &StrategyDFS{}}
	var got []string
	err := w.Run(func() error {
		a := w.Amb(2)
		b := w.Amb(3)
		got = append(got, fmt.Sprint(a, b))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"0 0", "0 1", "0 2", "1 0", "1 1", "1 2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if w.Paths() != 6 || w.Pruned() != 0 {
		t.Fatalf("Paths, Pruned = %d, %d", w.Paths(), w.Pruned())
	}
}

func TestDFSPrune(t *testing.T) {
	w := &Walker{Strategy: &StrategyDFS{}}
	var got [][2]int
	w.Run(func() error {
		a := w.Amb(3)
		b := w.Amb(3)
		if a == b {
			w.Prune()
		}
		got = append(got, [2]int{a, b})
		return nil
	})
	if len(got) != 6 || w.Pruned() != 3 || w.Paths() != 9 {
		t.Fatalf("got %v, pruned %d of %d", got, w.Pruned(), w.Paths())
	}
}

func TestDFSMaxDepth(t *testing.T) {
	w := &Walker{Strategy: &StrategyDFS{MaxDepth: 2}}
	leaves := 0
	w.Run(func() error {
		for {
			w.Amb(2)
			leaves++
		}
	})
	// Depth-2 tree of width 2; the third Amb terminates each path.
	if w.Paths() != 4 || leaves != 8 {
		t.Fatalf("Paths = %d, leaves = %d", w.Paths(), leaves)
	}
}

func TestNondeterminism(t *testing.T) {
	w := &Walker{Strategy: &StrategyDFS{}}
	n := 2
	err := w.Run(func() error {
		w.Amb(n)
		n++
		return nil
	})
	var nd *ErrNondeterminism
	if !errors.As(err, &nd) {
		t.Fatalf("Run = %v, want ErrNondeterminism", err)
	}
}

func TestRunError(t *testing.T) {
	w := &Walker{Strategy: &StrategyDFS{}}
	stop := errors.New("stop")
	err := w.Run(func() error {
		if w.Amb(4) == 2 {
			return stop
		}
		return nil
	})
	if err != stop || w.Paths() != 2 {
		t.Fatalf("Run = %v after %d paths", err, w.Paths())
	}
}

func TestRandomSeed(t *testing.T) {
	walk := func(seed int64) []int {
		w := &Walker{Strategy: &StrategyRandom{MaxPaths: 20, Seed: seed}}
		var got []int
		w.Run(func() error {
			got = append(got, w.Amb(1000))
			return nil
		})
		return got
	}
	a, b := walk(7), walk(7)
	if len(a) != 20 || !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed gave different walks:\n%v\n%v", a, b)
	}
}

func TestDFSStart(t *testing.T) {
	var all [][]int
	w := &Walker{Strategy: &StrategyDFS{}}
	w.Run(func() error {
		w.Amb(2)
		w.Amb(3)
		all = append(all, w.Strategy.(Pather).Path())
		return nil
	})
	for i, start := range all {
		s := &StrategyDFS{Start: start}
		w := &Walker{Strategy: s}
		var rest [][]int
		w.Run(func() error {
			w.Amb(2)
			w.Amb(3)
			rest = append(rest, s.Path())
			return nil
		})
		if !reflect.DeepEqual(rest, all[i:]) {
			t.Fatalf("resuming at %v visited %v, want %v", start, rest, all[i:])
		}
	}
}

func TestDFSStartOutOfRange(t *testing.T) {
	w := &Walker{Strategy: &StrategyDFS{Start: []int{5}}}
	err := w.Run(func() error {
		w.Amb(2)
		return nil
	})
	var nd *ErrNondeterminism
	if !errors.As(err, &nd) {
		t.Fatalf("Run = %v, want ErrNondeterminism", err)
	}
}

func TestReplay(t *testing.T) {
	w := &Walker{Strategy: &StrategyReplay{Path: []int{1, 2}}}
	var got []string
	w.Run(func() error {
		got = append(got, fmt.Sprint(w.Amb(2), w.Amb(3)))
		return nil
	})
	if !reflect.DeepEqual(got, []string{"1 2"}) || w.Paths() != 1 {
		t.Fatalf("replayed %v in %d paths", got, w.Paths())
	}

	// Choices past the end of the path terminate it.
	w = &Walker{Strategy: &StrategyReplay{Path: []int{1}}}
	w.Run(func() error {
		w.Amb(2)
		w.Amb(3)
		return nil
	})
	if w.Pruned() != 1 {
		t.Fatalf("Pruned = %d, want 1", w.Pruned())
	}
}

func TestRandomPath(t *testing.T) {
	s := &StrategyRandom{MaxPaths: 10, Seed: 11}
	w := &Walker{Strategy: s}
	type visit struct {
		vals, path []int
	}
	var visits []visit
	w.Run(func() error {
		v := visit{vals: []int{w.Amb(4), w.Amb(5), w.Amb(6)}}
		v.path = s.Path()
		visits = append(visits, v)
		return nil
	})
	for _, v := range visits {
		if !reflect.DeepEqual(v.vals, v.path) {
			t.Fatalf("Path = %v, choices were %v", v.path, v.vals)
		}
		var replayed []int
		rw := &Walker{Strategy: &StrategyReplay{Path: v.path}}
		rw.Run(func() error {
			replayed = []int{rw.Amb(4), rw.Amb(5), rw.Amb(6)}
			return nil
		})
		if !reflect.DeepEqual(replayed, v.vals) {
			t.Fatalf("replaying %v gave %v", v.path, replayed)
		}
	}
}
