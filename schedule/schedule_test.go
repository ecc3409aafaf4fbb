// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schedule

import (
	"fmt"
	"reflect"
	"sort"
	"testing"

	"github.com/aclements/go-equiv/amb"
	"github.com/aclements/go-equiv/sched"
)

func runs(seq []int) int {
	n := 0
	for i := range seq {
		if i == 0 || seq[i] != seq[i-1] {
			n++
		}
	}
	return n
}

func TestTwoByTwo(t *testing.T) {
	g := &Generator{Limits: []int{2, 2}, Switches: 1}
	var seqs [][]int
	g.Interleave(func(seq []int) bool {
		seqs = append(seqs, append([]int(nil), seq...))
		return true
	})
	want := [][]int{{0, 1, 1, 0}, {1, 0, 0, 1}}
	if !reflect.DeepEqual(seqs, want) {
		t.Fatalf("interleavings = %v, want %v", seqs, want)
	}
	all := g.All()
	wantScheds := []sched.Schedule{{{TID: 1, Count: 1}, {TID: 2, Count: 2}}, {{TID: 2, Count: 1}, {TID: 1, Count: 2}}}
	if !reflect.DeepEqual(all, wantScheds) {
		t.Fatalf("All() = %v, want %v", all, wantScheds)
	}
	if got := Count([]int{2, 2}, 1); got != 2 {
		t.Fatalf("Count = %v, want 2", got)
	}
}

func TestCountMatchesEnumeration(t *testing.T) {
	for _, limits := range [][]int{
		{1, 1}, {2, 3}, {3, 3}, {4, 2}, {1, 2, 3}, {2, 2, 2}, {3, 0, 2}, {1, 1, 1, 1}, {5},
	} {
		for ncs := 0; ncs <= 4; ncs++ {
			g := &Generator{Limits: limits, Switches: ncs}
			seen := make(map[string]bool)
			n := g.Interleave(func(seq []int) bool {
				if r := runs(seq); r != ncs+g.active() {
					t.Errorf("%v ncs=%d: %v has %d runs", limits, ncs, seq, r)
				}
				key := fmt.Sprint(seq)
				if seen[key] {
					t.Errorf("%v ncs=%d: duplicate %v", limits, ncs, seq)
				}
				seen[key] = true
				return true
			})
			if want := Count(limits, ncs); float64(n) != want {
				t.Errorf("%v ncs=%d: enumerated %d, Count = %v", limits, ncs, n, want)
			}
		}
	}
}

func TestInterleaveOrder(t *testing.T) {
	g := &Generator{Limits: []int{2, 1, 2}, Switches: 2}
	var keys []string
	g.Interleave(func(seq []int) bool {
		keys = append(keys, fmt.Sprint(seq))
		return true
	})
	if !sort.StringsAreSorted(keys) {
		t.Fatalf("interleavings not in lexicographic order: %v", keys)
	}
}

func TestInterleaveStop(t *testing.T) {
	g := &Generator{Limits: []int{3, 3}, Switches: 2}
	n := 0
	g.Interleave(func([]int) bool {
		n++
		return n < 3
	})
	if n != 3 {
		t.Fatalf("visited %d after stop", n)
	}
}

func TestCompress(t *testing.T) {
	seq := []int{0, 0, 1, 2, 2, 0, 1}
	want := sched.Schedule{{TID: 1, Count: 2}, {TID: 2, Count: 1}, {TID: 3, Count: 2}, {TID: 1, Count: 3}}
	if got := Compress(seq); !reflect.DeepEqual(got, want) {
		t.Fatalf("Compress(%v) = %v, want %v", seq, got, want)
	}
	g := &Generator{Limits: []int{3, 2, 2}, Switches: 2}
	for _, s := range g.All() {
		if len(s) != g.Entries() {
			t.Fatalf("schedule %v has %d entries, want %d", s, len(s), g.Entries())
		}
		if err := s.Validate(3); err != nil {
			t.Fatal(err)
		}
	}
}

func TestOdometer(t *testing.T) {
	o := &Odometer{Limits: []int{2, 2}, Switches: 1}
	var got []sched.Schedule
	n, err := o.Walk(func(s sched.Schedule) bool {
		got = append(got, s)
		return true
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []sched.Schedule{{{TID: 1, Count: 1}, {TID: 2, Count: 2}}, {{TID: 2, Count: 1}, {TID: 1, Count: 2}}}
	if n != 2 || !reflect.DeepEqual(got, want) {
		t.Fatalf("Walk = %v, want %v", got, want)
	}

	o = &Odometer{Limits: []int{3, 2, 4}, Switches: 2}
	n, _ = o.Walk(func(s sched.Schedule) bool {
		if len(s) != 3 {
			t.Fatalf("schedule %v has %d entries", s, len(s))
		}
		if err := s.Validate(3); err != nil {
			t.Fatal(err)
		}
		return true
	})
	if n == 0 {
		t.Fatal("no schedules")
	}
}

func TestOdometerRandom(t *testing.T) {
	walk := func() []string {
		o := &Odometer{Limits: []int{5, 7, 3}, Switches: 3, Strategy: &amb.StrategyRandom{MaxPaths: 50, Seed: 1}}
		var out []string
		o.Walk(func(s sched.Schedule) bool {
			out = append(out, s.String())
			return true
		})
		return out
	}
	a, b := walk(), walk()
	if len(a) == 0 || !reflect.DeepEqual(a, b) {
		t.Fatalf("seeded random walks differ or are empty:\n%v\n%v", a, b)
	}
}

func TestOdometerReplay(t *testing.T) {
	for _, strategy := range []amb.Strategy{nil, &amb.StrategyRandom{MaxPaths: 30, Seed: 3}} {
		o := &Odometer{Limits: []int{3, 2, 4}, Switches: 2, Strategy: strategy}
		n, err := o.WalkPaths(func(s sched.Schedule, path []int) bool {
			got, err := o.Replay(path)
			if err != nil {
				t.Fatalf("Replay(%v): %v", path, err)
			}
			if !reflect.DeepEqual(got, s) {
				t.Fatalf("Replay(%v) = %v, want %v", path, got, s)
			}
			return true
		})
		if err != nil || n == 0 {
			t.Fatalf("WalkPaths = %d, %v", n, err)
		}
	}

	o := &Odometer{Limits: []int{2, 2}, Switches: 1}
	// Thread 1 twice in a row is not a schedule.
	if s, err := o.Replay([]int{0, 0, 0}); err == nil {
		t.Fatalf("Replay of pruned path = %v", s)
	}
	if s, err := o.Replay([]int{0}); err == nil {
		t.Fatalf("Replay of short path = %v", s)
	}
}

func TestPermutations(t *testing.T) {
	got := Permutations(3)
	want := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 1, 0}, {2, 0, 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Permutations(3) = %v, want %v", got, want)
	}
	if n := len(Permutations(5)); n != 120 {
		t.Fatalf("len(Permutations(5)) = %d", n)
	}
}
