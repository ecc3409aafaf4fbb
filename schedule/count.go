// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schedule

import (
	"math"

	"github.com/aclements/go-moremath/mathx"
)

// Count returns the number of schedules Generator{limits, ncs}
// produces, without enumerating them.
//
// An interleaving with R = ncs+N' runs is a choice of how many runs
// k[i] each thread is split into, a split of each thread's limit
// into k[i] nonempty runs, and an arrangement of the runs in which no
// thread follows itself. The last factor is the number of Smirnov
// words with k[i] copies of letter i.
func Count(limits []int, ncs int) float64 {
	var ls []int
	for _, l := range limits {
		if l > 0 {
			ls = append(ls, l)
		}
	}
	if len(ls) == 0 || ncs < 0 {
		return 0
	}
	runs := ncs + len(ls)

	total := 0.0
	k := make([]int, len(ls))
	var rec func(i, left int)
	rec = func(i, left int) {
		if i == len(ls) {
			if left != 0 {
				return
			}
			splits := 1.0
			for j, kj := range k {
				splits *= mathx.Choose(ls[j]-1, kj-1)
			}
			total += splits * smirnov(k)
			return
		}
		// Leave at least one run for each later thread.
		for kj := 1; kj <= ls[i] && kj <= left-(len(ls)-i-1); kj++ {
			k[i] = kj
			rec(i+1, left-kj)
		}
	}
	rec(0, runs)
	return math.Round(total)
}

// smirnov returns the number of words with k[i] copies of letter i
// and no two equal adjacent letters. By inclusion-exclusion over
// merging adjacent equal letters into blocks, it is
//
//	Σ_j Π_i (-1)^(k_i-j_i) C(k_i-1, j_i-1) · (Σj)! / Π j_i!
//
// where each j_i ranges over 1..k_i.
func smirnov(k []int) float64 {
	total := 0.0
	j := make([]int, len(k))
	var rec func(i int, coef float64)
	rec = func(i int, coef float64) {
		if i == len(k) {
			total += coef * multinomial(j)
			return
		}
		for ji := 1; ji <= k[i]; ji++ {
			j[i] = ji
			c := mathx.Choose(k[i]-1, ji-1)
			if (k[i]-ji)%2 == 1 {
				c = -c
			}
			rec(i+1, coef*c)
		}
	}
	rec(0, 1)
	return math.Round(total)
}

// multinomial returns (Σj)! / Π j_i!.
func multinomial(j []int) float64 {
	res, n := 1.0, 0
	for _, ji := range j {
		n += ji
		res *= mathx.Choose(n, ji)
	}
	return res
}
