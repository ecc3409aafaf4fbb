// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package equiv

import (
	"fmt"
	"io"
	"time"

	"github.com/aclements/go-equiv/addrset"
	"github.com/aclements/go-gg/table"
	"github.com/aclements/go-moremath/stats"
	"github.com/google/uuid"
)

// A Report summarizes a checking session.
type Report struct {
	// Session identifies this session in logs and reports.
	Session uuid.UUID

	Functions []string
	Hash      string
	Count     string

	// Shared is the memory the functions share.
	Shared *addrset.Set
	// Limits is the number of countable instructions of each
	// function run alone.
	Limits []int
	// ValidHashes is the number of distinct sequential end states.
	ValidHashes int

	Switches []SwitchReport

	// Invalid lists every invalid outcome in the order checked.
	Invalid []Outcome

	// Steps holds the number of instructions of every checked run.
	Steps stats.Sample

	// Stopped is set if checking stopped at an invalid schedule.
	Stopped bool

	Elapsed time.Duration
}

// A SwitchReport counts the schedules checked with one number of
// context switches.
type SwitchReport struct {
	Switches int

	// Expected is the exact number of schedules with Switches
	// switches.
	Expected float64
	// Sampled is set if schedules were sampled rather than
	// enumerated.
	Sampled bool

	Schedules, Valid, Invalid, Yielded int
}

func newReport(c *Checker) *Report {
	r := &Report{
		Session: uuid.New(),
		Hash:    c.cfg.hash().Name(),
		Count:   c.cfg.Count.String(),
	}
	for _, fn := range c.cfg.Functions {
		r.Functions = append(r.Functions, fn.String())
	}
	return r
}

// OK reports whether every checked schedule was valid.
func (r *Report) OK() bool {
	return len(r.Invalid) == 0
}

// Checked returns the total number of schedules checked.
func (r *Report) Checked() int {
	n := 0
	for _, s := range r.Switches {
		n += s.Schedules
	}
	return n
}

func (r *Report) record(sr *SwitchReport, out Outcome) {
	sr.Schedules++
	if out.Yielded() {
		sr.Yielded++
	}
	if out.Verdict == Invalid {
		sr.Invalid++
		r.Invalid = append(r.Invalid, out)
	} else {
		sr.Valid++
	}
	r.Steps.Xs = append(r.Steps.Xs, float64(out.Stats.Steps))
}

// WriteSummary writes a table of per-switch-count results followed
// by run length statistics.
func (r *Report) WriteSummary(w io.Writer) error {
	fmt.Fprintf(w, "session %s: %v\n", r.Session, r.Functions)
	fmt.Fprintf(w, "count %s, hash %s, %d valid end states, limits %v\n", r.Count, r.Hash, r.ValidHashes, r.Limits)

	var sw, checked, valid, invalid, yielded []int
	var expected []string
	for _, s := range r.Switches {
		sw = append(sw, s.Switches)
		e := fmt.Sprintf("%.0f", s.Expected)
		if s.Sampled {
			e += " (sampled)"
		}
		expected = append(expected, e)
		checked = append(checked, s.Schedules)
		valid = append(valid, s.Valid)
		invalid = append(invalid, s.Invalid)
		yielded = append(yielded, s.Yielded)
	}
	tab := new(table.Builder).
		Add("switches", sw).
		Add("schedules", expected).
		Add("checked", checked).
		Add("valid", valid).
		Add("invalid", invalid).
		Add("yielded", yielded).
		Done()
	table.Fprint(w, tab)

	if len(r.Steps.Xs) > 0 {
		lo, hi := r.Steps.Bounds()
		fmt.Fprintf(w, "steps per run: mean %.1f ± %.1f, median %.0f, range [%.0f, %.0f]\n",
			r.Steps.Mean(), r.Steps.StdDev(), r.Steps.Quantile(0.5), lo, hi)
	}
	verdict := "all schedules valid"
	if !r.OK() {
		verdict = fmt.Sprintf("%d invalid schedules", len(r.Invalid))
		if r.Stopped {
			verdict += " (stopped at first)"
		}
	}
	_, err := fmt.Fprintf(w, "%d schedules checked in %v: %s\n", r.Checked(), r.Elapsed.Round(time.Millisecond), verdict)
	return err
}
