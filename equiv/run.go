// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package equiv

import (
	"context"
	"time"

	"github.com/aclements/go-equiv/amb"
	"github.com/aclements/go-equiv/sched"
	"github.com/aclements/go-equiv/schedule"
	"github.com/davecgh/go-spew/spew"
	"v.io/x/lib/vlog"
)

// progressEvery is how often, in schedules, progress is reported.
const progressEvery = 100

// Run checks every schedule with 1 through Config.MaxSwitches
// context switches and returns a report.
//
// It first infers the shared memory, measures each function alone
// and computes the valid end states. An invalid schedule is not an
// error; it is recorded in the report. Any failure to run a schedule
// ends the session with an error. Cancellation of ctx is observed
// between schedules.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	r := newReport(c)
	vlog.VI(1).Infof("session %s: checking %v", r.Session, r.Functions)

	shared, err := c.FindSharedMemory()
	if err != nil {
		return nil, err
	}
	r.Shared = shared
	c.logf(2, "shared memory: %v\n", shared)
	if c.cfg.Verbosity >= 4 && c.cfg.Output != nil {
		shared.Dump(c.cfg.Output)
	}
	if c.cfg.Verbosity >= 2 {
		if err := c.logConflicts(); err != nil {
			return nil, err
		}
	}

	if r.Limits, err = c.Baseline(); err != nil {
		return nil, err
	}
	valid, err := c.FindValidHashes()
	if err != nil {
		return nil, err
	}
	r.ValidHashes = valid.Len()
	c.logf(2, "valid hashes: %v\n", valid)

	for ncs := 1; ncs <= c.cfg.MaxSwitches; ncs++ {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		sr, err := c.checkSwitches(ctx, r, ncs)
		r.Switches = append(r.Switches, sr)
		if err != nil {
			r.Elapsed = time.Since(start)
			return r, err
		}
		if r.Stopped {
			break
		}
	}
	r.Elapsed = time.Since(start)

	if c.cfg.Verbosity >= 1 && c.cfg.Output != nil {
		if err := r.WriteSummary(c.cfg.Output); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (c *Checker) logConflicts() error {
	pcs, err := c.ConflictPCs()
	if err != nil {
		return err
	}
	for i, set := range pcs {
		c.logf(2, "%s conflicts:\n", c.cfg.Functions[i])
		set.ForEach(func(pc uint32) {
			c.logf(2, "\t%s\n", c.m.Text().Format(pc))
		})
	}
	return nil
}

// checkSwitches checks the schedules with ncs context switches.
func (c *Checker) checkSwitches(ctx context.Context, r *Report, ncs int) (SwitchReport, error) {
	sr := SwitchReport{Switches: ncs, Expected: schedule.Count(r.Limits, ncs)}
	limit := c.cfg.MaxSchedules
	sr.Sampled = limit > 0 && sr.Expected > float64(limit)
	c.logf(1, "== %d context switches: %.0f schedules\n", ncs, sr.Expected)

	var verr error
	check := func(s sched.Schedule, path []int) bool {
		if err := ctx.Err(); err != nil {
			verr = err
			return false
		}
		out, err := c.CheckSchedule(s)
		out.Path = path
		if err != nil {
			verr = err
			return false
		}
		r.record(&sr, out)
		c.logOutcome(out)
		if c.cfg.Progress != nil && sr.Schedules%progressEvery == 0 {
			c.cfg.Progress.Progress(sr, false)
		}
		if out.Verdict == Invalid && c.cfg.StopOnInvalid {
			r.Stopped = true
			return false
		}
		return limit <= 0 || sr.Schedules < limit
	}

	if c.cfg.Odometer || sr.Sampled {
		strategy := c.cfg.Strategy
		if strategy == nil && sr.Sampled {
			// Pruned paths count against MaxPaths, so allow
			// plenty to find limit schedules.
			strategy = &amb.StrategyRandom{MaxPaths: 100 * limit, Seed: c.cfg.Seed + int64(ncs)}
		}
		o := &schedule.Odometer{Limits: r.Limits, Switches: ncs, Strategy: strategy}
		if _, err := o.WalkPaths(check); err != nil {
			return sr, err
		}
	} else {
		g := &schedule.Generator{Limits: r.Limits, Switches: ncs}
		g.Interleave(func(seq []int) bool {
			c.logf(3, "interleaving %v\n", seq)
			return check(schedule.Compress(seq), nil)
		})
	}
	if c.cfg.Progress != nil {
		c.cfg.Progress.Progress(sr, true)
	}
	return sr, verr
}

func (c *Checker) logOutcome(out Outcome) {
	if out.Verdict == Invalid {
		c.logf(1, "invalid state detected: %v\n", out)
		if c.cfg.Verbosity >= 3 {
			for _, e := range out.Stats.Trace {
				c.logf(3, "\tt%d: %s\n", e.TID, e.Msg)
			}
		}
	} else {
		c.logf(2, "valid state: %v\n", out)
	}
	if c.cfg.Verbosity >= 4 && c.cfg.Output != nil {
		spew.Fdump(c.cfg.Output, out.Stats, c.m.Snapshot())
	}
}
