// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package equiv

import (
	"fmt"
	"io"

	"github.com/aclements/go-equiv/addrset"
	"github.com/aclements/go-equiv/amb"
	"github.com/aclements/go-equiv/digest"
	"github.com/aclements/go-equiv/machine"
	"github.com/aclements/go-equiv/sched"
)

// A HashMode selects which memory an end state digest covers.
type HashMode int

const (
	// HashTracked digests every tracked segment, in registration
	// order and then by offset.
	HashTracked HashMode = iota
	// HashShared digests the shared memory set in ascending
	// address order.
	HashShared
)

func (h HashMode) String() string {
	switch h {
	case HashTracked:
		return "tracked"
	case HashShared:
		return "shared"
	}
	return fmt.Sprintf("HashMode(%d)", int(h))
}

// Progress receives the running counts for one number of context
// switches. It is called periodically while the schedules are
// checked and once more with done set when they are finished.
type Progress interface {
	Progress(sr SwitchReport, done bool)
}

// Config configures a Checker.
type Config struct {
	// Functions are run concurrently, one thread each.
	Functions []machine.Function

	// Init, if non-nil, is called before every run after tracked
	// memory is restored to its registration snapshot.
	Init func(m *machine.Machine)

	// MaxSwitches is the largest number of context switches to
	// check. Schedules with 1 through MaxSwitches switches are
	// checked.
	MaxSwitches int

	// Count selects which instructions are preemption points.
	Count sched.CountMode

	// MaxSteps bounds the instructions of any single run. 0 means
	// unlimited.
	MaxSteps int

	// Hash digests end states. If nil, digest.Default is used.
	Hash digest.Func

	HashMode HashMode

	// SharedHint is unioned into the inferred shared memory. It
	// covers accesses that depend on the interleaving and are
	// missed when functions run alone.
	SharedHint *addrset.Set

	// Verbosity controls output to Output:
	//
	//	0: nothing
	//	1: invalid schedules, per-switch-count headers, summary
	//	2: valid schedules, shared memory, valid hashes, conflict PCs
	//	3: raw interleavings and scheduler traces of invalid runs
	//	4: set structure and memory dumps
	Verbosity int

	// Output receives reports. If nil, nothing is written.
	Output io.Writer

	// Progress, if non-nil, receives periodic status updates.
	Progress Progress

	// StopOnInvalid stops checking at the first invalid schedule.
	StopOnInvalid bool

	// MaxSchedules, if positive, bounds the number of schedules
	// checked per switch count. When the exact number of schedules
	// exceeds it, schedules are sampled by a seeded random
	// odometer walk instead of enumerated.
	MaxSchedules int

	// Odometer selects the odometer generator for every switch
	// count. Strategy, if non-nil, is the strategy it walks with.
	Odometer bool
	Strategy amb.Strategy

	// Seed seeds sampling when MaxSchedules applies.
	Seed int64

	// Trace records scheduler traces of invalid runs.
	Trace bool

	// StrictPlan ends the session with an error when a schedule
	// switches to a thread that has already exited, instead of
	// counting the run as yielded.
	StrictPlan bool
}

func (c *Config) hash() digest.Func {
	if c.Hash == nil {
		return digest.Default
	}
	return c.Hash
}

func (c *Config) validate() error {
	if len(c.Functions) == 0 {
		return fmt.Errorf("no functions to check")
	}
	if c.MaxSwitches < 0 {
		return fmt.Errorf("negative MaxSwitches %d", c.MaxSwitches)
	}
	for i, fn := range c.Functions {
		if fn.Fn == nil {
			return fmt.Errorf("function %d (%s) has no body", i, fn)
		}
	}
	return nil
}
