// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command equivcheck checks built-in concurrent scenarios for
// interleavings that are not equivalent to any sequential execution.
//
// Usage:
//
//	equivcheck [flags] [scenario...]
//
// With no scenario arguments, every scenario is checked. Flags are
// also read from the EQUIVCHECK_FLAGS environment variable, which is
// split like a shell command line and applied before the command
// line flags.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/aclements/go-equiv/digest"
	"github.com/aclements/go-equiv/equiv"
	"github.com/aclements/go-equiv/internal/scenarios"
	"github.com/aclements/go-equiv/internal/status"
	"github.com/aclements/go-equiv/machine"
	"github.com/aclements/go-equiv/sched"
	"github.com/kballard/go-shellquote"
	"golang.org/x/sync/errgroup"
	"v.io/x/lib/vlog"
)

type flags struct {
	switches     int
	verbosity    int
	count        string
	hash         string
	hashMode     string
	maxSchedules int
	odometer     bool
	seed         int64
	stop         bool
	strict       bool
	maxSteps     int
	stackSize    int
	parallel     int
	list         bool
	expect       bool
	vlogLevel    int
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] [scenario...]

equivcheck runs each scenario's functions under every schedule with
up to -s context switches and reports schedules whose final memory
differs from every sequential ordering of the functions.

Flags are also taken from $EQUIVCHECK_FLAGS.

`, os.Args[0])
		flag.PrintDefaults()
	}

	var f flags
	flag.IntVar(&f.switches, "s", 2, "check schedules with up to `N` context switches")
	flag.IntVar(&f.verbosity, "verbosity", 1, "report verbosity `level` (0-4)")
	flag.StringVar(&f.count, "count", "loadstore", "preemption points: `loadstore` or all instructions")
	flag.StringVar(&f.hash, "hash", digest.Default.Name(), "end state hash: one of "+strings.Join(digest.Names(), ", "))
	flag.StringVar(&f.hashMode, "hashmode", "tracked", "hash `tracked` memory or only shared memory")
	flag.IntVar(&f.maxSchedules, "max-schedules", 0, "sample at most `N` schedules per switch count (0 for all)")
	flag.BoolVar(&f.odometer, "odometer", false, "generate schedules with the odometer walk")
	flag.Int64Var(&f.seed, "seed", 1, "sampling `seed`")
	flag.BoolVar(&f.stop, "stop", false, "stop each scenario at its first invalid schedule")
	flag.BoolVar(&f.strict, "strict", false, "fail a scenario if a schedule switches to a thread that has exited")
	flag.IntVar(&f.maxSteps, "max-steps", 1000000, "abort runs longer than `N` instructions")
	flag.IntVar(&f.stackSize, "stack", machine.DefaultStackSize, "thread stack size in `bytes`")
	flag.IntVar(&f.parallel, "p", runtime.NumCPU(), "check `N` scenarios in parallel")
	flag.BoolVar(&f.list, "list", false, "list scenarios and exit")
	flag.BoolVar(&f.expect, "expect", false, "fail only if a scenario's result differs from its known answer")
	flag.IntVar(&f.vlogLevel, "vlog", 0, "diagnostic log `level`")

	args, err := shellquote.Split(os.Getenv("EQUIVCHECK_FLAGS"))
	if err != nil {
		log.Fatalf("parsing $EQUIVCHECK_FLAGS: %v", err)
	}
	flag.CommandLine.Parse(append(args, os.Args[1:]...))
	if f.switches < 1 || f.parallel < 1 || f.verbosity < 0 {
		flag.Usage()
		os.Exit(2)
	}

	vlog.Log.Configure(vlog.OverridePriorConfiguration(true), vlog.LogToStderr(true), vlog.Level(f.vlogLevel))

	if f.list {
		for _, sc := range scenarios.All() {
			fmt.Printf("%-20s %s\n", sc.Name, sc.Doc)
		}
		return
	}

	var todo []scenarios.Scenario
	if flag.NArg() == 0 {
		todo = scenarios.All()
	} else {
		for _, name := range flag.Args() {
			sc, err := scenarios.Lookup(name)
			if err != nil {
				log.Fatal(err)
			}
			todo = append(todo, sc)
		}
	}

	cfg, err := f.config()
	if err != nil {
		log.Fatal(err)
	}

	rep := status.New(os.Stdout)
	rep.Start()
	failed, err := checkAll(context.Background(), rep, todo, cfg, f)
	rep.Stop()
	if err != nil {
		log.Fatal(err)
	}
	if failed > 0 {
		fmt.Printf("FAIL: %d of %d scenarios\n", failed, len(todo))
		os.Exit(1)
	}
}

// config returns the checker configuration shared by every scenario.
func (f *flags) config() (equiv.Config, error) {
	var cfg equiv.Config
	switch f.count {
	case "loadstore":
		cfg.Count = sched.CountLoadStore
	case "all":
		cfg.Count = sched.CountAll
	default:
		return cfg, fmt.Errorf("unknown -count %q", f.count)
	}
	switch f.hashMode {
	case "tracked":
		cfg.HashMode = equiv.HashTracked
	case "shared":
		cfg.HashMode = equiv.HashShared
	default:
		return cfg, fmt.Errorf("unknown -hashmode %q", f.hashMode)
	}
	h, err := digest.Lookup(f.hash)
	if err != nil {
		return cfg, err
	}
	cfg.Hash = h
	cfg.MaxSwitches = f.switches
	cfg.Verbosity = f.verbosity
	cfg.MaxSchedules = f.maxSchedules
	cfg.Odometer = f.odometer
	cfg.Seed = f.seed
	cfg.StopOnInvalid = f.stop
	cfg.StrictPlan = f.strict
	cfg.MaxSteps = f.maxSteps
	cfg.Trace = f.verbosity >= 3
	return cfg, nil
}

// progress forwards the progress of one scenario to a shared
// reporter.
type progress struct {
	name string
	rep  status.Reporter
}

func (p progress) Progress(sr equiv.SwitchReport, done bool) {
	p.rep.Update(status.Line{
		Check:    p.name,
		Switches: sr.Switches,
		Checked:  sr.Schedules,
		Expected: sr.Expected,
		Sampled:  sr.Sampled,
		Invalid:  sr.Invalid,
		Done:     done,
	})
}

// checkAll checks every scenario, up to f.parallel at a time. Each
// scenario's report is written to rep as a unit once it finishes. It
// returns the number of failed scenarios.
func checkAll(ctx context.Context, rep status.Reporter, todo []scenarios.Scenario, cfg equiv.Config, f flags) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallel)
	results := make([]bool, len(todo))
	for i, sc := range todo {
		i, sc := i, sc
		g.Go(func() error {
			var buf bytes.Buffer
			cfg := cfg
			cfg.Output = &buf
			cfg.Progress = progress{sc.Name, rep}
			r, err := check(ctx, sc, cfg, f.stackSize)
			rep.Finish(sc.Name)
			if err != nil {
				return fmt.Errorf("%s: %w", sc.Name, err)
			}
			ok := r.OK()
			if f.expect {
				ok = r.OK() != sc.Racy
			}
			results[i] = ok
			verdict := "ok"
			if !ok {
				verdict = "FAIL"
			}
			fmt.Fprintf(&buf, "%s %s: %d schedules, %d invalid\n", verdict, sc.Name, r.Checked(), len(r.Invalid))
			_, err = io.Copy(rep, &buf)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	failed := 0
	for _, ok := range results {
		if !ok {
			failed++
		}
	}
	return failed, nil
}

// check builds sc on a fresh machine and checks it.
func check(ctx context.Context, sc scenarios.Scenario, cfg equiv.Config, stackSize int) (*equiv.Report, error) {
	m := machine.New(machine.Config{StackSize: stackSize})
	setup := sc.Build(m)
	cfg.Functions = setup.Functions
	cfg.Init = setup.Init
	c, err := equiv.New(m, cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	for addr, label := range setup.Tags {
		if err := c.Tag(addr, label); err != nil {
			return nil, err
		}
	}
	return c.Run(ctx)
}
