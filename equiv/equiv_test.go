// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package equiv

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aclements/go-equiv/addrset"
	"github.com/aclements/go-equiv/digest"
	"github.com/aclements/go-equiv/internal/scenarios"
	"github.com/aclements/go-equiv/machine"
	"github.com/aclements/go-equiv/sched"
	"github.com/stretchr/testify/require"
)

type testSession struct {
	c     *Checker
	setup *scenarios.Setup
}

func (ts *testSession) addr(label string) uint32 {
	for addr, l := range ts.setup.Tags {
		if l == label {
			return addr
		}
	}
	panic("no tag " + label)
}

func newSession(t *testing.T, name string, cfg Config) *testSession {
	t.Helper()
	sc, err := scenarios.Lookup(name)
	if err != nil {
		t.Fatal(err)
	}
	m := machine.New(machine.Config{})
	setup := sc.Build(m)
	cfg.Functions = setup.Functions
	cfg.Init = setup.Init
	c, err := New(m, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	for addr, label := range setup.Tags {
		if err := c.Tag(addr, label); err != nil {
			t.Fatal(err)
		}
	}
	return &testSession{c, setup}
}

func TestLostUpdate(t *testing.T) {
	ts := newSession(t, "counter", Config{MaxSwitches: 1})
	r, err := ts.c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, r.Limits)
	// incr;decr and decr;incr both leave g unchanged.
	require.Equal(t, 1, r.ValidHashes)
	require.Len(t, r.Switches, 1)
	sr := r.Switches[0]
	require.Equal(t, 2.0, sr.Expected)
	require.Equal(t, 2, sr.Schedules)
	require.Equal(t, 2, sr.Invalid)
	require.False(t, r.OK())

	got := map[string]uint32{}
	for _, out := range r.Invalid {
		require.Len(t, out.Values, 1)
		got[out.Schedule.String()] = out.Values[0].Value
	}
	require.Equal(t, map[string]uint32{"(1,1) (2,2)": 11, "(2,1) (1,2)": 9}, got)
}

func TestSpinLockValid(t *testing.T) {
	for _, name := range []string{"locked-counter", "swap-lock", "atomic-counter"} {
		t.Run(name, func(t *testing.T) {
			ts := newSession(t, name, Config{MaxSwitches: 2})
			r, err := ts.c.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if !r.OK() {
				t.Fatalf("%d invalid schedules, first %v", len(r.Invalid), r.Invalid[0])
			}
			if r.Checked() == 0 {
				t.Fatal("no schedules checked")
			}
		})
	}
}

func TestDisjointValid(t *testing.T) {
	ts := newSession(t, "disjoint", Config{MaxSwitches: 3})
	r, err := ts.c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !r.Shared.Empty() {
		t.Errorf("shared = %v, want empty", r.Shared)
	}
	if !r.OK() || r.Checked() == 0 {
		t.Fatalf("checked %d schedules, %d invalid", r.Checked(), len(r.Invalid))
	}
	for _, sr := range r.Switches {
		if float64(sr.Schedules) != sr.Expected {
			t.Errorf("%d switches: checked %d of %v", sr.Switches, sr.Schedules, sr.Expected)
		}
	}
}

func TestSharedMemory(t *testing.T) {
	ts := newSession(t, "rw-cross", Config{})
	shared, err := ts.c.FindSharedMemory()
	if err != nil {
		t.Fatal(err)
	}
	want := addrset.New()
	want.AddRange(ts.addr("x"), 4)
	want.AddRange(ts.addr("y"), 4)
	if !addrset.Equal(shared, want) {
		t.Fatalf("shared = %v, want %v", shared, want)
	}

	hint := addrset.New()
	hint.Insert(ts.c.Machine().Alloc(1))
	ts.c.cfg.SharedHint = hint
	shared, err = ts.c.FindSharedMemory()
	if err != nil {
		t.Fatal(err)
	}
	if shared.Len() != 9 {
		t.Fatalf("shared with hint = %v", shared)
	}
}

func TestDeterminism(t *testing.T) {
	ts := newSession(t, "stack", Config{})
	s := sched.Schedule{{TID: 1, Count: 1}, {TID: 2, Count: 3}, {TID: 1, Count: 3}}
	var snaps [][]byte
	var hashes []uint32
	for i := 0; i < 2; i++ {
		out, err := ts.c.CheckSchedule(s)
		if err != nil {
			t.Fatal(err)
		}
		if out.Verdict != Invalid {
			t.Fatalf("lost push reported %v", out.Verdict)
		}
		snaps = append(snaps, ts.c.Machine().Snapshot())
		hashes = append(hashes, out.Hash)
	}
	if !bytes.Equal(snaps[0], snaps[1]) || hashes[0] != hashes[1] {
		t.Fatalf("replay differs: %x %x", snaps[0], snaps[1])
	}
}

func TestHashModes(t *testing.T) {
	for _, mode := range []HashMode{HashTracked, HashShared} {
		for _, h := range []string{"sha256", "crc32"} {
			f, err := digest.Lookup(h)
			if err != nil {
				t.Fatal(err)
			}
			ts := newSession(t, "counter", Config{MaxSwitches: 1, HashMode: mode, Hash: f})
			r, err := ts.c.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(r.Invalid) != 2 || r.Hash != h {
				t.Errorf("%v/%s: %d invalid, hash %s", mode, h, len(r.Invalid), r.Hash)
			}
		}
	}
}

func TestStopOnInvalid(t *testing.T) {
	ts := newSession(t, "counter", Config{MaxSwitches: 2, StopOnInvalid: true})
	r, err := ts.c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !r.Stopped || r.Checked() != 1 || len(r.Invalid) != 1 || len(r.Switches) != 1 {
		t.Fatalf("stopped=%v checked=%d invalid=%d", r.Stopped, r.Checked(), len(r.Invalid))
	}
}

func TestSampling(t *testing.T) {
	ts := newSession(t, "three-locked", Config{MaxSwitches: 2, MaxSchedules: 5, Seed: 1})
	r, err := ts.c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, sr := range r.Switches {
		if !sr.Sampled {
			t.Errorf("%d switches: %v schedules not sampled", sr.Switches, sr.Expected)
		}
		if sr.Schedules > 5 {
			t.Errorf("%d switches: checked %d > 5", sr.Switches, sr.Schedules)
		}
	}
	if !r.OK() {
		t.Fatalf("locked functions reported invalid: %v", r.Invalid[0])
	}
}

func TestOdometer(t *testing.T) {
	ts := newSession(t, "counter", Config{MaxSwitches: 1, Odometer: true})
	r, err := ts.c.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Checked() != 2 || len(r.Invalid) != 2 {
		t.Fatalf("checked %d, %d invalid", r.Checked(), len(r.Invalid))
	}
}

func TestCancel(t *testing.T) {
	ts := newSession(t, "counter", Config{MaxSwitches: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ts.c.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run with canceled context: %v", err)
	}
}

func TestTagUnallocated(t *testing.T) {
	ts := newSession(t, "counter", Config{})
	if err := ts.c.Tag(0x10, "bogus"); err == nil {
		t.Fatal("tag of unallocated address accepted")
	}
}

func TestConfigErrors(t *testing.T) {
	m := machine.New(machine.Config{})
	if _, err := New(m, Config{}); err == nil {
		t.Error("no functions accepted")
	}
	if _, err := New(m, Config{Functions: []machine.Function{{Name: "nil"}}}); err == nil {
		t.Error("function without body accepted")
	}
}

func TestFaultEndsSession(t *testing.T) {
	m := machine.New(machine.Config{})
	x := m.Alloc(4)
	m.Track(x, 4)
	bad := machine.Function{Name: "bad", Fn: func(t *machine.Thread, _ any) {
		if t.Load32(x) != 0 {
			t.Load32(0x20)
		}
	}}
	set := machine.Function{Name: "set", Fn: func(t *machine.Thread, _ any) {
		t.Store32(x, 1)
	}}
	c, err := New(m, Config{Functions: []machine.Function{bad, set}, MaxSwitches: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_, err = c.Run(context.Background())
	var te *sched.ThreadError
	if !errors.As(err, &te) {
		t.Fatalf("want ThreadError, got %v", err)
	}
}

func TestOutput(t *testing.T) {
	var buf bytes.Buffer
	ts := newSession(t, "counter", Config{MaxSwitches: 1, Verbosity: 3, Output: &buf, Trace: true})
	if _, err := ts.c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"shared memory:",
		"incr conflicts:",
		"interleaving [0 1 1 0]",
		"invalid state detected: (1,1) (2,2)",
		"g=11",
		"2 schedules checked",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSummary(t *testing.T) {
	r := &Report{
		Functions: []string{"a", "b"},
		Switches: []SwitchReport{
			{Switches: 1, Expected: 2, Schedules: 2, Valid: 1, Invalid: 1},
			{Switches: 2, Expected: 40, Sampled: true, Schedules: 5, Valid: 5},
		},
	}
	r.Steps.Xs = []float64{4, 6, 9, 10, 11, 12, 20}
	var buf bytes.Buffer
	require.NoError(t, r.WriteSummary(&buf))
	out := buf.String()
	for _, want := range []string{
		"switches", "schedules", "checked", "yielded",
		"40 (sampled)",
		"median 10, range [4, 20]",
		"7 schedules checked",
	} {
		require.Contains(t, out, want)
	}
}

func TestReplayPath(t *testing.T) {
	ts := newSession(t, "counter", Config{MaxSwitches: 1, Odometer: true})
	r, err := ts.c.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, r.Invalid)
	for _, out := range r.Invalid {
		require.NotNil(t, out.Path, "odometer outcome %v has no path", out)
		again, err := ts.c.ReplayPath(1, out.Path)
		require.NoError(t, err)
		require.Equal(t, out.Schedule, again.Schedule)
		require.Equal(t, out.Hash, again.Hash)
		require.Equal(t, Invalid, again.Verdict)
	}

	// Enumerated schedules have no path.
	ts = newSession(t, "counter", Config{MaxSwitches: 1})
	r, err = ts.c.Run(context.Background())
	require.NoError(t, err)
	require.Nil(t, r.Invalid[0].Path)
}

type progressLog struct {
	updates []SwitchReport
	done    []SwitchReport
}

func (p *progressLog) Progress(sr SwitchReport, done bool) {
	if done {
		p.done = append(p.done, sr)
	} else {
		p.updates = append(p.updates, sr)
	}
}

func TestProgress(t *testing.T) {
	var p progressLog
	ts := newSession(t, "counter", Config{MaxSwitches: 3, Progress: &p})
	r, err := ts.c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, r.Switches, p.done)
	for _, sr := range p.updates {
		require.Zero(t, sr.Schedules%progressEvery)
	}
}

func TestStrictPlanConfig(t *testing.T) {
	ts := newSession(t, "counter", Config{StrictPlan: true})
	require.True(t, ts.c.schedConfig().StrictPlan)
}
