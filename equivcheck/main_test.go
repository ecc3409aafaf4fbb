// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aclements/go-equiv/equiv"
	"github.com/aclements/go-equiv/internal/scenarios"
	"github.com/aclements/go-equiv/internal/status"
	"github.com/aclements/go-equiv/sched"
)

func TestConfig(t *testing.T) {
	f := flags{switches: 3, count: "all", hash: "fnv1a", hashMode: "shared", verbosity: 3, strict: true}
	cfg, err := f.config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Count != sched.CountAll || cfg.HashMode != equiv.HashShared || cfg.Hash.Name() != "fnv1a" || cfg.MaxSwitches != 3 || !cfg.Trace || !cfg.StrictPlan {
		t.Fatalf("config = %+v", cfg)
	}
	for _, bad := range []flags{
		{count: "some", hash: "xxhash", hashMode: "tracked"},
		{count: "all", hash: "md5", hashMode: "tracked"},
		{count: "all", hash: "xxhash", hashMode: "everything"},
	} {
		if _, err := bad.config(); err == nil {
			t.Errorf("%+v accepted", bad)
		}
	}
}

func TestCheckAll(t *testing.T) {
	var todo []scenarios.Scenario
	for _, name := range []string{"counter", "locked-counter"} {
		sc, err := scenarios.Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		todo = append(todo, sc)
	}
	f := flags{switches: 1, count: "loadstore", hash: "xxhash", hashMode: "tracked", parallel: 2, stackSize: 1024}
	cfg, err := f.config()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	failed, err := checkAll(context.Background(), &status.Dumb{W: &buf}, todo, cfg, f)
	if err != nil {
		t.Fatal(err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	out := buf.String()
	if !strings.Contains(out, "FAIL counter: 2 schedules, 2 invalid") || !strings.Contains(out, "ok locked-counter:") {
		t.Errorf("unexpected output:\n%s", out)
	}
	// Each finished switch count is reported as progress.
	if !strings.Contains(out, "counter: 1 switches: 2 schedules, 2 invalid\n") {
		t.Errorf("output missing progress line:\n%s", out)
	}

	f.expect = true
	buf.Reset()
	if failed, err = checkAll(context.Background(), &status.Dumb{W: &buf}, todo, cfg, f); err != nil || failed != 0 {
		t.Fatalf("with -expect: failed = %d, err = %v\n%s", failed, err, buf.String())
	}
}
