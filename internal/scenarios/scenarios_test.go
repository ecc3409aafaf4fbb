// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scenarios_test

import (
	"context"
	"testing"

	"github.com/aclements/go-equiv/equiv"
	"github.com/aclements/go-equiv/internal/scenarios"
	"github.com/aclements/go-equiv/machine"
)

func TestScenarios(t *testing.T) {
	for _, sc := range scenarios.All() {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			t.Parallel()
			m := machine.New(machine.Config{})
			setup := sc.Build(m)
			c, err := equiv.New(m, equiv.Config{
				Functions:   setup.Functions,
				Init:        setup.Init,
				MaxSwitches: 2,
			})
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			for addr, label := range setup.Tags {
				if err := c.Tag(addr, label); err != nil {
					t.Fatal(err)
				}
			}
			r, err := c.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if r.Checked() == 0 {
				t.Fatal("no schedules checked")
			}
			if racy := !r.OK(); racy != sc.Racy {
				t.Errorf("racy = %v, want %v (%d invalid of %d)", racy, sc.Racy, len(r.Invalid), r.Checked())
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if _, err := scenarios.Lookup("counter"); err != nil {
		t.Fatal(err)
	}
	if _, err := scenarios.Lookup("nonesuch"); err == nil {
		t.Fatal("unknown scenario found")
	}
	all := scenarios.All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Name >= all[i].Name {
			t.Fatalf("All not sorted: %s before %s", all[i-1].Name, all[i].Name)
		}
	}
}
