// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package amb explores a space of ambiguous choices.
//
// A program makes choices by calling Walker.Amb. The Walker reruns
// the program from the root once per path through the resulting
// choice tree, with the order of paths determined by a Strategy.
package amb

import (
	"errors"
	"fmt"
)

// A Strategy describes how to explore a space of ambiguous values.
// Such a space can be viewed as a tree, where a call to Amb
// introduces a node with fan-out n and a call to Next terminates a
// path.
type Strategy interface {
	// Amb returns an "ambiguous" value in the range [0, n). If
	// the current path cannot be continued (for example, it's
	// reached a maximum depth), it returns 0, false.
	//
	// The first call to Amb after constructing a Strategy or
	// calling Next always starts at the root of the tree.
	//
	// Amb may panic with *ErrNondeterminism if it detects that
	// the program took a different path on replay.
	Amb(n int) (int, bool)

	// Next terminates the current path. If there are no more
	// paths to explore, Next returns false. A Strategy is not
	// required to ever return false.
	Next() bool

	// Reset resets the state of this Strategy to the point where
	// no paths have been explored.
	Reset()
}

// DefaultMaxDepth is the default maximum tree depth if it is
// unspecified.
var DefaultMaxDepth = 100

// A Walker uses a Strategy to execute a function repeatedly at
// different points in a space of ambiguous values.
type Walker struct {
	// Strategy specifies the strategy for exploring the space.
	Strategy Strategy

	active bool
	paths  int
	pruned int
}

// PathTerminated is panicked by Amb and Prune to abandon the current
// path.
var PathTerminated = errors.New("path terminated")

// Run calls root once per path. It stops early and returns the error
// if root returns one or panics with *ErrNondeterminism.
func (w *Walker) Run(root func() error) error {
	if w.active {
		panic("nested Run call")
	}
	w.active = true
	defer func() { w.active = false }()

	w.paths, w.pruned = 0, 0
	w.Strategy.Reset()
	for {
		if err := w.run1(root); err != nil {
			return err
		}
		w.paths++
		if !w.Strategy.Next() {
			return nil
		}
	}
}

func (w *Walker) run1(root func() error) (err error) {
	defer func() {
		switch p := recover().(type) {
		case nil:
		case error:
			if p == PathTerminated {
				w.pruned++
				return
			}
			if nd, ok := p.(*ErrNondeterminism); ok {
				err = nd
				return
			}
			panic(p)
		default:
			panic(p)
		}
	}()
	return root()
}

// Amb returns a value in the range [0, n). It must only be called
// from the goroutine running root.
func (w *Walker) Amb(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("Amb(%d)", n))
	}
	x, ok := w.Strategy.Amb(n)
	if !ok {
		panic(PathTerminated)
	}
	return x
}

// Prune abandons the current path.
func (w *Walker) Prune() {
	panic(PathTerminated)
}

// Paths returns the number of paths visited by the last Run,
// including pruned ones.
func (w *Walker) Paths() int {
	return w.paths
}

// Pruned returns the number of paths of the last Run abandoned with
// Prune or by the Strategy.
func (w *Walker) Pruned() int {
	return w.pruned
}

// ErrNondeterminism is the error used by deterministic strategies to
// indicate that the strategy detected that the application behaved
// non-deterministically.
type ErrNondeterminism struct {
	Detail string
}

func (e *ErrNondeterminism) Error() string {
	return "non-determinism detected: " + e.Detail
}
