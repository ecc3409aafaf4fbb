// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package status shows the progress of running checks.
//
// Each check reports, per number of context switches, how many
// schedules it has checked out of how many there are. On a capable
// terminal the latest count of every running check is redrawn in
// place beneath ordinary output. Elsewhere only finished counts are
// printed, one per line.
package status

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh/terminal"
)

// A Line is the progress of one check at one number of context
// switches.
type Line struct {
	// Check names the check, such as a scenario name.
	Check string

	Switches int
	Checked  int
	// Expected is the number of schedules with Switches switches.
	Expected float64
	Sampled  bool
	Invalid  int

	// Done is set once every schedule with Switches switches has
	// been checked.
	Done bool
}

func (l Line) String() string {
	if !l.Done {
		return fmt.Sprintf("%s: %d switches: %d/%.0f schedules, %d invalid", l.Check, l.Switches, l.Checked, l.Expected, l.Invalid)
	}
	s := fmt.Sprintf("%s: %d switches: %d schedules, %d invalid", l.Check, l.Switches, l.Checked, l.Invalid)
	if l.Sampled {
		s += fmt.Sprintf(" (sampled from %.0f)", l.Expected)
	}
	return s
}

// A Reporter is an output stream that also displays check progress.
//
// Writes are serialized with progress updates. Update and Finish may
// be called only between Start and Stop.
type Reporter interface {
	io.Writer
	Start()
	// Update records the latest progress of l.Check.
	Update(l Line)
	// Finish drops check from the display once it has completed.
	Finish(check string)
	Stop()
}

// New returns a Reporter writing to f. It redraws progress in place
// if f is a capable terminal.
func New(f *os.File) Reporter {
	if os.Getenv("TERM") == "" || os.Getenv("TERM") == "dumb" || !terminal.IsTerminal(int(f.Fd())) {
		return &Dumb{W: f}
	}
	return &VT100{w: f}
}

// Dumb is a Reporter that prints each finished Line as ordinary
// output and ignores partial progress.
type Dumb struct {
	W  io.Writer
	mu sync.Mutex
}

func (r *Dumb) Start()        {}
func (r *Dumb) Stop()         {}
func (r *Dumb) Finish(string) {}

func (r *Dumb) Update(l Line) {
	if !l.Done {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.W, l)
}

func (r *Dumb) Write(data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.W.Write(data)
}

// VT100 is a Reporter that keeps the latest Line of every running
// check on the terminal's last line using VT100 control sequences.
type VT100 struct {
	w io.Writer

	mu    sync.Mutex
	lines map[string]Line
	spin  int

	stop chan struct{}
	done chan struct{}
}

// VT100 control sequences
const (
	resetLine = "\r\x1b[2K"
	wrapOff   = "\x1b[?7l"
	moveEOL   = "\x1b[999C"
	wrapOn    = "\x1b[?7h"
)

// redraw is how often the status line is redrawn.
const redraw = time.Second / 10

func (r *VT100) Start() {
	r.lines = make(map[string]Line)
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.run()
}

func (r *VT100) Update(l Line) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[l.Check] = l
}

func (r *VT100) Finish(check string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lines, check)
}

// Stop erases the status line.
func (r *VT100) Stop() {
	close(r.stop)
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.w, resetLine+wrapOn)
}

func (r *VT100) Write(data []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprint(r.w, resetLine+wrapOn)
	n, err := r.w.Write(data)
	if err == nil {
		r.drawLocked()
	}
	return n, err
}

// status returns the status line text, with checks in name order.
func (r *VT100) status() string {
	names := make([]string, 0, len(r.lines))
	for name := range r.lines {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = r.lines[name].String()
	}
	return strings.Join(parts, "; ")
}

func (r *VT100) drawLocked() {
	const spinner = `-\|/`
	fmt.Fprintf(r.w, "%s%s%s%s%c", resetLine, wrapOff, r.status(), moveEOL, spinner[r.spin%len(spinner)])
}

func (r *VT100) run() {
	defer close(r.done)
	tick := time.NewTicker(redraw)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			r.mu.Lock()
			r.spin++
			r.drawLocked()
			r.mu.Unlock()
		case <-r.stop:
			return
		}
	}
}
