// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// TextBase is the first synthetic program counter.
const TextBase uint32 = 0x8000

const pkgPrefix = "github.com/aclements/go-equiv/machine."

// Text assigns synthetic 32-bit program counters to the client source
// locations that execute machine instructions. Counters are handed
// out 4 bytes apart in first-executed order, so they are stable
// across runs of the same program.
type Text struct {
	pcs      map[textKey]uint32
	locs     []textKey
	internal map[uintptr]bool
}

type textKey struct {
	goPC uintptr
	raw  uint32
}

func newText() *Text {
	return &Text{pcs: make(map[textKey]uint32), internal: make(map[uintptr]bool)}
}

// pc returns the synthetic PC for the nearest caller outside this
// package executing raw.
func (x *Text) pc(raw uint32) uint32 {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	var goPC uintptr
	for _, pc := range pcs[:n] {
		if !x.isInternal(pc) {
			goPC = pc
			break
		}
	}
	k := textKey{goPC, raw}
	if spc, ok := x.pcs[k]; ok {
		return spc
	}
	spc := TextBase + 4*uint32(len(x.locs))
	x.pcs[k] = spc
	x.locs = append(x.locs, k)
	return spc
}

func (x *Text) isInternal(pc uintptr) bool {
	in, ok := x.internal[pc]
	if !ok {
		fn := runtime.FuncForPC(pc - 1)
		in = fn != nil && strings.HasPrefix(fn.Name(), pkgPrefix)
		x.internal[pc] = in
	}
	return in
}

// Len returns the number of distinct program counters assigned.
func (x *Text) Len() int {
	return len(x.locs)
}

// Lookup returns the source frame of a synthetic PC.
func (x *Text) Lookup(pc uint32) (runtime.Frame, bool) {
	if pc < TextBase || (pc-TextBase)%4 != 0 {
		return runtime.Frame{}, false
	}
	i := int((pc - TextBase) / 4)
	if i >= len(x.locs) || x.locs[i].goPC == 0 {
		return runtime.Frame{}, false
	}
	frame, _ := runtime.CallersFrames([]uintptr{x.locs[i].goPC}).Next()
	return frame, true
}

// Format symbolizes pc as "function file:line".
func (x *Text) Format(pc uint32) string {
	frame, ok := x.Lookup(pc)
	if !ok {
		return fmt.Sprintf("%#x", pc)
	}
	fn := frame.Function
	if i := strings.LastIndexByte(fn, '/'); i >= 0 {
		fn = fn[i+1:]
	}
	return fmt.Sprintf("%#x %s %s:%d", pc, fn, filepath.Base(frame.File), frame.Line)
}

// Raw returns the instruction word executed at pc.
func (x *Text) Raw(pc uint32) (uint32, bool) {
	i := int((pc - TextBase) / 4)
	if pc < TextBase || i >= len(x.locs) {
		return 0, false
	}
	return x.locs[i].raw, true
}
