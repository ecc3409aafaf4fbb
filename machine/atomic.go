// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

import "errors"

// Atomic read-modify-write operations built from exclusive loads and
// stores. Each one is several instructions long, so other threads
// may run between its steps; the exclusive monitor makes the store
// fail and the loop retry if they touched the word.

// CompareAndSwap atomically replaces the word at addr with new if it
// equals old.
func (t *Thread) CompareAndSwap(addr, old, new uint32) (swapped bool) {
	for {
		if t.LoadExclusive(addr) != old {
			t.ClearExclusive()
			return false
		}
		if t.StoreExclusive(addr, new) {
			return true
		}
	}
}

// AtomicAdd atomically adds delta to the word at addr and returns the
// new value.
func (t *Thread) AtomicAdd(addr uint32, delta int32) (new uint32) {
	for {
		new = t.LoadExclusive(addr) + uint32(delta)
		t.Op()
		if t.StoreExclusive(addr, new) {
			return new
		}
	}
}

// AtomicSwap atomically stores v at addr and returns the previous
// value.
func (t *Thread) AtomicSwap(addr, v uint32) (old uint32) {
	for {
		old = t.LoadExclusive(addr)
		if t.StoreExclusive(addr, v) {
			return old
		}
	}
}

var errUnlockUnlocked = errors.New("unlock of unlocked SpinLock")

// A SpinLock is a test-and-set lock on a word of machine memory. The
// zero word is unlocked. Waiters yield the processor between
// attempts.
type SpinLock struct {
	Addr uint32
}

// NewSpinLock allocates an unlocked SpinLock.
func (m *Machine) NewSpinLock() SpinLock {
	return SpinLock{m.Alloc(4)}
}

// Lock acquires l on behalf of t.
func (l SpinLock) Lock(t *Thread) {
	for !t.CompareAndSwap(l.Addr, 0, 1) {
		t.Yield()
	}
}

// TryLock acquires l if it is free.
func (l SpinLock) TryLock(t *Thread) bool {
	return t.CompareAndSwap(l.Addr, 0, 1)
}

// Unlock releases l. Unlocking an unlocked SpinLock faults t.
func (l SpinLock) Unlock(t *Thread) {
	if t.Load32(l.Addr) == 0 {
		t.fault(0, l.Addr, errUnlockUnlocked)
	}
	t.Store32(l.Addr, 0)
}
