// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package addrset implements a sparse set of 32-bit values, typically
// memory byte addresses.
//
// A Set is a fixed-depth radix trie. Each level consumes 5 bits of
// the key, so each node has a 32-bit presence mask and up to 32
// children. Nodes at the deepest level have no children: their mask
// bits are the members themselves. This keeps insert and lookup
// O(depth) and makes union and intersection proportional to the
// number of populated nodes rather than to the size of the 32-bit
// space.
package addrset

import (
	"fmt"
	"io"
	"math/bits"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// MaxOffset is the shift of the root level of a full-width Set.
const MaxOffset = 30

const (
	levelBits = 5
	levelMask = 1<<levelBits - 1
)

type node struct {
	mask     uint32
	children *[32]*node // nil at the leaf level
}

// A Set is a set of uint32 values. The zero Set is not usable; use
// New or NewOffset.
type Set struct {
	offset uint
	root   node
}

// New returns an empty Set over the full 32-bit key space.
func New() *Set {
	return NewOffset(MaxOffset)
}

// NewOffset returns an empty Set whose root level indexes key bits
// [offset, offset+5). offset must be a multiple of 5 no larger than
// MaxOffset. Keys with bits set above offset+5 are rejected.
func NewOffset(offset uint) *Set {
	if offset%levelBits != 0 || offset > MaxOffset {
		panic(fmt.Sprintf("addrset: bad offset %d", offset))
	}
	return &Set{offset: offset}
}

// Offset returns the root level offset of s.
func (s *Set) Offset() uint {
	return s.offset
}

func (s *Set) checkKey(v uint32) {
	if s.offset+levelBits < 32 && v>>(s.offset+levelBits) != 0 {
		panic(fmt.Sprintf("addrset: key %#x out of range for offset %d", v, s.offset))
	}
}

func sameDepth(op string, x, y *Set) {
	if x.offset != y.offset {
		panic(fmt.Sprintf("addrset: %s of sets with different depths (%d != %d)", op, x.offset, y.offset))
	}
}

// Insert adds v to s. It returns true if v was not already a member.
func (s *Set) Insert(v uint32) bool {
	s.checkKey(v)
	n := &s.root
	for off := s.offset; ; off -= levelBits {
		idx := (v >> off) & levelMask
		bit := uint32(1) << idx
		present := n.mask&bit != 0
		n.mask |= bit
		if off == 0 {
			return !present
		}
		if n.children == nil {
			n.children = new([32]*node)
		}
		if !present {
			n.children[idx] = new(node)
		}
		n = n.children[idx]
	}
}

// Contains reports whether v is a member of s.
func (s *Set) Contains(v uint32) bool {
	if s.offset+levelBits < 32 && v>>(s.offset+levelBits) != 0 {
		return false
	}
	n := &s.root
	for off := s.offset; ; off -= levelBits {
		idx := (v >> off) & levelMask
		if n.mask&(1<<idx) == 0 {
			return false
		}
		if off == 0 {
			return true
		}
		n = n.children[idx]
	}
}

// AddRange inserts every value in [base, base+n).
func (s *Set) AddRange(base uint32, n int) {
	for i := 0; i < n; i++ {
		s.Insert(base + uint32(i))
	}
}

// Empty reports whether s has no members.
func (s *Set) Empty() bool {
	return s.root.mask == 0
}

// ForEach calls fn for each member of s in ascending order and
// returns the number of members visited.
func (s *Set) ForEach(fn func(v uint32)) int {
	return forEach(&s.root, s.offset, 0, fn)
}

func forEach(n *node, off uint, prefix uint32, fn func(uint32)) int {
	count := 0
	for m := n.mask; m != 0; m &= m - 1 {
		idx := uint32(bits.TrailingZeros32(m))
		v := prefix | idx<<off
		if off == 0 {
			fn(v)
			count++
		} else {
			count += forEach(n.children[idx], off-levelBits, v, fn)
		}
	}
	return count
}

// Len returns the number of members of s.
func (s *Set) Len() int {
	return length(&s.root, s.offset)
}

func length(n *node, off uint) int {
	if off == 0 {
		return bits.OnesCount32(n.mask)
	}
	count := 0
	for m := n.mask; m != 0; m &= m - 1 {
		count += length(n.children[bits.TrailingZeros32(m)], off-levelBits)
	}
	return count
}

// Slice returns the members of s in ascending order.
func (s *Set) Slice() []uint32 {
	out := make([]uint32, 0, s.Len())
	s.ForEach(func(v uint32) { out = append(out, v) })
	return out
}

// Copy returns a deep copy of s.
func (s *Set) Copy() *Set {
	out := &Set{offset: s.offset}
	copyNode(&out.root, &s.root, s.offset)
	return out
}

func copyNode(dst, src *node, off uint) {
	dst.mask = src.mask
	dst.children = nil
	if off == 0 || src.mask == 0 {
		return
	}
	dst.children = new([32]*node)
	for m := src.mask; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		dst.children[i] = new(node)
		copyNode(dst.children[i], src.children[i], off-levelBits)
	}
}

// Equal reports whether x and y have the same members.
func Equal(x, y *Set) bool {
	sameDepth("comparison", x, y)
	return equalNode(&x.root, &y.root, x.offset)
}

func equalNode(x, y *node, off uint) bool {
	if x.mask != y.mask {
		return false
	}
	if off == 0 {
		return true
	}
	for m := x.mask; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		if !equalNode(x.children[i], y.children[i], off-levelBits) {
			return false
		}
	}
	return true
}

// Union returns a new set containing the members of x and y.
func Union(x, y *Set) *Set {
	sameDepth("union", x, y)
	z := &Set{offset: x.offset}
	union(&z.root, &x.root, &y.root, x.offset)
	return z
}

func union(z, x, y *node, off uint) {
	z.mask = x.mask | y.mask
	if off == 0 || z.mask == 0 {
		return
	}
	z.children = new([32]*node)
	for m := z.mask; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		bit := uint32(1) << i
		z.children[i] = new(node)
		switch {
		case x.mask&bit != 0 && y.mask&bit != 0:
			union(z.children[i], x.children[i], y.children[i], off-levelBits)
		case x.mask&bit != 0:
			copyNode(z.children[i], x.children[i], off-levelBits)
		default:
			copyNode(z.children[i], y.children[i], off-levelBits)
		}
	}
}

// UnionInPlace adds every member of src to dst.
func UnionInPlace(dst, src *Set) {
	sameDepth("union", dst, src)
	unionInPlace(&dst.root, &src.root, dst.offset)
}

func unionInPlace(y, x *node, off uint) {
	both := y.mask & x.mask
	onlyX := x.mask &^ y.mask
	y.mask |= x.mask
	if off == 0 || y.mask == 0 {
		return
	}
	if y.children == nil {
		y.children = new([32]*node)
	}
	for m := both; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		unionInPlace(y.children[i], x.children[i], off-levelBits)
	}
	for m := onlyX; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		y.children[i] = new(node)
		copyNode(y.children[i], x.children[i], off-levelBits)
	}
}

// Intersection returns a new set containing the values that are
// members of both x and y.
func Intersection(x, y *Set) *Set {
	sameDepth("intersection", x, y)
	z := &Set{offset: x.offset}
	intersect(&z.root, &x.root, &y.root, x.offset)
	return z
}

func intersect(z, x, y *node, off uint) {
	both := x.mask & y.mask
	if off == 0 {
		z.mask = both
		return
	}
	z.mask = 0
	for m := both; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		child := new(node)
		intersect(child, x.children[i], y.children[i], off-levelBits)
		if child.mask == 0 {
			// Disjoint below this prefix.
			continue
		}
		if z.children == nil {
			z.children = new([32]*node)
		}
		z.children[i] = child
		z.mask |= 1 << i
	}
}

// IntersectionInPlace removes from dst every value that is not a
// member of src.
func IntersectionInPlace(dst, src *Set) {
	sameDepth("intersection", dst, src)
	intersectInPlace(&dst.root, &src.root, dst.offset)
}

func intersectInPlace(y, x *node, off uint) {
	if off == 0 {
		y.mask &= x.mask
		return
	}
	for m := y.mask; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		bit := uint32(1) << i
		if x.mask&bit != 0 {
			intersectInPlace(y.children[i], x.children[i], off-levelBits)
			if y.children[i].mask != 0 {
				continue
			}
		}
		y.children[i] = nil
		y.mask &^= bit
	}
	if y.mask == 0 {
		y.children = nil
	}
}

// Intersects reports whether x and y have any member in common.
func Intersects(x, y *Set) bool {
	sameDepth("intersection", x, y)
	return intersects(&x.root, &y.root, x.offset)
}

func intersects(x, y *node, off uint) bool {
	both := x.mask & y.mask
	if off == 0 {
		return both != 0
	}
	for m := both; m != 0; m &= m - 1 {
		i := bits.TrailingZeros32(m)
		if intersects(x.children[i], y.children[i], off-levelBits) {
			return true
		}
	}
	return false
}

// String returns the members of s as a brace-enclosed list of hex
// values.
func (s *Set) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	s.ForEach(func(v uint32) {
		if !first {
			b.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&b, "%#x", v)
	})
	b.WriteByte('}')
	return b.String()
}

// Ranges calls fn for each maximal run [base, base+n) of consecutive
// members, in ascending order.
func (s *Set) Ranges(fn func(base uint32, n int)) {
	var base uint32
	n := 0
	s.ForEach(func(v uint32) {
		if n > 0 && v == base+uint32(n) {
			n++
			return
		}
		if n > 0 {
			fn(base, n)
		}
		base, n = v, 1
	})
	if n > 0 {
		fn(base, n)
	}
}

// Dump writes the internal structure of s to w.
func (s *Set) Dump(w io.Writer) {
	cfg := spew.ConfigState{Indent: "  ", DisablePointerAddresses: true, DisableCapacities: true}
	cfg.Fdump(w, s.dumpTree(&s.root, s.offset, 0))
}

type dumpNode struct {
	Prefix   string
	Offset   uint
	Mask     string
	Children []dumpNode
}

func (s *Set) dumpTree(n *node, off uint, prefix uint32) dumpNode {
	d := dumpNode{Prefix: fmt.Sprintf("%#x", prefix), Offset: off, Mask: fmt.Sprintf("%032b", n.mask)}
	if off == 0 {
		return d
	}
	for m := n.mask; m != 0; m &= m - 1 {
		i := uint32(bits.TrailingZeros32(m))
		d.Children = append(d.Children, s.dumpTree(n.children[i], off-levelBits, prefix|i<<off))
	}
	return d
}
