// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package digest provides the 32-bit content hashes used to compare
// memory images.
//
// A digest carries no meaning beyond equality: two images with the
// same digest are treated as the same end state. Wider hashes are
// truncated to their first four bytes, read little-endian.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"hash/fnv"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2s"
)

// A Func produces a 32-bit digest of a byte stream fed to it in
// pieces.
type Func interface {
	// New returns a fresh hash state.
	New() hash.Hash
	// Name identifies the function in reports.
	Name() string
}

type xxFunc struct{}

func (xxFunc) New() hash.Hash { return xxhash.New() }
func (xxFunc) Name() string   { return "xxhash" }

type shaFunc struct{}

func (shaFunc) New() hash.Hash { return sha256.New() }
func (shaFunc) Name() string   { return "sha256" }

type blakeFunc struct{}

func (blakeFunc) New() hash.Hash {
	h, err := blake2s.New256(nil)
	if err != nil {
		// Only possible with an oversized key.
		panic(err)
	}
	return h
}
func (blakeFunc) Name() string { return "blake2s" }

type fnvFunc struct{}

func (fnvFunc) New() hash.Hash { return fnv.New32a() }
func (fnvFunc) Name() string   { return "fnv1a" }

type crcFunc struct{}

func (crcFunc) New() hash.Hash { return crc32.NewIEEE() }
func (crcFunc) Name() string   { return "crc32" }

var (
	XXHash  Func = xxFunc{}
	SHA256  Func = shaFunc{}
	BLAKE2s Func = blakeFunc{}
	FNV1a   Func = fnvFunc{}
	CRC32   Func = crcFunc{}

	// Default is used when no function is configured.
	Default = XXHash
)

var byName = map[string]Func{}

func init() {
	for _, f := range []Func{XXHash, SHA256, BLAKE2s, FNV1a, CRC32} {
		byName[f.Name()] = f
	}
}

// Lookup returns the function called name.
func Lookup(name string) (Func, error) {
	if f, ok := byName[name]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown digest %q (have %v)", name, Names())
}

// Names returns the names of all known functions in sorted order.
func Names() []string {
	var names []string
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum32 reduces the current state of h to 32 bits.
func Sum32(h hash.Hash) uint32 {
	if h32, ok := h.(hash.Hash32); ok {
		return h32.Sum32()
	}
	sum := h.Sum(nil)
	if len(sum) < 4 {
		var buf [4]byte
		copy(buf[:], sum)
		sum = buf[:]
	}
	return binary.LittleEndian.Uint32(sum)
}

// Bytes returns the digest of b under f.
func Bytes(f Func, b []byte) uint32 {
	h := f.New()
	h.Write(b)
	return Sum32(h)
}
