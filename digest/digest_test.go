// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"
)

func TestSHA256Truncation(t *testing.T) {
	data := []byte("interleaving")
	full := sha256.Sum256(data)
	want := binary.LittleEndian.Uint32(full[:4])
	if got := Bytes(SHA256, data); got != want {
		t.Fatalf("Bytes(SHA256) = %#x, want %#x", got, want)
	}
}

func TestIncremental(t *testing.T) {
	data := []byte("0123456789abcdef0123456789abcdef")
	for _, name := range Names() {
		f, err := Lookup(name)
		if err != nil {
			t.Fatal(err)
		}
		h := f.New()
		h.Write(data[:5])
		h.Write(data[5:])
		if got, want := Sum32(h), Bytes(f, data); got != want {
			t.Errorf("%s: split digest %#x != whole digest %#x", name, got, want)
		}
		if Bytes(f, data) == Bytes(f, data[1:]) {
			t.Errorf("%s: distinct inputs collide", name)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("md5"); err == nil {
		t.Fatal("Lookup(md5) succeeded")
	}
	if Default.Name() != "xxhash" {
		t.Fatalf("Default = %s", Default.Name())
	}
}
