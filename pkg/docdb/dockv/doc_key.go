// Copyright 2026 The Atoll Authors.
//
// Use of this software is governed by the Apache License, Version 2.0,
// included in the /LICENSE file.

// Package dockv defines the encoded key/value formats shared by the document
// stores and the conflict resolution engine: document paths, intent records,
// committed version records and transaction metadata records.
package dockv

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Document path components are escaped so that the encoding is both
// prefix-free per component and order-preserving. A raw 0x00 becomes
// {0x00, 0xff} and every component ends with the terminator {0x00, 0x01}.
// The terminator sorts before any escaped byte, so a parent path sorts
// immediately before the subtree of its children.
const (
	escape     byte = 0x00
	escapedNul byte = 0xff
	terminator byte = 0x01
)

// DocKey is the encoded form of a document path: the concatenation of its
// escaped components. The empty DocKey is the root path.
type DocKey []byte

// MakeDocKey encodes a document path from its raw components.
func MakeDocKey(components ...[]byte) DocKey {
	var k DocKey
	for _, c := range components {
		k = appendComponent(k, c)
	}
	return k
}

func appendComponent(k DocKey, c []byte) DocKey {
	for {
		i := bytes.IndexByte(c, escape)
		if i == -1 {
			break
		}
		k = append(k, c[:i]...)
		k = append(k, escape, escapedNul)
		c = c[i+1:]
	}
	k = append(k, c...)
	return append(k, escape, terminator)
}

// Components decodes the raw path components. It returns an error if the
// encoding is malformed.
func (k DocKey) Components() ([][]byte, error) {
	var out [][]byte
	var cur []byte
	rest := []byte(k)
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, escape)
		if i == -1 || i == len(rest)-1 {
			return nil, errors.Errorf("malformed doc key: unterminated component in %q", []byte(k))
		}
		cur = append(cur, rest[:i]...)
		switch rest[i+1] {
		case escapedNul:
			cur = append(cur, escape)
		case terminator:
			if cur == nil {
				cur = []byte{}
			}
			out = append(out, cur)
			cur = nil
		default:
			return nil, errors.Errorf("malformed doc key: invalid escape sequence in %q", []byte(k))
		}
		rest = rest[i+2:]
	}
	if cur != nil {
		return nil, errors.Errorf("malformed doc key: trailing bytes in %q", []byte(k))
	}
	return out, nil
}

// AncestorPrefixes returns the encoded proper ancestors of k, nearest the
// root first. The root itself (the empty DocKey) is not included.
func (k DocKey) AncestorPrefixes() []DocKey {
	var out []DocKey
	for i := 0; i < len(k)-1; i++ {
		if k[i] == escape {
			if k[i+1] == terminator && i+2 < len(k) {
				out = append(out, k[:i+2])
			}
			i++ // skip the second byte of the escape pair
		}
	}
	return out
}

// Equal reports whether two encoded keys are identical.
func (k DocKey) Equal(o DocKey) bool {
	return bytes.Equal(k, o)
}

// Compare returns -1, 0, or 1 per bytes.Compare on the encodings.
func (k DocKey) Compare(o DocKey) int {
	return bytes.Compare(k, o)
}

// String renders the key for diagnostics.
func (k DocKey) String() string {
	return redact.StringWithoutMarkers(k)
}

// SafeFormat implements redact.SafeFormatter. Path components are user data
// and are rendered as unsafe.
func (k DocKey) SafeFormat(w redact.SafePrinter, _ rune) {
	components, err := k.Components()
	if err != nil {
		w.Printf("/?%v", []byte(k))
		return
	}
	for _, c := range components {
		w.Printf("/%s", c)
	}
}

var _ redact.SafeFormatter = DocKey(nil)
