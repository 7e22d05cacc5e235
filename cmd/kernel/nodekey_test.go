/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestLoadOrGenerateNodeKeyPersistsAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.seed")

	first, err := loadOrGenerateNodeKey(path)
	if err != nil {
		t.Fatalf("loadOrGenerateNodeKey: %v", err)
	}
	second, err := loadOrGenerateNodeKey(path)
	if err != nil {
		t.Fatalf("loadOrGenerateNodeKey (second call): %v", err)
	}
	if !bytes.Equal(first.PublicKey(), second.PublicKey()) {
		t.Fatal("expected the same node identity to be recovered from the persisted seed")
	}
}

func TestLoadOrGenerateNodeKeyDiffersAcrossHomes(t *testing.T) {
	a, err := loadOrGenerateNodeKey(filepath.Join(t.TempDir(), "node.seed"))
	if err != nil {
		t.Fatalf("loadOrGenerateNodeKey: %v", err)
	}
	b, err := loadOrGenerateNodeKey(filepath.Join(t.TempDir(), "node.seed"))
	if err != nil {
		t.Fatalf("loadOrGenerateNodeKey: %v", err)
	}
	if bytes.Equal(a.PublicKey(), b.PublicKey()) {
		t.Fatal("expected freshly generated identities in distinct homes to differ")
	}
}
