/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"context"
	"testing"
)

func TestDirVFSWriteThenReadRoundTrip(t *testing.T) {
	v, err := newDirVFS(t.TempDir())
	if err != nil {
		t.Fatalf("newDirVFS: %v", err)
	}
	handle, err := v.WriteModule([]byte("module bytes"))
	if err != nil {
		t.Fatalf("WriteModule: %v", err)
	}
	got, err := v.ReadModule(context.Background(), handle)
	if err != nil {
		t.Fatalf("ReadModule: %v", err)
	}
	if string(got) != "module bytes" {
		t.Fatalf("expected round-tripped bytes, got %q", got)
	}
}

func TestDirVFSWriteModuleIsContentAddressed(t *testing.T) {
	v, err := newDirVFS(t.TempDir())
	if err != nil {
		t.Fatalf("newDirVFS: %v", err)
	}
	h1, err := v.WriteModule([]byte("same bytes"))
	if err != nil {
		t.Fatalf("WriteModule: %v", err)
	}
	h2, err := v.WriteModule([]byte("same bytes"))
	if err != nil {
		t.Fatalf("WriteModule: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical handles for identical bytes, got %q and %q", h1, h2)
	}
}

func TestDirVFSReadUnknownHandleErrors(t *testing.T) {
	v, err := newDirVFS(t.TempDir())
	if err != nil {
		t.Fatalf("newDirVFS: %v", err)
	}
	if _, err := v.ReadModule(context.Background(), "deadbeef"); err == nil {
		t.Fatal("expected an error reading an unknown handle")
	}
}

func TestSanitizeHandleRewritesColons(t *testing.T) {
	got := sanitizeHandle("a:b:c")
	if got != "a_b_c" {
		t.Fatalf("expected colons rewritten to underscores, got %q", got)
	}
}
