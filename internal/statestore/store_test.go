/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package statestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperware-os/kernel/kerntypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPid(t *testing.T) kerntypes.ProcessId {
	t.Helper()
	pid, err := kerntypes.ParseProcessId("chat:chat:sys")
	if err != nil {
		t.Fatal(err)
	}
	return pid
}

func TestSetStateGetStateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	id := testPid(t)
	ctx := context.Background()

	if err := s.SetState(ctx, id, []byte("hello world")); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, err := s.GetState(ctx, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("expected round-tripped bytes, got %q", got)
	}
}

func TestGetStateEmptyReturnsNilNotError(t *testing.T) {
	s := openTestStore(t)
	id := testPid(t)

	got, err := s.GetState(context.Background(), id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for a process that never set state, got %v", got)
	}
}

func TestSetStateOverwritesPreviousValue(t *testing.T) {
	s := openTestStore(t)
	id := testPid(t)
	ctx := context.Background()

	s.SetState(ctx, id, []byte("first"))
	s.SetState(ctx, id, []byte("second"))

	got, err := s.GetState(ctx, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected overwritten value 'second', got %q", got)
	}
}

func TestClearStateRemovesValue(t *testing.T) {
	s := openTestStore(t)
	id := testPid(t)
	ctx := context.Background()

	s.SetState(ctx, id, []byte("data"))
	if err := s.ClearState(ctx, id); err != nil {
		t.Fatalf("ClearState: %v", err)
	}
	got, err := s.GetState(ctx, id)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after ClearState, got %v", got)
	}
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	orig := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for compressibility")
	c, err := compress(orig)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(c) == 0 {
		t.Fatal("expected non-empty compressed output")
	}
	d, err := decompress(c)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(d) != string(orig) {
		t.Fatalf("round trip mismatch: got %q want %q", d, orig)
	}
}
