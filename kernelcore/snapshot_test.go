/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernelcore

import (
	"testing"

	"github.com/hyperware-os/kernel/kerntypes"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	chat := mustPid(t, "chat:chat:sys")
	k.procs[chat] = &kerntypes.PersistedProcess{
		WasmBytesHandle: "deadbeef",
		Capabilities: map[kerntypes.Capability][]byte{
			kerntypes.MessagingCapability("alice.os", chat): []byte("sig"),
		},
		Public: true,
	}

	snap, err := k.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	k2 := newTestKernel(t)
	if err := k2.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got, ok := k2.procs[chat]
	if !ok {
		t.Fatal("expected restored process map to contain chat:chat:sys")
	}
	if got.WasmBytesHandle != "deadbeef" {
		t.Fatalf("expected handle %q, got %q", "deadbeef", got.WasmBytesHandle)
	}
	if !got.Public {
		t.Fatal("expected restored process to still be public")
	}
	if len(got.Capabilities) != 1 {
		t.Fatalf("expected 1 restored capability, got %d", len(got.Capabilities))
	}
}

func TestSnapshotExcludesReservedProcesses(t *testing.T) {
	k := newTestKernel(t)

	snap, err := k.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	k2 := newTestKernel(t)
	before := len(k2.procs)
	if err := k2.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(k2.procs) != before {
		t.Fatalf("expected restoring a snapshot with no user processes to add nothing, had %d now %d", before, len(k2.procs))
	}
}

func TestRestoreOfEmptySnapshotIsNoOp(t *testing.T) {
	k := newTestKernel(t)
	if err := k.Restore(nil); err != nil {
		t.Fatalf("Restore(nil): %v", err)
	}
}

func TestBootstrapGrantsSelfMessagingAndIsPublic(t *testing.T) {
	k := newTestKernel(t)
	id := mustPid(t, "http-server:distro:sys")

	sup := k.Bootstrap(id, kerntypes.OnExit{}, true)
	if sup == nil {
		t.Fatal("expected a non-nil supervisor")
	}
	p, ok := k.procs[id]
	if !ok {
		t.Fatal("expected Bootstrap to add a ProcessMap entry")
	}
	if !p.Public {
		t.Fatal("expected the bootstrapped process to be public")
	}
	if !k.Store.Has(id, kerntypes.MessagingCapability(k.Node, id)) {
		t.Fatal("expected Bootstrap to grant self-messaging capability")
	}
}

func TestBootstrapIsIdempotentOverExistingEntry(t *testing.T) {
	k := newTestKernel(t)
	id := mustPid(t, "http-server:distro:sys")

	k.Bootstrap(id, kerntypes.OnExit{}, true)
	before := len(k.procs)
	k.Bootstrap(id, kerntypes.OnExit{}, true)
	if len(k.procs) != before {
		t.Fatalf("expected Bootstrap to be a no-op on an existing entry, count went from %d to %d", before, len(k.procs))
	}
}
