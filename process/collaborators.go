/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package process

import (
	"context"

	"github.com/hyperware-os/kernel/kerntypes"
)

// StateClient is the black-box state collaborator that
// set/get/clear state round-trips through, with its own 5s timeout
// enforced by the caller.
type StateClient interface {
	SetState(ctx context.Context, id kerntypes.ProcessId, b []byte) error
	GetState(ctx context.Context, id kerntypes.ProcessId) ([]byte, error)
	ClearState(ctx context.Context, id kerntypes.ProcessId) error
}

// VFSClient is the black-box module-bytes collaborator spawn() reads from.
type VFSClient interface {
	ReadModule(ctx context.Context, path string) ([]byte, error)
}

// KernelClient is the subset of kernel-loop commands a supervisor may
// issue on behalf of its hosted module (spawn, and posting outbound
// envelopes back into the event loop).
type KernelClient interface {
	// Send enqueues km for kernel dispatch (local delivery or transport).
	Send(km kerntypes.KernelMessage)
	// InitializeProcess and RunProcess implement the two-step spawn
	// sequence. wasmBytes is handed to the
	// vfs collaborator by the kernel and exchanged for a stored handle.
	InitializeProcess(id kerntypes.ProcessId, wasmBytes []byte, witVersion *uint32, onExit kerntypes.OnExit, initialCaps []kerntypes.Capability, public bool) error
	RunProcess(id kerntypes.ProcessId) error
}

// CapsClient is the supervisor-side handle onto the capabilities oracle.
// Every call crosses into the kernel-loop goroutine (see caps.Op) because
// the oracle's Store is only ever touched from that one goroutine.
type CapsClient interface {
	FilterCaps(on kerntypes.ProcessId, caps []kerntypes.Capability) []kerntypes.SignedCapability
	SaveCapabilities(on kerntypes.ProcessId, caps []kerntypes.Capability) bool
	DropCapabilities(on kerntypes.ProcessId, caps []kerntypes.Capability) bool
	OurCapabilities(on kerntypes.ProcessId) []kerntypes.SignedCapability
}
