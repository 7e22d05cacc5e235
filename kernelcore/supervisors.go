/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernelcore

import (
	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

// NewSupervisorFor builds a process.Supervisor for id wired to this
// kernel's KernelClient/CapsClient adapters, registers it, and returns
// it. Callers still own actually running the hosted module against the
// returned supervisor.
func (k *Kernel) NewSupervisorFor(id kerntypes.ProcessId, wasmHandle string, witVersion *uint32, onExit kerntypes.OnExit, public bool, state process.StateClient, vfs process.VFSClient) *process.Supervisor {
	addr := kerntypes.Address{Node: k.Node, ProcessId: id}
	sup := process.NewSupervisor(
		addr, wasmHandle, witVersion, onExit, public,
		k.Signer.PublicKey(),
		kernelClientAdapter{k: k, source: id},
		capsClientAdapter{ops: k.CapsOpCh},
		state, vfs,
	)
	k.mu.Lock()
	k.supervisors[id] = sup
	k.mu.Unlock()
	return sup
}

// Bootstrap registers a built-in local process the outer binary runs
// itself rather than a hosted wasm module (e.g. the HTTP ingress
// gateway at a reserved address) and wires it a supervisor, following
// the same ProcessMap-entry-plus-self-messaging-capability bookkeeping
// doInitializeProcess gives an ordinary spawned process. Calling it
// again for an id already present (typically one recovered by Restore)
// is a no-op over the existing ProcessMap entry rather than a NameTaken
// error, so the outer binary can call it unconditionally on every boot.
func (k *Kernel) Bootstrap(id kerntypes.ProcessId, onExit kerntypes.OnExit, public bool) *process.Supervisor {
	p, exists := k.procs[id]
	if !exists {
		p = &kerntypes.PersistedProcess{OnExit: onExit, Capabilities: map[kerntypes.Capability][]byte{}, Public: public}
		k.procs[id] = p
		k.Store.Add(id, []kerntypes.Capability{kerntypes.MessagingCapability(k.Node, id)})
	}
	return k.NewSupervisorFor(id, p.WasmBytesHandle, p.WitVersion, p.OnExit, p.Public, k.StateClient, k.ProcessVFS)
}

// Supervisor looks up the registered supervisor for id, if any.
func (k *Kernel) Supervisor(id kerntypes.ProcessId) (*process.Supervisor, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	sup, ok := k.supervisors[id]
	return sup, ok
}

// RemoveSupervisor drops the bookkeeping entry without shutting the
// supervisor down; ProcessExited uses it. doKillProcess removes its
// entry inline instead, holding the lock once for both the lookup and
// the delete.
func (k *Kernel) RemoveSupervisor(id kerntypes.ProcessId) {
	k.mu.Lock()
	delete(k.supervisors, id)
	k.mu.Unlock()
}
