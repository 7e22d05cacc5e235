/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernelcore

import "github.com/hyperware-os/kernel/kerntypes"

// ProcessExited is called by the (out-of-scope) component-
// bytecode execution engine when a hosted module's task ends on its own
// — as opposed to KillProcess, which forcibly tears a process down
// regardless of its OnExit policy. It runs the OnExit behavior described
// and, for Restart, re-launches the process under the same
// id once the backoff-scheduled instant arrives.
func (k *Kernel) ProcessExited(id kerntypes.ProcessId) {
	sup, ok := k.Supervisor(id)
	if !ok {
		return
	}
	p, hasProc := k.procs[id]

	sup.Terminate(func() {
		if !hasProc {
			return
		}
		k.NewSupervisorFor(id, p.WasmBytesHandle, p.WitVersion, p.OnExit, p.Public, k.StateClient, k.ProcessVFS)
		k.deliverRun(id, "run")
	})

	if sup.OnExit.Kind != kerntypes.OnExitRestart {
		k.RemoveSupervisor(id)
		delete(k.procs, id)
		k.Persist()
	}
}
