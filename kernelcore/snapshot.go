/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernelcore

import (
	"encoding/json"

	"github.com/hyperware-os/kernel/kerntypes"
)

// snapshotEntry pairs a ProcessId with its persisted metadata. ProcessId
// has no TextMarshaler, so a map keyed by it cannot round-trip through
// encoding/json directly; a flat slice sidesteps that without teaching
// kerntypes anything about its own serialization.
type snapshotEntry struct {
	ID      kerntypes.ProcessId         `json:"id"`
	Process kerntypes.PersistedProcess `json:"process"`
}

// Snapshot serializes the current ProcessMap to a single blob, keyed in
// the state store under the kernel's own reserved process id.
// Callers are expected to invoke this from the Persister passed to New
// and hand the result to the state collaborator themselves; the kernel
// has no state-collaborator handle of its own to avoid a second, narrower
// copy of process.StateClient's timeout/retry policy living here too.
func (k *Kernel) Snapshot() ([]byte, error) {
	entries := make([]snapshotEntry, 0, len(k.procs))
	for id, p := range k.procs {
		if id.IsReserved() {
			continue
		}
		entries = append(entries, snapshotEntry{ID: id, Process: *p})
	}
	return json.Marshal(entries)
}

// Restore replaces the ProcessMap with a previously captured Snapshot.
// It must be called before Run, while nothing else can observe k.procs.
// Restore does not recreate supervisors; callers still decide which
// persisted processes to actually respawn.
func (k *Kernel) Restore(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		p := e.Process
		k.procs[e.ID] = &p
	}
	return nil
}
