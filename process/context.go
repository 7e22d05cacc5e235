/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package process

import (
	"time"

	"github.com/hyperware-os/kernel/kerntypes"
)

// ProcessContext is the bookkeeping a supervisor keeps per outstanding
// request, so that when (or if) a Response shows up it can be routed back
// to the module with the right prompting message and saved context bytes.
type ProcessContext struct {
	PromptingMessage *kerntypes.KernelMessage
	Context          []byte
}

type contextEntry struct {
	ctx   ProcessContext
	timer *time.Timer
}

// contextTable is the supervisor's `contexts: id -> (ProcessContext,
// timeout_task_handle)` map. It is only ever touched from the
// supervisor's own goroutine, so no lock is needed.
type contextTable struct {
	entries map[uint64]*contextEntry
}

func newContextTable() *contextTable {
	return &contextTable{entries: map[uint64]*contextEntry{}}
}

// insert registers a new outstanding request. onTimeout fires exactly
// once, after d, unless cancelled first by take/remove.
func (t *contextTable) insert(id uint64, pc ProcessContext, d time.Duration, onTimeout func()) {
	var timer *time.Timer
	if d > 0 {
		timer = time.AfterFunc(d, onTimeout)
	}
	t.entries[id] = &contextEntry{ctx: pc, timer: timer}
}

// take removes and returns the entry for id, aborting its timeout task.
// The second return reports whether an entry was present.
func (t *contextTable) take(id uint64) (ProcessContext, bool) {
	e, ok := t.entries[id]
	if !ok {
		return ProcessContext{}, false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(t.entries, id)
	return e.ctx, true
}

func (t *contextTable) has(id uint64) bool {
	_, ok := t.entries[id]
	return ok
}

// freshID returns a random id not already present in the table.
func (t *contextTable) freshID(rng func() uint64) uint64 {
	for {
		id := rng()
		if _, ok := t.entries[id]; !ok {
			return id
		}
	}
}
