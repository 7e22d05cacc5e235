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
	"sync"

	"github.com/hyperware-os/kernel/chancacher"
	"github.com/hyperware-os/kernel/kerntypes"
)

// writeReq is what travels through the pending buffer's channel pipeline.
type writeReq struct {
	id kerntypes.ProcessId
	b  []byte
}

// PendingStore fronts a Store with a chancacher-pattern disk-backed
// buffer. SetState never blocks on the bbolt commit
// itself; GetState/ClearState check the in-memory pending map first so a
// caller always reads its own most recent write even if the background
// commit hasn't landed yet.
type PendingStore struct {
	store *Store
	cc    *chancacher.ChanCacher

	mu      sync.Mutex
	pending map[string][]byte
	cleared map[string]bool

	done chan struct{}
}

// NewPendingStore wraps store with a buffer of depth bufferDepth
// (chancacher.MaxDepth if -1; 0 is unbuffered) backed by spillPath on disk once the buffer
// fills, the same cache-to-disk escape valve chancacher.ChanCacher gives
// the ingest pipeline under backpressure.
func NewPendingStore(store *Store, bufferDepth int, spillPath string) (*PendingStore, error) {
	cc, err := chancacher.NewChanCacher(bufferDepth, spillPath, 0)
	if err != nil {
		return nil, err
	}
	ps := &PendingStore{
		store:   store,
		cc:      cc,
		pending: map[string][]byte{},
		cleared: map[string]bool{},
		done:    make(chan struct{}),
	}
	go ps.drain()
	return ps, nil
}

func (ps *PendingStore) drain() {
	for v := range ps.cc.Out {
		req, ok := v.(writeReq)
		if !ok {
			continue
		}
		ps.store.SetState(context.Background(), req.id, req.b)

		key := req.id.String()
		ps.mu.Lock()
		if pending, ok := ps.pending[key]; ok && string(pending) == string(req.b) {
			delete(ps.pending, key)
		}
		ps.mu.Unlock()
	}
	close(ps.done)
}

// SetState enqueues the write and returns immediately; it lands in the
// underlying Store asynchronously.
func (ps *PendingStore) SetState(_ context.Context, id kerntypes.ProcessId, b []byte) error {
	key := id.String()
	ps.mu.Lock()
	ps.pending[key] = append([]byte(nil), b...)
	delete(ps.cleared, key)
	ps.mu.Unlock()

	ps.cc.In <- writeReq{id: id, b: b}
	return nil
}

// GetState returns the most recently set value, whether or not it has
// been committed to the underlying Store yet.
func (ps *PendingStore) GetState(ctx context.Context, id kerntypes.ProcessId) ([]byte, error) {
	key := id.String()
	ps.mu.Lock()
	if ps.cleared[key] {
		ps.mu.Unlock()
		return nil, nil
	}
	if b, ok := ps.pending[key]; ok {
		ps.mu.Unlock()
		return b, nil
	}
	ps.mu.Unlock()
	return ps.store.GetState(ctx, id)
}

// ClearState removes any pending write for id and deletes it from the
// underlying Store.
func (ps *PendingStore) ClearState(ctx context.Context, id kerntypes.ProcessId) error {
	key := id.String()
	ps.mu.Lock()
	delete(ps.pending, key)
	ps.cleared[key] = true
	ps.mu.Unlock()
	return ps.store.ClearState(ctx, id)
}

// Close stops accepting new writes and waits for the buffer to drain
// into the underlying Store before closing it.
func (ps *PendingStore) Close() error {
	close(ps.cc.In)
	<-ps.done
	return ps.store.Close()
}
