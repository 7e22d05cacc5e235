/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package statestore is the default embedded implementation of the
// process package's StateClient collaborator: a single bbolt database file holding one flate-compressed
// blob per process id, fronted by a disk-backed pending-write buffer so
// a slow commit never blocks a hosted module's set_state call.
//
// The state collaborator is treated as an external black box; this
// package is the reference/default adapter a single-node deployment or
// the test suite wires in behind that interface, not the only possible
// implementation.
package statestore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/flate"
	bolt "go.etcd.io/bbolt"

	"github.com/hyperware-os/kernel/kerntypes"
)

var processBucket = []byte("process_state")

// Store is a bbolt-backed StateClient. One key per process id, value is
// the caller's bytes flate-compressed.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt database at path and
// ensures the process-state bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("statestore: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(processBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("statestore: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying bbolt database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetState compresses b and stores it under id, overwriting any
// previous value.
func (s *Store) SetState(_ context.Context, id kerntypes.ProcessId, b []byte) error {
	compressed, err := compress(b)
	if err != nil {
		return fmt.Errorf("statestore: compress: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(processBucket).Put(stateKey(id), compressed)
	})
}

// GetState returns the decompressed bytes id last saved, or nil if it
// never called set_state.
func (s *Store) GetState(_ context.Context, id kerntypes.ProcessId) ([]byte, error) {
	var compressed []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(processBucket).Get(stateKey(id)); v != nil {
			compressed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if compressed == nil {
		return nil, nil
	}
	return decompress(compressed)
}

// ClearState removes id's saved blob entirely.
func (s *Store) ClearState(_ context.Context, id kerntypes.ProcessId) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(processBucket).Delete(stateKey(id))
	})
}

func stateKey(id kerntypes.ProcessId) []byte {
	return []byte(id.String())
}

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(b))
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
