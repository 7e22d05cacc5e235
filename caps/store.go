/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package caps implements the capabilities oracle: the
// authoritative store of (holder -> {capability -> signature}) plus the
// reverse capability index, and the Add/Drop/Has/GetAll/RevokeAll/
// FilterCaps operations over it.
//
// The oracle is co-located with the kernel's ProcessMap rather than run as
// its own goroutine: Store's methods are plain function calls meant to be
// invoked only from the single event-loop goroutine that owns the
// ProcessMap, which is what lets the kernel enforce capabilities and
// mutate the map without a lock. Op/Reply exist so
// that other goroutines (process supervisors) can ask for a mutation by
// posting to a channel the loop selects on; the loop then calls straight
// into Store and replies.
package caps

import (
	"github.com/hyperware-os/kernel/internal/nodekey"
	"github.com/hyperware-os/kernel/kerntypes"
)

// ProcessMap is the kernel's canonical process registry. It is owned
// exclusively by the event-loop goroutine; Store never copies it out.
type ProcessMap = map[kerntypes.ProcessId]*kerntypes.PersistedProcess

// ReverseIndex is issuer_process -> grantee_process -> capabilities.
type ReverseIndex = map[kerntypes.ProcessId]map[kerntypes.ProcessId][]kerntypes.Capability

// Persister is called after a meaningful mutation so the kernel can emit
// the SetState trigger for persistence. It takes no arguments: Store
// calls it when the mutated process's on_exit is not None, and
// unconditionally when no process record is involved.
type Persister func()

// Store is the oracle itself.
type Store struct {
	node    string
	signer  nodekey.NodeKey
	procs   ProcessMap
	reverse ReverseIndex
	persist Persister
}

func NewStore(node string, signer nodekey.NodeKey, procs ProcessMap, reverse ReverseIndex, persist Persister) *Store {
	if reverse == nil {
		reverse = ReverseIndex{}
	}
	return &Store{node: node, signer: signer, procs: procs, reverse: reverse, persist: persist}
}

func (s *Store) maybePersist(p *kerntypes.PersistedProcess) {
	if p == nil || p.OnExit.Kind != kerntypes.OnExitNone {
		s.persist()
	}
}

func (s *Store) addReverse(issuer, grantee kerntypes.ProcessId, c kerntypes.Capability) {
	if s.reverse[issuer] == nil {
		s.reverse[issuer] = map[kerntypes.ProcessId][]kerntypes.Capability{}
	}
	lst := s.reverse[issuer][grantee]
	for _, existing := range lst {
		if existing.Equal(c) {
			return
		}
	}
	s.reverse[issuer][grantee] = append(lst, c)
}

func (s *Store) removeReverse(issuer, grantee kerntypes.ProcessId, c kerntypes.Capability) {
	lst := s.reverse[issuer][grantee]
	out := lst[:0]
	for _, existing := range lst {
		if !existing.Equal(c) {
			out = append(out, existing)
		}
	}
	if len(out) == 0 {
		delete(s.reverse[issuer], grantee)
		if len(s.reverse[issuer]) == 0 {
			delete(s.reverse, issuer)
		}
	} else {
		s.reverse[issuer][grantee] = out
	}
}

// Add signs each cap with the node key, inserts it into on's capability
// set, and updates the reverse index. Reports false if on is unknown.
func (s *Store) Add(on kerntypes.ProcessId, caps []kerntypes.Capability) bool {
	p, ok := s.procs[on]
	if !ok {
		return false
	}
	if p.Capabilities == nil {
		p.Capabilities = map[kerntypes.Capability][]byte{}
	}
	for _, c := range caps {
		sc := s.signer.Sign(c)
		p.Capabilities[c] = sc.Signature
		s.addReverse(c.Issuer.ProcessId, on, c)
	}
	s.maybePersist(p)
	return true
}

// AddSigned inserts already-signed capabilities as-is, without
// re-signing. Used when a new process's initial capabilities are copied
// from a non-kernel source that already held valid signed copies.
func (s *Store) AddSigned(on kerntypes.ProcessId, scs []kerntypes.SignedCapability) bool {
	p, ok := s.procs[on]
	if !ok {
		return false
	}
	if p.Capabilities == nil {
		p.Capabilities = map[kerntypes.Capability][]byte{}
	}
	for _, sc := range scs {
		p.Capabilities[sc.Capability] = sc.Signature
		s.addReverse(sc.Capability.Issuer.ProcessId, on, sc.Capability)
	}
	s.maybePersist(p)
	return true
}

// Drop removes caps from on's capability set (structural removal only).
func (s *Store) Drop(on kerntypes.ProcessId, caps []kerntypes.Capability) bool {
	p, ok := s.procs[on]
	if !ok {
		return false
	}
	for _, c := range caps {
		delete(p.Capabilities, c)
		s.removeReverse(c.Issuer.ProcessId, on, c)
	}
	s.maybePersist(p)
	return true
}

// Has reports whether on currently holds cap.
func (s *Store) Has(on kerntypes.ProcessId, cap kerntypes.Capability) bool {
	p, ok := s.procs[on]
	if !ok {
		return false
	}
	_, ok = p.Capabilities[cap]
	return ok
}

// GetAll returns every (capability, signature) pair held by on.
func (s *Store) GetAll(on kerntypes.ProcessId) []kerntypes.SignedCapability {
	p, ok := s.procs[on]
	if !ok {
		return nil
	}
	out := make([]kerntypes.SignedCapability, 0, len(p.Capabilities))
	for c, sig := range p.Capabilities {
		out = append(out, kerntypes.SignedCapability{Capability: c, Signature: sig})
	}
	return out
}

// RevokeAll strips every capability on previously granted to others, per
// the reverse index, from each of those grantees.
func (s *Store) RevokeAll(on kerntypes.ProcessId) {
	grantees := s.reverse[on]
	for grantee, capList := range grantees {
		p, ok := s.procs[grantee]
		if !ok {
			continue
		}
		for _, c := range capList {
			delete(p.Capabilities, c)
		}
		s.maybePersist(p)
	}
	delete(s.reverse, on)
}

// FilterCaps re-signs self-issued capabilities fresh, and for everything
// else only lets through caps that on genuinely already holds (attaching
// the stored signature), dropping anything not present.
func (s *Store) FilterCaps(on kerntypes.ProcessId, caps []kerntypes.Capability) []kerntypes.SignedCapability {
	p, ok := s.procs[on]
	if !ok {
		return nil
	}
	out := make([]kerntypes.SignedCapability, 0, len(caps))
	for _, c := range caps {
		if c.Issuer.ProcessId.Equal(on) {
			out = append(out, s.signer.Sign(c))
			continue
		}
		if sig, ok := p.Capabilities[c]; ok {
			out = append(out, kerntypes.SignedCapability{Capability: c, Signature: sig})
		}
	}
	return out
}

// Op is a tagged oracle request posted over a channel by a process
// supervisor; the event loop receives it as one arm of its select and
// dispatches into the Store methods above before replying on Reply.
type Op struct {
	Kind  OpKind
	On    kerntypes.ProcessId
	Caps  []kerntypes.Capability
	Cap   kerntypes.Capability
	Reply chan OpResult
}

type OpKind int

const (
	OpAdd OpKind = iota
	OpDrop
	OpHas
	OpGetAll
	OpRevokeAll
	OpFilterCaps
)

type OpResult struct {
	OK      bool
	Has     bool
	All     []kerntypes.SignedCapability
	Filtered []kerntypes.SignedCapability
}

// Dispatch executes op against the store and, if op.Reply is non-nil,
// sends the result. It is meant to be called from the kernel loop's
// select arm for the oracle channel.
func (s *Store) Dispatch(op Op) {
	var res OpResult
	switch op.Kind {
	case OpAdd:
		res.OK = s.Add(op.On, op.Caps)
	case OpDrop:
		res.OK = s.Drop(op.On, op.Caps)
	case OpHas:
		res.Has = s.Has(op.On, op.Cap)
	case OpGetAll:
		res.All = s.GetAll(op.On)
	case OpRevokeAll:
		s.RevokeAll(op.On)
		res.OK = true
	case OpFilterCaps:
		res.Filtered = s.FilterCaps(op.On, op.Caps)
	}
	if op.Reply != nil {
		op.Reply <- res
	}
}
