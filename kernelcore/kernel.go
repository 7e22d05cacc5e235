/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package kernelcore implements the kernel event loop: the
// sole owner of ProcessMap and the reverse capability index, the sole
// dispatcher of KernelMessages, and the sole site of the capability
// enforcement gate.
//
// Grounded on ingest/muxer.go: a single dispatch goroutine
// selecting over several channels (acks, shutdown, new connections) and
// owning the muxer's connection table without a lock, because nothing
// else ever touches that table concurrently.
package kernelcore

import (
	"math/rand/v2"
	"sync"

	"github.com/hyperware-os/kernel/caps"
	"github.com/hyperware-os/kernel/internal/klog"
	"github.com/hyperware-os/kernel/internal/nodekey"
	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

// Transport is the black-box peer-to-peer networking collaborator that outbound, non-local KernelMessages are handed to. Send is
// fire-and-forget: delivery failures surface later, asynchronously, on
// the kernel's NetErrCh rather than as a return
// value, since a real transport only learns of an unreachable peer or an
// unacked send well after the call that initiated it.
type Transport interface {
	Send(km kerntypes.KernelMessage)
}

// TransportFailure is what the transport collaborator posts to NetErrCh:
// the NetworkError to deliver, plus which local process originated the
// undeliverable send and must receive it.
type TransportFailure struct {
	Origin kerntypes.ProcessId
	Error  kerntypes.NetworkError
}

// VFSWriter is the half of the vfs collaborator the kernel needs:
// exchanging wasm module bytes for a stored handle at InitializeProcess
// time. Reads (process.VFSClient) are a separate, process-facing seam.
type VFSWriter interface {
	WriteModule(bytes []byte) (handle string, err error)
}

// DebugCommandKind enumerates the debug channel's verbs.
type DebugCommandKind int

const (
	DebugStep DebugCommandKind = iota
	DebugToggleStepthrough
	DebugToggleVerbose
	DebugToggleProcessVerbose
)

type DebugCommand struct {
	Kind    DebugCommandKind
	Process kerntypes.ProcessId
}

// Kernel is the event loop itself.
type Kernel struct {
	Node   string
	Signer nodekey.NodeKey
	Store  *caps.Store
	Log    *klog.Logger

	Transport Transport
	VFS       VFSWriter
	Persist   func()

	// StateClient and ProcessVFS are the shared collaborators every
	// supervisor created by this kernel is wired to: one
	// state-storage service and one vfs-read service for the whole
	// node, each addressed per call by ProcessId.
	StateClient process.StateClient
	ProcessVFS  process.VFSClient

	procs   caps.ProcessMap
	reverse caps.ReverseIndex

	mu          sync.RWMutex // guards supervisors only (read from non-loop goroutines for Send())
	supervisors map[kerntypes.ProcessId]*process.Supervisor

	DebugCh    chan DebugCommand
	NetErrCh   chan TransportFailure
	MsgCh      chan kerntypes.KernelMessage
	CapsOpCh   chan caps.Op
	KernelOpCh chan kernelOp

	stepthrough   bool
	verbose       bool
	quit          chan struct{}
}

var kernelPid = kerntypes.ProcessId{Process: kerntypes.KernelProcess, Package: kerntypes.KernelProcess, Publisher: kerntypes.KernelProcess}

// New constructs a Kernel with empty ProcessMap/reverse index. Channel
// buffer sizes follow ingest/muxer.go's convention of generously
// buffered control channels and a larger main message channel.
func New(node string, signer nodekey.NodeKey, transport Transport, vfs VFSWriter, persist func(), log *klog.Logger) *Kernel {
	procs := caps.ProcessMap{}
	reverse := caps.ReverseIndex{}
	k := &Kernel{
		Node:        node,
		Signer:      signer,
		Transport:   transport,
		VFS:         vfs,
		Persist:     persist,
		Log:         log,
		procs:       procs,
		reverse:     reverse,
		supervisors: map[kerntypes.ProcessId]*process.Supervisor{},
		DebugCh:     make(chan DebugCommand, 16),
		NetErrCh:    make(chan TransportFailure, 256),
		MsgCh:       make(chan kerntypes.KernelMessage, 1024),
		CapsOpCh:    make(chan caps.Op, 256),
		KernelOpCh:  make(chan kernelOp, 64),
		quit:        make(chan struct{}),
	}
	persistFn := persist
	if persistFn == nil {
		persistFn = func() {}
	}
	k.Store = caps.NewStore(node, signer, procs, reverse, persistFn)
	// kernel, state and vfs are always-resolvable reserved entries so the
	// capability gate's "both local, source is reserved" branch and
	// messaging-capability bookkeeping have somewhere to point.
	for _, pid := range []kerntypes.ProcessId{kernelPid, {Process: kerntypes.StateProcess, Package: kerntypes.StateProcess, Publisher: kerntypes.StateProcess}, {Process: kerntypes.VFSProcess, Package: kerntypes.VFSProcess, Publisher: kerntypes.VFSProcess}} {
		k.procs[pid] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}, Public: true}
	}
	return k
}

// Shutdown stops the event loop after the current select iteration.
func (k *Kernel) Shutdown() { close(k.quit) }

func freshID() uint64 { return rand.Uint64() }
