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
	"errors"

	"github.com/hyperware-os/kernel/caps"
	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

// CommandKind tags the body of a Request targeting the kernel process.
// The body is JSON: this is kernel-
// internal IPC the kernel both produces and consumes, not wire traffic
// that ever leaves the node, so there is no pack library (protobuf,
// cbor) better suited than the standard encoding/json already used for
// exactly this kind of self-describing tagged-union payload.
type CommandKind string

const (
	CmdShutdown           CommandKind = "Shutdown"
	CmdBooted             CommandKind = "Booted"
	CmdInitializeProcess  CommandKind = "InitializeProcess"
	CmdGrantCapabilities  CommandKind = "GrantCapabilities"
	CmdDropCapabilities   CommandKind = "DropCapabilities"
	CmdSetOnExit          CommandKind = "SetOnExit"
	CmdRunProcess         CommandKind = "RunProcess"
	CmdKillProcess        CommandKind = "KillProcess"
	CmdDebug              CommandKind = "Debug"
)

type Command struct {
	Kind                CommandKind           `json:"kind"`
	ID                  kerntypes.ProcessId    `json:"id"`
	WitVersion          *uint32               `json:"wit_version,omitempty"`
	OnExit              kerntypes.OnExit      `json:"on_exit"`
	InitialCapabilities []kerntypes.Capability `json:"initial_capabilities,omitempty"`
	Public              bool                  `json:"public"`
	Target              kerntypes.ProcessId    `json:"target"`
	Capabilities        []kerntypes.Capability `json:"capabilities,omitempty"`
	DebugKind           string                `json:"debug_kind,omitempty"`
}

type CommandResponse struct {
	Kind      CommandKind        `json:"kind"`
	Error     string             `json:"error,omitempty"`
	ProcessId kerntypes.ProcessId `json:"id,omitempty"`
}

func (k *Kernel) respond(km kerntypes.KernelMessage, cr CommandResponse) {
	if !km.ExpectsResponse() {
		return
	}
	body, _ := json.Marshal(cr)
	target := km.Source
	if km.RSVP != nil {
		target = *km.RSVP
	}
	resp := kerntypes.KernelMessage{
		ID:      km.ID,
		Source:  kerntypes.Address{Node: k.Node, ProcessId: kernelPid},
		Target:  target,
		Message: kerntypes.Message{Response: &kerntypes.Response{Body: body}},
	}
	k.route(resp)
}

// handleKernelCommand dispatches a Request targeting the kernel process.
// It runs on the event-loop goroutine, so
// it may freely mutate k.procs/k.reverse/k.supervisors.
func (k *Kernel) handleKernelCommand(km kerntypes.KernelMessage) {
	if km.Message.Request == nil {
		return
	}
	var cmd Command
	if err := json.Unmarshal(km.Message.Request.Body, &cmd); err != nil {
		k.respond(km, CommandResponse{Kind: "Error", Error: "malformed kernel command"})
		return
	}

	switch cmd.Kind {
	case CmdShutdown:
		k.Shutdown()

	case CmdBooted:
		for pid := range k.procs {
			if pid.Equal(kernelPid) {
				continue
			}
			k.deliverRun(pid, "run")
		}

	case CmdInitializeProcess:
		id, err := k.doInitializeProcess(km.Source.ProcessId, cmd.ID, km.Blob, cmd.WitVersion, cmd.OnExit, cmd.InitialCapabilities, cmd.Public)
		if err != nil {
			k.respond(km, CommandResponse{Kind: "InitializeProcessError", Error: err.Error()})
			return
		}
		k.respond(km, CommandResponse{Kind: "InitializedProcess", ProcessId: id})

	case CmdGrantCapabilities:
		k.Store.Add(cmd.Target, cmd.Capabilities)

	case CmdDropCapabilities:
		k.Store.Drop(cmd.Target, cmd.Capabilities)

	case CmdSetOnExit:
		if p, ok := k.procs[cmd.Target]; ok {
			p.OnExit = cmd.OnExit
			if sup, ok := k.Supervisor(cmd.Target); ok {
				sup.OnExit = cmd.OnExit
			}
			k.Persist()
		}

	case CmdRunProcess:
		k.deliverRun(cmd.ID, "run")

	case CmdKillProcess:
		k.doKillProcess(cmd.ID, km.Message.Request.Metadata)
		k.respond(km, CommandResponse{Kind: "KilledProcess", ProcessId: cmd.ID})

	case CmdDebug:
		// introspection only
	}
}

func (k *Kernel) deliverRun(pid kerntypes.ProcessId, body string) {
	k.mu.RLock()
	sup, ok := k.supervisors[pid]
	k.mu.RUnlock()
	if !ok {
		return
	}
	sup.Deliver(process.InboundMsg{KM: &kerntypes.KernelMessage{
		ID:      freshID(),
		Source:  kerntypes.Address{Node: k.Node, ProcessId: kernelPid},
		Target:  kerntypes.Address{Node: k.Node, ProcessId: pid},
		Message: kerntypes.Message{Request: &kerntypes.Request{Body: []byte(body)}},
	}})
}

var errNameTaken = errors.New("process id already in use")

// doInitializeProcess implements the InitializeProcess command.
// Shared between the JSON kernel-command path (any requester) and the
// direct kernelOp path used by process.Spawn.
func (k *Kernel) doInitializeProcess(source kerntypes.ProcessId, id kerntypes.ProcessId, blob *kerntypes.Blob, witVersion *uint32, onExit kerntypes.OnExit, initialCaps []kerntypes.Capability, public bool) (kerntypes.ProcessId, error) {
	if _, exists := k.procs[id]; exists {
		return kerntypes.ProcessId{}, errNameTaken
	}
	var handle string
	if blob != nil && k.VFS != nil {
		h, err := k.VFS.WriteModule(blob.Bytes)
		if err != nil {
			return kerntypes.ProcessId{}, err
		}
		handle = h
	}

	k.procs[id] = &kerntypes.PersistedProcess{
		WasmBytesHandle: handle,
		WitVersion:      witVersion,
		OnExit:          onExit,
		Capabilities:    map[kerntypes.Capability][]byte{},
		Public:          public,
	}

	k.Store.Add(id, []kerntypes.Capability{kerntypes.MessagingCapability(k.Node, id)})

	if source.Equal(kernelPid) {
		k.Store.Add(id, initialCaps)
	} else {
		filtered := k.Store.FilterCaps(source, initialCaps)
		k.Store.AddSigned(id, filtered)
	}

	if onExit.Kind != kerntypes.OnExitNone {
		k.Persist()
	}

	k.NewSupervisorFor(id, handle, witVersion, onExit, public, k.StateClient, k.ProcessVFS)

	return id, nil
}

func (k *Kernel) doKillProcess(id kerntypes.ProcessId, metadata *string) {
	k.mu.Lock()
	sup, ok := k.supervisors[id]
	if ok {
		delete(k.supervisors, id)
	}
	k.mu.Unlock()
	if ok {
		sup.Shutdown()
	}
	delete(k.procs, id)
	if metadata == nil || *metadata != "no-revoke" {
		k.Store.RevokeAll(id)
	}
	k.Persist()
}

// kernelOp is the internal 5th select arm: a direct, synchronous
// request/reply pair used by process.Spawn to invoke
// InitializeProcess/RunProcess without round-tripping a serialized
// Command through the message channel. A process-capable host language models
// this as the supervisor calling straight into the kernel task; Go has
// no such shared-memory shortcut across goroutines, so a dedicated
// channel stands in for it.
type kernelOpKind int

const (
	kernelOpInitialize kernelOpKind = iota
	kernelOpRun
)

type kernelOp struct {
	kind        kernelOpKind
	source      kerntypes.ProcessId
	id          kerntypes.ProcessId
	wasmBytes   []byte
	witVersion  *uint32
	onExit      kerntypes.OnExit
	initialCaps []kerntypes.Capability
	public      bool
	reply       chan error
}

func (k *Kernel) handleKernelOp(op kernelOp) {
	switch op.kind {
	case kernelOpInitialize:
		var blob *kerntypes.Blob
		if op.wasmBytes != nil {
			blob = &kerntypes.Blob{Bytes: op.wasmBytes}
		}
		_, err := k.doInitializeProcess(op.source, op.id, blob, op.witVersion, op.onExit, op.initialCaps, op.public)
		op.reply <- err
	case kernelOpRun:
		k.deliverRun(op.id, "run")
		op.reply <- nil
	}
}

// kernelClientAdapter implements process.KernelClient against a Kernel.
type kernelClientAdapter struct {
	k      *Kernel
	source kerntypes.ProcessId
}

func (a kernelClientAdapter) Send(km kerntypes.KernelMessage) { a.k.Send(km) }

func (a kernelClientAdapter) InitializeProcess(id kerntypes.ProcessId, wasmBytes []byte, witVersion *uint32, onExit kerntypes.OnExit, initialCaps []kerntypes.Capability, public bool) error {
	reply := make(chan error, 1)
	a.k.KernelOpCh <- kernelOp{kind: kernelOpInitialize, source: a.source, id: id, wasmBytes: wasmBytes, witVersion: witVersion, onExit: onExit, initialCaps: initialCaps, public: public, reply: reply}
	return <-reply
}

func (a kernelClientAdapter) RunProcess(id kerntypes.ProcessId) error {
	reply := make(chan error, 1)
	a.k.KernelOpCh <- kernelOp{kind: kernelOpRun, id: id, reply: reply}
	return <-reply
}

// capsClientAdapter implements process.CapsClient by posting to the
// kernel's CapsOpCh and blocking for the one-shot reply.
type capsClientAdapter struct {
	ops chan<- caps.Op
}

func (a capsClientAdapter) FilterCaps(on kerntypes.ProcessId, cs []kerntypes.Capability) []kerntypes.SignedCapability {
	reply := make(chan caps.OpResult, 1)
	a.ops <- caps.Op{Kind: caps.OpFilterCaps, On: on, Caps: cs, Reply: reply}
	return (<-reply).Filtered
}

func (a capsClientAdapter) SaveCapabilities(on kerntypes.ProcessId, cs []kerntypes.Capability) bool {
	reply := make(chan caps.OpResult, 1)
	a.ops <- caps.Op{Kind: caps.OpAdd, On: on, Caps: cs, Reply: reply}
	return (<-reply).OK
}

func (a capsClientAdapter) DropCapabilities(on kerntypes.ProcessId, cs []kerntypes.Capability) bool {
	reply := make(chan caps.OpResult, 1)
	a.ops <- caps.Op{Kind: caps.OpDrop, On: on, Caps: cs, Reply: reply}
	return (<-reply).OK
}

func (a capsClientAdapter) OurCapabilities(on kerntypes.ProcessId) []kerntypes.SignedCapability {
	reply := make(chan caps.OpResult, 1)
	a.ops <- caps.Op{Kind: caps.OpGetAll, On: on, Reply: reply}
	return (<-reply).All
}
