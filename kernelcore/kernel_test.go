/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernelcore

import (
	"context"
	"testing"
	"time"

	"github.com/hyperware-os/kernel/internal/klog"
	"github.com/hyperware-os/kernel/internal/nodekey"
	"github.com/hyperware-os/kernel/kerntypes"
)

type fakeTransport struct{ sent []kerntypes.KernelMessage }

func (f *fakeTransport) Send(km kerntypes.KernelMessage) { f.sent = append(f.sent, km) }

type fakeState struct{}

func (fakeState) SetState(context.Context, kerntypes.ProcessId, []byte) error      { return nil }
func (fakeState) GetState(context.Context, kerntypes.ProcessId) ([]byte, error)     { return nil, nil }
func (fakeState) ClearState(context.Context, kerntypes.ProcessId) error             { return nil }

type fakeVFS struct{}

func (fakeVFS) ReadModule(context.Context, string) ([]byte, error) { return []byte("wasm"), nil }

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	signer, err := nodekey.Generate()
	if err != nil {
		t.Fatalf("nodekey.Generate: %v", err)
	}
	k := New("alice.os", signer, &fakeTransport{}, nil, func() {}, klog.NewDiscard())
	k.StateClient = fakeState{}
	k.ProcessVFS = fakeVFS{}
	return k
}

func mustPid(t *testing.T, s string) kerntypes.ProcessId {
	t.Helper()
	pid, err := kerntypes.ParseProcessId(s)
	if err != nil {
		t.Fatalf("ParseProcessId(%q): %v", s, err)
	}
	return pid
}

func TestGateBothLocalRequiresMessagingCapability(t *testing.T) {
	k := newTestKernel(t)
	chat := mustPid(t, "chat:chat:sys")
	term := mustPid(t, "term:term:sys")
	k.procs[chat] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}
	k.procs[term] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}

	km := kerntypes.KernelMessage{
		Source: kerntypes.Address{Node: "alice.os", ProcessId: chat},
		Target: kerntypes.Address{Node: "alice.os", ProcessId: term},
	}
	if k.gate(km) {
		t.Fatal("gate should deny local messaging without a granted capability")
	}

	k.Store.Add(chat, []kerntypes.Capability{kerntypes.MessagingCapability("alice.os", term)})
	if !k.gate(km) {
		t.Fatal("gate should allow local messaging once the capability is granted")
	}
}

func TestGatePublicTargetBypassesCapability(t *testing.T) {
	k := newTestKernel(t)
	chat := mustPid(t, "chat:chat:sys")
	pub := mustPid(t, "pub:pub:sys")
	k.procs[chat] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}
	k.procs[pub] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}, Public: true}

	km := kerntypes.KernelMessage{
		Source: kerntypes.Address{Node: "alice.os", ProcessId: chat},
		Target: kerntypes.Address{Node: "alice.os", ProcessId: pub},
	}
	if !k.gate(km) {
		t.Fatal("gate should allow messages to a public target regardless of capability")
	}
}

func TestGateOutboundNetworkRequiresNetworkCapability(t *testing.T) {
	k := newTestKernel(t)
	chat := mustPid(t, "chat:chat:sys")
	k.procs[chat] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}

	km := kerntypes.KernelMessage{
		Source: kerntypes.Address{Node: "alice.os", ProcessId: chat},
		Target: kerntypes.Address{Node: "bob.os", ProcessId: chat},
	}
	if k.gate(km) {
		t.Fatal("gate should deny outbound network send without the network capability")
	}
	k.Store.Add(chat, []kerntypes.Capability{kerntypes.NetworkCapability("alice.os")})
	if !k.gate(km) {
		t.Fatal("gate should allow outbound network send once network capability is granted")
	}
}

func TestRouteDeliversToLocalSupervisor(t *testing.T) {
	k := newTestKernel(t)
	go k.Run()
	defer k.Shutdown()

	term := mustPid(t, "term:term:sys")
	sup := k.NewSupervisorFor(term, "h", nil, kerntypes.OnExit{}, false, k.StateClient, k.ProcessVFS)
	k.procs[term] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}

	chat := mustPid(t, "chat:chat:sys")
	k.procs[chat] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}
	k.Store.Add(chat, []kerntypes.Capability{kerntypes.MessagingCapability("alice.os", term)})

	k.MsgCh <- kerntypes.KernelMessage{
		ID:     1,
		Source: kerntypes.Address{Node: "alice.os", ProcessId: chat},
		Target: kerntypes.Address{Node: "alice.os", ProcessId: term},
		Message: kerntypes.Message{Request: &kerntypes.Request{Body: []byte("hi")}},
	}

	msg, err := sup.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.KM == nil || string(msg.KM.Message.Request.Body) != "hi" {
		t.Fatalf("expected routed request, got %+v", msg)
	}
}

func TestInitializeProcessViaKernelOp(t *testing.T) {
	k := newTestKernel(t)
	go k.Run()
	defer k.Shutdown()

	id := mustPid(t, "newapp:newapp:sys")
	reply := make(chan error, 1)
	k.KernelOpCh <- kernelOp{kind: kernelOpInitialize, source: kernelPid, id: id, wasmBytes: []byte("x"), reply: reply}
	if err := <-reply; err != nil {
		t.Fatalf("InitializeProcess: %v", err)
	}

	if _, ok := k.Supervisor(id); !ok {
		t.Fatal("InitializeProcess should register a supervisor")
	}

	deadline := time.After(time.Second)
	for {
		if k.Store.Has(id, kerntypes.MessagingCapability("alice.os", id)) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("new process should hold its self-messaging capability")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestKillProcessRevokesUnlessNoRevoke(t *testing.T) {
	k := newTestKernel(t)
	chat := mustPid(t, "chat:chat:sys")
	term := mustPid(t, "term:term:sys")
	k.procs[chat] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}
	k.procs[term] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}
	k.NewSupervisorFor(term, "h", nil, kerntypes.OnExit{}, false, k.StateClient, k.ProcessVFS)

	cap := kerntypes.MessagingCapability("alice.os", term)
	k.Store.Add(chat, []kerntypes.Capability{cap})

	k.doKillProcess(term, nil)
	if k.Store.Has(chat, cap) {
		t.Fatal("KillProcess without no-revoke metadata should revoke granted capabilities")
	}
	if _, ok := k.Supervisor(term); ok {
		t.Fatal("KillProcess should remove the supervisor entry")
	}
}

func TestKillProcessNoRevoke(t *testing.T) {
	k := newTestKernel(t)
	chat := mustPid(t, "chat:chat:sys")
	term := mustPid(t, "term:term:sys")
	k.procs[chat] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}
	k.procs[term] = &kerntypes.PersistedProcess{Capabilities: map[kerntypes.Capability][]byte{}}
	k.NewSupervisorFor(term, "h", nil, kerntypes.OnExit{}, false, k.StateClient, k.ProcessVFS)

	cap := kerntypes.MessagingCapability("alice.os", term)
	k.Store.Add(chat, []kerntypes.Capability{cap})

	noRevoke := "no-revoke"
	k.doKillProcess(term, &noRevoke)
	if !k.Store.Has(chat, cap) {
		t.Fatal("KillProcess with no-revoke metadata should preserve granted capabilities")
	}
}
