/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package process implements the per-process supervisor: the
// object that owns one running userspace component, its inbox, its
// outstanding-request table and its timeout tasks, and that presents the
// component with a message-passing API hiding every kernel-internal
// detail (signing, correlation, timeouts, blob ownership).
//
// Grounded on the per-connection entry reader/writer pair pattern in
// ingest/entryReader.go and ingest/entryWriter.go: one goroutine per
// client connection owning an inbox and an outstanding-acknowledgement
// table keyed by entry id, with a timeout task per pending ack.
package process

import (
	"crypto/ed25519"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/hyperware-os/kernel/kerntypes"
)

const inboxCapacity = 100

var (
	ErrNoPromptingMessage  = errors.New("send_response: no prompting message to respond to")
	ErrSelfSendDeadlock    = errors.New("send_and_await_response: target must not be self")
	ErrMustExpectResponse  = errors.New("send_and_await_response: expects_response must be set")
	ErrProcessShuttingDown = errors.New("supervisor is shutting down")
)

// InboundMsg is the `Result<KernelMessage, NetworkError>` the kernel
// delivers into a supervisor's inbox. Exactly one of KM/Err is set.
type InboundMsg struct {
	KM  *kerntypes.KernelMessage
	Err *kerntypes.NetworkError
}

func (m InboundMsg) id() uint64 {
	if m.KM != nil {
		return m.KM.ID
	}
	if m.Err != nil {
		return m.Err.ID
	}
	return 0
}

// Supervisor is the per-process runtime object.
type Supervisor struct {
	Addr       kerntypes.Address
	WasmHandle string
	WitVersion *uint32
	OnExit     kerntypes.OnExit
	Public     bool

	ourPubKey ed25519.PublicKey

	inbox        chan InboundMsg
	messageQueue []InboundMsg
	contexts     *contextTable

	lastBlob            *kerntypes.Blob
	lastMessageBlobbed  bool
	promptingMessage    *kerntypes.KernelMessage
	restart             RestartBackoff

	kernel KernelClient
	caps   CapsClient
	state  StateClient
	vfs    VFSClient

	done chan struct{}
}

// NewSupervisor constructs a supervisor for addr, wired to its kernel and
// oracle collaborators. ourPubKey is the node's own Ed25519 public key,
// used to verify remote-claimed-local capabilities on inbound delivery.
func NewSupervisor(addr kerntypes.Address, wasmHandle string, witVersion *uint32, onExit kerntypes.OnExit, public bool, ourPubKey ed25519.PublicKey, kernel KernelClient, capsClient CapsClient, state StateClient, vfs VFSClient) *Supervisor {
	return &Supervisor{
		Addr:       addr,
		WasmHandle: wasmHandle,
		WitVersion: witVersion,
		OnExit:     onExit,
		Public:     public,
		ourPubKey:  ourPubKey,
		inbox:      make(chan InboundMsg, inboxCapacity),
		contexts:   newContextTable(),
		kernel:     kernel,
		caps:       capsClient,
		state:      state,
		vfs:        vfs,
		done:       make(chan struct{}),
	}
}

// Deliver is called by the kernel event loop to hand the supervisor a
// newly routed message. It never blocks past the inbox's bound; a full
// inbox signals real backpressure onto the kernel loop, the same way a
// bounded entry-reader queue does.
func (s *Supervisor) Deliver(msg InboundMsg) {
	s.inbox <- msg
}

// Shutdown closes the supervisor's done channel; in-flight timeout tasks
// still fire, but awaitID and Receive return ErrProcessShuttingDown.
func (s *Supervisor) Shutdown() {
	close(s.done)
}

func freshRandomID() uint64 { return rand.Uint64() }

// pruneForeignCapabilities drops any capability claiming local issuance
// from a remote envelope unless it verifies against the node's own key.
func (s *Supervisor) pruneForeignCapabilities(km *kerntypes.KernelMessage) {
	if km == nil || km.Source.Node == "" {
		return
	}
	remote := km.Source.Node != s.Addr.Node
	if !remote {
		return
	}
	filter := func(scs []kerntypes.SignedCapability) []kerntypes.SignedCapability {
		out := scs[:0]
		for _, sc := range scs {
			if sc.Capability.Issuer.Node != s.Addr.Node {
				out = append(out, sc)
				continue
			}
			if err := verifyCapability(s.ourPubKey, sc); err == nil {
				out = append(out, sc)
			}
		}
		return out
	}
	if km.Message.Request != nil {
		km.Message.Request.Capabilities = filter(km.Message.Request.Capabilities)
	}
	if km.Message.Response != nil {
		km.Message.Response.Capabilities = filter(km.Message.Response.Capabilities)
	}
}

// verifyCapability is a thin seam so tests can stub verification without
// pulling in the nodekey package's random key generation.
var verifyCapability = func(pub ed25519.PublicKey, sc kerntypes.SignedCapability) error {
	msg := kerntypes.CapabilitySigningBytes(sc.Capability)
	if ed25519.Verify(pub, msg, sc.Signature) {
		return nil
	}
	return errVerifyFailed
}

var errVerifyFailed = errors.New("capability signature verification failed")

// applyDelivery updates prompting_message/last_blob/last_message_blobbed
// and returns the (possibly mutated) message to hand to
// the hosted module.
func (s *Supervisor) applyDelivery(msg InboundMsg) InboundMsg {
	if msg.KM != nil {
		s.pruneForeignCapabilities(msg.KM)
		switch {
		case msg.KM.Message.IsResponse():
			if pc, ok := s.contexts.take(msg.KM.ID); ok {
				s.promptingMessage = pc.PromptingMessage
				msg.KM.Message.Response.Context = pc.Context
			} else {
				s.promptingMessage = msg.KM
			}
		case msg.KM.Message.IsRequest():
			if msg.KM.ExpectsResponse() || msg.KM.RSVP != nil {
				s.promptingMessage = msg.KM
			}
		}
		if msg.KM.Blob != nil {
			s.lastBlob = msg.KM.Blob
			s.lastMessageBlobbed = true
		} else {
			s.lastMessageBlobbed = false
		}
	} else if msg.Err != nil {
		if pc, ok := s.contexts.take(msg.Err.ID); ok {
			s.promptingMessage = pc.PromptingMessage
		}
		s.lastMessageBlobbed = false
	}
	return msg
}

// Receive returns the next message for the hosted module: the head of
// message_queue if non-empty, otherwise the next inbox arrival.
func (s *Supervisor) Receive() (InboundMsg, error) {
	if len(s.messageQueue) > 0 {
		msg := s.messageQueue[0]
		s.messageQueue = s.messageQueue[1:]
		return s.applyDelivery(msg), nil
	}
	select {
	case msg := <-s.inbox:
		return s.applyDelivery(msg), nil
	case <-s.done:
		return InboundMsg{}, ErrProcessShuttingDown
	}
}

// awaitID implements get_specific_message_for_process(id): scan
// message_queue first, then drain the inbox, queueing every non-matching
// arrival in order, until id turns up.
func (s *Supervisor) awaitID(id uint64) (InboundMsg, error) {
	for i, m := range s.messageQueue {
		if m.id() == id {
			s.messageQueue = append(s.messageQueue[:i], s.messageQueue[i+1:]...)
			return s.applyDelivery(m), nil
		}
	}
	for {
		select {
		case msg := <-s.inbox:
			if msg.id() == id {
				return s.applyDelivery(msg), nil
			}
			s.messageQueue = append(s.messageQueue, msg)
		case <-s.done:
			return InboundMsg{}, ErrProcessShuttingDown
		}
	}
}

// HasBlob/GetBlob report on the blob attached to the message currently
// being handled; LastBlob is the sticky most-recent blob ever seen.
func (s *Supervisor) HasBlob() bool            { return s.lastMessageBlobbed }
func (s *Supervisor) GetBlob() *kerntypes.Blob {
	if !s.lastMessageBlobbed {
		return nil
	}
	return s.lastBlob
}
func (s *Supervisor) LastBlob() *kerntypes.Blob { return s.lastBlob }

// Our returns the supervisor's own address.
func (s *Supervisor) Our() kerntypes.Address { return s.Addr }

// time.Duration for set/get/clear state round-trips.
const stateRoundTripTimeout = 5 * time.Second
