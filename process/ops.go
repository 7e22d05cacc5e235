/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package process

import (
	"context"
	"errors"
	"time"

	"github.com/hyperware-os/kernel/kerntypes"
)

// Verbosity mirrors the print channel's level argument.
type Verbosity int

// Print sends a structured line to the print channel. The gateway for
// that channel (stdout, a log relay, the terminal process) is left to
// the caller wiring the kernel together; here it is just a hook.
type PrintSink func(addr kerntypes.Address, verbosity Verbosity, text string)

var discardPrintSink PrintSink = func(kerntypes.Address, Verbosity, string) {}

func (s *Supervisor) Print(sink PrintSink, v Verbosity, text string) {
	if sink == nil {
		sink = discardPrintSink
	}
	sink(s.Addr, v, text)
}

// SendRequestArgs is the argument bundle for send_request/send_requests.
// Capabilities lists the *wanted* (unsigned) capabilities; they are
// resolved into SignedCapability values via the oracle's FilterCaps
// before the envelope leaves the supervisor.
type SendRequestArgs struct {
	Target          kerntypes.Address
	Body            []byte
	Metadata        *string
	Inherit         bool
	ExpectsResponse *int // seconds
	Capabilities    []kerntypes.Capability
	Context         []byte
	Blob            *kerntypes.Blob
}

// SendRequest implements the request/response correlation algorithm.
func (s *Supervisor) SendRequest(args SendRequestArgs) uint64 {
	var id uint64
	if args.Inherit && s.promptingMessage != nil {
		id = s.promptingMessage.ID
	} else {
		id = s.contexts.freshID(freshRandomID)
	}

	blob := args.Blob
	if blob == nil && args.Inherit {
		blob = s.lastBlob
	}

	filtered := s.caps.FilterCaps(s.Addr.ProcessId, args.Capabilities)

	var rsvp *kerntypes.Address
	switch {
	case args.ExpectsResponse != nil:
		self := s.Addr
		rsvp = &self
	case args.Inherit && s.promptingMessage != nil:
		rsvp = s.promptingMessage.RSVP
	}

	req := &kerntypes.Request{
		Inherit:         args.Inherit,
		ExpectsResponse: args.ExpectsResponse,
		Body:            args.Body,
		Metadata:        args.Metadata,
		Capabilities:    filtered,
	}
	km := kerntypes.KernelMessage{
		ID:      id,
		Source:  s.Addr,
		Target:  args.Target,
		RSVP:    rsvp,
		Message: kerntypes.Message{Request: req},
		Blob:    blob,
	}

	if args.ExpectsResponse != nil {
		pc := ProcessContext{PromptingMessage: s.promptingMessage, Context: args.Context}
		d := time.Duration(*args.ExpectsResponse) * time.Second
		target := args.Target
		s.contexts.insert(id, pc, d, func() {
			s.Deliver(InboundMsg{Err: &kerntypes.NetworkError{ID: id, Kind: kerntypes.NetErrTimeout, Target: target}})
		})
	}

	s.kernel.Send(km)
	return id
}

// SendRequests sends a batch of requests, returning their assigned ids in
// order.
func (s *Supervisor) SendRequests(batch []SendRequestArgs) []uint64 {
	ids := make([]uint64, len(batch))
	for i, args := range batch {
		ids[i] = s.SendRequest(args)
	}
	return ids
}

// SendResponse sends a Response routed per the current prompting
// message's rsvp/source, with the id inherited from it.
func (s *Supervisor) SendResponse(body []byte, metadata *string, capabilities []kerntypes.Capability, blob *kerntypes.Blob) error {
	if s.promptingMessage == nil {
		return ErrNoPromptingMessage
	}
	target := s.promptingMessage.Source
	if s.promptingMessage.RSVP != nil {
		target = *s.promptingMessage.RSVP
	}
	filtered := s.caps.FilterCaps(s.Addr.ProcessId, capabilities)
	resp := &kerntypes.Response{Body: body, Metadata: metadata, Capabilities: filtered}
	km := kerntypes.KernelMessage{
		ID:      s.promptingMessage.ID,
		Source:  s.Addr,
		Target:  target,
		Message: kerntypes.Message{Response: resp},
		Blob:    blob,
	}
	s.kernel.Send(km)
	return nil
}

// SendAndAwaitResponse is send_request plus a blocking wait for the
// specific response id.
func (s *Supervisor) SendAndAwaitResponse(args SendRequestArgs) (InboundMsg, error) {
	if args.Target.Equal(s.Addr) {
		return InboundMsg{}, ErrSelfSendDeadlock
	}
	if args.ExpectsResponse == nil {
		return InboundMsg{}, ErrMustExpectResponse
	}
	id := s.SendRequest(args)
	return s.awaitID(id)
}

// SaveCapabilities, DropCapabilities and OurCapabilities delegate
// straight to the oracle.
func (s *Supervisor) SaveCapabilities(caps []kerntypes.Capability) bool {
	return s.caps.SaveCapabilities(s.Addr.ProcessId, caps)
}

func (s *Supervisor) DropCapabilities(caps []kerntypes.Capability) bool {
	return s.caps.DropCapabilities(s.Addr.ProcessId, caps)
}

func (s *Supervisor) OurCapabilities() []kerntypes.SignedCapability {
	return s.caps.OurCapabilities(s.Addr.ProcessId)
}

// SetState/GetState/ClearState round-trip through the state collaborator
// under a 5s timeout. The blob is saved and restored around the call so
// that whatever the collaborator round-trip touches never clobbers the
// module's own in-flight blob.
func (s *Supervisor) SetState(b []byte) error {
	savedBlob, savedBlobbed := s.lastBlob, s.lastMessageBlobbed
	defer func() { s.lastBlob, s.lastMessageBlobbed = savedBlob, savedBlobbed }()

	ctx, cancel := context.WithTimeout(context.Background(), stateRoundTripTimeout)
	defer cancel()
	return s.state.SetState(ctx, s.Addr.ProcessId, b)
}

func (s *Supervisor) GetState() ([]byte, error) {
	savedBlob, savedBlobbed := s.lastBlob, s.lastMessageBlobbed
	defer func() { s.lastBlob, s.lastMessageBlobbed = savedBlob, savedBlobbed }()

	ctx, cancel := context.WithTimeout(context.Background(), stateRoundTripTimeout)
	defer cancel()
	return s.state.GetState(ctx, s.Addr.ProcessId)
}

func (s *Supervisor) ClearState() error {
	savedBlob, savedBlobbed := s.lastBlob, s.lastMessageBlobbed
	defer func() { s.lastBlob, s.lastMessageBlobbed = savedBlob, savedBlobbed }()

	ctx, cancel := context.WithTimeout(context.Background(), stateRoundTripTimeout)
	defer cancel()
	return s.state.ClearState(ctx, s.Addr.ProcessId)
}

var (
	ErrNoFileAtPath = errors.New("spawn: no file at path")
	ErrNameTaken    = errors.New("spawn: process name already taken")
)

// SpawnArgs is the argument bundle for spawn().
type SpawnArgs struct {
	Name        string // empty means the kernel assigns a random name
	WasmPath    string
	WitVersion  *uint32
	OnExit      kerntypes.OnExit
	RequestCaps []kerntypes.Capability
	GrantCaps   []kerntypes.Capability
	Public      bool
}

// Spawn reads the module bytes from vfs, filters requested capabilities
// against the caller's own holdings, initializes and runs the new
// process, then grants bidirectional self-messaging between parent and
// child.
func (s *Supervisor) Spawn(ctx context.Context, id kerntypes.ProcessId, args SpawnArgs) (kerntypes.ProcessId, error) {
	wasmBytes, err := s.vfs.ReadModule(ctx, args.WasmPath)
	if err != nil {
		return kerntypes.ProcessId{}, ErrNoFileAtPath
	}

	held := s.caps.OurCapabilities(s.Addr.ProcessId)
	ownedByCaller := make([]kerntypes.Capability, 0, len(args.RequestCaps))
	for _, want := range args.RequestCaps {
		for _, have := range held {
			if have.Capability.Equal(want) {
				ownedByCaller = append(ownedByCaller, want)
				break
			}
		}
	}

	if err := s.kernel.InitializeProcess(id, wasmBytes, args.WitVersion, args.OnExit, ownedByCaller, args.Public); err != nil {
		return kerntypes.ProcessId{}, ErrNameTaken
	}
	if err := s.kernel.RunProcess(id); err != nil {
		return kerntypes.ProcessId{}, err
	}

	s.caps.SaveCapabilities(id, []kerntypes.Capability{kerntypes.MessagingCapability(s.Addr.Node, s.Addr.ProcessId)})
	s.caps.SaveCapabilities(s.Addr.ProcessId, []kerntypes.Capability{kerntypes.MessagingCapability(s.Addr.Node, id)})

	return id, nil
}
