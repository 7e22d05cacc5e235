/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package process

import (
	"testing"

	"github.com/hyperware-os/kernel/kerntypes"
)

func TestTerminateSendsOnlyRequestsWithHeldCapability(t *testing.T) {
	s, k := newTestSupervisor(t)
	allowed := testAddr(t, "term:term:sys")
	denied := testAddr(t, "other:other:sys")

	fc := s.caps.(*fakeCaps)
	fc.SaveCapabilities(s.Addr.ProcessId, []kerntypes.Capability{kerntypes.MessagingCapability(allowed.Node, allowed.ProcessId)})

	secs := 5
	s.OnExit = kerntypes.OnExit{
		Kind: kerntypes.OnExitRequests,
		Requests: []kerntypes.PendingRequest{
			{Target: allowed, Request: kerntypes.Request{ExpectsResponse: &secs}},
			{Target: denied, Request: kerntypes.Request{ExpectsResponse: &secs}},
		},
	}

	s.Terminate(nil)

	if len(k.sent) != 1 {
		t.Fatalf("expected exactly 1 request sent, got %d: %+v", len(k.sent), k.sent)
	}
	if !k.sent[0].Target.Equal(allowed) {
		t.Fatalf("expected the request to go to the held-capability target, got %+v", k.sent[0].Target)
	}
	if k.sent[0].Message.Request.ExpectsResponse != nil {
		t.Fatal("a dying process cannot await a response; expects_response must be cleared")
	}
}

func TestTerminateAlwaysSendsSelfTargetedRequest(t *testing.T) {
	s, k := newTestSupervisor(t)

	s.OnExit = kerntypes.OnExit{
		Kind: kerntypes.OnExitRequests,
		Requests: []kerntypes.PendingRequest{
			{Target: s.Addr, Request: kerntypes.Request{}},
		},
	}

	s.Terminate(nil)

	if len(k.sent) != 1 || !k.sent[0].Target.Equal(s.Addr) {
		t.Fatalf("a process should always be able to send itself its own exit request, got %+v", k.sent)
	}
}

func TestHasMessagingCapabilitySelfTargetShortCircuits(t *testing.T) {
	c := newFakeCaps()
	on, err := kerntypes.NewProcessId("chat", "chat", "sys")
	if err != nil {
		t.Fatal(err)
	}
	cap := kerntypes.MessagingCapability("alice.os", on)

	if !hasMessagingCapability(c, on, cap) {
		t.Fatal("a process should always be considered able to message itself")
	}
}
