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

// Terminate runs the OnExit behavior configured for this process. restartFn is invoked (possibly after a
// backoff delay) when OnExit is Restart; it is the caller's job to
// actually recreate the supervisor and re-run the module.
func (s *Supervisor) Terminate(restartFn func()) {
	switch s.OnExit.Kind {
	case kerntypes.OnExitNone:
		// supervisor exits; the kernel removes the ProcessMap entry.
	case kerntypes.OnExitRequests:
		s.sendExitRequests()
	case kerntypes.OnExitRestart:
		s.scheduleRestart(restartFn)
	}
}

// sendExitRequests sends each configured pending request, but only to
// targets this process actually held a messaging capability for, and
// always with expects_response forced off since a dead process cannot
// await anything.
func (s *Supervisor) sendExitRequests() {
	for _, pr := range s.OnExit.Requests {
		cap := kerntypes.MessagingCapability(pr.Target.Node, pr.Target.ProcessId)
		if !hasMessagingCapability(s.caps, s.Addr.ProcessId, cap) {
			continue
		}
		req := pr.Request
		req.ExpectsResponse = nil
		km := kerntypes.KernelMessage{
			ID:      s.contexts.freshID(freshRandomID),
			Source:  s.Addr,
			Target:  pr.Target,
			Message: kerntypes.Message{Request: &req},
			Blob:    pr.Blob,
		}
		s.kernel.Send(km)
	}
}

func (s *Supervisor) scheduleRestart(restartFn func()) {
	s.restart.schedule(time.Now(), restartFn)
}

// hasMessagingCapability is a small seam on CapsClient: OnExit's
// Requests variant must only fire at addresses the process actually
// held messaging authority for. CapsClient does not expose a
// direct Has(); FilterCaps already performs exactly this membership
// test, so it is reused here rather than widening the interface.
//
// A request targeting the process itself is always allowed: a process
// can always message itself, with or without an explicit capability,
// so this short-circuits before FilterCaps' self-signing path (which
// would otherwise report the same "held" outcome implicitly).
func hasMessagingCapability(c CapsClient, on kerntypes.ProcessId, cap kerntypes.Capability) bool {
	if cap.Issuer.ProcessId.Equal(on) {
		return true
	}
	filtered := c.FilterCaps(on, []kerntypes.Capability{cap})
	return len(filtered) == 1
}
