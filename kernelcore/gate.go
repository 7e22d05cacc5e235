/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernelcore

import (
	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

// rewriteOur rewrites the literal "our" node on every address the
// envelope carries, before the gate or dispatch ever see it.
func (k *Kernel) rewriteOur(km *kerntypes.KernelMessage) {
	km.Source = km.Source.RewriteOur(k.Node)
	km.Target = km.Target.RewriteOur(k.Node)
	if km.RSVP != nil {
		r := km.RSVP.RewriteOur(k.Node)
		km.RSVP = &r
	}
}

// gate applies the capability enforcement table.
func (k *Kernel) gate(km kerntypes.KernelMessage) bool {
	switch {
	case km.Source.Node == k.Node && km.Target.Node != k.Node:
		return k.Store.Has(km.Source.ProcessId, kerntypes.NetworkCapability(k.Node))
	case km.Source.Node != k.Node:
		if _, exists := k.procs[km.Target.ProcessId]; !exists {
			return false
		}
		return k.Store.Has(km.Target.ProcessId, kerntypes.NetworkCapability(k.Node))
	default: // both local
		if km.Source.ProcessId.IsReserved() {
			return true
		}
		if p, ok := k.procs[km.Target.ProcessId]; ok && p.Public {
			return true
		}
		return k.Store.Has(km.Source.ProcessId, kerntypes.MessagingCapability(k.Node, km.Target.ProcessId))
	}
}

// denyWithTimeout synthesizes the Timeout network-error a gate or
// dispatch failure owes the sender, but only when a response was
// actually expected.
func (k *Kernel) denyWithTimeout(km kerntypes.KernelMessage) {
	if !km.ExpectsResponse() {
		return
	}
	ne := kerntypes.NetworkError{ID: km.ID, Kind: kerntypes.NetErrTimeout, Target: km.Target}
	k.deliverNetworkError(km.Source.ProcessId, ne)
}

func (k *Kernel) deliverNetworkError(to kerntypes.ProcessId, ne kerntypes.NetworkError) {
	k.mu.RLock()
	sup, ok := k.supervisors[to]
	k.mu.RUnlock()
	if !ok {
		if k.Log != nil {
			k.Log.Debugf("dropping network error for dead process %s", to.String())
		}
		return
	}
	sup.Deliver(process.InboundMsg{Err: &ne})
}
