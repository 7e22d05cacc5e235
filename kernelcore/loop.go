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

// Run is the kernel's single serialization point: a prioritized,
// non-starving select over the debug, network-error, main-message and
// capabilities-oracle channels, plus an internal
// kernelOp arm used by process.Spawn's InitializeProcess/RunProcess
// calls (see commands.go).
//
// Go's select has no native priority, so each level is implemented as
// its own select-with-default falling through to the next, the same
// nested-select idiom ingest/muxer.go uses to let shutdown/control
// signals cut the queue ahead of ordinary traffic.
func (k *Kernel) Run() {
	for {
		select {
		case <-k.quit:
			return
		default:
		}

		select {
		case cmd := <-k.DebugCh:
			k.handleDebug(cmd)
			continue
		default:
		}

		select {
		case cmd := <-k.DebugCh:
			k.handleDebug(cmd)
			continue
		case ne := <-k.NetErrCh:
			k.deliverNetworkError(ne.Origin, ne.Error)
			continue
		default:
		}

		select {
		case cmd := <-k.DebugCh:
			k.handleDebug(cmd)
			continue
		case ne := <-k.NetErrCh:
			k.deliverNetworkError(ne.Origin, ne.Error)
			continue
		case km := <-k.MsgCh:
			k.route(km)
			if k.stepthrough {
				k.awaitStep()
			}
			continue
		default:
		}

		select {
		case cmd := <-k.DebugCh:
			k.handleDebug(cmd)
		case ne := <-k.NetErrCh:
			k.deliverNetworkError(ne.Origin, ne.Error)
		case km := <-k.MsgCh:
			k.route(km)
			if k.stepthrough {
				k.awaitStep()
			}
		case op := <-k.CapsOpCh:
			k.Store.Dispatch(op)
		case op := <-k.KernelOpCh:
			k.handleKernelOp(op)
		case <-k.quit:
			return
		}
	}
}

// awaitStep blocks on the debug channel until a Step command arrives,
// in stepthrough mode: after draining one main-channel
// item the loop waits for explicit permission to continue.
func (k *Kernel) awaitStep() {
	for {
		select {
		case cmd := <-k.DebugCh:
			k.handleDebug(cmd)
			if cmd.Kind == DebugStep {
				return
			}
		case <-k.quit:
			return
		}
	}
}

func (k *Kernel) handleDebug(cmd DebugCommand) {
	switch cmd.Kind {
	case DebugToggleStepthrough:
		k.stepthrough = !k.stepthrough
	case DebugToggleVerbose:
		k.verbose = !k.verbose
	case DebugToggleProcessVerbose, DebugStep:
		// Step is consumed by awaitStep; per-process verbosity toggling
		// is introspection-only and has no further effect here.
	}
}

// route rewrites "our" addresses, applies the capability gate, and
// dispatches to transport, kernel-command handling, or a local
// supervisor's inbox.
func (k *Kernel) route(km kerntypes.KernelMessage) {
	k.rewriteOur(&km)

	if !k.gate(km) {
		k.denyWithTimeout(km)
		return
	}

	switch {
	case km.Target.Node != k.Node:
		k.Transport.Send(km)
	case km.Target.ProcessId.Equal(kernelPid) && km.Source.Node == k.Node:
		k.handleKernelCommand(km)
	default:
		k.mu.RLock()
		sup, ok := k.supervisors[km.Target.ProcessId]
		k.mu.RUnlock()
		if !ok {
			k.denyWithTimeout(km)
			return
		}
		sup.Deliver(process.InboundMsg{KM: &km})
	}
}

// Send implements process.KernelClient for supervisors: post km onto the
// main message channel for the event loop to route on its next turn.
func (k *Kernel) Send(km kerntypes.KernelMessage) {
	k.MsgCh <- km
}
