/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"github.com/hyperware-os/kernel/kernelcore"
	"github.com/hyperware-os/kernel/kerntypes"
)

// offlineTransport is the minimal kernelcore.Transport a single node
// needs: peer-to-peer networking is an excluded collaborator,
// so every send to a non-local node is reported undeliverable instead of
// actually attempted. This keeps the network-error path (NetErrCh,
// TransportFailure) real and exercised without pretending to speak to
// other nodes.
type offlineTransport struct {
	netErrCh chan<- kernelcore.TransportFailure
}

func newOfflineTransport(netErrCh chan<- kernelcore.TransportFailure) *offlineTransport {
	return &offlineTransport{netErrCh: netErrCh}
}

// Send implements kernelcore.Transport.
func (t *offlineTransport) Send(km kerntypes.KernelMessage) {
	t.netErrCh <- kernelcore.TransportFailure{
		Origin: km.Source.ProcessId,
		Error: kerntypes.NetworkError{
			ID:     km.ID,
			Kind:   kerntypes.NetErrOffline,
			Target: km.Target,
		},
	}
}
