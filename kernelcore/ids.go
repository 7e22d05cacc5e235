/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kernelcore

import "github.com/google/uuid"

// NewChannelID mints a random 32-bit WebSocket channel id for the HTTP
// ingress gateway's session registry. Grounded on ingest/muxer.go's use of
// github.com/google/uuid for per-ingester identifiers; here the uuid's entropy is
// folded down to the 32 bits the gateway's channel_id wire type needs.
func NewChannelID() uint32 {
	u := uuid.New()
	var v uint32
	for i := 0; i < len(u); i++ {
		v ^= uint32(u[i]) << (8 * (i % 4))
	}
	return v
}
