/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

// IncomingHttpRequest is the Request body the gateway builds for every
// HTTP hit that isn't the RPC binding or served statically. The HTTP request body itself travels as the
// KernelMessage's blob, never inline here.
type IncomingHttpRequest struct {
	Method      string              `json:"method"`
	Path        string              `json:"path"`
	URL         string              `json:"url"`
	Headers     map[string][]string `json:"headers"`
	QueryParams map[string]string   `json:"query_params"`
}

// HttpResponse is the Response body a bound process sends back; the HTTP
// body itself is the Response's blob.
type HttpResponse struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
}

// WebSocketOpen is the Request body emitted to a bound process when a new
// session is accepted.
type WebSocketOpen struct {
	Path      string `json:"path"`
	ChannelID uint32 `json:"channel_id"`
}

// WebSocketFrame is the Request body forwarding an inbound WS frame to
// the owning process; the frame payload itself is the blob.
type WebSocketFrame struct {
	ChannelID   uint32      `json:"channel_id"`
	MessageType MessageType `json:"message_type"`
}

// WebSocketCloseNotice is the Request body telling the owning process a
// session ended, from either side.
type WebSocketCloseNotice struct {
	ChannelID uint32 `json:"channel_id"`
}

// RpcEnvelope is the body of a POST to /rpc:distro:sys/message: `{node?, process, body?, metadata?,
// mime?, data?(base64), expects_response?}`.
type RpcEnvelope struct {
	Node            *string `json:"node,omitempty"`
	Process         string  `json:"process"`
	Body            *string `json:"body,omitempty"`
	Metadata        *string `json:"metadata,omitempty"`
	Mime            *string `json:"mime,omitempty"`
	Data            *string `json:"data,omitempty"` // base64
	ExpectsResponse *int    `json:"expects_response,omitempty"`
}

// RpcResponseEnvelope is the body handed back for a successful RPC
// round-trip (scenario 5): `{body, lazy_load_blob}` with blob bytes
// base64-encoded.
type RpcResponseEnvelope struct {
	Body         string  `json:"body"`
	LazyLoadBlob *string `json:"lazy_load_blob,omitempty"`
}
