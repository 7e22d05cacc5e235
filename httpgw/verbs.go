/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"encoding/json"
	"errors"

	"github.com/hyperware-os/kernel/kerntypes"
)

// VerbKind enumerates the binding verbs a userspace process sends to the
// gateway as Requests. Encoded the same way
// kernelcore encodes its own kernel commands: a tagged-union JSON body,
// since this is gateway-internal IPC, never wire traffic to another node.
type VerbKind int

const (
	VerbBind VerbKind = iota
	VerbSecureBind
	VerbUnbind
	VerbWebSocketBind
	VerbWebSocketSecureBind
	VerbWebSocketUnbind
	VerbWebSocketPush
	VerbWebSocketExtPushOutgoing
	VerbWebSocketClose
)

// MessageType mirrors the WS frame kinds a WebSocketPush can carry.
type MessageType int

const (
	MessageText MessageType = iota
	MessageBinary
	MessagePing
	MessagePong
)

// Verb is the JSON body of a binding-verb Request.
type Verb struct {
	Kind          VerbKind
	Path          string
	Authenticated bool
	LocalOnly     bool
	Cache         bool
	Extension     bool
	ChannelID     uint32
	MessageType   MessageType
}

// VerbResult is the Response body a binding verb's send_and_await_response
// receives back.
type VerbResult struct {
	OK    bool
	Error string
}

var (
	ErrInvalidSourceProcess = errors.New("httpgw: caller process id failed the safe-id check")
	ErrNoBlob               = errors.New("httpgw: verb required a blob but none was attached")
	ErrWsPingPongTooLong    = errors.New("httpgw: ping/pong payload exceeds 125 bytes")
	ErrWsChannelNotFound    = errors.New("httpgw: unknown channel_id")
	ErrWsNotOwner           = errors.New("httpgw: only the owning process may close this channel")
)

// handleVerb applies one binding verb on behalf of source, mutating the
// gateway's path/WS routers and WebSocket session registry as needed.
// blob carries the verb's static content or
// WebSocketPush payload, when present.
func (g *Gateway) handleVerb(source kerntypes.ProcessId, v Verb, blob *kerntypes.Blob) VerbResult {
	if !source.IsReserved() && !kerntypes.ValidProcessIdPart(source.Process) {
		return VerbResult{Error: ErrInvalidSourceProcess.Error()}
	}

	switch v.Kind {
	case VerbBind:
		g.router.Bind(PathBinding{
			App:           &source,
			Path:          ProcessIdPrefixed(source, v.Path),
			Authenticated: v.Authenticated,
			LocalOnly:     v.LocalOnly,
			StaticContent: staticContentIf(v.Cache, blob),
		})
		return VerbResult{OK: true}

	case VerbSecureBind:
		subdomain := DeriveSecureSubdomain(source)
		g.router.Bind(PathBinding{
			App:             &source,
			Path:            ProcessIdPrefixed(source, v.Path),
			SecureSubdomain: &subdomain,
			Authenticated:   true,
			LocalOnly:       v.LocalOnly,
			StaticContent:   staticContentIf(v.Cache, blob),
		})
		return VerbResult{OK: true}

	case VerbUnbind:
		g.router.Unbind(ProcessIdPrefixed(source, v.Path))
		return VerbResult{OK: true}

	case VerbWebSocketBind:
		g.router.WsBind(WsPathBinding{App: &source, Path: ProcessIdPrefixed(source, v.Path), Extension: v.Extension})
		return VerbResult{OK: true}

	case VerbWebSocketSecureBind:
		subdomain := DeriveSecureSubdomain(source)
		g.router.WsBind(WsPathBinding{
			App:             &source,
			Path:            ProcessIdPrefixed(source, v.Path),
			SecureSubdomain: &subdomain,
			Authenticated:   true,
			Extension:       v.Extension,
		})
		return VerbResult{OK: true}

	case VerbWebSocketUnbind:
		g.router.WsUnbind(ProcessIdPrefixed(source, v.Path))
		return VerbResult{OK: true}

	case VerbWebSocketPush:
		if blob == nil {
			return VerbResult{Error: ErrNoBlob.Error()}
		}
		if (v.MessageType == MessagePing || v.MessageType == MessagePong) && len(blob.Bytes) > 125 {
			return VerbResult{Error: ErrWsPingPongTooLong.Error()}
		}
		if err := g.pushToChannel(source, v.ChannelID, v.MessageType, blob.Bytes, false); err != nil {
			return VerbResult{Error: err.Error()}
		}
		return VerbResult{OK: true}

	case VerbWebSocketExtPushOutgoing:
		if blob == nil {
			return VerbResult{Error: ErrNoBlob.Error()}
		}
		if err := g.pushToChannel(source, v.ChannelID, v.MessageType, blob.Bytes, true); err != nil {
			return VerbResult{Error: err.Error()}
		}
		return VerbResult{OK: true}

	case VerbWebSocketClose:
		if err := g.closeChannel(source, v.ChannelID); err != nil {
			return VerbResult{Error: err.Error()}
		}
		return VerbResult{OK: true}
	}
	return VerbResult{Error: "httpgw: unknown verb"}
}

func staticContentIf(cache bool, blob *kerntypes.Blob) *kerntypes.Blob {
	if !cache {
		return nil
	}
	return blob
}

func marshalVerbResult(r VerbResult) []byte {
	b, _ := json.Marshal(r)
	return b
}
