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
	"net/http"
	"time"

	"github.com/hyperware-os/kernel/client/objlog"
	"github.com/hyperware-os/kernel/internal/klog"
	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

const (
	httpRequestTimeout          = 15 * time.Second
	httpRequestTimeoutSimulated = 600 * time.Second
)

// rpcProcessID is the reserved RPC binding's process id.
var rpcProcessID = kerntypes.ProcessId{Process: "rpc", Package: "distro", Publisher: "sys"}

// Gateway is the HTTP/WebSocket ingress gateway. It owns its
// own process.Supervisor — registered under a reserved address like
// http-server:distro:sys — so that it gets the same correlation,
// capability-filtered sends, and timeout machinery every other hosted
// process gets, rather than duplicating an outstanding-requests map by
// hand.
type Gateway struct {
	node string
	sup  *process.Supervisor
	log  *klog.Logger
	diag objlog.WSDiagLog

	router   *Router
	sessions *sessionRegistry

	jwtKey          []byte
	passwordHashHex string

	newChannelID func() uint32

	simulatedTime bool

	httpSrv *http.Server
}

// New constructs a Gateway bound to sup. channelIDFn mints WebSocket
// channel ids (ordinarily kernelcore.NewChannelID, injected here so
// kernelcore need not import httpgw).
func New(sup *process.Supervisor, node string, jwtKey []byte, passwordHashHex string, log *klog.Logger, diag objlog.WSDiagLog, channelIDFn func() uint32) *Gateway {
	if diag == nil {
		diag, _ = objlog.NewNilLogger()
	}
	if channelIDFn == nil {
		channelIDFn = func() uint32 { return uint32(time.Now().UnixNano()) }
	}
	g := &Gateway{
		node:            node,
		sup:             sup,
		log:             log,
		diag:            diag,
		router:          NewRouter(),
		sessions:        newSessionRegistry(),
		jwtKey:          jwtKey,
		passwordHashHex: passwordHashHex,
		newChannelID:    channelIDFn,
	}
	g.router.Bind(PathBinding{App: &rpcProcessID, Path: "/rpc:distro:sys/message", LocalOnly: true})
	return g
}

// SetSimulatedTime switches the HTTP request timeout from the normal 15s
// to the 600s mode used under deterministic/simulated-time testing.
func (g *Gateway) SetSimulatedTime(v bool) { g.simulatedTime = v }

func (g *Gateway) requestTimeout() time.Duration {
	if g.simulatedTime {
		return httpRequestTimeoutSimulated
	}
	return httpRequestTimeout
}

// emitWebSocketOpen/emitWebSocketFrame/emitWebSocketClose forward session
// lifecycle events to the bound process as fire-and-forget Requests (no
// response expected, matching how an already-open HTTP/WS plumbing layer
// notifies its owner).
func (g *Gateway) emitWebSocketOpen(owner kerntypes.ProcessId, path string, channelID uint32) {
	body, _ := json.Marshal(WebSocketOpen{Path: path, ChannelID: channelID})
	g.sup.SendRequest(process.SendRequestArgs{
		Target: kerntypes.Address{Node: g.node, ProcessId: owner},
		Body:   body,
	})
}

func (g *Gateway) emitWebSocketFrame(owner kerntypes.ProcessId, channelID uint32, mt MessageType, payload []byte) {
	body, _ := json.Marshal(WebSocketFrame{ChannelID: channelID, MessageType: mt})
	g.sup.SendRequest(process.SendRequestArgs{
		Target: kerntypes.Address{Node: g.node, ProcessId: owner},
		Body:   body,
		Blob:   &kerntypes.Blob{Bytes: payload},
	})
}

func (g *Gateway) emitWebSocketClose(owner kerntypes.ProcessId, channelID uint32) {
	body, _ := json.Marshal(WebSocketCloseNotice{ChannelID: channelID})
	g.sup.SendRequest(process.SendRequestArgs{
		Target: kerntypes.Address{Node: g.node, ProcessId: owner},
		Body:   body,
	})
}
