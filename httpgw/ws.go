/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hyperware-os/kernel/kerntypes"
)

const (
	maxOpenSessions = 128
	wsWriteTimeout  = 10 * time.Second
	wsReadLimit     = 32 << 20
)

var (
	ErrTooManySessions = errors.New("httpgw: 128 WebSocket sessions already open")
	ErrLoopbackOnly     = errors.New("httpgw: extension channels require a loopback peer")
)

// wsSession is one open WebSocket connection's bookkeeping: the owning process, the path it was opened on, and
// the sender half other goroutines push outbound frames through. Grounded
// on the SubProtoServer pattern (client/websocketRouter/server.go): one
// reader goroutine owning the conn, a channel-fed writer so concurrent
// pushers never touch the socket directly.
type wsSession struct {
	channelID uint32
	owner     kerntypes.ProcessId
	path      string
	extension bool
	conn      *websocket.Conn
	out       chan wsFrame
	closeOnce sync.Once
}

type wsFrame struct {
	kind MessageType
	data []byte
}

func wsMessageType(mt MessageType) int {
	switch mt {
	case MessageBinary:
		return websocket.BinaryMessage
	case MessagePing:
		return websocket.PingMessage
	case MessagePong:
		return websocket.PongMessage
	default:
		return websocket.TextMessage
	}
}

// sessionRegistry is the lock-free-from-the-caller's-perspective
// channel_id -> wsSession map.
// A plain mutex-guarded map is the idiomatic Go rendition of that
// property: no caller ever blocks on another session's traffic.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uint32]*wsSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: map[uint32]*wsSession{}}
}

func (r *sessionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *sessionRegistry) add(s *wsSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.channelID] = s
}

func (r *sessionRegistry) get(channelID uint32) (*wsSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[channelID]
	return s, ok
}

func (r *sessionRegistry) remove(channelID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, channelID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWebSocket upgrades r, registers a new session against binding wb,
// and runs its read/write pumps until the peer disconnects or the owning
// process closes it.
func (g *Gateway) serveWebSocket(w http.ResponseWriter, r *http.Request, wb WsPathBinding) {
	if g.sessions.count() >= maxOpenSessions {
		http.Error(w, ErrTooManySessions.Error(), http.StatusServiceUnavailable)
		return
	}
	if wb.Extension && !isLoopback(r.RemoteAddr) {
		http.Error(w, ErrLoopbackOnly.Error(), http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warnf("httpgw: websocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	channelID := g.newChannelID()
	sess := &wsSession{
		channelID: channelID,
		owner:     *wb.App,
		path:      r.URL.Path,
		extension: wb.Extension,
		conn:      conn,
		out:       make(chan wsFrame, 64),
	}
	g.sessions.add(sess)
	g.diag.Log(channelID, "open", wb.Path)

	g.emitWebSocketOpen(*wb.App, r.URL.Path, channelID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); g.wsWritePump(sess) }()
	go func() { defer wg.Done(); g.wsReadPump(sess) }()
	wg.Wait()

	g.sessions.remove(channelID)
	g.diag.Log(channelID, "close", nil)
	g.emitWebSocketClose(sess.owner, channelID)
}

// wsReadPump forwards inbound frames to the owning process as
// Text/Binary/Ping/Pong requests until the connection errors; the close
// notice is sent by serveWebSocket once both pumps have stopped.
func (g *Gateway) wsReadPump(sess *wsSession) {
	defer sess.conn.Close()
	defer close(sess.out)
	for {
		kind, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var mt MessageType
		switch kind {
		case websocket.BinaryMessage:
			mt = MessageBinary
		case websocket.PingMessage:
			mt = MessagePing
		case websocket.PongMessage:
			mt = MessagePong
		default:
			mt = MessageText
		}
		g.emitWebSocketFrame(sess.owner, sess.channelID, mt, data)
	}
}

// wsWritePump drains pushed frames onto the socket. It is the only
// goroutine that ever writes to sess.conn, per gorilla/websocket's
// single-writer requirement.
func (g *Gateway) wsWritePump(sess *wsSession) {
	for frame := range sess.out {
		sess.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := sess.conn.WriteMessage(wsMessageType(frame.kind), frame.data); err != nil {
			sess.conn.Close()
			return
		}
	}
}

// pushToChannel implements WebSocketPush/WebSocketExtPushOutgoing: only
// the owning process may push, and only onto a still-open channel.
func (g *Gateway) pushToChannel(source kerntypes.ProcessId, channelID uint32, mt MessageType, data []byte, ext bool) error {
	sess, ok := g.sessions.get(channelID)
	if !ok {
		return ErrWsChannelNotFound
	}
	if !sess.owner.Equal(source) {
		return ErrWsNotOwner
	}
	if ext && !sess.extension {
		return ErrWsChannelNotFound
	}
	select {
	case sess.out <- wsFrame{kind: mt, data: data}:
		g.diag.Log(channelID, "push", mt)
		return nil
	default:
		return errors.New("httpgw: channel send buffer full")
	}
}

// closeChannel implements WebSocketClose: only the owning process may
// close its own channel.
func (g *Gateway) closeChannel(source kerntypes.ProcessId, channelID uint32) error {
	sess, ok := g.sessions.get(channelID)
	if !ok {
		return ErrWsChannelNotFound
	}
	if !sess.owner.Equal(source) {
		return ErrWsNotOwner
	}
	sess.closeOnce.Do(func() { sess.conn.Close() })
	return nil
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
