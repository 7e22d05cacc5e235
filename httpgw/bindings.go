/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package httpgw implements the HTTP/WebSocket ingress gateway: it binds external HTTP and WebSocket traffic into
// capability-checked kernel messages, and exhibits the same
// concurrency/correlation/authorization concerns as a process
// supervisor in miniature — which is why it is built on top of one.
//
// Grounded on client/websocketRouter (session ownership,
// per-channel forward loops) and ingest/api.go (path-routed request
// dispatch with auth gating).
package httpgw

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/hyperware-os/kernel/kerntypes"
)

// PathBinding is one entry of the HTTP path router.
type PathBinding struct {
	App             *kerntypes.ProcessId
	Path            string
	SecureSubdomain *string
	Authenticated   bool
	LocalOnly       bool
	StaticContent   *kerntypes.Blob
}

// WsPathBinding is one entry of the WebSocket path router.
type WsPathBinding struct {
	App             *kerntypes.ProcessId
	Path            string
	SecureSubdomain *string
	Authenticated   bool
	Extension       bool
}

// Router is the Arc'd RW-lock-protected pair of path routers.
type Router struct {
	mu    sync.RWMutex
	paths map[string]PathBinding
	ws    map[string]WsPathBinding
}

func NewRouter() *Router {
	return &Router{paths: map[string]PathBinding{}, ws: map[string]WsPathBinding{}}
}

func (r *Router) Bind(pb PathBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[pb.Path] = pb
}

func (r *Router) Unbind(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, path)
}

func (r *Router) WsBind(wb WsPathBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ws[wb.Path] = wb
}

func (r *Router) WsUnbind(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ws, path)
}

// Match picks the longest-prefix-matching path binding, falling back to
// the first path segment (conventionally the binding process's id) as a
// wildcard base.
func (r *Router) Match(path string) (PathBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return longestPrefixMatch(r.paths, path)
}

func (r *Router) WsMatch(path string) (WsPathBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return longestPrefixMatch(r.ws, path)
}

func longestPrefixMatch[T any](table map[string]T, path string) (T, bool) {
	var best T
	bestLen := -1
	found := false
	for p, v := range table {
		if (path == p || strings.HasPrefix(path, p+"/")) && len(p) > bestLen {
			best, bestLen, found = v, len(p), true
		}
	}
	if found {
		return best, true
	}
	segs := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
	if len(segs) > 0 {
		if v, ok := table["/"+segs[0]]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

// ProcessIdPrefixed implements "path is automatically prefixed with the
// process id" for Bind/SecureBind/WebSocketBind/WebSocketSecureBind.
func ProcessIdPrefixed(id kerntypes.ProcessId, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "/" + id.String() + path
}

// DeriveSecureSubdomain derives the deterministic per-process subdomain
// used by SecureBind/WebSocketSecureBind: a short hex digest of the
// process id, filtered to the wire charset `[a-z0-9.:-]+`.
func DeriveSecureSubdomain(id kerntypes.ProcessId) string {
	sum := sha256.Sum256([]byte(id.String()))
	return hex.EncodeToString(sum[:8])
}
