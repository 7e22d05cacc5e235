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
	"io"
	"net/http"
	"strings"

	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

const maxProxiedBody = 64 << 20

// serveHTTP implements the HTTP request pipeline.
func (g *Gateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := normalizePath(r.URL.Path)

	if wb, ok := g.router.WsMatch(path); ok && isWebSocketUpgrade(r) {
		if wb.App == nil {
			http.NotFound(w, r)
			return
		}
		if wb.Authenticated && !g.authGate(w, r, wb.SecureSubdomain) {
			return
		}
		g.serveWebSocket(w, r, wb)
		return
	}

	pb, ok := g.router.Match(path)
	if !ok || pb.App == nil {
		http.NotFound(w, r)
		return
	}

	if pb.Authenticated && !g.authGate(w, r, pb.SecureSubdomain) {
		return
	}
	if pb.LocalOnly && !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden: local-only binding", http.StatusForbidden)
		return
	}
	if r.Method == http.MethodGet && pb.StaticContent != nil {
		serveStatic(w, pb.StaticContent)
		return
	}
	if pb.App.Equal(rpcProcessID) {
		g.serveRpc(w, r)
		return
	}
	g.serveProxied(w, r, *pb.App, path)
}

// authGate implements pipeline step 2: on a secure-subdomain route, the
// Host header's leading label must match; otherwise a 307 redirect steers
// the client to the correct subdomain. A missing/invalid cookie serves
// the login page instead of a bare 401.
func (g *Gateway) authGate(w http.ResponseWriter, r *http.Request, secureSubdomain *string) bool {
	if secureSubdomain != nil {
		host := hostLabel(r.Host)
		if host != *secureSubdomain {
			target := *r.URL
			target.Host = *secureSubdomain + "." + r.Host
			http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
			return false
		}
	}
	if !g.validateAuthCookie(r, secureSubdomain) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(loginPageHTML))
		return false
	}
	return true
}

// serveProxied implements pipeline steps 6-7: translate into an
// IncomingHttpRequest, await the bound process's HttpResponse within the
// gateway's request timeout, and relay it back to the HTTP client.
func (g *Gateway) serveProxied(w http.ResponseWriter, r *http.Request, app kerntypes.ProcessId, path string) {
	body, err := readLimited(w, r)
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	ihr := IncomingHttpRequest{
		Method:      r.Method,
		Path:        path,
		URL:         r.URL.String(),
		Headers:     map[string][]string(r.Header),
		QueryParams: flattenQuery(r.URL.Query()),
	}
	reqBody, _ := json.Marshal(ihr)
	timeoutSecs := int(g.requestTimeout().Seconds())

	resp, err := g.sup.SendAndAwaitResponse(process.SendRequestArgs{
		Target:          kerntypes.Address{Node: g.node, ProcessId: app},
		Body:            reqBody,
		ExpectsResponse: &timeoutSecs,
		Blob:            &kerntypes.Blob{Bytes: body},
	})
	if err != nil {
		http.Error(w, "gateway error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if resp.Err != nil {
		if resp.Err.Kind == kerntypes.NetErrTimeout {
			http.Error(w, "request timed out", http.StatusRequestTimeout)
		} else {
			http.Error(w, "process unreachable", http.StatusInternalServerError)
		}
		return
	}
	if resp.KM == nil || resp.KM.Message.Response == nil {
		http.Error(w, "gateway error: empty response", http.StatusInternalServerError)
		return
	}

	var hr HttpResponse
	if err := json.Unmarshal(resp.KM.Message.Response.Body, &hr); err != nil {
		http.Error(w, "gateway error: malformed HttpResponse", http.StatusInternalServerError)
		return
	}
	writeMergedHeaders(w, hr.Headers)
	status := hr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if resp.KM.Blob != nil {
		w.Write(resp.KM.Blob.Bytes)
	}
}

// writeMergedHeaders copies hdrs onto w, splitting a combined Set-Cookie
// entry back into one header line per cookie.
func writeMergedHeaders(w http.ResponseWriter, hdrs map[string][]string) {
	for k, vs := range hdrs {
		if strings.EqualFold(k, "Set-Cookie") {
			for _, v := range vs {
				for _, cookie := range splitSetCookie(v) {
					w.Header().Add("Set-Cookie", cookie)
				}
			}
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
}

// splitSetCookie splits a Set-Cookie value that bundles multiple cookies
// with ", " between them, being careful not to split on commas inside an
// Expires attribute's date.
func splitSetCookie(v string) []string {
	parts := strings.Split(v, ", ")
	var out []string
	for _, p := range parts {
		if len(out) > 0 && looksLikeExpiresContinuation(p) {
			out[len(out)-1] += ", " + p
			continue
		}
		out = append(out, p)
	}
	return out
}

func looksLikeExpiresContinuation(s string) bool {
	// A continuation fragment from an Expires=<day>, <date> split never
	// itself contains a '='-delimited cookie-name pair before the first ';'.
	seg := s
	if i := strings.Index(seg, ";"); i >= 0 {
		seg = seg[:i]
	}
	return !strings.Contains(seg, "=")
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		return strings.TrimSuffix(p, "/")
	}
	return p
}

func hostLabel(host string) string {
	h := stripPort(host)
	if i := strings.Index(h, "."); i >= 0 {
		return h[:i]
	}
	return h
}

func stripLeadingLabel(host string) string {
	h := stripPort(host)
	if i := strings.Index(h, "."); i >= 0 {
		return h[i+1:]
	}
	return h
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}

func flattenQuery(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, vs := range q {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func serveStatic(w http.ResponseWriter, blob *kerntypes.Blob) {
	if blob.Mime != nil {
		w.Header().Set("Content-Type", *blob.Mime)
	}
	w.Write(blob.Bytes)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Connection"), "Upgrade") ||
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

func readLimited(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxProxiedBody))
}
