/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run starts the HTTP listener on addr and the verb-processing loop, and
// blocks until ctx is cancelled or either fails. Grounded on the
// muxer-plus-listener wiring in ingest/api.go, rewired through
// golang.org/x/sync/errgroup: a small fixed set of supervised background
// goroutines (HTTP listener, verb loop, shutdown watcher) with
// coordinated shutdown.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", g.handleLogin)
	mux.HandleFunc("/", g.serveHTTP)

	g.httpSrv = &http.Server{Addr: addr, Handler: mux}

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		return g.httpSrv.Serve(ln)
	})
	grp.Go(func() error {
		return g.verbsLoop(gctx)
	})
	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.httpSrv.Shutdown(shutdownCtx)
		g.sup.Shutdown()
		return nil
	})
	err := grp.Wait()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// verbsLoop is the gateway's own supervisor-inbox drain: every binding
// verb arrives here as a Request from the
// userspace process that sent it.
func (g *Gateway) verbsLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		msg, err := g.sup.Receive()
		if err != nil {
			return nil
		}
		if msg.KM == nil || !msg.KM.Message.IsRequest() {
			continue
		}
		var v Verb
		if err := json.Unmarshal(msg.KM.Message.Request.Body, &v); err != nil {
			g.log.Warnf("httpgw: malformed binding verb from %s: %v", msg.KM.Source.ProcessId, err)
			continue
		}
		result := g.handleVerb(msg.KM.Source.ProcessId, v, msg.KM.Blob)
		if msg.KM.ExpectsResponse() {
			g.sup.SendResponse(marshalVerbResult(result), nil, nil, nil)
		}
	}
}
