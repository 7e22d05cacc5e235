/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"testing"

	"github.com/hyperware-os/kernel/kerntypes"
)

func mustPid(t *testing.T, s string) kerntypes.ProcessId {
	t.Helper()
	pid, err := kerntypes.ParseProcessId(s)
	if err != nil {
		t.Fatalf("ParseProcessId(%q): %v", s, err)
	}
	return pid
}

func TestRouterLongestPrefixMatch(t *testing.T) {
	r := NewRouter()
	short := mustPid(t, "chat:chat:sys")
	long := mustPid(t, "chat:chat:sys")
	r.Bind(PathBinding{App: &short, Path: "/chat"})
	r.Bind(PathBinding{App: &long, Path: "/chat/messages"})

	pb, ok := r.Match("/chat/messages/123")
	if !ok {
		t.Fatal("expected a match")
	}
	if pb.Path != "/chat/messages" {
		t.Fatalf("expected longest-prefix match /chat/messages, got %q", pb.Path)
	}
}

func TestRouterWildcardFallbackToFirstSegment(t *testing.T) {
	r := NewRouter()
	app := mustPid(t, "chat:chat:sys")
	r.Bind(PathBinding{App: &app, Path: "/chat"})

	pb, ok := r.Match("/chat/anything/else")
	if !ok || pb.Path != "/chat" {
		t.Fatalf("expected wildcard fallback to /chat, got %+v ok=%v", pb, ok)
	}
}

func TestRouterUnbindClearsEntry(t *testing.T) {
	r := NewRouter()
	app := mustPid(t, "chat:chat:sys")
	r.Bind(PathBinding{App: &app, Path: "/chat"})
	r.Unbind("/chat")

	if _, ok := r.Match("/chat"); ok {
		t.Fatal("expected no match after unbind")
	}
}

func TestProcessIdPrefixed(t *testing.T) {
	app := mustPid(t, "chat:chat:sys")
	got := ProcessIdPrefixed(app, "messages")
	want := "/chat:chat:sys/messages"
	if got != want {
		t.Fatalf("ProcessIdPrefixed = %q, want %q", got, want)
	}
}

func TestDeriveSecureSubdomainIsDeterministic(t *testing.T) {
	app := mustPid(t, "chat:chat:sys")
	a := DeriveSecureSubdomain(app)
	b := DeriveSecureSubdomain(app)
	if a != b {
		t.Fatalf("expected deterministic derivation, got %q and %q", a, b)
	}
	other := mustPid(t, "term:term:sys")
	if DeriveSecureSubdomain(other) == a {
		t.Fatal("expected distinct processes to derive distinct subdomains")
	}
}
