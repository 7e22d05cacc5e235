/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCookieNameRootVsSubdomain(t *testing.T) {
	if got := cookieName("alice.os", nil); got != "hyperware-auth_alice.os" {
		t.Fatalf("unexpected root cookie name: %q", got)
	}
	sub := "abc123"
	if got := cookieName("alice.os", &sub); got != "hyperware-auth_alice.os@abc123" {
		t.Fatalf("unexpected subdomain cookie name: %q", got)
	}
}

func TestIssueAndValidateAuthCookieRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t)
	cookie := g.issueAuthCookie(nil)
	if cookie == nil {
		t.Fatal("expected a cookie")
	}
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected HttpOnly/Secure/SameSite=Strict cookie, got %+v", cookie)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	if !g.validateAuthCookie(r, nil) {
		t.Fatal("expected the freshly issued cookie to validate")
	}
}

func TestValidateAuthCookieRejectsSubdomainMismatch(t *testing.T) {
	g, _ := newTestGateway(t)
	sub := "abc123"
	cookie := g.issueAuthCookie(&sub)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookie)
	other := "zzz999"
	if g.validateAuthCookie(r, &other) {
		t.Fatal("expected validation to fail for a mismatched subdomain")
	}
}

func TestValidateAuthCookieRejectsMissingCookie(t *testing.T) {
	g, _ := newTestGateway(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if g.validateAuthCookie(r, nil) {
		t.Fatal("expected validation to fail with no cookie present")
	}
}

func TestCheckPasswordHash(t *testing.T) {
	g, _ := newTestGateway(t)
	if !g.checkPasswordHash(HashPassword("hunter2")) {
		t.Fatal("expected the configured password hash to check out")
	}
	if g.checkPasswordHash(HashPassword("wrong")) {
		t.Fatal("expected a wrong password hash to fail")
	}
}

func TestHandleLoginGetServesLoginPage(t *testing.T) {
	g, _ := newTestGateway(t)
	r := httptest.NewRequest(http.MethodGet, "/login", nil)
	w := httptest.NewRecorder()
	g.handleLogin(w, r)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Login") {
		t.Fatalf("expected the login page, got status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestHandleLoginPostSetsCookieOnSuccess(t *testing.T) {
	g, _ := newTestGateway(t)
	body := `{"password_hash":"` + HashPassword("hunter2") + `"}`
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	g.handleLogin(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", w.Code, w.Body.String())
	}
	resp := w.Result()
	if len(resp.Cookies()) != 1 {
		t.Fatalf("expected one Set-Cookie, got %d", len(resp.Cookies()))
	}
}

func TestHandleLoginPostRejectsBadPassword(t *testing.T) {
	g, _ := newTestGateway(t)
	body := `{"password_hash":"` + HashPassword("wrong") + `"}`
	r := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	g.handleLogin(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on bad password, got %d", w.Code)
	}
}
