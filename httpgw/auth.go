/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// authClaims is the JWT payload signed into the auth cookie.
type authClaims struct {
	Node      string `json:"node"`
	Subdomain string `json:"subdomain,omitempty"`
	jwt.RegisteredClaims
}

// cookieName derives the per-node, per-subdomain auth cookie name:
// hyperware-auth_<node> for root, hyperware-auth_<node>@<subdomain> for a
// secure-subdomain route.
func cookieName(node string, subdomain *string) string {
	if subdomain == nil || *subdomain == "" {
		return "hyperware-auth_" + node
	}
	return "hyperware-auth_" + node + "@" + *subdomain
}

// issueAuthCookie signs a JWT naming node (and, for a secure-subdomain
// route, the subdomain it is scoped to) and wraps it in a
// HttpOnly/Secure/SameSite=Strict cookie.
func (g *Gateway) issueAuthCookie(subdomain *string) *http.Cookie {
	claims := authClaims{
		Node: g.node,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(30 * 24 * time.Hour)),
		},
	}
	if subdomain != nil {
		claims.Subdomain = *subdomain
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.jwtKey)
	if err != nil {
		return nil
	}
	return &http.Cookie{
		Name:     cookieName(g.node, subdomain),
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// validateAuthCookie checks the named cookie against the gateway's
// signing key and, for a secure-subdomain route, that the token's bound
// subdomain matches. Returns false if the cookie is absent, malformed,
// expired, or subdomain-mismatched.
func (g *Gateway) validateAuthCookie(r *http.Request, subdomain *string) bool {
	c, err := r.Cookie(cookieName(g.node, subdomain))
	if err != nil {
		return false
	}
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(c.Value, claims, func(*jwt.Token) (interface{}, error) {
		return g.jwtKey, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	if claims.Node != g.node {
		return false
	}
	if subdomain != nil && claims.Subdomain != *subdomain {
		return false
	}
	return true
}

// loginRequest is the body of POST /login.
type loginRequest struct {
	PasswordHash string  `json:"password_hash"`
	Subdomain    *string `json:"subdomain,omitempty"`
	Redirect     string  `json:"redirect,omitempty"`
}

// handleLogin verifies the supplied password hash against the node's
// configured hash (delegating actual key-material decryption to the
// node's crypto collaborator is out of scope here; the gateway only owns
// session issuance) and, on success, sets the auth cookie.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(loginPageHTML))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1024*16)
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !g.checkPasswordHash(req.PasswordHash) {
		writeJSONError(w, http.StatusInternalServerError, "invalid password")
		return
	}

	cookie := g.issueAuthCookie(req.Subdomain)
	if cookie == nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to sign session")
		return
	}
	http.SetCookie(w, cookie)

	if req.Redirect != "" {
		if u, err := url.Parse(req.Redirect); err == nil && !u.IsAbs() {
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// checkPasswordHash does a constant-time comparison against the node's
// configured password hash (sha256 of the boot-supplied password,
// matching the hash algorithm the login request itself names).
func (g *Gateway) checkPasswordHash(candidate string) bool {
	want, err := hex.DecodeString(g.passwordHashHex)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(candidate)
	if err != nil || len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

// HashPassword derives the boot-time password hash the gateway compares
// login attempts against.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

const loginPageHTML = `<!DOCTYPE html>
<html><head><title>Login</title></head>
<body><form method="POST" action="/login">
<input type="password" name="password_hash" placeholder="password hash" />
<button type="submit">Login</button>
</form></body></html>`
