/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package httpgw

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperware-os/kernel/kerntypes"
	"github.com/hyperware-os/kernel/process"
)

func TestServeRpcFireAndForgetWithoutExpectsResponse(t *testing.T) {
	g, k := newTestGateway(t)
	body := `{"process":"chat:chat:sys","body":"hi"}`
	r := httptest.NewRequest(http.MethodPost, "/rpc:distro:sys/message", strings.NewReader(body))
	w := httptest.NewRecorder()
	g.serveRpc(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", w.Code, w.Body.String())
	}
	km, ok := k.last()
	if !ok || km.RSVP != nil {
		t.Fatalf("expected a fire-and-forget send with no rsvp, got %+v ok=%v", km, ok)
	}
	if string(km.Message.Request.Body) != "hi" {
		t.Fatalf("expected forwarded body %q, got %q", "hi", km.Message.Request.Body)
	}
}

func TestServeRpcRoundTripWithExpectsResponse(t *testing.T) {
	g, k := newTestGateway(t)
	k.onSend = func(km kerntypes.KernelMessage) {
		if !km.Message.IsRequest() || km.RSVP == nil {
			return
		}
		g.sup.Deliver(process.InboundMsg{KM: &kerntypes.KernelMessage{
			ID:      km.ID,
			Source:  km.Target,
			Target:  *km.RSVP,
			Message: kerntypes.Message{Response: &kerntypes.Response{Body: []byte("pong")}},
			Blob:    &kerntypes.Blob{Bytes: []byte("blobdata")},
		}})
	}

	body := `{"process":"chat:chat:sys","body":"hi","expects_response":5}`
	r := httptest.NewRequest(http.MethodPost, "/rpc:distro:sys/message", strings.NewReader(body))
	w := httptest.NewRecorder()
	g.serveRpc(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", w.Code, w.Body.String())
	}
	var out RpcResponseEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response envelope: %v", err)
	}
	if out.Body != "pong" {
		t.Fatalf("expected body 'pong', got %q", out.Body)
	}
	if out.LazyLoadBlob == nil {
		t.Fatal("expected a lazy_load_blob")
	}
	decoded, err := base64.StdEncoding.DecodeString(*out.LazyLoadBlob)
	if err != nil || string(decoded) != "blobdata" {
		t.Fatalf("expected decoded blob 'blobdata', got %q err=%v", decoded, err)
	}
}

func TestServeRpcRejectsNonPost(t *testing.T) {
	g, _ := newTestGateway(t)
	r := httptest.NewRequest(http.MethodGet, "/rpc:distro:sys/message", nil)
	w := httptest.NewRecorder()
	g.serveRpc(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestServeRpcRejectsInvalidProcessId(t *testing.T) {
	g, _ := newTestGateway(t)
	body := `{"process":"not-a-valid-triple"}`
	r := httptest.NewRequest(http.MethodPost, "/rpc:distro:sys/message", strings.NewReader(body))
	w := httptest.NewRecorder()
	g.serveRpc(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on invalid process id, got %d", w.Code)
	}
}

func TestServeRpcDecodesBase64Data(t *testing.T) {
	g, k := newTestGateway(t)
	encoded := base64.StdEncoding.EncodeToString([]byte("raw-bytes"))
	body := `{"process":"chat:chat:sys","data":"` + encoded + `"}`
	r := httptest.NewRequest(http.MethodPost, "/rpc:distro:sys/message", strings.NewReader(body))
	w := httptest.NewRecorder()
	g.serveRpc(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	km, ok := k.last()
	if !ok || km.Blob == nil || string(km.Blob.Bytes) != "raw-bytes" {
		t.Fatalf("expected decoded blob bytes, got %+v ok=%v", km, ok)
	}
}
