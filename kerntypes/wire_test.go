/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package kerntypes

import (
	"bytes"
	"testing"
)

func TestKernelMessageRoundTrip(t *testing.T) {
	secs := 5
	meta := "no-revoke"
	rsvp := Address{Node: "our", ProcessId: ProcessId{"chat", "chat", "sys"}}
	mime := "text/plain"

	km := KernelMessage{
		ID:     42,
		Source: Address{Node: "alice.os", ProcessId: ProcessId{"term", "term", "sys"}},
		Target: Address{Node: "alice.os", ProcessId: ProcessId{"chat", "chat", "sys"}},
		RSVP:   &rsvp,
		Message: Message{
			Request: &Request{
				Inherit:         true,
				ExpectsResponse: &secs,
				Body:            []byte(`{"ok":1}`),
				Metadata:        &meta,
				Capabilities: []SignedCapability{
					{Capability: Capability{Issuer: rsvp, Params: MessagingCap}, Signature: []byte{1, 2, 3}},
				},
			},
		},
		Blob: &Blob{Mime: &mime, Bytes: []byte("hello")},
	}

	b, err := km.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeKernelMessage(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != km.ID || !got.Source.Equal(km.Source) || !got.Target.Equal(km.Target) {
		t.Fatalf("envelope mismatch: %+v", got)
	}
	if got.RSVP == nil || !got.RSVP.Equal(*km.RSVP) {
		t.Fatalf("rsvp mismatch: %+v", got.RSVP)
	}
	if got.Message.Request == nil || !bytes.Equal(got.Message.Request.Body, km.Message.Request.Body) {
		t.Fatalf("body mismatch")
	}
	if got.Message.Request.ExpectsResponse == nil || *got.Message.Request.ExpectsResponse != secs {
		t.Fatalf("expects_response mismatch")
	}
	if len(got.Message.Request.Capabilities) != 1 {
		t.Fatalf("expected 1 capability, got %d", len(got.Message.Request.Capabilities))
	}
	if got.Blob == nil || !bytes.Equal(got.Blob.Bytes, km.Blob.Bytes) {
		t.Fatalf("blob mismatch")
	}
}

func TestProcessIdValidation(t *testing.T) {
	cases := []struct {
		s  string
		ok bool
	}{
		{"chat:chat:sys", true},
		{"kernel:kernel:kernel", true},
		{"123:pkg:pub", false}, // all-digit segment rejected
		{"Chat:chat:sys", false},
		{"chat:chat", false},
	}
	for _, c := range cases {
		pid, err := ParseProcessId(c.s)
		ok := err == nil && pid.Validate() == nil
		if ok != c.ok {
			t.Errorf("ParseProcessId(%q) ok=%v want %v", c.s, ok, c.ok)
		}
	}
}
