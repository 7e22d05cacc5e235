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
	"encoding/binary"
	"errors"
	"io"
)

// Wire form: a compact, self-describing binary encoding built from
// fixed-size fields plus length-prefixed variable fields, the same shape
// as the Entry/TagRequest encoders elsewhere in this codebase (binary.Write
// for scalars, a uint32 length prefix ahead of every blob or string).

const maxWireField uint32 = 64 * 1024 * 1024

var (
	ErrOversizedField = errors.New("wire field exceeds maximum size")
	ErrTruncated       = errors.New("wire message truncated")
	ErrBadUnion        = errors.New("message must be exactly one of request/response")
)

func writeBytes(w io.Writer, b []byte) error {
	if uint32(len(b)) > maxWireField {
		return ErrOversizedField
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var l uint32
	if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
		return nil, err
	}
	if l > maxWireField {
		return nil, ErrOversizedField
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, ErrTruncated
	}
	return b, nil
}

func writeString(w io.Writer, s string) error { return writeBytes(w, []byte(s)) }

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func writeOptString(w io.Writer, s *string) error {
	if s == nil {
		return binary.Write(w, binary.LittleEndian, uint8(0))
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(1)); err != nil {
		return err
	}
	return writeString(w, *s)
}

func readOptString(r io.Reader) (*string, error) {
	var present uint8
	if err := binary.Read(r, binary.LittleEndian, &present); err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	s, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func writeProcessId(w io.Writer, p ProcessId) error {
	if err := writeString(w, p.Process); err != nil {
		return err
	}
	if err := writeString(w, p.Package); err != nil {
		return err
	}
	return writeString(w, p.Publisher)
}

func readProcessId(r io.Reader) (p ProcessId, err error) {
	if p.Process, err = readString(r); err != nil {
		return
	}
	if p.Package, err = readString(r); err != nil {
		return
	}
	p.Publisher, err = readString(r)
	return
}

func writeAddress(w io.Writer, a Address) error {
	if err := writeString(w, a.Node); err != nil {
		return err
	}
	return writeProcessId(w, a.ProcessId)
}

func readAddress(r io.Reader) (a Address, err error) {
	if a.Node, err = readString(r); err != nil {
		return
	}
	a.ProcessId, err = readProcessId(r)
	return
}

func writeOptAddress(w io.Writer, a *Address) error {
	if a == nil {
		return binary.Write(w, binary.LittleEndian, uint8(0))
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(1)); err != nil {
		return err
	}
	return writeAddress(w, *a)
}

func readOptAddress(r io.Reader) (*Address, error) {
	var present uint8
	if err := binary.Read(r, binary.LittleEndian, &present); err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	a, err := readAddress(r)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CapabilitySigningBytes is the canonical byte form used for signing: the
// encoding applied to (issuer, params) only.
func CapabilitySigningBytes(c Capability) []byte {
	bb := bytes.NewBuffer(nil)
	writeAddress(bb, c.Issuer)
	writeString(bb, c.Params)
	return bb.Bytes()
}

func writeSignedCap(w io.Writer, sc SignedCapability) error {
	if err := writeAddress(w, sc.Capability.Issuer); err != nil {
		return err
	}
	if err := writeString(w, sc.Capability.Params); err != nil {
		return err
	}
	return writeBytes(w, sc.Signature)
}

func readSignedCap(r io.Reader) (sc SignedCapability, err error) {
	if sc.Capability.Issuer, err = readAddress(r); err != nil {
		return
	}
	if sc.Capability.Params, err = readString(r); err != nil {
		return
	}
	sc.Signature, err = readBytes(r)
	return
}

func writeSignedCaps(w io.Writer, scs []SignedCapability) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(scs))); err != nil {
		return err
	}
	for _, sc := range scs {
		if err := writeSignedCap(w, sc); err != nil {
			return err
		}
	}
	return nil
}

func readSignedCaps(r io.Reader) ([]SignedCapability, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n > 1<<20 {
		return nil, ErrOversizedField
	}
	out := make([]SignedCapability, 0, n)
	for i := uint32(0); i < n; i++ {
		sc, err := readSignedCap(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, nil
}

const (
	kindRequest  uint8 = 1
	kindResponse uint8 = 2
)

// Encode serializes a KernelMessage into the wire form.
func (km KernelMessage) Encode() ([]byte, error) {
	bb := bytes.NewBuffer(nil)
	if err := binary.Write(bb, binary.LittleEndian, km.ID); err != nil {
		return nil, err
	}
	if err := writeAddress(bb, km.Source); err != nil {
		return nil, err
	}
	if err := writeAddress(bb, km.Target); err != nil {
		return nil, err
	}
	if err := writeOptAddress(bb, km.RSVP); err != nil {
		return nil, err
	}
	if err := encodeMessage(bb, km.Message); err != nil {
		return nil, err
	}
	if err := encodeBlob(bb, km.Blob); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

// DecodeKernelMessage parses the wire form produced by Encode.
func DecodeKernelMessage(b []byte) (km KernelMessage, err error) {
	r := bytes.NewReader(b)
	if err = binary.Read(r, binary.LittleEndian, &km.ID); err != nil {
		return
	}
	if km.Source, err = readAddress(r); err != nil {
		return
	}
	if km.Target, err = readAddress(r); err != nil {
		return
	}
	if km.RSVP, err = readOptAddress(r); err != nil {
		return
	}
	if km.Message, err = decodeMessage(r); err != nil {
		return
	}
	km.Blob, err = decodeBlob(r)
	return
}

func encodeMessage(w io.Writer, m Message) error {
	switch {
	case m.Request != nil:
		if err := binary.Write(w, binary.LittleEndian, kindRequest); err != nil {
			return err
		}
		req := m.Request
		if err := binary.Write(w, binary.LittleEndian, req.Inherit); err != nil {
			return err
		}
		var hasER uint8
		var er int64
		if req.ExpectsResponse != nil {
			hasER = 1
			er = int64(*req.ExpectsResponse)
		}
		if err := binary.Write(w, binary.LittleEndian, hasER); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, er); err != nil {
			return err
		}
		if err := writeBytes(w, req.Body); err != nil {
			return err
		}
		if err := writeOptString(w, req.Metadata); err != nil {
			return err
		}
		return writeSignedCaps(w, req.Capabilities)
	case m.Response != nil:
		if err := binary.Write(w, binary.LittleEndian, kindResponse); err != nil {
			return err
		}
		resp := m.Response
		if err := writeBytes(w, resp.Body); err != nil {
			return err
		}
		if err := writeOptString(w, resp.Metadata); err != nil {
			return err
		}
		if err := writeSignedCaps(w, resp.Capabilities); err != nil {
			return err
		}
		return writeBytes(w, resp.Context)
	default:
		return ErrBadUnion
	}
}

func decodeMessage(r io.Reader) (m Message, err error) {
	var kind uint8
	if err = binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return
	}
	switch kind {
	case kindRequest:
		req := &Request{}
		if err = binary.Read(r, binary.LittleEndian, &req.Inherit); err != nil {
			return
		}
		var hasER uint8
		var er int64
		if err = binary.Read(r, binary.LittleEndian, &hasER); err != nil {
			return
		}
		if err = binary.Read(r, binary.LittleEndian, &er); err != nil {
			return
		}
		if hasER == 1 {
			v := int(er)
			req.ExpectsResponse = &v
		}
		if req.Body, err = readBytes(r); err != nil {
			return
		}
		if req.Metadata, err = readOptString(r); err != nil {
			return
		}
		if req.Capabilities, err = readSignedCaps(r); err != nil {
			return
		}
		m.Request = req
	case kindResponse:
		resp := &Response{}
		if resp.Body, err = readBytes(r); err != nil {
			return
		}
		if resp.Metadata, err = readOptString(r); err != nil {
			return
		}
		if resp.Capabilities, err = readSignedCaps(r); err != nil {
			return
		}
		if resp.Context, err = readBytes(r); err != nil {
			return
		}
		m.Response = resp
	default:
		err = ErrBadUnion
	}
	return
}

func encodeBlob(w io.Writer, b *Blob) error {
	if b == nil {
		return binary.Write(w, binary.LittleEndian, uint8(0))
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(1)); err != nil {
		return err
	}
	if err := writeOptString(w, b.Mime); err != nil {
		return err
	}
	return writeBytes(w, b.Bytes)
}

func decodeBlob(r io.Reader) (*Blob, error) {
	var present uint8
	if err := binary.Read(r, binary.LittleEndian, &present); err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	b := &Blob{}
	var err error
	if b.Mime, err = readOptString(r); err != nil {
		return nil, err
	}
	if b.Bytes, err = readBytes(r); err != nil {
		return nil, err
	}
	return b, nil
}
