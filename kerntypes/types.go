/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package kerntypes is the kernel's data model: ProcessId, Address,
// Capability, Message and the KernelMessage envelope. It is the
// leaf package every other kernel package depends on.
package kerntypes

import (
	"errors"
	"strings"
)

const (
	// KernelProcess, StateProcess and VFSProcess are always resolvable.
	KernelProcess = `kernel`
	StateProcess  = `state`
	VFSProcess    = `vfs`

	// OurLiteral is rewritten to the node's own name at entry to the event loop.
	OurLiteral = `our`

	MessagingCap = `"messaging"`
	NetworkCap   = `"network"`
)

var (
	ErrInvalidProcessIdPart = errors.New("invalid process id component")
	ErrInvalidNodeName      = errors.New("invalid node name")
)

// ValidProcessIdPart enforces the same restricted charset the original
// on-chain name validator uses: lowercase alphanumerics, '-' and '.',
// non-empty, and not purely numeric (numeric-only segments are reserved).
func ValidProcessIdPart(s string) bool {
	if s == "" {
		return false
	}
	allDigits := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			allDigits = false
		case r >= '0' && r <= '9':
		case r == '-' || r == '.':
			allDigits = false
		default:
			return false
		}
	}
	return !allDigits
}

// ValidNodeName checks the wire-form node name charset (§6): lowercase
// ASCII alphanumerics, '-', '.', ':'.
func ValidNodeName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == ':':
		default:
			return false
		}
	}
	return true
}

// ProcessId is the (process, package, publisher) triple that names a process.
type ProcessId struct {
	Process   string
	Package   string
	Publisher string
}

func NewProcessId(process, pkg, publisher string) (ProcessId, error) {
	pid := ProcessId{Process: process, Package: pkg, Publisher: publisher}
	return pid, pid.Validate()
}

// Validate applies the safe-id charset check to each component, except
// for the three reserved system ids which are always resolvable verbatim.
func (p ProcessId) Validate() error {
	if p.IsReserved() {
		return nil
	}
	if !ValidProcessIdPart(p.Process) || !ValidProcessIdPart(p.Package) || !ValidProcessIdPart(p.Publisher) {
		return ErrInvalidProcessIdPart
	}
	return nil
}

func (p ProcessId) IsReserved() bool {
	switch p.Process {
	case KernelProcess, StateProcess, VFSProcess:
		return true
	}
	return false
}

func (p ProcessId) String() string {
	return p.Process + ":" + p.Package + ":" + p.Publisher
}

func (p ProcessId) Equal(o ProcessId) bool {
	return p.Process == o.Process && p.Package == o.Package && p.Publisher == o.Publisher
}

// ParseProcessId parses the textual "process:package:publisher" form.
func ParseProcessId(s string) (ProcessId, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return ProcessId{}, ErrInvalidProcessIdPart
	}
	return NewProcessId(parts[0], parts[1], parts[2])
}

// Address is (node_name, ProcessId).
type Address struct {
	Node      string
	ProcessId ProcessId
}

func (a Address) Equal(o Address) bool {
	return a.Node == o.Node && a.ProcessId.Equal(o.ProcessId)
}

func (a Address) String() string {
	return a.Node + "@" + a.ProcessId.String()
}

// RewriteOur rewrites the literal "our" node to nodeName.
func (a Address) RewriteOur(nodeName string) Address {
	if a.Node == OurLiteral {
		a.Node = nodeName
	}
	return a
}

// Capability is (issuer, params). It is a plain value; it only becomes
// authority once paired with a valid signature (SignedCapability).
type Capability struct {
	Issuer Address
	Params string
}

func (c Capability) Equal(o Capability) bool {
	return c.Issuer.Equal(o.Issuer) && c.Params == o.Params
}

// SignedCapability is a Capability plus the issuer node's signature over
// its canonical encoding.
type SignedCapability struct {
	Capability Capability
	Signature  []byte
}

// MessagingCapability is the self-messaging capability every process must
// hold at minimum.
func MessagingCapability(node string, pid ProcessId) Capability {
	return Capability{Issuer: Address{Node: node, ProcessId: pid}, Params: MessagingCap}
}

// NetworkCapability is the kernel-issued capability gating outbound
// network sends.
func NetworkCapability(node string) Capability {
	kernelPid, _ := NewProcessId(KernelProcess, KernelProcess, KernelProcess)
	return Capability{Issuer: Address{Node: node, ProcessId: kernelPid}, Params: NetworkCap}
}

// Blob is the out-of-band byte payload carried alongside a KernelMessage.
type Blob struct {
	Mime  *string
	Bytes []byte
}

// Request is the request half of the Message union.
type Request struct {
	Inherit         bool
	ExpectsResponse *int // seconds; nil means no response expected
	Body            []byte
	Metadata        *string
	Capabilities    []SignedCapability
}

// Response is the response half of the Message union. Context is filled
// in by the recipient from its own outstanding-request table — never by
// the sender.
type Response struct {
	Body         []byte
	Metadata     *string
	Capabilities []SignedCapability
	Context      []byte // nil unless the recipient attaches saved context
}

// Message is the tagged union {Request, Response}. Exactly one of the two
// pointer fields is non-nil.
type Message struct {
	Request  *Request
	Response *Response
}

func (m Message) IsRequest() bool  { return m.Request != nil }
func (m Message) IsResponse() bool { return m.Response != nil }

// KernelMessage is the envelope every hop in the system routes.
type KernelMessage struct {
	ID      uint64
	Source  Address
	Target  Address
	RSVP    *Address
	Message Message
	Blob    *Blob
}

// ExpectsResponse reports whether this envelope's Request wants a
// Response (used throughout the capability gate and timeout machinery).
func (km KernelMessage) ExpectsResponse() bool {
	return km.Message.Request != nil && km.Message.Request.ExpectsResponse != nil
}

// OnExit describes what happens when a process's supervisor terminates.
type OnExitKind int

const (
	OnExitNone OnExitKind = iota
	OnExitRestart
	OnExitRequests
)

type PendingRequest struct {
	Target  Address
	Request Request
	Blob    *Blob
}

type OnExit struct {
	Kind     OnExitKind
	Requests []PendingRequest // only meaningful when Kind == OnExitRequests
}

// PersistedProcess is the ProcessMap value type.
type PersistedProcess struct {
	WasmBytesHandle string
	WitVersion      *uint32
	OnExit          OnExit
	Capabilities    map[Capability][]byte // capability -> signature bytes
	Public          bool
}

func (p PersistedProcess) Clone() PersistedProcess {
	np := p
	np.Capabilities = make(map[Capability][]byte, len(p.Capabilities))
	for k, v := range p.Capabilities {
		sig := make([]byte, len(v))
		copy(sig, v)
		np.Capabilities[k] = sig
	}
	np.OnExit.Requests = append([]PendingRequest(nil), p.OnExit.Requests...)
	return np
}

// NetworkErrorKind enumerates the reasons a network send can fail.
type NetworkErrorKind int

const (
	NetErrOffline NetworkErrorKind = iota
	NetErrTimeout
)

func (k NetworkErrorKind) String() string {
	if k == NetErrOffline {
		return "Offline"
	}
	return "Timeout"
}

// NetworkError pairs a delivery failure with the message id it concerns,
// so the affected supervisor's outstanding-request table can be consulted.
type NetworkError struct {
	ID     uint64
	Kind   NetworkErrorKind
	Target Address
}

func (e NetworkError) Error() string {
	return "network error (" + e.Kind.String() + ") delivering to " + e.Target.String()
}
