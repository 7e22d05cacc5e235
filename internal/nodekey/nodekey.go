/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package nodekey holds the node's long-term Ed25519 identity and signs
// capability byte-encodings on its behalf. Key
// derivation/storage itself is a black-box collaborator; this
// package only consumes an already-derived key pair.
package nodekey

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/hyperware-os/kernel/kerntypes"
)

var ErrVerificationFailed = errors.New("capability signature verification failed")

// NodeKey is the kernel's signer: the sole producer of capability
// signatures.
type NodeKey struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// Generate produces a fresh random key pair, for tests and first-boot.
func Generate() (NodeKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return NodeKey{}, err
	}
	return NodeKey{pub: pub, priv: priv}, nil
}

// FromSeed reconstructs a NodeKey from a previously derived 32-byte seed.
func FromSeed(seed []byte) NodeKey {
	priv := ed25519.NewKeyFromSeed(seed)
	return NodeKey{pub: priv.Public().(ed25519.PublicKey), priv: priv}
}

func (nk NodeKey) PublicKey() ed25519.PublicKey { return nk.pub }

// Sign produces a SignedCapability by signing the capability's canonical
// byte encoding.
func (nk NodeKey) Sign(cap kerntypes.Capability) kerntypes.SignedCapability {
	msg := kerntypes.CapabilitySigningBytes(cap)
	sig := ed25519.Sign(nk.priv, msg)
	return kerntypes.SignedCapability{Capability: cap, Signature: sig}
}

// Verify checks a signature against this node's public key. Only
// remote-origin capabilities claiming local issuance need this call; all
// other paths trust the oracle's signatures unverified.
func Verify(pub ed25519.PublicKey, sc kerntypes.SignedCapability) error {
	msg := kerntypes.CapabilitySigningBytes(sc.Capability)
	if !ed25519.Verify(pub, msg, sc.Signature) {
		return ErrVerificationFailed
	}
	return nil
}
