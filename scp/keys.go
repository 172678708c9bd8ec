// Package scp implements the secure channel protocols layered over
// plain APDU exchange: the static pre-shared-key scheme (SCP03) and the
// ephemeral key-agreement scheme (SCP11), providing confidentiality,
// integrity and replay protection per command.
package scp

import (
	"crypto/aes"

	"github.com/aead/cmac"
	"github.com/keytokenio/keytoken/util"
)

// KeyRef identifies a key on the card: key identifier and key version
// number, both supplied by the caller.
type KeyRef struct {
	Kid byte
	Kvn byte
}

// SCP11 key identifiers.
const (
	Scp11a byte = 0x11
	Scp11b byte = 0x13
	Scp11c byte = 0x15
)

// SCP03 KDF derivation constants.
const (
	dcCardCryptogram byte = 0x00
	dcHostCryptogram byte = 0x01
	dcSEnc           byte = 0x04
	dcSMac           byte = 0x06
	dcSRMac          byte = 0x07
)

// SessionKeys holds the derived per-session key material. The DEK is
// optional and only used for off-channel data encryption.
type SessionKeys struct {
	SEnc  []byte
	SMac  []byte
	SRMac []byte
	DEK   []byte
}

// Zeroize overwrites all session key material.
func (keys *SessionKeys) Zeroize() {
	util.Zeroize(keys.SEnc)
	util.Zeroize(keys.SMac)
	util.Zeroize(keys.SRMac)
	util.Zeroize(keys.DEK)
	keys.SEnc = nil
	keys.SMac = nil
	keys.SRMac = nil
	keys.DEK = nil
}

// StaticKeys is the pre-shared key set for the static-key scheme.
type StaticKeys struct {
	Enc []byte
	Mac []byte
	DEK []byte
}

// Derive derives the session keys from the host and card challenges
// using the counter-mode KDF.
func (keys *StaticKeys) Derive(context []byte) (*SessionKeys, error) {
	senc, err := deriveKey(keys.Enc, dcSEnc, context, 0x80)
	if err != nil {
		return nil, err
	}
	smac, err := deriveKey(keys.Mac, dcSMac, context, 0x80)
	if err != nil {
		return nil, err
	}
	srmac, err := deriveKey(keys.Mac, dcSRMac, context, 0x80)
	if err != nil {
		return nil, err
	}
	var dek []byte
	if keys.DEK != nil {
		dek = make([]byte, len(keys.DEK))
		copy(dek, keys.DEK)
	}
	return &SessionKeys{SEnc: senc, SMac: smac, SRMac: srmac, DEK: dek}, nil
}

// deriveKey runs one invocation of the counter-mode KDF: AES-CMAC over
// a fixed label block with derivation constant t, output length l bits
// (0x40 or 0x80), followed by the challenge context.
func deriveKey(key []byte, t byte, context []byte, l uint16) ([]byte, error) {
	if l != 0x40 && l != 0x80 {
		return nil, errInvalidKdfLength
	}
	input := util.Concat(
		make([]byte, 11),
		[]byte{t, 0x00},
		util.ToBE(l),
		[]byte{0x01},
		context,
	)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	digest, err := cmac.Sum(input, block, block.BlockSize())
	if err != nil {
		return nil, err
	}
	derived := make([]byte, l/8)
	copy(derived, digest)
	util.Zeroize(digest)
	return derived, nil
}

// aesCmac computes a full-width AES-CMAC tag.
func aesCmac(key []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cmac.Sum(data, block, block.BlockSize())
}
