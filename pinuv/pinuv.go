// Package pinuv implements the CTAP2 PIN/UV Auth Protocol: ECDH key
// agreement on P-256 plus the symmetric encrypt/authenticate primitives,
// in both protocol versions. Primitives from different versions must
// never be mixed; the version is negotiated once from the
// authenticator's advertised capability.
package pinuv

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/keytokenio/keytoken/cose"
)

var (
	ErrNotBlockAligned  = errors.New("pinuv: input not a multiple of the AES block size")
	ErrCiphertextLength = errors.New("pinuv: ciphertext too short")
)

// Protocol is one version of the PIN/UV Auth Protocol.
type Protocol interface {
	// Version is the protocol version advertised in pinUvAuthProtocols.
	Version() int
	// Encapsulate generates a platform ephemeral key, performs ECDH
	// against the authenticator's key-agreement key and returns the
	// platform COSE key along with the derived shared secret.
	Encapsulate(peerKey *cose.Key) (*cose.Key, []byte, error)
	// Kdf derives the shared secret from the raw ECDH output.
	Kdf(z []byte) []byte
	Encrypt(key []byte, plaintext []byte) ([]byte, error)
	Decrypt(key []byte, ciphertext []byte) ([]byte, error)
	// Authenticate computes the authentication tag for a message.
	Authenticate(key []byte, message []byte) []byte
	// Verify checks an authentication tag in constant time.
	Verify(key []byte, message []byte, tag []byte) bool
}

// New returns the protocol implementation for a version advertised by
// the authenticator.
func New(version int) (Protocol, error) {
	switch version {
	case 1:
		return &V1{}, nil
	case 2:
		return &V2{}, nil
	}
	return nil, fmt.Errorf("pinuv: unsupported protocol version %d", version)
}

// encapsulate is the ECDH exchange shared by both versions; the raw
// shared secret runs through the version's own KDF.
func encapsulate(protocol Protocol, peerKey *cose.Key) (*cose.Key, []byte, error) {
	peerPublicKey, err := peerKey.ECDH()
	if err != nil {
		return nil, nil, err
	}
	platformKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	z, err := platformKey.ECDH(peerPublicKey)
	if err != nil {
		return nil, nil, err
	}
	sharedSecret := protocol.Kdf(z)
	for i := range z {
		z[i] = 0
	}
	return cose.FromECDH(platformKey.PublicKey()), sharedSecret, nil
}
