// Package cose implements the COSE_Key encoding used for the CTAP2
// PIN/UV key agreement: an EC2 key on P-256 with fixed-width
// coordinates, serialized as a CBOR map with integer labels.
package cose

import (
	"crypto/ecdh"
	"errors"
	"fmt"
)

type COSEAlgorithmID int32

const (
	COSE_ALGORITHM_ID_ES256         COSEAlgorithmID = -7
	COSE_ALGORITHM_ID_ECDH_HKDF_256 COSEAlgorithmID = -25
)

type COSEKeyType int32

const (
	COSE_KEY_TYPE_OKP COSEKeyType = 1
	COSE_KEY_TYPE_EC2 COSEKeyType = 2
	COSE_KEY_TYPE_RSA COSEKeyType = 3
)

type COSECurveID int32

const (
	COSE_CURVE_ID_P256 COSECurveID = 1
)

const coordinateSize = 32

var ErrUnsupportedKey = errors.New("cose: unsupported key type")

// Key is a COSE_Key map. Only EC2/P-256 keys are used by the key
// agreement protocol.
type Key struct {
	KeyType   COSEKeyType     `cbor:"1,keyasint"`
	Algorithm COSEAlgorithmID `cbor:"3,keyasint"`
	Curve     COSECurveID     `cbor:"-1,keyasint"`
	X         []byte          `cbor:"-2,keyasint"`
	Y         []byte          `cbor:"-3,keyasint"`
}

// FromECDH encodes a P-256 public key as a key-agreement COSE_Key.
func FromECDH(publicKey *ecdh.PublicKey) *Key {
	point := publicKey.Bytes() // uncompressed: 0x04 || X || Y
	return &Key{
		KeyType:   COSE_KEY_TYPE_EC2,
		Algorithm: COSE_ALGORITHM_ID_ECDH_HKDF_256,
		Curve:     COSE_CURVE_ID_P256,
		X:         point[1 : 1+coordinateSize],
		Y:         point[1+coordinateSize:],
	}
}

// ECDH converts the key back into a P-256 public key, validating that
// the point is on the curve.
func (key *Key) ECDH() (*ecdh.PublicKey, error) {
	if key.KeyType != COSE_KEY_TYPE_EC2 || key.Curve != COSE_CURVE_ID_P256 {
		return nil, fmt.Errorf("%w: kty=%d crv=%d", ErrUnsupportedKey, key.KeyType, key.Curve)
	}
	if len(key.X) != coordinateSize || len(key.Y) != coordinateSize {
		return nil, fmt.Errorf("%w: bad coordinate size", ErrUnsupportedKey)
	}
	point := make([]byte, 1+2*coordinateSize)
	point[0] = 0x04
	copy(point[1:], key.X)
	copy(point[1+coordinateSize:], key.Y)
	publicKey, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, fmt.Errorf("cose: invalid public key: %w", err)
	}
	return publicKey, nil
}
