package cose

import (
	"crypto/ecdh"
	"crypto/rand"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/keytokenio/keytoken/test"
)

func TestFromECDHRoundTrip(t *testing.T) {
	private, err := ecdh.P256().GenerateKey(rand.Reader)
	test.AssertNoErr(t, err, "generate key")
	key := FromECDH(private.PublicKey())
	test.AssertEqual(t, key.KeyType, COSE_KEY_TYPE_EC2, "key type")
	test.AssertEqual(t, key.Curve, COSE_CURVE_ID_P256, "curve")
	test.AssertEqual(t, len(key.X), 32, "x coordinate size")
	test.AssertEqual(t, len(key.Y), 32, "y coordinate size")

	recovered, err := key.ECDH()
	test.AssertNoErr(t, err, "convert back")
	test.AssertBytesEqual(t, recovered.Bytes(), private.PublicKey().Bytes(), "same point")
}

func TestKeyCborLabels(t *testing.T) {
	private, err := ecdh.P256().GenerateKey(rand.Reader)
	test.AssertNoErr(t, err, "generate key")
	encMode, err := cbor.CTAP2EncOptions().EncMode()
	test.AssertNoErr(t, err, "enc mode")
	encoded, err := encMode.Marshal(FromECDH(private.PublicKey()))
	test.AssertNoErr(t, err, "marshal")

	labels := map[int]cbor.RawMessage{}
	test.AssertNoErr(t, cbor.Unmarshal(encoded, &labels), "unmarshal into label map")
	for _, label := range []int{1, 3, -1, -2, -3} {
		if _, ok := labels[label]; !ok {
			t.Fatalf("missing COSE label %d", label)
		}
	}
	test.AssertEqual(t, len(labels), 5, "exactly five labels")
}

func TestECDHRejectsBadKeys(t *testing.T) {
	_, err := (&Key{KeyType: COSE_KEY_TYPE_OKP, Curve: COSE_CURVE_ID_P256}).ECDH()
	test.AssertErr(t, err, "wrong key type should fail")

	_, err = (&Key{
		KeyType: COSE_KEY_TYPE_EC2,
		Curve:   COSE_CURVE_ID_P256,
		X:       make([]byte, 31),
		Y:       make([]byte, 32),
	}).ECDH()
	test.AssertErr(t, err, "short coordinate should fail")

	// A point with Y flipped off the curve.
	private, err := ecdh.P256().GenerateKey(rand.Reader)
	test.AssertNoErr(t, err, "generate key")
	key := FromECDH(private.PublicKey())
	key.Y = make([]byte, 32)
	_, err = key.ECDH()
	test.AssertErr(t, err, "point off curve should fail")
}
