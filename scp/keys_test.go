package scp

import (
	"bytes"
	"testing"

	"github.com/keytokenio/keytoken/test"
	"github.com/keytokenio/keytoken/util"
)

func TestDeriveKeyLengths(t *testing.T) {
	key := util.RandomBytes(16)
	context := util.RandomBytes(16)

	derived, err := deriveKey(key, dcSEnc, context, 0x80)
	test.AssertNoErr(t, err, "derive 128-bit key")
	test.AssertEqual(t, len(derived), 16, "128-bit output")

	cryptogram, err := deriveKey(key, dcCardCryptogram, context, 0x40)
	test.AssertNoErr(t, err, "derive cryptogram")
	test.AssertEqual(t, len(cryptogram), 8, "64-bit output")

	_, err = deriveKey(key, dcSEnc, context, 0x20)
	test.AssertErr(t, err, "unsupported length should fail")
}

func TestDeriveKeyConstantsSeparateKeys(t *testing.T) {
	key := util.RandomBytes(16)
	context := util.RandomBytes(16)
	seen := [][]byte{}
	for _, constant := range []byte{dcSEnc, dcSMac, dcSRMac} {
		derived, err := deriveKey(key, constant, context, 0x80)
		test.AssertNoErr(t, err, "derive")
		for _, prev := range seen {
			if bytes.Equal(prev, derived) {
				t.Fatalf("derivation constants must separate keys")
			}
		}
		seen = append(seen, derived)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	key := bytes.Repeat([]byte{0x40}, 16)
	context := bytes.Repeat([]byte{0x01}, 16)
	first, err := deriveKey(key, dcSMac, context, 0x80)
	test.AssertNoErr(t, err, "derive")
	second, err := deriveKey(key, dcSMac, context, 0x80)
	test.AssertNoErr(t, err, "derive again")
	test.AssertBytesEqual(t, first, second, "KDF is deterministic")
}

func TestStaticKeysDerive(t *testing.T) {
	static := &StaticKeys{
		Enc: util.RandomBytes(16),
		Mac: util.RandomBytes(16),
		DEK: util.RandomBytes(16),
	}
	context := util.RandomBytes(16)
	keys, err := static.Derive(context)
	test.AssertNoErr(t, err, "derive session keys")
	test.AssertBytesEqual(t, keys.DEK, static.DEK, "DEK passes through")
	if bytes.Equal(keys.SEnc, keys.SMac) || bytes.Equal(keys.SMac, keys.SRMac) {
		t.Fatalf("session keys must be distinct")
	}

	other, err := static.Derive(util.RandomBytes(16))
	test.AssertNoErr(t, err, "derive with other context")
	if bytes.Equal(keys.SEnc, other.SEnc) {
		t.Fatalf("different contexts must give different keys")
	}
}

func TestSessionKeysZeroize(t *testing.T) {
	keys := &SessionKeys{
		SEnc:  util.RandomBytes(16),
		SMac:  util.RandomBytes(16),
		SRMac: util.RandomBytes(16),
		DEK:   util.RandomBytes(16),
	}
	senc := keys.SEnc
	keys.Zeroize()
	test.AssertBytesEqual(t, senc, make([]byte, 16), "key material overwritten")
	if keys.SEnc != nil || keys.DEK != nil {
		t.Fatalf("zeroized keys must be nil")
	}
}

func TestStateEncryptDecryptCounter(t *testing.T) {
	keys := &SessionKeys{
		SEnc:  util.RandomBytes(16),
		SMac:  util.RandomBytes(16),
		SRMac: util.RandomBytes(16),
	}
	hostState := newState(keys, make([]byte, 16))
	test.AssertEqual(t, hostState.encCounter, uint32(1), "counter starts at 1")

	first, err := hostState.encrypt([]byte{0x01, 0x02})
	test.AssertNoErr(t, err, "encrypt")
	test.AssertEqual(t, len(first), 16, "padded to one block")
	test.AssertEqual(t, hostState.encCounter, uint32(2), "counter advanced")

	second, err := hostState.encrypt([]byte{0x01, 0x02})
	test.AssertNoErr(t, err, "encrypt again")
	if bytes.Equal(first, second) {
		t.Fatalf("same plaintext must encrypt differently across counters")
	}
}

func TestStateMacChaining(t *testing.T) {
	keys := &SessionKeys{
		SEnc:  util.RandomBytes(16),
		SMac:  util.RandomBytes(16),
		SRMac: util.RandomBytes(16),
	}
	channelState := newState(keys, make([]byte, 16))
	frame := []byte{0x84, 0x01, 0x00, 0x00, 0x08}
	first, err := channelState.mac(frame)
	test.AssertNoErr(t, err, "mac")
	test.AssertEqual(t, len(first), 8, "8-byte MAC on the wire")
	second, err := channelState.mac(frame)
	test.AssertNoErr(t, err, "mac again")
	if bytes.Equal(first, second) {
		t.Fatalf("MAC chain must change per command")
	}
}
