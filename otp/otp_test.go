package otp

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/keytokenio/keytoken/test"
)

func TestModhexEncode(t *testing.T) {
	test.AssertEqual(t, ModhexEncode([]byte("test")), "ifhgieif", "encode ascii")
	test.AssertEqual(t, ModhexEncode([]byte{0x2D, 0x34, 0x4E, 0x83}), "dteffuje", "encode bytes")
	test.AssertEqual(t, ModhexEncode(nil), "", "encode empty")

	raw, err := hex.DecodeString("69b6481c8baba2b60e8f22179b58cd56")
	test.AssertNoErr(t, err, "decode hex")
	test.AssertEqual(t, ModhexEncode(raw), "hknhfjbrjnlnldnhcujvddbikngjrtgh", "encode uid payload")
}

func TestModhexDecode(t *testing.T) {
	decoded, err := ModhexDecode("dteffuje")
	test.AssertNoErr(t, err, "decode")
	test.AssertBytesEqual(t, decoded, []byte{0x2D, 0x34, 0x4E, 0x83}, "decoded bytes")

	upper, err := ModhexDecode("DTEFFUJE")
	test.AssertNoErr(t, err, "decode uppercase")
	test.AssertBytesEqual(t, upper, decoded, "case insensitive")
}

func TestModhexRoundTrip(t *testing.T) {
	for size := 0; size < 32; size += 2 {
		data := make([]byte, size/2)
		for i := range data {
			data[i] = byte(i * 37)
		}
		decoded, err := ModhexDecode(ModhexEncode(data))
		test.AssertNoErr(t, err, "round trip")
		test.AssertBytesEqual(t, decoded, data, "round trip bytes")
	}
}

func TestModhexDecodeErrors(t *testing.T) {
	_, err := ModhexDecode("cbd")
	if !errors.Is(err, ErrOddLength) {
		t.Fatalf("expected ErrOddLength, got %v", err)
	}
	_, err = ModhexDecode("cbda")
	if !errors.Is(err, ErrNotModhex) {
		t.Fatalf("expected ErrNotModhex, got %v", err)
	}
}

func TestCalculateCrc(t *testing.T) {
	test.AssertEqual(t, CalculateCrc([]byte{0, 1, 2, 3, 4}), uint16(62919), "crc of 0..4")
	test.AssertEqual(t, CalculateCrc([]byte{0xFE}), uint16(4470), "crc of single byte")
	test.AssertEqual(t, CalculateCrc([]byte{0x55, 0xAA, 0x00, 0xFF}), uint16(52149), "crc of mixed bytes")
}

func TestCheckCrc(t *testing.T) {
	data := AppendCrc([]byte{0, 1, 2, 3, 4})
	test.AssertEqual(t, len(data), 7, "appended checksum length")
	test.AssertEqual(t, CheckCrc(data), true, "residual check passes")

	data[2] ^= 0x01
	test.AssertEqual(t, CheckCrc(data), false, "corrupted data fails")
}

func TestParseToken(t *testing.T) {
	payload := []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, // uid
		0x10, 0x27, // usage counter 10000
		0xA0, 0x86, 0x01, // timestamp 100000
		0x07,       // session counter
		0x34, 0x12, // random 0x1234
	}
	data := AppendCrc(payload)
	token, err := ParseToken(data)
	test.AssertNoErr(t, err, "parse token")
	test.AssertBytesEqual(t, token.Uid[:], payload[:6], "uid")
	test.AssertEqual(t, token.UsageCounter, uint16(10000), "usage counter")
	test.AssertEqual(t, token.Timestamp, uint32(100000), "timestamp")
	test.AssertEqual(t, token.SessionCounter, uint8(7), "session counter")
	test.AssertEqual(t, token.Random, uint16(0x1234), "random")
}

func TestParseTokenBadChecksum(t *testing.T) {
	data := AppendCrc(make([]byte, 14))
	data[0] ^= 0xFF
	_, err := ParseToken(data)
	if !errors.Is(err, ErrBadChecksum) {
		t.Fatalf("expected ErrBadChecksum, got %v", err)
	}
}

func TestParseTokenWrongLength(t *testing.T) {
	_, err := ParseToken(make([]byte, 15))
	test.AssertErr(t, err, "short token should fail")
}
