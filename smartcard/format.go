package smartcard

import (
	"bytes"
	"fmt"

	"github.com/keytokenio/keytoken/util"
)

// ShortApduMaxChunk is the largest data field of a short-form APDU, and
// the chunk size used for command chaining.
const ShortApduMaxChunk = 0xFF

// ExtendedApduMaxLength is the largest data field of an extended APDU.
const ExtendedApduMaxLength = 0xFFFF

// ClaChaining is the CLA bit set on all but the last command of a chain.
const ClaChaining byte = 0x10

// EncodeShort encodes a short-form APDU: 1-byte Lc and Le fields, data
// at most 255 bytes.
func EncodeShort(cla, ins, p1, p2 byte, data []byte, le int) ([]byte, error) {
	if len(data) > ShortApduMaxChunk {
		return nil, fmt.Errorf("smartcard: short APDU data must be no greater than %d bytes", ShortApduMaxChunk)
	}
	if le < 0 || le > ShortApduMaxChunk {
		return nil, fmt.Errorf("smartcard: short APDU Le must be between 0 and %d", ShortApduMaxChunk)
	}
	buf := new(bytes.Buffer)
	buf.Write([]byte{cla, ins, p1, p2})
	if len(data) > 0 {
		buf.WriteByte(byte(len(data)))
		buf.Write(data)
	}
	if le > 0 {
		buf.WriteByte(byte(le))
	}
	return buf.Bytes(), nil
}

// EncodeExtended encodes an extended-length APDU: a zero marker byte
// followed by 2-byte Lc and Le fields.
func EncodeExtended(cla, ins, p1, p2 byte, data []byte, le int) ([]byte, error) {
	if len(data) > ExtendedApduMaxLength {
		return nil, fmt.Errorf("smartcard: extended APDU data must be no greater than %d bytes", ExtendedApduMaxLength)
	}
	if le < 0 || le > ExtendedApduMaxLength {
		return nil, fmt.Errorf("smartcard: extended APDU Le must be between 0 and %d", ExtendedApduMaxLength)
	}
	buf := new(bytes.Buffer)
	buf.Write([]byte{cla, ins, p1, p2})
	if len(data) > 0 {
		buf.WriteByte(0x00)
		buf.Write(util.ToBE(uint16(len(data))))
		buf.Write(data)
	}
	if le > 0 {
		if len(data) == 0 {
			buf.WriteByte(0x00)
		}
		buf.Write(util.ToBE(uint16(le)))
	}
	return buf.Bytes(), nil
}
