// Package tlv implements the BER-TLV subset used by the smart card
// applications: tags of 1-3 bytes, definite lengths up to 65535 bytes.
package tlv

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrTruncated     = errors.New("tlv: buffer too short for declared length")
	ErrInvalidTag    = errors.New("tlv: malformed tag")
	ErrInvalidLength = errors.New("tlv: malformed length")
	ErrUnexpectedTag = errors.New("tlv: unexpected tag")
)

// Tlv is a single tag-length-value record. The tag holds the raw wire
// bytes interpreted as a big-endian integer (e.g. 0x5F49), matching how
// the card documentation writes them.
type Tlv struct {
	Tag   int
	Value []byte
}

func New(tag int, value []byte) Tlv {
	return Tlv{Tag: tag, Value: value}
}

// Encode emits the canonical encoding: minimal tag form, minimal
// definite length form.
func (t Tlv) Encode() []byte {
	buf := new(bytes.Buffer)
	writeTag(buf, t.Tag)
	writeLength(buf, len(t.Value))
	buf.Write(t.Value)
	return buf.Bytes()
}

func (t Tlv) String() string {
	return fmt.Sprintf("Tlv(0x%x, %d, %x)", t.Tag, len(t.Value), t.Value)
}

func writeTag(buf *bytes.Buffer, tag int) {
	switch {
	case tag < 0:
		panic("tlv: negative tag")
	case tag <= 0xFF:
		buf.WriteByte(byte(tag))
	case tag <= 0xFFFF:
		if (tag>>8)&0x1F != 0x1F {
			panic("tlv: unsupported tag format")
		}
		buf.WriteByte(byte(tag >> 8))
		buf.WriteByte(byte(tag))
	case tag <= 0xFFFFFF:
		if (tag>>16)&0x1F != 0x1F || (tag>>8)&0x80 == 0 {
			panic("tlv: unsupported tag format")
		}
		buf.WriteByte(byte(tag >> 16))
		buf.WriteByte(byte(tag >> 8))
		buf.WriteByte(byte(tag))
	default:
		panic("tlv: tag too long")
	}
}

func writeLength(buf *bytes.Buffer, length int) {
	switch {
	case length <= 0x7F:
		buf.WriteByte(byte(length))
	case length <= 0xFF:
		buf.WriteByte(0x81)
		buf.WriteByte(byte(length))
	case length <= 0xFFFF:
		buf.WriteByte(0x82)
		buf.WriteByte(byte(length >> 8))
		buf.WriteByte(byte(length))
	default:
		panic("tlv: value too long")
	}
}

// Decode parses a single TLV record starting at offset 0. Trailing bytes
// are an error; use DecodeList to parse a sequence.
func Decode(data []byte) (Tlv, error) {
	t, rest, err := decodeOne(data)
	if err != nil {
		return Tlv{}, err
	}
	if len(rest) != 0 {
		return Tlv{}, fmt.Errorf("%w: %d trailing bytes", ErrInvalidLength, len(rest))
	}
	return t, nil
}

func decodeOne(data []byte) (Tlv, []byte, error) {
	if len(data) == 0 {
		return Tlv{}, nil, fmt.Errorf("%w: empty buffer", ErrTruncated)
	}
	tag := int(data[0])
	offset := 1
	if tag&0x1F == 0x1F {
		// Long form tag: MSB-continuation bytes, at most 3 bytes total.
		for {
			if offset >= len(data) {
				return Tlv{}, nil, fmt.Errorf("%w: truncated tag", ErrInvalidTag)
			}
			tag = tag<<8 | int(data[offset])
			cont := data[offset]&0x80 != 0
			offset++
			if !cont {
				break
			}
			if offset > 2 {
				return Tlv{}, nil, fmt.Errorf("%w: tag longer than 3 bytes", ErrInvalidTag)
			}
		}
	}

	if offset >= len(data) {
		return Tlv{}, nil, fmt.Errorf("%w: missing length", ErrTruncated)
	}
	lenByte := int(data[offset])
	offset++
	length := 0
	switch {
	case lenByte <= 0x7F:
		length = lenByte
	case lenByte == 0x80:
		return Tlv{}, nil, fmt.Errorf("%w: indefinite length", ErrInvalidLength)
	case lenByte == 0xFF:
		return Tlv{}, nil, fmt.Errorf("%w: reserved length byte 0xff", ErrInvalidLength)
	default:
		numBytes := lenByte & 0x7F
		if numBytes > 2 {
			return Tlv{}, nil, fmt.Errorf("%w: length of %d bytes not supported", ErrInvalidLength, numBytes)
		}
		if offset+numBytes > len(data) {
			return Tlv{}, nil, fmt.Errorf("%w: truncated length", ErrTruncated)
		}
		for i := 0; i < numBytes; i++ {
			length = length<<8 | int(data[offset])
			offset++
		}
		if !minimalLength(length, numBytes) {
			return Tlv{}, nil, fmt.Errorf("%w: non-canonical length encoding", ErrInvalidLength)
		}
	}

	if offset+length > len(data) {
		return Tlv{}, nil, fmt.Errorf("%w: need %d value bytes, have %d", ErrTruncated, length, len(data)-offset)
	}
	value := make([]byte, length)
	copy(value, data[offset:offset+length])
	return Tlv{Tag: tag, Value: value}, data[offset+length:], nil
}

func minimalLength(length int, numBytes int) bool {
	switch numBytes {
	case 1:
		return length > 0x7F
	case 2:
		return length > 0xFF
	}
	return false
}

// DecodeList parses a sequence of sibling TLV records.
func DecodeList(data []byte) ([]Tlv, error) {
	var tlvs []Tlv
	rest := data
	for len(rest) > 0 {
		var t Tlv
		var err error
		t, rest, err = decodeOne(rest)
		if err != nil {
			return nil, err
		}
		tlvs = append(tlvs, t)
	}
	return tlvs, nil
}

// EncodeList concatenates the encodings of a sequence of TLV records.
func EncodeList(tlvs []Tlv) []byte {
	buf := new(bytes.Buffer)
	for _, t := range tlvs {
		buf.Write(t.Encode())
	}
	return buf.Bytes()
}

// UnpackValue decodes a single TLV record and returns its value,
// failing if the tag differs from expectedTag.
func UnpackValue(expectedTag int, data []byte) ([]byte, error) {
	t, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if t.Tag != expectedTag {
		return nil, fmt.Errorf("%w: expected 0x%x, got 0x%x", ErrUnexpectedTag, expectedTag, t.Tag)
	}
	return t.Value, nil
}
