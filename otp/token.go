package otp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// TokenLength is the size of a decrypted OTP payload.
const TokenLength = 16

var ErrBadChecksum = errors.New("otp: token checksum mismatch")

// Token is the decrypted 16-byte payload of a one-time password:
// private UID, usage counter, timestamp, session counter, random filler
// and the trailing CRC13239 checksum. All fields are little-endian.
type Token struct {
	Uid            [6]byte
	UsageCounter   uint16
	Timestamp      uint32 // 24 bits on the wire
	SessionCounter uint8
	Random         uint16
	Crc            uint16
}

// ParseToken validates the checksum of a decrypted OTP payload and
// unpacks its fields.
func ParseToken(data []byte) (*Token, error) {
	if len(data) != TokenLength {
		return nil, fmt.Errorf("otp: token must be %d bytes, got %d", TokenLength, len(data))
	}
	if !CheckCrc(data) {
		return nil, ErrBadChecksum
	}
	token := Token{
		UsageCounter:   binary.LittleEndian.Uint16(data[6:8]),
		Timestamp:      uint32(data[8]) | uint32(data[9])<<8 | uint32(data[10])<<16,
		SessionCounter: data[11],
		Random:         binary.LittleEndian.Uint16(data[12:14]),
		Crc:            binary.LittleEndian.Uint16(data[14:16]),
	}
	copy(token.Uid[:], data[0:6])
	return &token, nil
}
