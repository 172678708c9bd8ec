// Package smartcard implements ISO 7816-4 command/response framing over a
// byte-oriented half-duplex connection: short and extended APDU encoding,
// command chaining, response chaining and status word handling.
package smartcard

import (
	"errors"
	"fmt"
)

// Status words surfaced as typed errors.
const (
	SWOK                      uint16 = 0x9000
	SWFileNotFound            uint16 = 0x6A82
	SWConditionsNotSatisfied  uint16 = 0x6985
	SWWrongData               uint16 = 0x6A80
	SWAuthMethodBlocked       uint16 = 0x6983
	SWIncorrectParameters     uint16 = 0x6A86
	SWInsNotSupported         uint16 = 0x6D00
	SWVerifyFail              uint16 = 0x6300
	SWNoInputData             uint16 = 0x6285

	// SW1 prefix signalling that more response data is available.
	SW1HasMoreData byte = 0x61
)

// Apdu is a single ISO 7816-4 command. Le of 0 means no response length
// field is emitted.
type Apdu struct {
	Cla  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
	Le   int
}

// ApduResponse is the reassembled response to a command: all data
// chunks concatenated, plus the final status word.
type ApduResponse struct {
	Data []byte
	SW   uint16
}

// HasMoreData reports whether the card signalled response chaining.
func (r ApduResponse) HasMoreData() bool {
	return byte(r.SW>>8) == SW1HasMoreData
}

// Error kinds for specific status words, matched via errors.Is against a
// returned *ApduError.
var (
	ErrAppNotFound                   = errors.New("smartcard: application not found")
	ErrSecurityConditionNotSatisfied = errors.New("smartcard: security condition not satisfied")
	ErrWrongData                     = errors.New("smartcard: wrong data")
)

// ApduError is returned when a command terminates with a status word
// other than 0x9000.
type ApduError struct {
	Data []byte
	SW   uint16
}

func (e *ApduError) Error() string {
	return fmt.Sprintf("smartcard: APDU error 0x%04x", e.SW)
}

func (e *ApduError) Is(target error) bool {
	switch target {
	case ErrAppNotFound:
		return e.SW == SWFileNotFound
	case ErrSecurityConditionNotSatisfied:
		return e.SW == SWConditionsNotSatisfied
	case ErrWrongData:
		return e.SW == SWWrongData
	}
	return false
}

func parseResponse(raw []byte) (ApduResponse, error) {
	if len(raw) < 2 {
		return ApduResponse{}, fmt.Errorf("smartcard: response too short (%d bytes)", len(raw))
	}
	return ApduResponse{
		Data: raw[:len(raw)-2],
		SW:   uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1]),
	}, nil
}
