// Package otp implements the byte codecs used by the one-time-password
// slot mechanism: the Modhex alphabet and the CRC13239 checksum.
package otp

import (
	"errors"
	"fmt"
	"strings"
)

// Modhex maps nibbles onto characters that appear at the same scancode
// positions on most keyboard layouts.
const modhexAlphabet = "cbdefghijklnrtuv"

var (
	ErrOddLength = errors.New("modhex: input length is not a multiple of 2")
	ErrNotModhex = errors.New("modhex: input contains non-modhex characters")
)

// ModhexEncode encodes bytes as a lowercase Modhex string,
// two characters per byte, high nibble first.
func ModhexEncode(data []byte) string {
	var output strings.Builder
	output.Grow(len(data) * 2)
	for _, b := range data {
		output.WriteByte(modhexAlphabet[b>>4])
		output.WriteByte(modhexAlphabet[b&0xF])
	}
	return output.String()
}

// ModhexDecode decodes a Modhex string. Decoding is case-insensitive.
func ModhexDecode(modhex string) ([]byte, error) {
	if len(modhex)%2 != 0 {
		return nil, ErrOddLength
	}
	lower := strings.ToLower(modhex)
	output := make([]byte, 0, len(lower)/2)
	var value byte
	for i := 0; i < len(lower); i++ {
		code := strings.IndexByte(modhexAlphabet, lower[i])
		if code < 0 {
			return nil, fmt.Errorf("%w: %q", ErrNotModhex, modhex[i])
		}
		if i%2 == 0 {
			value = byte(code) << 4
		} else {
			value |= byte(code)
			output = append(output, value)
		}
	}
	return output, nil
}
