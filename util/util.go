package util

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"runtime/debug"

	"github.com/fxamacker/cbor/v2"
)

func Panic(message string) {
	panic(fmt.Sprintf("%s\n%s", message, string(debug.Stack())))
}

func Assert(val bool, message string) {
	if !val {
		Panic(message)
	}
}

func CheckErr(err error, message string) {
	if err != nil {
		Panic(fmt.Sprintf("ERROR: %v - %v", message, err))
	}
}

func Pad[T any](src []T, size int) []T {
	destination := make([]T, size)
	copy(destination, src)
	return destination
}

func Concat[T any](arrays ...[]T) []T {
	output := make([]T, 0)
	for _, arr := range arrays {
		output = append(output, arr...)
	}
	return output
}

func ToBE[T any](val T) []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, val)
	return buffer.Bytes()
}

func ToLE[T any](val T) []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.LittleEndian, val)
	return buffer.Bytes()
}

func FromBE[T any](valBytes []byte) T {
	var val T
	err := binary.Read(bytes.NewBuffer(valBytes), binary.BigEndian, &val)
	CheckErr(err, "Could not read data")
	return val
}

func FromLE[T any](valBytes []byte) T {
	var val T
	err := binary.Read(bytes.NewBuffer(valBytes), binary.LittleEndian, &val)
	CheckErr(err, "Could not read data")
	return val
}

func RandomBytes(length int) []byte {
	randBytes := make([]byte, length)
	_, err := rand.Read(randBytes)
	CheckErr(err, "Could not generate random bytes")
	return randBytes
}

// Zeroize overwrites sensitive material in place. Sessions call this on
// every exit path for key material and tokens.
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

func MarshalCBOR(val interface{}) []byte {
	encOptions := cbor.CTAP2EncOptions()
	encMode, err := encOptions.EncMode()
	CheckErr(err, "Could not get encoding mode")
	data, err := encMode.Marshal(val)
	CheckErr(err, "Could not marshal CBOR")
	return data
}
