package test

import (
	"bytes"
	"testing"
)

type nillable[A any] interface {
	[]A
}

func AssertEqual[T comparable](t *testing.T, val1 T, val2 T, msg string) {
	if val1 != val2 {
		t.Fatalf("%s: %v != %v", msg, val1, val2)
	}
}

func AssertNotEqual[T comparable](t *testing.T, val1 T, val2 T, msg string) {
	if val1 == val2 {
		t.Fatalf(msg)
	}
}

func AssertNotNil[A any, T nillable[A]](t *testing.T, val T, msg string) {
	if val == nil {
		t.Fatalf(msg)
	}
}

func AssertBytesEqual(t *testing.T, val1 []byte, val2 []byte, msg string) {
	if !bytes.Equal(val1, val2) {
		t.Fatalf("%s: %x != %x", msg, val1, val2)
	}
}

func AssertNoErr(t *testing.T, err error, msg string) {
	if err != nil {
		t.Fatalf("%s: %v", msg, err)
	}
}

func AssertErr(t *testing.T, err error, msg string) {
	if err == nil {
		t.Fatalf(msg)
	}
}
