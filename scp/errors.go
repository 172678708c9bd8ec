package scp

import "errors"

var (
	// ErrWrongKeySet means the card cryptogram did not verify during
	// the static-key handshake: the card holds a different key set.
	ErrWrongKeySet = errors.New("scp: wrong key set")
	// ErrWrongMac means a response MAC failed to verify. The session
	// is invalidated and must be re-established.
	ErrWrongMac = errors.New("scp: wrong response MAC")
	// ErrWrongReceipt means the key-agreement receipt did not verify.
	ErrWrongReceipt = errors.New("scp: receipt does not match")
	// ErrCertificateChain means the card certificate chain did not
	// validate against the configured trust anchor.
	ErrCertificateChain = errors.New("scp: certificate chain validation failed")
	// ErrSessionClosed is returned for any use of a session after it
	// has been closed or invalidated.
	ErrSessionClosed = errors.New("scp: session closed")
	// ErrBadPadding means a decrypted response carried invalid padding.
	ErrBadPadding = errors.New("scp: bad response padding")

	errInvalidKdfLength = errors.New("scp: KDF output length must be 0x40 or 0x80 bits")
)
