package ctap2

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/keytokenio/keytoken/cose"
	"github.com/keytokenio/keytoken/pinuv"
	"github.com/keytokenio/keytoken/util"
)

const (
	minPinChars    = 4
	maxPinBytes    = 63
	paddedPinBytes = 64
	pinHashLength  = 16
)

var (
	ErrPinTooShort = errors.New("ctap2: PIN must be at least 4 characters")
	ErrPinTooLong  = errors.New("ctap2: PIN must be at most 63 bytes")
)

// ClientPin drives the authenticatorClientPIN command over one PIN/UV
// auth protocol. Each operation runs a fresh key agreement so a lost
// authenticator power state cannot leak across calls.
type ClientPin struct {
	session  *Session
	protocol pinuv.Protocol
}

func NewClientPin(session *Session, protocol pinuv.Protocol) *ClientPin {
	return &ClientPin{session: session, protocol: protocol}
}

// GetPinRetries returns the number of PIN attempts remaining before the
// authenticator blocks.
func (pin *ClientPin) GetPinRetries() (uint32, error) {
	response, err := pin.session.ClientPin(&ClientPinRequest{
		PinUvAuthProtocol: uint(pin.protocol.Version()),
		SubCommand:        clientPinGetRetries,
	})
	if err != nil {
		return 0, err
	}
	return response.PinRetries, nil
}

// getSharedSecret performs the getKeyAgreement subcommand and
// encapsulates against the authenticator's public key.
func (pin *ClientPin) getSharedSecret() (*cose.Key, []byte, error) {
	response, err := pin.session.ClientPin(&ClientPinRequest{
		PinUvAuthProtocol: uint(pin.protocol.Version()),
		SubCommand:        clientPinGetKeyAgreement,
	})
	if err != nil {
		return nil, nil, err
	}
	if response.KeyAgreement == nil {
		return nil, nil, errors.New("ctap2: authenticator returned no key agreement key")
	}
	return pin.protocol.Encapsulate(response.KeyAgreement)
}

// GetPinToken exchanges the PIN for a pinUvAuthToken. The caller owns
// the token and should zeroize it when done.
func (pin *ClientPin) GetPinToken(userPin string) ([]byte, error) {
	platformKey, sharedSecret, err := pin.getSharedSecret()
	if err != nil {
		return nil, err
	}
	defer util.Zeroize(sharedSecret)
	pinHash := hashPin(userPin)
	defer util.Zeroize(pinHash)
	pinHashEnc, err := pin.protocol.Encrypt(sharedSecret, pinHash)
	if err != nil {
		return nil, err
	}
	response, err := pin.session.ClientPin(&ClientPinRequest{
		PinUvAuthProtocol: uint(pin.protocol.Version()),
		SubCommand:        clientPinGetPinToken,
		KeyAgreement:      platformKey,
		PinHashEnc:        pinHashEnc,
	})
	if err != nil {
		return nil, err
	}
	token, err := pin.protocol.Decrypt(sharedSecret, response.PinUvAuthToken)
	if err != nil {
		return nil, fmt.Errorf("ctap2: could not decrypt PIN token: %w", err)
	}
	return token, nil
}

// SetPin sets the PIN on an authenticator that has none.
func (pin *ClientPin) SetPin(newPin string) error {
	platformKey, sharedSecret, err := pin.getSharedSecret()
	if err != nil {
		return err
	}
	defer util.Zeroize(sharedSecret)
	paddedPin, err := preparePin(newPin)
	if err != nil {
		return err
	}
	defer util.Zeroize(paddedPin)
	newPinEnc, err := pin.protocol.Encrypt(sharedSecret, paddedPin)
	if err != nil {
		return err
	}
	pinUvAuthParam := pin.protocol.Authenticate(sharedSecret, newPinEnc)
	_, err = pin.session.ClientPin(&ClientPinRequest{
		PinUvAuthProtocol: uint(pin.protocol.Version()),
		SubCommand:        clientPinSetPin,
		KeyAgreement:      platformKey,
		PinUvAuthParam:    pinUvAuthParam,
		NewPinEnc:         newPinEnc,
	})
	return err
}

// ChangePin replaces the current PIN. The authenticator verifies the
// hash of the current PIN before accepting the new one.
func (pin *ClientPin) ChangePin(currentPin string, newPin string) error {
	platformKey, sharedSecret, err := pin.getSharedSecret()
	if err != nil {
		return err
	}
	defer util.Zeroize(sharedSecret)
	paddedPin, err := preparePin(newPin)
	if err != nil {
		return err
	}
	defer util.Zeroize(paddedPin)
	newPinEnc, err := pin.protocol.Encrypt(sharedSecret, paddedPin)
	if err != nil {
		return err
	}
	pinHash := hashPin(currentPin)
	defer util.Zeroize(pinHash)
	pinHashEnc, err := pin.protocol.Encrypt(sharedSecret, pinHash)
	if err != nil {
		return err
	}
	pinUvAuthParam := pin.protocol.Authenticate(sharedSecret, util.Concat(newPinEnc, pinHashEnc))
	_, err = pin.session.ClientPin(&ClientPinRequest{
		PinUvAuthProtocol: uint(pin.protocol.Version()),
		SubCommand:        clientPinChangePin,
		KeyAgreement:      platformKey,
		PinUvAuthParam:    pinUvAuthParam,
		NewPinEnc:         newPinEnc,
		PinHashEnc:        pinHashEnc,
	})
	return err
}

// hashPin is the left half of SHA-256 over the PIN bytes.
func hashPin(userPin string) []byte {
	digest := sha256.Sum256([]byte(userPin))
	return digest[:pinHashLength]
}

// preparePin validates the PIN policy and zero-pads to 64 bytes.
func preparePin(userPin string) ([]byte, error) {
	if len([]rune(userPin)) < minPinChars {
		return nil, ErrPinTooShort
	}
	pinBytes := []byte(userPin)
	if len(pinBytes) > maxPinBytes {
		return nil, ErrPinTooLong
	}
	return util.Pad(pinBytes, paddedPinBytes), nil
}
