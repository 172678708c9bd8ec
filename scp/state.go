package scp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"

	"github.com/keytokenio/keytoken/util"
)

// state is the cryptographic state of one established secure channel:
// session keys, the chained MAC value and the encryption counter. The
// counter increments exactly once per encrypted command and never
// resets within a session.
type state struct {
	keys       *SessionKeys
	macChain   []byte
	encCounter uint32
}

func newState(keys *SessionKeys, macChain []byte) *state {
	return &state{keys: keys, macChain: macChain, encCounter: 1}
}

// encrypt pads the command data (ISO 9797-1 M2) and encrypts it with
// AES-CBC. The ICV is derived from the encryption counter so that a
// replayed ciphertext can never decrypt under the current state.
func (s *state) encrypt(data []byte) ([]byte, error) {
	padLen := 16 - (len(data) % 16)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	padded[len(data)] = 0x80
	defer util.Zeroize(padded)

	block, err := aes.NewCipher(s.keys.SEnc)
	if err != nil {
		return nil, err
	}
	ivData := util.Concat(make([]byte, 12), util.ToBE(s.encCounter))
	s.encCounter++
	iv := make([]byte, 16)
	block.Encrypt(iv, ivData)

	encrypted := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encrypted, padded)
	return encrypted, nil
}

// decrypt reverses encrypt for response data; the response ICV input
// carries a leading 0x80 marker and the counter of the command it
// answers.
func (s *state) decrypt(encrypted []byte) ([]byte, error) {
	if len(encrypted)%16 != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block aligned", ErrBadPadding)
	}
	block, err := aes.NewCipher(s.keys.SEnc)
	if err != nil {
		return nil, err
	}
	ivData := util.Concat([]byte{0x80}, make([]byte, 11), util.ToBE(s.encCounter-1))
	iv := make([]byte, 16)
	block.Encrypt(iv, ivData)

	decrypted := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(decrypted, encrypted)
	defer util.Zeroize(decrypted)
	for i := len(decrypted) - 1; i > 0; i-- {
		if decrypted[i] == 0x80 {
			plaintext := make([]byte, i)
			copy(plaintext, decrypted[:i])
			return plaintext, nil
		} else if decrypted[i] != 0x00 {
			break
		}
	}
	return nil, ErrBadPadding
}

// mac computes the chained command MAC over the formatted APDU and
// advances the MAC chain. The first 8 bytes are transmitted.
func (s *state) mac(data []byte) ([]byte, error) {
	full, err := aesCmac(s.keys.SMac, util.Concat(s.macChain, data))
	if err != nil {
		return nil, err
	}
	s.macChain = full
	return full[:8], nil
}

// unmac verifies the response MAC over the response data and status
// word, returning the data without the MAC. Verification failure is
// fatal to the session.
func (s *state) unmac(data []byte, sw uint16) ([]byte, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: response too short for MAC", ErrWrongMac)
	}
	msg := util.Concat(data[:len(data)-8], util.ToBE(sw))
	full, err := aesCmac(s.keys.SRMac, util.Concat(s.macChain, msg))
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(full[:8], data[len(data)-8:]) != 1 {
		return nil, ErrWrongMac
	}
	return msg[:len(msg)-2], nil
}

// dataEncryptor returns an off-channel payload encryptor backed by the
// DEK, or nil when the key set has none.
func (s *state) dataEncryptor() func([]byte) ([]byte, error) {
	if s.keys.DEK == nil {
		return nil
	}
	return func(data []byte) ([]byte, error) {
		if len(data)%16 != 0 {
			return nil, fmt.Errorf("scp: data encryption input not block aligned")
		}
		block, err := aes.NewCipher(s.keys.DEK)
		if err != nil {
			return nil, err
		}
		encrypted := make([]byte, len(data))
		cipher.NewCBCEncrypter(block, make([]byte, 16)).CryptBlocks(encrypted, data)
		return encrypted, nil
	}
}

func (s *state) zeroize() {
	s.keys.Zeroize()
	util.Zeroize(s.macChain)
	s.macChain = nil
}
