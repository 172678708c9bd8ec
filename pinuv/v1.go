package pinuv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/keytokenio/keytoken/cose"
)

const v1TagLength = 16

// V1 is PIN/UV Auth Protocol One: the shared secret is the SHA-256 of
// the ECDH x-coordinate and doubles as the AES-256 key, encryption is
// AES-CBC with an all-zero IV and no padding, and authentication tags
// are HMAC-SHA256 truncated to 16 bytes.
type V1 struct{}

func (v *V1) Version() int {
	return 1
}

func (v *V1) Encapsulate(peerKey *cose.Key) (*cose.Key, []byte, error) {
	return encapsulate(v, peerKey)
}

func (v *V1) Kdf(z []byte) []byte {
	digest := sha256.Sum256(z)
	return digest[:]
}

func (v *V1) Encrypt(key []byte, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(ciphertext, plaintext)
	return ciphertext, nil
}

func (v *V1) Decrypt(key []byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(plaintext, ciphertext)
	return plaintext, nil
}

func (v *V1) Authenticate(key []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)[:v1TagLength]
}

func (v *V1) Verify(key []byte, message []byte, tag []byte) bool {
	return hmac.Equal(v.Authenticate(key, message), tag)
}
