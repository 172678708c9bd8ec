package pinuv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/keytokenio/keytoken/cose"
	"github.com/keytokenio/keytoken/util"
)

const v2KeyLength = 32

var (
	hkdfSalt     = make([]byte, 32)
	hkdfInfoHmac = []byte("CTAP2 HMAC key")
	hkdfInfoAes  = []byte("CTAP2 AES key")
)

// V2 is PIN/UV Auth Protocol Two: HKDF splits the shared secret into
// independent HMAC and AES keys, encryption prepends a random IV, and
// authentication tags are full-width HMAC-SHA256.
type V2 struct{}

func (v *V2) Version() int {
	return 2
}

func (v *V2) Encapsulate(peerKey *cose.Key) (*cose.Key, []byte, error) {
	return encapsulate(v, peerKey)
}

// Kdf derives hmacKey || aesKey via two independent HKDF extractions.
func (v *V2) Kdf(z []byte) []byte {
	hmacKey := make([]byte, v2KeyLength)
	aesKey := make([]byte, v2KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, z, hkdfSalt, hkdfInfoHmac), hmacKey); err != nil {
		util.Panic("Could not derive HMAC key")
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, z, hkdfSalt, hkdfInfoAes), aesKey); err != nil {
		util.Panic("Could not derive AES key")
	}
	sharedSecret := util.Concat(hmacKey, aesKey)
	util.Zeroize(hmacKey)
	util.Zeroize(aesKey)
	return sharedSecret
}

func (v *V2) Encrypt(key []byte, plaintext []byte) ([]byte, error) {
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}
	block, err := aes.NewCipher(key[v2KeyLength:])
	if err != nil {
		return nil, err
	}
	iv := util.RandomBytes(aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)
	return util.Concat(iv, ciphertext), nil
}

func (v *V2) Decrypt(key []byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < aes.BlockSize {
		return nil, ErrCiphertextLength
	}
	iv := ciphertext[:aes.BlockSize]
	ct := ciphertext[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, ErrNotBlockAligned
	}
	block, err := aes.NewCipher(key[v2KeyLength:])
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ct)
	return plaintext, nil
}

func (v *V2) Authenticate(key []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, key[:v2KeyLength])
	mac.Write(message)
	return mac.Sum(nil)
}

func (v *V2) Verify(key []byte, message []byte, tag []byte) bool {
	return hmac.Equal(v.Authenticate(key, message), tag)
}
