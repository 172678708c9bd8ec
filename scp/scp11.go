package scp

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"fmt"

	"github.com/keytokenio/keytoken/smartcard"
	"github.com/keytokenio/keytoken/tlv"
	"github.com/keytokenio/keytoken/util"
)

// SCP11 protocol constants: key usage AUTHENTICATED | C_MAC |
// C_DECRYPTION | R_MAC | R_ENCRYPTION, AES key type, 128-bit keys.
var (
	scp11KeyUsage = []byte{0x3C}
	scp11KeyType  = []byte{0x88}
	scp11KeyLen   = []byte{16}
)

const (
	tagControlReference = 0xA6
	tagScpIdParams      = 0x90
	tagKeyUsage         = 0x95
	tagKeyType          = 0x80
	tagKeyLength        = 0x81
	tagEphemeralKey     = 0x5F49
	tagReceipt          = 0x86
)

// Scp11KeyParams carries the caller-supplied parameters for the
// key-agreement scheme. The card certificate chain (leaf last) must
// validate against the trust anchor before any key derivation happens.
// For SCP11a/c the off-card entity key and certificate chain are
// required as well.
type Scp11KeyParams struct {
	Ref KeyRef

	CardCertificates []*x509.Certificate
	TrustAnchor      *x509.Certificate

	OceRef          KeyRef
	SkOceEcka       *ecdh.PrivateKey
	OceCertificates [][]byte
}

func scp11Params(kid byte) (byte, error) {
	switch kid {
	case Scp11a:
		return 0b01, nil
	case Scp11b:
		return 0b00, nil
	case Scp11c:
		return 0b11, nil
	}
	return 0, fmt.Errorf("scp: invalid SCP11 KID 0x%02x", kid)
}

// verifyCardChain validates the card certificate chain against the
// trust anchor and returns the authenticated card public key.
func verifyCardChain(params *Scp11KeyParams) (*ecdh.PublicKey, error) {
	if params.TrustAnchor == nil || len(params.CardCertificates) == 0 {
		return nil, fmt.Errorf("%w: missing trust anchor or card certificates", ErrCertificateChain)
	}
	leaf := params.CardCertificates[len(params.CardCertificates)-1]
	roots := x509.NewCertPool()
	roots.AddCert(params.TrustAnchor)
	intermediates := x509.NewCertPool()
	for _, cert := range params.CardCertificates[:len(params.CardCertificates)-1] {
		intermediates.AddCert(cert)
	}
	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateChain, err)
	}
	ecdsaKey, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: card key is not an EC key", ErrCertificateChain)
	}
	pkSdEcka, err := ecdsaKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertificateChain, err)
	}
	return pkSdEcka, nil
}

// sendOceCertificates uploads the off-card entity certificate chain via
// PERFORM SECURITY OPERATION; all but the last block carry the "more
// blocks" bit in P2.
func sendOceCertificates(t smartcard.Transceiver, params *Scp11KeyParams) error {
	n := len(params.OceCertificates) - 1
	if n < 0 {
		return fmt.Errorf("scp: SCP11a and SCP11c require a certificate chain")
	}
	for i, cert := range params.OceCertificates {
		p2 := params.OceRef.Kid
		if i < n {
			p2 |= 0x80
		}
		response, err := t.SendApdu(smartcard.Apdu{
			Cla:  claGP,
			Ins:  insPerformSecurityOperation,
			P1:   params.OceRef.Kvn,
			P2:   p2,
			Data: cert,
		})
		if err != nil {
			return err
		}
		if response.SW != smartcard.SWOK {
			return &smartcard.ApduError{Data: response.Data, SW: response.SW}
		}
	}
	return nil
}

// scp11Init authenticates the card, performs the ephemeral key
// agreement and derives the session keys.
func scp11Init(t smartcard.Transceiver, params *Scp11KeyParams) (*state, error) {
	scpParams, err := scp11Params(params.Ref.Kid)
	if err != nil {
		return nil, err
	}

	pkSdEcka, err := verifyCardChain(params)
	if err != nil {
		return nil, err
	}

	if params.Ref.Kid == Scp11a || params.Ref.Kid == Scp11c {
		if params.SkOceEcka == nil {
			return nil, fmt.Errorf("scp: SCP11a and SCP11c require an OCE key")
		}
		if err := sendOceCertificates(t, params); err != nil {
			return nil, err
		}
	}

	ephemeralKey, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	data := tlv.EncodeList([]tlv.Tlv{
		tlv.New(tagControlReference, tlv.EncodeList([]tlv.Tlv{
			tlv.New(tagScpIdParams, []byte{0x11, scpParams}),
			tlv.New(tagKeyUsage, scp11KeyUsage),
			tlv.New(tagKeyType, scp11KeyType),
			tlv.New(tagKeyLength, scp11KeyLen),
		})),
		tlv.New(tagEphemeralKey, ephemeralKey.PublicKey().Bytes()),
	})

	// Static host key (SCP11a/c), or the ephemeral key again (SCP11b).
	skOceEcka := params.SkOceEcka
	ins := insExternalAuthenticate
	if params.Ref.Kid == Scp11b {
		skOceEcka = ephemeralKey
		ins = insInternalAuthenticate
	}

	response, err := t.SendApdu(smartcard.Apdu{
		Cla:  claGP,
		Ins:  ins,
		P1:   params.Ref.Kvn,
		P2:   params.Ref.Kid,
		Data: data,
	})
	if err != nil {
		return nil, err
	}
	if response.SW != smartcard.SWOK {
		return nil, &smartcard.ApduError{Data: response.Data, SW: response.SW}
	}

	tlvs, err := tlv.DecodeList(response.Data)
	if err != nil {
		return nil, err
	}
	if len(tlvs) < 2 {
		return nil, fmt.Errorf("scp: unexpected key agreement response")
	}
	epkSdEckaTlv := tlvs[0]
	epkSdEckaPoint, err := tlv.UnpackValue(tagEphemeralKey, epkSdEckaTlv.Encode())
	if err != nil {
		return nil, err
	}
	receipt, err := tlv.UnpackValue(tagReceipt, tlvs[1].Encode())
	if err != nil {
		return nil, err
	}

	epkSdEcka, err := ecdh.P256().NewPublicKey(epkSdEckaPoint)
	if err != nil {
		return nil, fmt.Errorf("scp: invalid card ephemeral key: %w", err)
	}

	ka1, err := ephemeralKey.ECDH(epkSdEcka)
	if err != nil {
		return nil, err
	}
	defer util.Zeroize(ka1)
	ka2, err := skOceEcka.ECDH(pkSdEcka)
	if err != nil {
		return nil, err
	}
	defer util.Zeroize(ka2)

	keyAgreementData := util.Concat(data, epkSdEckaTlv.Encode())
	keys := deriveScp11Keys(util.Concat(ka1, ka2))
	defer func() {
		util.Zeroize(keys[0])
		util.Zeroize(keys[5])
	}()

	genReceipt, err := aesCmac(keys[0], keyAgreementData)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(receipt, genReceipt) != 1 {
		for _, key := range keys {
			util.Zeroize(key)
		}
		return nil, ErrWrongReceipt
	}
	sessionKeys := &SessionKeys{SEnc: keys[1], SMac: keys[2], SRMac: keys[3], DEK: keys[4]}
	return newState(sessionKeys, receipt), nil
}

// deriveScp11Keys runs the X9.63 counter KDF over the concatenated
// shared secrets, producing six AES-128 keys: receipt key, S-ENC,
// S-MAC, S-RMAC, DEK and one discarded.
func deriveScp11Keys(keyMaterial []byte) [][]byte {
	defer util.Zeroize(keyMaterial)
	sharedInfo := util.Concat(scp11KeyUsage, scp11KeyType, scp11KeyLen)
	keys := make([][]byte, 0, 6)
	counter := uint32(1)
	for i := 0; i < 3; i++ {
		hash := sha256.New()
		hash.Write(keyMaterial)
		hash.Write(util.ToBE(counter))
		hash.Write(sharedInfo)
		counter++
		digest := hash.Sum(nil)
		keys = append(keys, digest[:16], digest[16:])
	}
	return keys
}
