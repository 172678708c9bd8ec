package scp

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keytokenio/keytoken/smartcard"
	"github.com/keytokenio/keytoken/tlv"
	"github.com/keytokenio/keytoken/util"
)

type testCardPki struct {
	ca      *x509.Certificate
	leaf    *x509.Certificate
	cardKey *ecdsa.PrivateKey
	otherCa *x509.Certificate
}

func newTestCardPki(t *testing.T) *testCardPki {
	t.Helper()
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDer, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(caDer)
	require.NoError(t, err)

	cardKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Card"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyAgreement,
	}
	leafDer, err := x509.CreateCertificate(rand.Reader, leafTemplate, ca, &cardKey.PublicKey, caKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(leafDer)
	require.NoError(t, err)

	otherKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	otherDer, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &otherKey.PublicKey, otherKey)
	require.NoError(t, err)
	otherCa, err := x509.ParseCertificate(otherDer)
	require.NoError(t, err)

	return &testCardPki{ca: ca, leaf: leaf, cardKey: cardKey, otherCa: otherCa}
}

// fakeScp11Card implements the card side of the SCP11b key agreement.
type fakeScp11Card struct {
	cardKey *ecdsa.PrivateKey

	tamperReceipt bool
}

func (card *fakeScp11Card) SupportsExtendedApdus() bool {
	return false
}

func (card *fakeScp11Card) Transceive(frame []byte) ([]byte, error) {
	if frame[1] != insInternalAuthenticate {
		return []byte{0x6D, 0x00}, nil
	}
	hostData := frame[5 : 5+int(frame[4])]
	tlvs, err := tlv.DecodeList(hostData)
	if err != nil {
		return nil, err
	}
	hostEphemeral, err := ecdh.P256().NewPublicKey(tlvs[1].Value)
	if err != nil {
		return nil, err
	}

	cardEphemeral, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	cardStatic, err := card.cardKey.ECDH()
	if err != nil {
		return nil, err
	}
	ka1, err := cardEphemeral.ECDH(hostEphemeral)
	if err != nil {
		return nil, err
	}
	ka2, err := cardStatic.ECDH(hostEphemeral)
	if err != nil {
		return nil, err
	}
	keys := deriveScp11Keys(util.Concat(ka1, ka2))

	ephemeralTlv := tlv.New(tagEphemeralKey, cardEphemeral.PublicKey().Bytes())
	receipt, err := aesCmac(keys[0], util.Concat(hostData, ephemeralTlv.Encode()))
	if err != nil {
		return nil, err
	}
	if card.tamperReceipt {
		receipt[0] ^= 0xFF
	}
	response := util.Concat(ephemeralTlv.Encode(), tlv.New(tagReceipt, receipt).Encode())
	return append(response, 0x90, 0x00), nil
}

func TestScp11bHandshake(t *testing.T) {
	pki := newTestCardPki(t)
	card := &fakeScp11Card{cardKey: pki.cardKey}
	session, err := NewScp11Session(card, &Scp11KeyParams{
		Ref:              KeyRef{Kid: Scp11b, Kvn: 0x01},
		CardCertificates: []*x509.Certificate{pki.leaf},
		TrustAnchor:      pki.ca,
	})
	require.NoError(t, err)
	defer session.Close()
	require.NotNil(t, session.state)
	require.Len(t, session.state.keys.SEnc, 16)
	require.Equal(t, uint32(1), session.state.encCounter)

	// The MAC chain starts from the verified receipt.
	require.Len(t, session.state.macChain, 16)
}

func TestScp11bWrongTrustAnchor(t *testing.T) {
	pki := newTestCardPki(t)
	card := &fakeScp11Card{cardKey: pki.cardKey}
	_, err := NewScp11Session(card, &Scp11KeyParams{
		Ref:              KeyRef{Kid: Scp11b, Kvn: 0x01},
		CardCertificates: []*x509.Certificate{pki.leaf},
		TrustAnchor:      pki.otherCa,
	})
	require.ErrorIs(t, err, ErrCertificateChain)
}

func TestScp11bMissingTrustAnchor(t *testing.T) {
	pki := newTestCardPki(t)
	card := &fakeScp11Card{cardKey: pki.cardKey}
	_, err := NewScp11Session(card, &Scp11KeyParams{
		Ref:              KeyRef{Kid: Scp11b, Kvn: 0x01},
		CardCertificates: []*x509.Certificate{pki.leaf},
	})
	require.ErrorIs(t, err, ErrCertificateChain)
}

func TestScp11bWrongReceipt(t *testing.T) {
	pki := newTestCardPki(t)
	card := &fakeScp11Card{cardKey: pki.cardKey, tamperReceipt: true}
	_, err := NewScp11Session(card, &Scp11KeyParams{
		Ref:              KeyRef{Kid: Scp11b, Kvn: 0x01},
		CardCertificates: []*x509.Certificate{pki.leaf},
		TrustAnchor:      pki.ca,
	})
	require.ErrorIs(t, err, ErrWrongReceipt)
}

func TestScp11InvalidKid(t *testing.T) {
	_, err := scp11Params(0x42)
	require.Error(t, err)
}

func TestScp11aRequiresOceKey(t *testing.T) {
	pki := newTestCardPki(t)
	card := &fakeScp11Card{cardKey: pki.cardKey}
	_, err := NewScp11Session(card, &Scp11KeyParams{
		Ref:              KeyRef{Kid: Scp11a, Kvn: 0x01},
		CardCertificates: []*x509.Certificate{pki.leaf},
		TrustAnchor:      pki.ca,
	})
	require.Error(t, err)
}

var _ smartcard.Connection = (*fakeScp11Card)(nil)
