package scp

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"testing"

	"github.com/keytokenio/keytoken/smartcard"
	"github.com/keytokenio/keytoken/test"
	"github.com/keytokenio/keytoken/util"
)

// fakeScp03Card implements the card side of the static-key handshake
// and echoes decrypted command data back over the channel.
type fakeScp03Card struct {
	static *StaticKeys

	session        *SessionKeys
	macChain       []byte
	counter        uint32
	hostCryptogram []byte

	tamperResponseMac bool
}

func newFakeScp03Card(static *StaticKeys) *fakeScp03Card {
	return &fakeScp03Card{static: static}
}

func (card *fakeScp03Card) SupportsExtendedApdus() bool {
	return false
}

func (card *fakeScp03Card) Transceive(frame []byte) ([]byte, error) {
	ins := frame[1]
	var data []byte
	if len(frame) > 4 {
		data = frame[5 : 5+int(frame[4])]
	}
	switch ins {
	case insInitializeUpdate:
		return card.initializeUpdate(frame[2], data)
	case insExternalAuthenticate:
		return card.externalAuthenticate(frame, data)
	default:
		return card.echo(frame, data)
	}
}

func (card *fakeScp03Card) initializeUpdate(kvn byte, hostChallenge []byte) ([]byte, error) {
	cardChallenge := util.RandomBytes(challengeLength)
	context := util.Concat(hostChallenge, cardChallenge)
	session, err := card.static.Derive(context)
	if err != nil {
		return nil, err
	}
	card.session = session
	card.macChain = make([]byte, 16)
	card.counter = 1
	cardCryptogram, err := deriveKey(session.SMac, dcCardCryptogram, context, 0x40)
	if err != nil {
		return nil, err
	}
	card.hostCryptogram, err = deriveKey(session.SMac, dcHostCryptogram, context, 0x40)
	if err != nil {
		return nil, err
	}
	divData := util.RandomBytes(10)
	keyInfo := []byte{kvn, 0x03, 0x70}
	response := util.Concat(divData, keyInfo, cardChallenge, cardCryptogram)
	return append(response, 0x90, 0x00), nil
}

// checkMac verifies the trailing command MAC and advances the card's
// MAC chain.
func (card *fakeScp03Card) checkMac(frame []byte) bool {
	macInput := frame[:len(frame)-8]
	full, err := aesCmac(card.session.SMac, util.Concat(card.macChain, macInput))
	if err != nil {
		return false
	}
	if !bytes.Equal(full[:8], frame[len(frame)-8:]) {
		return false
	}
	card.macChain = full
	return true
}

func (card *fakeScp03Card) externalAuthenticate(frame []byte, data []byte) ([]byte, error) {
	if !card.checkMac(frame) || !bytes.Equal(data[:8], card.hostCryptogram) {
		return []byte{0x69, 0x82}, nil
	}
	return []byte{0x90, 0x00}, nil
}

func (card *fakeScp03Card) echo(frame []byte, data []byte) ([]byte, error) {
	if !card.checkMac(frame) {
		return []byte{0x69, 0x82}, nil
	}
	block, err := aes.NewCipher(card.session.SEnc)
	if err != nil {
		return nil, err
	}

	// Decrypt the command with the command ICV.
	iv := make([]byte, 16)
	block.Encrypt(iv, util.Concat(make([]byte, 12), util.ToBE(card.counter)))
	encrypted := data[:len(data)-8]
	plain := make([]byte, len(encrypted))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, encrypted)
	end := len(plain) - 1
	for plain[end] == 0x00 {
		end--
	}
	plain = plain[:end] // strip 0x80 and zeros

	// Encrypt the echo with the response ICV.
	padded := make([]byte, (len(plain)/16+1)*16)
	copy(padded, plain)
	padded[len(plain)] = 0x80
	block.Encrypt(iv, util.Concat([]byte{0x80}, make([]byte, 11), util.ToBE(card.counter)))
	card.counter++
	encResponse := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(encResponse, padded)

	rmac, err := aesCmac(card.session.SRMac, util.Concat(card.macChain, encResponse, []byte{0x90, 0x00}))
	if err != nil {
		return nil, err
	}
	if card.tamperResponseMac {
		rmac[0] ^= 0xFF
	}
	return util.Concat(encResponse, rmac[:8], []byte{0x90, 0x00}), nil
}

func testStaticKeys() *StaticKeys {
	return &StaticKeys{
		Enc: util.RandomBytes(16),
		Mac: util.RandomBytes(16),
		DEK: util.RandomBytes(16),
	}
}

func TestScp03Handshake(t *testing.T) {
	static := testStaticKeys()
	card := newFakeScp03Card(static)
	session, err := NewScp03Session(card, &Scp03KeyParams{Ref: KeyRef{Kid: 0x01, Kvn: 0x01}, Keys: static})
	test.AssertNoErr(t, err, "establish session")
	defer session.Close()

	for i := 0; i < 3; i++ {
		payload := util.RandomBytes(20 + i)
		response, err := session.SendApdu(smartcard.Apdu{Cla: 0x00, Ins: 0x01, Data: payload})
		test.AssertNoErr(t, err, "send over channel")
		test.AssertEqual(t, response.SW, smartcard.SWOK, "status")
		test.AssertBytesEqual(t, response.Data, payload, "echoed plaintext")
	}
}

func TestScp03WrongKeySet(t *testing.T) {
	card := newFakeScp03Card(testStaticKeys())
	_, err := NewScp03Session(card, &Scp03KeyParams{Ref: KeyRef{Kvn: 0x01}, Keys: testStaticKeys()})
	if !errors.Is(err, ErrWrongKeySet) {
		t.Fatalf("expected ErrWrongKeySet, got %v", err)
	}
}

func TestScp03TamperedResponseMac(t *testing.T) {
	static := testStaticKeys()
	card := newFakeScp03Card(static)
	session, err := NewScp03Session(card, &Scp03KeyParams{Ref: KeyRef{Kvn: 0x01}, Keys: static})
	test.AssertNoErr(t, err, "establish session")

	card.tamperResponseMac = true
	_, err = session.SendApdu(smartcard.Apdu{Ins: 0x01, Data: []byte{0x01}})
	if !errors.Is(err, ErrWrongMac) {
		t.Fatalf("expected ErrWrongMac, got %v", err)
	}

	// A MAC failure is fatal: the session refuses further use.
	_, err = session.SendApdu(smartcard.Apdu{Ins: 0x01, Data: []byte{0x01}})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestScp03SessionClose(t *testing.T) {
	static := testStaticKeys()
	card := newFakeScp03Card(static)
	session, err := NewScp03Session(card, &Scp03KeyParams{Ref: KeyRef{Kvn: 0x01}, Keys: static})
	test.AssertNoErr(t, err, "establish session")

	encryptor, err := session.DataEncryptor()
	test.AssertNoErr(t, err, "data encryptor with DEK")
	encrypted, err := encryptor(make([]byte, 16))
	test.AssertNoErr(t, err, "encrypt off-channel payload")
	test.AssertEqual(t, len(encrypted), 16, "ciphertext length")

	session.Close()
	_, err = session.SendApdu(smartcard.Apdu{Ins: 0x01})
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	_, err = session.DataEncryptor()
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}
