package scp

import (
	"crypto/subtle"
	"fmt"

	"github.com/keytokenio/keytoken/smartcard"
	"github.com/keytokenio/keytoken/util"
)

const (
	claGP byte = 0x80

	insInitializeUpdate         byte = 0x50
	insExternalAuthenticate     byte = 0x82
	insInternalAuthenticate     byte = 0x88
	insPerformSecurityOperation byte = 0x2A

	challengeLength  = 8
	cryptogramLength = 8
)

// Scp03KeyParams carries the caller-supplied parameters for the
// static-key scheme: the key reference on the card and the pre-shared
// key set.
type Scp03KeyParams struct {
	Ref  KeyRef
	Keys *StaticKeys
}

// scp03Init performs INITIALIZE UPDATE, derives the session keys from
// the exchanged challenges and verifies the card cryptogram. It returns
// the channel state and the host cryptogram still to be sent.
func scp03Init(t smartcard.Transceiver, params *Scp03KeyParams, hostChallenge []byte) (*state, []byte, error) {
	if hostChallenge == nil {
		hostChallenge = util.RandomBytes(challengeLength)
	}
	response, err := t.SendApdu(smartcard.Apdu{
		Cla:  claGP,
		Ins:  insInitializeUpdate,
		P1:   params.Ref.Kvn,
		Data: hostChallenge,
	})
	if err != nil {
		return nil, nil, err
	}
	if response.SW != smartcard.SWOK {
		return nil, nil, &smartcard.ApduError{Data: response.Data, SW: response.SW}
	}
	// diversification data (10) | key info (3) | card challenge (8) |
	// card cryptogram (8)
	if len(response.Data) != 10+3+challengeLength+cryptogramLength {
		return nil, nil, fmt.Errorf("scp: unexpected INITIALIZE UPDATE response length %d", len(response.Data))
	}
	cardChallenge := response.Data[13 : 13+challengeLength]
	cardCryptogram := response.Data[21 : 21+cryptogramLength]

	context := util.Concat(hostChallenge, cardChallenge)
	sessionKeys, err := params.Keys.Derive(context)
	if err != nil {
		return nil, nil, err
	}

	genCardCryptogram, err := deriveKey(sessionKeys.SMac, dcCardCryptogram, context, 0x40)
	if err != nil {
		sessionKeys.Zeroize()
		return nil, nil, err
	}
	if subtle.ConstantTimeCompare(genCardCryptogram, cardCryptogram) != 1 {
		sessionKeys.Zeroize()
		return nil, nil, ErrWrongKeySet
	}

	hostCryptogram, err := deriveKey(sessionKeys.SMac, dcHostCryptogram, context, 0x40)
	if err != nil {
		sessionKeys.Zeroize()
		return nil, nil, err
	}
	return newState(sessionKeys, make([]byte, 16)), hostCryptogram, nil
}
