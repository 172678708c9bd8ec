package scp

import (
	"errors"

	"github.com/keytokenio/keytoken/smartcard"
	"github.com/keytokenio/keytoken/util"
)

var scpLogger = util.NewLogger("[SCP] ", util.LogLevelDebug)

// Session is an established secure channel. It implements
// smartcard.Transceiver, so it can be installed on a smartcard.Protocol
// to transparently encrypt and authenticate every command. A Session
// exclusively owns its channel state; any authentication failure
// zeroizes the keys and refuses further use.
type Session struct {
	transceiver   smartcard.Transceiver
	extendedApdus bool
	state         *state
	closed        bool
}

// NewScp03Session establishes a static-key secure channel over the
// connection: challenge exchange, mutual cryptogram verification and
// EXTERNAL AUTHENTICATE, before any application data is exchanged.
func NewScp03Session(connection smartcard.Connection, params *Scp03KeyParams) (*Session, error) {
	transceiver := smartcard.NewTransceiver(connection)
	channelState, hostCryptogram, err := scp03Init(transceiver, params, nil)
	if err != nil {
		return nil, err
	}
	session := &Session{
		transceiver:   transceiver,
		extendedApdus: connection.SupportsExtendedApdus(),
		state:         channelState,
	}
	// Host cryptogram is MACed but not encrypted.
	response, err := session.send(smartcard.Apdu{
		Cla:  claGP,
		Ins:  insExternalAuthenticate,
		P1:   0x33,
		Data: hostCryptogram,
	}, false)
	if err != nil {
		session.invalidate()
		return nil, err
	}
	if response.SW != smartcard.SWOK {
		session.invalidate()
		return nil, &smartcard.ApduError{Data: response.Data, SW: response.SW}
	}
	scpLogger.Printf("SCP03 session established (kvn=0x%02x)\n", params.Ref.Kvn)
	return session, nil
}

// NewScp11Session establishes a key-agreement secure channel over the
// connection. The card certificate chain is validated against the
// configured trust anchor before session keys are derived.
func NewScp11Session(connection smartcard.Connection, params *Scp11KeyParams) (*Session, error) {
	transceiver := smartcard.NewTransceiver(connection)
	channelState, err := scp11Init(transceiver, params)
	if err != nil {
		return nil, err
	}
	scpLogger.Printf("SCP11 session established (kid=0x%02x)\n", params.Ref.Kid)
	return &Session{
		transceiver:   transceiver,
		extendedApdus: connection.SupportsExtendedApdus(),
		state:         channelState,
	}, nil
}

// SendApdu encrypts, MACs and sends one command, then authenticates
// and decrypts the response. The encryption counter advances exactly
// once per call, independent of transceiver-level chaining.
func (session *Session) SendApdu(apdu smartcard.Apdu) (smartcard.ApduResponse, error) {
	return session.send(apdu, true)
}

func (session *Session) send(apdu smartcard.Apdu, encrypt bool) (smartcard.ApduResponse, error) {
	if session.closed {
		return smartcard.ApduResponse{}, ErrSessionClosed
	}

	data := apdu.Data
	if encrypt {
		var err error
		data, err = session.state.encrypt(data)
		if err != nil {
			return smartcard.ApduResponse{}, err
		}
	}
	cla := apdu.Cla | 0x04

	// The MAC covers the formatted command with an 8-byte placeholder
	// where the MAC itself will go.
	macedData := make([]byte, len(data)+8)
	copy(macedData, data)
	frame, err := session.formatForMac(cla, apdu, macedData)
	if err != nil {
		return smartcard.ApduResponse{}, err
	}
	mac, err := session.state.mac(frame[:len(frame)-8])
	if err != nil {
		return smartcard.ApduResponse{}, err
	}
	copy(macedData[len(macedData)-8:], mac)

	response, err := session.transceiver.SendApdu(smartcard.Apdu{
		Cla:  cla,
		Ins:  apdu.Ins,
		P1:   apdu.P1,
		P2:   apdu.P2,
		Data: macedData,
		Le:   apdu.Le,
	})
	if err != nil {
		// Transport errors pass through unchanged.
		return smartcard.ApduResponse{}, err
	}

	responseData := response.Data
	if len(responseData) > 0 {
		responseData, err = session.state.unmac(responseData, response.SW)
		if err != nil {
			session.invalidate()
			return smartcard.ApduResponse{}, err
		}
	}
	if len(responseData) > 0 {
		responseData, err = session.state.decrypt(responseData)
		if err != nil {
			session.invalidate()
			return smartcard.ApduResponse{}, err
		}
	}
	return smartcard.ApduResponse{Data: responseData, SW: response.SW}, nil
}

// formatForMac encodes the command the way it will appear on the wire
// for MAC purposes. A MACed payload that no longer fits a short APDU is
// treated as extended even on short-form connections, matching the
// card's MAC input.
func (session *Session) formatForMac(cla byte, apdu smartcard.Apdu, macedData []byte) ([]byte, error) {
	if !session.extendedApdus && len(macedData) <= smartcard.ShortApduMaxChunk {
		return smartcard.EncodeShort(cla, apdu.Ins, apdu.P1, apdu.P2, macedData, 0)
	}
	return smartcard.EncodeExtended(cla, apdu.Ins, apdu.P1, apdu.P2, macedData, 0)
}

// DataEncryptor returns an encryptor for off-channel payloads using the
// session's data encryption key, or an error when the key set has none.
func (session *Session) DataEncryptor() (func([]byte) ([]byte, error), error) {
	if session.closed {
		return nil, ErrSessionClosed
	}
	encryptor := session.state.dataEncryptor()
	if encryptor == nil {
		return nil, errors.New("scp: no data encryption key in session")
	}
	return encryptor, nil
}

// Close zeroizes the session key material. The session cannot be
// reused afterwards.
func (session *Session) Close() {
	if !session.closed {
		session.invalidate()
	}
}

func (session *Session) invalidate() {
	session.state.zeroize()
	session.closed = true
}
