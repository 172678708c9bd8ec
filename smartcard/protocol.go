package smartcard

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/keytokenio/keytoken/util"
)

var smartcardLogger = util.NewLogger("[SMARTCARD] ", util.LogLevelDebug)

const (
	insSelect        byte = 0xA4
	p1Select         byte = 0x04
	p2Select         byte = 0x00
	InsSendRemaining byte = 0xC0
)

// Connection is the injected raw transceive primitive. Implementations
// live outside this module (readers, HID wrappers, test fakes) and
// exchange one full command for one full response.
type Connection interface {
	Transceive(data []byte) ([]byte, error)
	SupportsExtendedApdus() bool
}

// Transceiver sends one logical command and reassembles the full
// response, applying command and response chaining as needed. It is the
// seam where a secure channel wraps plain APDU exchange.
type Transceiver interface {
	SendApdu(apdu Apdu) (ApduResponse, error)
}

// transceiver resolves its framing policy once, at construction, from
// the connection's capability flag.
type transceiver struct {
	connection       Connection
	extendedApdus    bool
	insSendRemaining byte
	getData          []byte
}

// NewTransceiver builds the plain (non-encrypted) transceiver for a
// connection.
func NewTransceiver(connection Connection) Transceiver {
	return newTransceiver(connection, InsSendRemaining)
}

func newTransceiver(connection Connection, insSendRemaining byte) *transceiver {
	return &transceiver{
		connection:       connection,
		extendedApdus:    connection.SupportsExtendedApdus(),
		insSendRemaining: insSendRemaining,
		getData:          []byte{0x00, insSendRemaining, 0x00, 0x00},
	}
}

func (t *transceiver) SendApdu(apdu Apdu) (ApduResponse, error) {
	response, err := t.sendCommand(apdu)
	if err != nil {
		return ApduResponse{}, err
	}

	// Response chaining: keep requesting remaining data until a
	// terminal status word arrives.
	readBuffer := new(bytes.Buffer)
	for response.HasMoreData() {
		readBuffer.Write(response.Data)
		raw, err := t.connection.Transceive(t.getData)
		if err != nil {
			return ApduResponse{}, err
		}
		response, err = parseResponse(raw)
		if err != nil {
			return ApduResponse{}, err
		}
	}
	readBuffer.Write(response.Data)
	return ApduResponse{Data: readBuffer.Bytes(), SW: response.SW}, nil
}

func (t *transceiver) sendCommand(apdu Apdu) (ApduResponse, error) {
	if t.extendedApdus {
		frame, err := EncodeExtended(apdu.Cla, apdu.Ins, apdu.P1, apdu.P2, apdu.Data, apdu.Le)
		if err != nil {
			return ApduResponse{}, err
		}
		raw, err := t.connection.Transceive(frame)
		if err != nil {
			return ApduResponse{}, err
		}
		return parseResponse(raw)
	}

	// Command chaining: all but the last chunk carry the chaining bit
	// and must succeed; intermediate responses are discarded.
	data := apdu.Data
	offset := 0
	for len(data)-offset > ShortApduMaxChunk {
		frame, err := EncodeShort(apdu.Cla|ClaChaining, apdu.Ins, apdu.P1, apdu.P2,
			data[offset:offset+ShortApduMaxChunk], apdu.Le)
		if err != nil {
			return ApduResponse{}, err
		}
		raw, err := t.connection.Transceive(frame)
		if err != nil {
			return ApduResponse{}, err
		}
		response, err := parseResponse(raw)
		if err != nil {
			return ApduResponse{}, err
		}
		if response.SW != SWOK {
			return response, nil
		}
		offset += ShortApduMaxChunk
	}
	frame, err := EncodeShort(apdu.Cla, apdu.Ins, apdu.P1, apdu.P2, data[offset:], apdu.Le)
	if err != nil {
		return ApduResponse{}, err
	}
	raw, err := t.connection.Transceive(frame)
	if err != nil {
		return ApduResponse{}, err
	}
	return parseResponse(raw)
}

// Protocol owns a Connection exclusively for its lifetime and exposes
// application-level APDU exchange on top of a Transceiver.
type Protocol struct {
	connection  Connection
	transceiver Transceiver
}

func NewProtocol(connection Connection) *Protocol {
	return &Protocol{
		connection:  connection,
		transceiver: NewTransceiver(connection),
	}
}

// Connection returns the underlying connection, for establishing a
// secure channel over the same link.
func (p *Protocol) Connection() Connection {
	return p.connection
}

// Transceiver returns the transceiver currently in use.
func (p *Protocol) Transceiver() Transceiver {
	return p.transceiver
}

// SetTransceiver swaps the transceiver, typically for one wrapping the
// exchange in a secure channel.
func (p *Protocol) SetTransceiver(t Transceiver) {
	p.transceiver = t
}

// Select sends an application SELECT for the given AID and returns the
// selection response data.
func (p *Protocol) Select(aid []byte) ([]byte, error) {
	data, err := p.SendAndReceive(Apdu{Ins: insSelect, P1: p1Select, P2: p2Select, Data: aid})
	if err != nil {
		var apduErr *ApduError
		if errors.As(err, &apduErr) && apduErr.SW == SWFileNotFound {
			return nil, fmt.Errorf("%w: %x", ErrAppNotFound, aid)
		}
		return nil, err
	}
	smartcardLogger.Printf("Selected application %x\n", aid)
	return data, nil
}

// SendAndReceive sends a command and returns the reassembled response
// data, or an *ApduError for any terminal status word other than
// success. Transport errors pass through unchanged.
func (p *Protocol) SendAndReceive(apdu Apdu) ([]byte, error) {
	response, err := p.transceiver.SendApdu(apdu)
	if err != nil {
		return nil, err
	}
	if response.SW != SWOK {
		return nil, &ApduError{Data: response.Data, SW: response.SW}
	}
	return response.Data, nil
}
