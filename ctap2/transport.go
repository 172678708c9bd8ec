package ctap2

import (
	"github.com/keytokenio/keytoken/smartcard"
)

// FidoAid is the NFC applet identifier for FIDO authenticators.
var FidoAid = []byte{0xA0, 0x00, 0x00, 0x06, 0x47, 0x2F, 0x00, 0x01}

const (
	claNfcCtap    byte = 0x80
	insNfcCtapMsg byte = 0x10
)

// smartCardTransport frames CTAP2 messages in NFCCTAP_MSG APDUs over a
// smart card protocol. Smart card transports have no cancel channel, so
// cancellation is best effort only.
type smartCardTransport struct {
	protocol *smartcard.Protocol
}

// NewSmartCardTransport selects the FIDO applet and returns a Transport
// over the given protocol.
func NewSmartCardTransport(protocol *smartcard.Protocol) (Transport, error) {
	if _, err := protocol.Select(FidoAid); err != nil {
		return nil, err
	}
	return &smartCardTransport{protocol: protocol}, nil
}

func (transport *smartCardTransport) SendCbor(payload []byte, state *CommandState) ([]byte, error) {
	return transport.protocol.SendAndReceive(smartcard.Apdu{
		Cla:  claNfcCtap,
		Ins:  insNfcCtapMsg,
		Data: payload,
	})
}

func (transport *smartCardTransport) SupportsCancel() bool {
	return false
}
