package ctap2

import "github.com/keytokenio/keytoken/cose"

// Info is the authenticatorGetInfo response.
type Info struct {
	Versions                 []string        `cbor:"1,keyasint"`
	Extensions               []string        `cbor:"2,keyasint,omitempty"`
	Aaguid                   []byte          `cbor:"3,keyasint"`
	Options                  map[string]bool `cbor:"4,keyasint,omitempty"`
	MaxMsgSize               uint32          `cbor:"5,keyasint,omitempty"`
	PinUvAuthProtocols       []uint          `cbor:"6,keyasint,omitempty"`
	MaxCredentialCountInList uint32          `cbor:"7,keyasint,omitempty"`
	MaxCredentialIdLength    uint32          `cbor:"8,keyasint,omitempty"`
	Transports               []string        `cbor:"9,keyasint,omitempty"`
}

// SupportsPinUvAuthProtocol reports whether the authenticator lists the
// given PIN/UV auth protocol version.
func (info *Info) SupportsPinUvAuthProtocol(version uint) bool {
	for _, supported := range info.PinUvAuthProtocols {
		if supported == version {
			return true
		}
	}
	return false
}

type PublicKeyCredentialRpEntity struct {
	Id   string `cbor:"id"`
	Name string `cbor:"name,omitempty"`
}

type PublicKeyCredentialUserEntity struct {
	Id          []byte `cbor:"id"`
	Name        string `cbor:"name,omitempty"`
	DisplayName string `cbor:"displayName,omitempty"`
}

type PublicKeyCredentialParams struct {
	Type      string               `cbor:"type"`
	Algorithm cose.COSEAlgorithmID `cbor:"alg"`
}

type PublicKeyCredentialDescriptor struct {
	Type       string   `cbor:"type"`
	Id         []byte   `cbor:"id"`
	Transports []string `cbor:"transports,omitempty"`
}

type MakeCredentialRequest struct {
	ClientDataHash    []byte                          `cbor:"1,keyasint"`
	Rp                PublicKeyCredentialRpEntity     `cbor:"2,keyasint"`
	User              PublicKeyCredentialUserEntity   `cbor:"3,keyasint"`
	PubKeyCredParams  []PublicKeyCredentialParams     `cbor:"4,keyasint"`
	ExcludeList       []PublicKeyCredentialDescriptor `cbor:"5,keyasint,omitempty"`
	Extensions        map[string]any                  `cbor:"6,keyasint,omitempty"`
	Options           map[string]bool                 `cbor:"7,keyasint,omitempty"`
	PinUvAuthParam    []byte                          `cbor:"8,keyasint,omitempty"`
	PinUvAuthProtocol uint                            `cbor:"9,keyasint,omitempty"`
}

type MakeCredentialResponse struct {
	Fmt      string         `cbor:"1,keyasint"`
	AuthData []byte         `cbor:"2,keyasint"`
	AttStmt  map[string]any `cbor:"3,keyasint"`
}

type GetAssertionRequest struct {
	RpId              string                          `cbor:"1,keyasint"`
	ClientDataHash    []byte                          `cbor:"2,keyasint"`
	AllowList         []PublicKeyCredentialDescriptor `cbor:"3,keyasint,omitempty"`
	Extensions        map[string]any                  `cbor:"4,keyasint,omitempty"`
	Options           map[string]bool                 `cbor:"5,keyasint,omitempty"`
	PinUvAuthParam    []byte                          `cbor:"6,keyasint,omitempty"`
	PinUvAuthProtocol uint                            `cbor:"7,keyasint,omitempty"`
}

type GetAssertionResponse struct {
	Credential          *PublicKeyCredentialDescriptor `cbor:"1,keyasint,omitempty"`
	AuthData            []byte                         `cbor:"2,keyasint"`
	Signature           []byte                         `cbor:"3,keyasint"`
	User                *PublicKeyCredentialUserEntity `cbor:"4,keyasint,omitempty"`
	NumberOfCredentials uint32                         `cbor:"5,keyasint,omitempty"`
}

// ClientPin subcommands.
const (
	clientPinGetRetries      uint = 0x01
	clientPinGetKeyAgreement uint = 0x02
	clientPinSetPin          uint = 0x03
	clientPinChangePin       uint = 0x04
	clientPinGetPinToken     uint = 0x05
)

type ClientPinRequest struct {
	PinUvAuthProtocol uint      `cbor:"1,keyasint,omitempty"`
	SubCommand        uint      `cbor:"2,keyasint"`
	KeyAgreement      *cose.Key `cbor:"3,keyasint,omitempty"`
	PinUvAuthParam    []byte    `cbor:"4,keyasint,omitempty"`
	NewPinEnc         []byte    `cbor:"5,keyasint,omitempty"`
	PinHashEnc        []byte    `cbor:"6,keyasint,omitempty"`
}

type ClientPinResponse struct {
	KeyAgreement   *cose.Key `cbor:"1,keyasint,omitempty"`
	PinUvAuthToken []byte    `cbor:"2,keyasint,omitempty"`
	PinRetries     uint32    `cbor:"3,keyasint,omitempty"`
}
