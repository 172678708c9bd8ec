package ctap2

import "fmt"

// StatusCode is the leading status byte of a CTAP2 response.
type StatusCode byte

const (
	StatusOK StatusCode = 0x00

	StatusErrInvalidCommand   StatusCode = 0x01
	StatusErrInvalidParameter StatusCode = 0x02
	StatusErrInvalidLength    StatusCode = 0x03
	StatusErrInvalidSequence  StatusCode = 0x04
	StatusErrTimeout          StatusCode = 0x05
	StatusErrChannelBusy      StatusCode = 0x06

	StatusErrCborUnexpectedType StatusCode = 0x11
	StatusErrInvalidCbor        StatusCode = 0x12
	StatusErrMissingParameter   StatusCode = 0x14
	StatusErrCredentialExcluded StatusCode = 0x19
	StatusErrProcessing         StatusCode = 0x21
	StatusErrInvalidCredential  StatusCode = 0x22
	StatusErrUserActionPending  StatusCode = 0x23
	StatusErrOperationPending   StatusCode = 0x24
	StatusErrNoOperations       StatusCode = 0x25
	StatusErrUnsupportedAlg     StatusCode = 0x26
	StatusErrOperationDenied    StatusCode = 0x27
	StatusErrKeyStoreFull       StatusCode = 0x28
	StatusErrUnsupportedOption  StatusCode = 0x2B
	StatusErrInvalidOption      StatusCode = 0x2C
	StatusErrKeepAliveCancel    StatusCode = 0x2D
	StatusErrNoCredentials      StatusCode = 0x2E
	StatusErrUserActionTimeout  StatusCode = 0x2F
	StatusErrNotAllowed         StatusCode = 0x30
	StatusErrPinInvalid         StatusCode = 0x31
	StatusErrPinBlocked         StatusCode = 0x32
	StatusErrPinAuthInvalid     StatusCode = 0x33
	StatusErrPinAuthBlocked     StatusCode = 0x34
	StatusErrPinNotSet          StatusCode = 0x35
	StatusErrPinRequired        StatusCode = 0x36
	StatusErrPinPolicyViolation StatusCode = 0x37
	StatusErrPinTokenExpired    StatusCode = 0x38
	StatusErrRequestTooLarge    StatusCode = 0x39
	StatusErrActionTimeout      StatusCode = 0x3A
	StatusErrUpRequired         StatusCode = 0x3B
	StatusErrUvBlocked          StatusCode = 0x3C
)

var statusCodeDescriptions = map[StatusCode]string{
	StatusErrInvalidCommand:     "invalid command",
	StatusErrInvalidParameter:   "invalid parameter",
	StatusErrInvalidLength:      "invalid length",
	StatusErrInvalidSequence:    "invalid sequence",
	StatusErrTimeout:            "timeout",
	StatusErrChannelBusy:        "channel busy",
	StatusErrCborUnexpectedType: "unexpected CBOR type",
	StatusErrInvalidCbor:        "invalid CBOR",
	StatusErrMissingParameter:   "missing parameter",
	StatusErrCredentialExcluded: "credential excluded",
	StatusErrProcessing:         "processing",
	StatusErrInvalidCredential:  "invalid credential",
	StatusErrUserActionPending:  "user action pending",
	StatusErrOperationPending:   "operation pending",
	StatusErrNoOperations:       "no operations",
	StatusErrUnsupportedAlg:     "unsupported algorithm",
	StatusErrOperationDenied:    "operation denied",
	StatusErrKeyStoreFull:       "key store full",
	StatusErrUnsupportedOption:  "unsupported option",
	StatusErrInvalidOption:      "invalid option",
	StatusErrKeepAliveCancel:    "keepalive cancel",
	StatusErrNoCredentials:      "no credentials",
	StatusErrUserActionTimeout:  "user action timeout",
	StatusErrNotAllowed:         "not allowed",
	StatusErrPinInvalid:         "PIN invalid",
	StatusErrPinBlocked:         "PIN blocked",
	StatusErrPinAuthInvalid:     "PIN auth invalid",
	StatusErrPinAuthBlocked:     "PIN auth blocked",
	StatusErrPinNotSet:          "PIN not set",
	StatusErrPinRequired:        "PIN required",
	StatusErrPinPolicyViolation: "PIN policy violation",
	StatusErrPinTokenExpired:    "PIN token expired",
	StatusErrRequestTooLarge:    "request too large",
	StatusErrActionTimeout:      "action timeout",
	StatusErrUpRequired:         "user presence required",
	StatusErrUvBlocked:          "user verification blocked",
}

// CtapError is returned when the authenticator answers with a non-zero
// status byte.
type CtapError struct {
	Code StatusCode
}

func (e *CtapError) Error() string {
	if description, ok := statusCodeDescriptions[e.Code]; ok {
		return fmt.Sprintf("ctap2: %s (0x%02x)", description, byte(e.Code))
	}
	return fmt.Sprintf("ctap2: error 0x%02x", byte(e.Code))
}
