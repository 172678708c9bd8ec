package ctap2

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/keytokenio/keytoken/util"
)

var ctap2Logger = util.NewLogger("[CTAP2] ", util.LogLevelDebug)

// Command is a CTAP2 command byte.
type Command byte

const (
	CommandMakeCredential   Command = 0x01
	CommandGetAssertion     Command = 0x02
	CommandGetInfo          Command = 0x04
	CommandClientPin        Command = 0x06
	CommandReset            Command = 0x07
	CommandGetNextAssertion Command = 0x08
	CommandSelection        Command = 0x0B
)

// Transport carries encoded CTAP2 messages to an authenticator and
// returns the raw status-prefixed response.
type Transport interface {
	SendCbor(payload []byte, state *CommandState) ([]byte, error)
	SupportsCancel() bool
}

// OperationState reflects where the session is in its command cycle.
type OperationState int

const (
	StateIdle OperationState = iota
	StateSending
	StateAwaitingResponse
	StateCompleted
	StateCancelled
	StateFailed
)

func (state OperationState) String() string {
	switch state {
	case StateIdle:
		return "Idle"
	case StateSending:
		return "Sending"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateCompleted:
		return "Completed"
	case StateCancelled:
		return "Cancelled"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("OperationState(%d)", int(state))
	}
}

// Session drives CTAP2 commands over a Transport. One command runs at
// a time; Cancel may be called concurrently with an in-flight command.
type Session struct {
	transport Transport
	encMode   cbor.EncMode

	mutex        sync.Mutex
	opState      OperationState
	commandState *CommandState
}

func NewSession(transport Transport) *Session {
	encMode, err := cbor.CTAP2EncOptions().EncMode()
	util.CheckErr(err, "could not create CBOR encoder")
	return &Session{
		transport: transport,
		encMode:   encMode,
		opState:   StateIdle,
	}
}

// State returns the state of the most recent command cycle.
func (session *Session) State() OperationState {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	return session.opState
}

// Cancel requests cancellation of the in-flight command, if any. On
// transports without cancellation support this only marks the command
// state; the command still runs to completion.
func (session *Session) Cancel() {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	if session.opState != StateAwaitingResponse {
		return
	}
	if session.commandState != nil {
		session.commandState.Cancel()
	}
	if session.transport.SupportsCancel() {
		session.opState = StateCancelled
	}
}

func (session *Session) setState(state OperationState, commandState *CommandState) {
	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.opState = state
	session.commandState = commandState
}

func (session *Session) finish(state OperationState) {
	session.setState(state, nil)
}

// sendCbor encodes command||CBOR(payload), sends it, checks the status
// byte and decodes the response map into out. payload and out may be
// nil for commands without parameters or response data.
func (session *Session) sendCbor(command Command, payload any, commandState *CommandState, out any) error {
	if commandState == nil {
		commandState = NewCommandState()
	}
	session.setState(StateSending, commandState)
	request := []byte{byte(command)}
	if payload != nil {
		encoded, err := session.encMode.Marshal(payload)
		if err != nil {
			session.finish(StateFailed)
			return fmt.Errorf("ctap2: could not encode request: %w", err)
		}
		request = append(request, encoded...)
	}
	ctap2Logger.Printf("CTAP2 COMMAND: 0x%02x (%d bytes)\n\n", byte(command), len(request))
	session.setState(StateAwaitingResponse, commandState)
	response, err := session.transport.SendCbor(request, commandState)
	if err != nil {
		session.finish(StateFailed)
		return err
	}
	if len(response) == 0 {
		session.finish(StateFailed)
		return errors.New("ctap2: empty response")
	}
	status := StatusCode(response[0])
	if status != StatusOK {
		if status == StatusErrKeepAliveCancel && commandState.Cancelled() && session.transport.SupportsCancel() {
			session.finish(StateCancelled)
		} else {
			session.finish(StateFailed)
		}
		return &CtapError{Code: status}
	}
	if out != nil && len(response) > 1 {
		if err := cbor.Unmarshal(response[1:], out); err != nil {
			session.finish(StateFailed)
			return fmt.Errorf("ctap2: could not decode response: %w", err)
		}
	}
	session.finish(StateCompleted)
	return nil
}

// GetInfo reads the authenticator's capability map.
func (session *Session) GetInfo() (*Info, error) {
	info := Info{}
	if err := session.sendCbor(CommandGetInfo, nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (session *Session) MakeCredential(request *MakeCredentialRequest, state *CommandState) (*MakeCredentialResponse, error) {
	response := MakeCredentialResponse{}
	if err := session.sendCbor(CommandMakeCredential, request, state, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (session *Session) GetAssertion(request *GetAssertionRequest, state *CommandState) (*GetAssertionResponse, error) {
	response := GetAssertionResponse{}
	if err := session.sendCbor(CommandGetAssertion, request, state, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// GetNextAssertion fetches the next assertion after a GetAssertion that
// reported more than one matching credential.
func (session *Session) GetNextAssertion() (*GetAssertionResponse, error) {
	response := GetAssertionResponse{}
	if err := session.sendCbor(CommandGetNextAssertion, nil, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Reset factory-resets the authenticator. Most authenticators require
// user presence and only allow this shortly after power-up.
func (session *Session) Reset(state *CommandState) error {
	return session.sendCbor(CommandReset, nil, state, nil)
}

// Selection asks the authenticator to prove user presence, used to pick
// one device out of several.
func (session *Session) Selection(state *CommandState) error {
	return session.sendCbor(CommandSelection, nil, state, nil)
}

// ClientPin issues a raw authenticatorClientPIN command. Most callers
// use the ClientPin helper type instead.
func (session *Session) ClientPin(request *ClientPinRequest) (*ClientPinResponse, error) {
	response := ClientPinResponse{}
	if err := session.sendCbor(CommandClientPin, request, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}
