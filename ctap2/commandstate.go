package ctap2

import "sync"

// Keepalive status values reported by transports while the
// authenticator is still working on a command.
const (
	KeepAliveStatusProcessing byte = 1
	KeepAliveStatusUpNeeded   byte = 2
)

// CommandState tracks a single in-flight command. Transports poll
// Cancelled between keepalive rounds and stop early when the caller
// requested cancellation.
type CommandState struct {
	mutex     sync.Mutex
	cancelled bool

	// OnKeepAlive, if set, is invoked by the transport for every
	// keepalive status it receives.
	OnKeepAlive func(status byte)
}

func NewCommandState() *CommandState {
	return &CommandState{}
}

// Cancel requests cancellation of the in-flight command. Safe to call
// from any goroutine.
func (state *CommandState) Cancel() {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	state.cancelled = true
}

func (state *CommandState) Cancelled() bool {
	state.mutex.Lock()
	defer state.mutex.Unlock()
	return state.cancelled
}

// KeepAlive is called by transports when the authenticator emits a
// keepalive status.
func (state *CommandState) KeepAlive(status byte) {
	state.mutex.Lock()
	callback := state.OnKeepAlive
	state.mutex.Unlock()
	if callback != nil {
		callback(status)
	}
}
