package messenger

import "github.com/pkg/errors"

// Errors returned by the registry and the handler.
var (
	// ErrAlreadyRegistered is returned when a message type is registered twice.
	ErrAlreadyRegistered = errors.New("messenger: message already registered")
	// ErrHashCollision is returned when two message names hash to the same value.
	ErrHashCollision = errors.New("messenger: message hash collision")
	// ErrNotRegistered is returned for message types or hashes the registry does not know.
	ErrNotRegistered = errors.New("messenger: message not registered")
	// ErrUnknownKind is returned for envelopes whose kind is neither simple nor response.
	ErrUnknownKind = errors.New("messenger: unknown message kind")
	// ErrNoListener is returned when a simple message arrives without a listener.
	ErrNoListener = errors.New("messenger: no listener")
	// ErrNoPending is returned when a response matches no waiting request.
	ErrNoPending = errors.New("messenger: no pending request")
	// ErrUnexpectedResponse is returned when a response carries another type than awaited.
	ErrUnexpectedResponse = errors.New("messenger: unexpected response type")
	// ErrInactive is returned when sending on a handler whose session is not active.
	ErrInactive = errors.New("messenger: network is not active")
	// ErrTimeout is the error of a response that did not arrive in time.
	ErrTimeout = errors.New("messenger: request timed out")
	// ErrReset is the error of a response abandoned by Reset or a disconnect.
	ErrReset = errors.New("messenger: handler reset")
)

// RemoteError is an error reported by the peer in a response.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}
