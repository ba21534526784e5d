package stomp

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/bsiegfreid/iridium-stomp/frame"
)

// ErrClosed is returned by operations attempted after the connection has
// shut down.
var ErrClosed = errors.New("stomp: connection closed")

// ErrReceiptTimeout is returned by AwaitReceipt when the deadline elapses
// without a matching RECEIPT frame.
var ErrReceiptTimeout = errors.New("stomp: receipt timed out")

// TransportError wraps a connect, read, or write failure at the transport
// layer. The manager recovers from these by entering reconnect backoff.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stomp: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func newTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// ServerError represents an ERROR frame received from the broker.
type ServerError struct {
	Message   string
	Body      string
	ReceiptID string
	Frame     *frame.Frame
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return "stomp: server error: " + e.Message
	}
	return "stomp: server error"
}

func newServerError(f *frame.Frame) *ServerError {
	se := &ServerError{Frame: f}
	if v, ok := f.Get(frame.HeaderMessage); ok {
		se.Message = v
	}
	if v, ok := f.GetCI(frame.HeaderReceiptID); ok {
		se.ReceiptID = v
	}
	if len(f.Body) > 0 && utf8.Valid(f.Body) {
		se.Body = string(f.Body)
	}
	return se
}

// ServerRejectedError is returned by Connect/ConnectWithOptions when the
// broker responds to the handshake with an ERROR frame instead of
// CONNECTED. Unlike a steady-state ServerError, a rejection during the
// handshake is presumed configuration-level and the manager does not
// automatically reconnect.
type ServerRejectedError struct {
	*ServerError
}

func (e *ServerRejectedError) Error() string {
	return "stomp: connect rejected: " + e.ServerError.Error()
}
