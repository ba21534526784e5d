// Package frame implements the STOMP 1.2 wire frame: an inert command,
// ordered header list, and body, plus the codec that translates between it
// and a byte stream.
package frame

import (
	"fmt"
	"strings"
)

// Well-known header names. Of these, only the ones listed on GetCI are
// looked up case-insensitively.
const (
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"
	HeaderHeartBeat     = "heart-beat"
	HeaderDestination   = "destination"
	HeaderSubscription  = "subscription"
	HeaderMessageID     = "message-id"
	HeaderReceiptID     = "receipt-id"
	HeaderReceipt       = "receipt"
	HeaderID            = "id"
	HeaderAck           = "ack"
	HeaderTransaction   = "transaction"
	HeaderMessage       = "message"
	HeaderAcceptVersion = "accept-version"
	HeaderHost          = "host"
	HeaderLogin         = "login"
	HeaderPasscode      = "passcode"
	HeaderClientID      = "client-id"
)

// Client-originated and server-originated commands (STOMP 1.2, §6).
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdAck         = "ACK"
	CmdNack        = "NACK"
	CmdBegin       = "BEGIN"
	CmdCommit      = "COMMIT"
	CmdAbort       = "ABORT"
	CmdDisconnect  = "DISCONNECT"

	CmdConnected = "CONNECTED"
	CmdMessage   = "MESSAGE"
	CmdReceipt   = "RECEIPT"
	CmdError     = "ERROR"
)

// Header is a single ordered (name, value) pair. Duplicate names are legal
// and preserved in arrival order.
type Header struct {
	Key   string
	Value string
}

// Frame is a passive STOMP value: a command, its ordered headers, and a
// body. Frames carry no validation themselves; that is the codec's and the
// broker's job.
type Frame struct {
	Command string
	Headers []Header
	Body    []byte
}

// New creates a frame with the given command and no headers or body.
func New(command string) *Frame {
	return &Frame{Command: command}
}

// Append adds a header, preserving order and allowing duplicate keys.
func (f *Frame) Append(key, value string) *Frame {
	f.Headers = append(f.Headers, Header{Key: key, Value: value})
	return f
}

// SetBody replaces the frame's body.
func (f *Frame) SetBody(body []byte) *Frame {
	f.Body = body
	return f
}

// WithReceipt is a convenience that appends a "receipt" header.
func (f *Frame) WithReceipt(receiptID string) *Frame {
	return f.Append(HeaderReceipt, receiptID)
}

// Get returns the value of the first header matching name, case-sensitively.
func (f *Frame) Get(name string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == name {
			return h.Value, true
		}
	}
	return "", false
}

// GetCI returns the value of the first header matching name,
// case-insensitively. This is the lookup STOMP 1.2 mandates for
// content-length, heart-beat, destination, subscription, message-id, and
// receipt-id.
func (f *Frame) GetCI(name string) (string, bool) {
	for _, h := range f.Headers {
		if strings.EqualFold(h.Key, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Clone makes a deep copy suitable for fan-out to multiple subscribers.
func (f *Frame) Clone() *Frame {
	c := &Frame{Command: f.Command}
	if f.Headers != nil {
		c.Headers = make([]Header, len(f.Headers))
		copy(c.Headers, f.Headers)
	}
	if f.Body != nil {
		c.Body = make([]byte, len(f.Body))
		copy(c.Body, f.Body)
	}
	return c
}

// String renders the frame for diagnostics; it is not the wire format.
func (f *Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", f.Command)
	for _, h := range f.Headers {
		fmt.Fprintf(&b, " %s=%q", h.Key, h.Value)
	}
	if len(f.Body) > 0 {
		fmt.Fprintf(&b, " body=%d bytes", len(f.Body))
	}
	return b.String()
}
