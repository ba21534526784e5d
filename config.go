// Package stomp is a STOMP 1.2 client: a connection manager that owns a
// single transport and multiplexes it across publishes, subscriptions,
// transactions, receipts, and acknowledgements, surviving reconnects.
package stomp

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Version is the STOMP protocol version this client speaks.
const Version = "1.2"

// AckMode is a subscription's acknowledgement policy.
type AckMode string

const (
	// AckAuto means the server considers a message delivered as soon as
	// it is sent; the client must not ack.
	AckAuto AckMode = "auto"
	// AckClient is cumulative: acknowledging message M acknowledges every
	// message delivered before it on the same subscription.
	AckClient AckMode = "client"
	// AckClientIndividual acknowledges exactly the named message.
	AckClientIndividual AckMode = "client-individual"
)

// HeartbeatSpec is the client's desired "cx,cy" heart-beat configuration in
// milliseconds: cx is how often the client will send, cy is how often it
// expects to receive. Either may be zero to disable that direction.
type HeartbeatSpec struct {
	Send    time.Duration
	Receive time.Duration
}

// String renders the spec in STOMP wire form, e.g. "10000,10000".
func (h HeartbeatSpec) String() string {
	return fmt.Sprintf("%d,%d", h.Send.Milliseconds(), h.Receive.Milliseconds())
}

// ParseHeartbeatSpec parses a "cx,cy" wire value into a HeartbeatSpec.
func ParseHeartbeatSpec(s string) (HeartbeatSpec, error) {
	var cx, cy int64
	if _, err := fmt.Sscanf(s, "%d,%d", &cx, &cy); err != nil {
		return HeartbeatSpec{}, fmt.Errorf("stomp: malformed heart-beat header %q: %w", s, err)
	}
	if cx < 0 || cy < 0 {
		return HeartbeatSpec{}, fmt.Errorf("stomp: negative heart-beat value in %q", s)
	}
	return HeartbeatSpec{
		Send:    time.Duration(cx) * time.Millisecond,
		Receive: time.Duration(cy) * time.Millisecond,
	}, nil
}

// reservedConnectHeaders names the CONNECT headers the manager always sets
// itself; caller-supplied extra headers with these names are dropped.
var reservedConnectHeaders = map[string]struct{}{
	"accept-version": {},
	"host":           {},
	"login":          {},
	"passcode":       {},
	"heart-beat":     {},
	"client-id":      {},
}

// ConnectOptions configures a Connect call beyond the basics of address,
// credentials, and heartbeat spec.
type ConnectOptions struct {
	// AcceptVersion overrides the advertised "accept-version" header.
	// Defaults to Version.
	AcceptVersion string

	// ClientID, when non-empty, is sent as the "client-id" header.
	ClientID string

	// HostVHost overrides the "host" header (the STOMP virtual host).
	// Defaults to "/".
	HostVHost string

	// ExtraHeaders are appended to the CONNECT frame. Any entry whose
	// name collides with a reserved CONNECT header is silently dropped.
	ExtraHeaders []frameHeader

	// HeartbeatNotify, if non-nil, receives a value every time the
	// manager has written a heartbeat pulse on the wire.
	HeartbeatNotify chan<- struct{}

	// Dial overrides the dial function used to establish the transport.
	// Defaults to net.Dial.
	Dial func(network, address string) (net.Conn, error)

	// TLSConfig, when non-nil, upgrades the dialed connection with
	// tls.Client. TLS negotiation policy itself is the caller's concern;
	// this library only performs the handshake.
	TLSConfig *tls.Config

	// TLSHandshakeTimeout bounds the TLS handshake when TLSConfig is set.
	// Zero means no timeout.
	TLSHandshakeTimeout time.Duration

	// Logger receives structured log events from the connection manager
	// (read/write failures, failed or rejected reconnects, heartbeat
	// watchdog trips).
	// Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

// frameHeader is a (name, value) pair mirroring frame.Header, kept as a
// distinct type here so config.go does not need to import the frame
// package just for this field; conn.go converts between the two.
type frameHeader struct {
	Name  string
	Value string
}

func (o *ConnectOptions) withDefaults() *ConnectOptions {
	out := ConnectOptions{}
	if o != nil {
		out = *o
	}
	if out.AcceptVersion == "" {
		out.AcceptVersion = Version
	}
	if out.HostVHost == "" {
		out.HostVHost = "/"
	}
	if out.Dial == nil {
		out.Dial = net.Dial
	}
	if out.Logger == nil {
		out.Logger = logrus.StandardLogger()
	}
	return &out
}

// SubscribeOptions configures SubscribeWithOptions.
type SubscribeOptions struct {
	// DurableQueue, when set, replaces the destination on the wire
	// SUBSCRIBE frame (and on resubscribe after reconnect), while the
	// Subscription's caller-visible Destination() remains the originally
	// requested one.
	DurableQueue string

	// Headers are forwarded on the SUBSCRIBE frame and persisted for
	// replay on reconnect.
	Headers []frameHeader
}
