package stomp

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
)

// dial establishes the raw stream transport for one connect/reconnect
// attempt, performing the TLS handshake when opts.TLSConfig is set. This
// mirrors the teacher's Transport dial-then-maybe-TLS-handshake sequence,
// generalized to take its settings from ConnectOptions instead of a
// package-level TransportConfig.
func dial(address string, opts *ConnectOptions) (net.Conn, error) {
	conn, err := opts.Dial("tcp", address)
	if err != nil {
		return nil, newTransportError("dial", err)
	}

	if opts.TLSConfig == nil {
		return conn, nil
	}

	tlsConn := tls.Client(conn, opts.TLSConfig)
	errc := make(chan error, 2)
	var timer *time.Timer
	if opts.TLSHandshakeTimeout > 0 {
		timer = time.AfterFunc(opts.TLSHandshakeTimeout, func() {
			errc <- errors.New("tls handshake timed out")
		})
	}
	go func() {
		err := tlsConn.Handshake()
		if timer != nil {
			timer.Stop()
		}
		errc <- err
	}()
	if err := <-errc; err != nil {
		conn.Close()
		return nil, newTransportError("tls handshake", err)
	}
	return tlsConn, nil
}
