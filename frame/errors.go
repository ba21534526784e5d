package frame

import "github.com/pkg/errors"

// ProtocolError marks any malformed-wire condition the decoder detects:
// bad header syntax, a bad escape sequence, an unparseable content-length,
// a missing NUL terminator after a sized body, or invalid UTF-8 in a
// command or header. It is always fatal to the connection that produced
// it; callers close the transport and reconnect.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "stomp: protocol error: " + e.msg }

func newProtocolError(format string, args ...interface{}) error {
	return &ProtocolError{msg: errors.Errorf(format, args...).Error()}
}

// IsProtocolError reports whether err is, or wraps, a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
