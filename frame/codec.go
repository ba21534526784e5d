package frame

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ErrNeedMoreData signals that the buffer handed to Decoder.Decode does not
// yet contain a complete item. The caller should read more bytes from the
// transport, feed them in, and try again; the buffer is left untouched.
var ErrNeedMoreData = errors.New("frame: need more data")

// Decoder incrementally parses STOMP items (frames or heartbeats) from a
// byte stream. It tolerates arbitrary chunk boundaries: feeding bytes one
// at a time produces the same sequence of items as feeding them all at
// once.
type Decoder struct {
	buf []byte
	// afterNUL is set when the last decoded frame ended exactly at its NUL,
	// so an LF arriving next is that frame's optional trailing LF, not a
	// heartbeat.
	afterNUL bool
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends newly received bytes to the decoder's internal buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Decode attempts to decode exactly one item from the buffered bytes. On
// success it returns the item and advances past its bytes. If the buffer
// does not yet hold a complete item it returns ErrNeedMoreData and leaves
// the buffer unchanged, apart from dropping a previous frame's trailing LF
// that arrived in a later chunk. Any other error is protocol-fatal.
func (d *Decoder) Decode() (Item, error) {
	if d.afterNUL && len(d.buf) > 0 {
		d.afterNUL = false
		if d.buf[0] == '\n' {
			d.buf = d.buf[1:]
		}
	}
	item, consumed, err := decodeItem(d.buf)
	if err != nil {
		return Item{}, err
	}
	d.afterNUL = item.Frame != nil && d.buf[consumed-1] == 0
	d.buf = d.buf[consumed:]
	return item, nil
}

// ReadFrom pulls bytes from r into the decoder until at least one item can
// be decoded, or r returns an error. It is a convenience for callers
// reading from a blocking stream (net.Conn) rather than feeding discrete
// chunks by hand.
func (d *Decoder) ReadFrom(r io.Reader) (Item, error) {
	for {
		item, err := d.Decode()
		if err == nil {
			return item, nil
		}
		if err != ErrNeedMoreData {
			return Item{}, err
		}
		var chunk [4096]byte
		n, rerr := r.Read(chunk[:])
		if n > 0 {
			d.Feed(chunk[:n])
		}
		if rerr != nil {
			// Give decode one more chance in case the final read completed
			// a pending item before the error (e.g. EOF after the NUL).
			if item, derr := d.Decode(); derr == nil {
				return item, nil
			}
			return Item{}, rerr
		}
	}
}

// decodeItem is the pure decode function: given all currently buffered
// bytes, it returns the decoded item and how many bytes it consumed, or
// ErrNeedMoreData with consumed == 0.
func decodeItem(buf []byte) (Item, int, error) {
	if len(buf) == 0 {
		return Item{}, 0, ErrNeedMoreData
	}

	// Heartbeat fast path: a leading LF at a frame boundary.
	if buf[0] == '\n' {
		return HeartbeatItem(), 1, nil
	}

	// A leading NUL at a frame boundary is an empty frame: zero bytes
	// before the terminating NUL, with no command line at all. Reject it
	// outright rather than waiting for an LF that an empty frame never
	// sends, which would otherwise stall on ErrNeedMoreData forever.
	if buf[0] == 0 {
		return Item{}, 0, newProtocolError("empty frame")
	}

	idx := bytes.IndexByte(buf, '\n')
	if idx == -1 {
		return Item{}, 0, ErrNeedMoreData
	}
	cmdLine := buf[:idx]
	if len(cmdLine) > 0 && cmdLine[len(cmdLine)-1] == '\r' {
		cmdLine = cmdLine[:len(cmdLine)-1]
	}
	if len(cmdLine) == 0 {
		return Item{}, 0, newProtocolError("empty command")
	}
	if !utf8.Valid(cmdLine) {
		return Item{}, 0, newProtocolError("invalid utf-8 in command")
	}
	command := string(cmdLine)
	pos := idx + 1

	var headers []Header
	for {
		if pos >= len(buf) {
			return Item{}, 0, ErrNeedMoreData
		}
		if buf[pos] == '\n' {
			pos++
			break
		}
		rel := bytes.IndexByte(buf[pos:], '\n')
		if rel == -1 {
			return Item{}, 0, ErrNeedMoreData
		}
		line := buf[pos : pos+rel]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			return Item{}, 0, newProtocolError("header line missing ':': %q", line)
		}
		keyRaw, valRaw := line[:colon], line[colon+1:]
		if !utf8.Valid(keyRaw) || !utf8.Valid(valRaw) {
			return Item{}, 0, newProtocolError("invalid utf-8 in header")
		}
		key, err := unescapeHeader(string(keyRaw))
		if err != nil {
			return Item{}, 0, err
		}
		val, err := unescapeHeader(string(valRaw))
		if err != nil {
			return Item{}, 0, err
		}
		headers = append(headers, Header{Key: key, Value: val})
		pos += rel + 1
	}

	var body []byte
	if clText, ok := lookupCI(headers, HeaderContentLength); ok {
		n, err := parseContentLength(clText)
		if err != nil {
			return Item{}, 0, err
		}
		if pos+n+1 > len(buf) {
			return Item{}, 0, ErrNeedMoreData
		}
		body = buf[pos : pos+n]
		pos += n
		if buf[pos] != 0 {
			return Item{}, 0, newProtocolError("missing NUL terminator after content-length body")
		}
		pos++
	} else {
		rel := bytes.IndexByte(buf[pos:], 0)
		if rel == -1 {
			return Item{}, 0, ErrNeedMoreData
		}
		body = buf[pos : pos+rel]
		pos += rel + 1
	}

	// Optional trailing LF: frame boundary whitespace, not a heartbeat.
	if pos < len(buf) && buf[pos] == '\n' {
		pos++
	}

	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	f := &Frame{Command: command, Headers: headers, Body: bodyCopy}
	return FrameItem(f), pos, nil
}

func lookupCI(headers []Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Key, name) {
			return h.Value, true
		}
	}
	return "", false
}

func parseContentLength(s string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 63)
	if err != nil {
		return 0, newProtocolError("invalid content-length %q", s)
	}
	return int(n), nil
}

// Encode renders item as wire bytes: a single LF for a heartbeat, or the
// command line, escaped headers, blank line, body, and NUL terminator for
// a frame. A content-length header is synthesized when the body contains a
// NUL byte or is not valid UTF-8 and the frame did not already specify one.
func Encode(item Item) ([]byte, error) {
	if item.Heartbeat {
		return []byte{'\n'}, nil
	}
	f := item.Frame
	if f == nil {
		return nil, errors.New("frame: empty item has neither frame nor heartbeat")
	}

	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	headers := f.Headers
	if _, ok := lookupCI(headers, HeaderContentLength); !ok {
		if bytes.IndexByte(f.Body, 0) >= 0 || !utf8.Valid(f.Body) {
			headers = append(append([]Header(nil), headers...), Header{
				Key:   HeaderContentLength,
				Value: strconv.Itoa(len(f.Body)),
			})
		}
	}

	for _, h := range headers {
		buf.WriteString(escapeHeader(h.Key))
		buf.WriteByte(':')
		buf.WriteString(escapeHeader(h.Value))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)

	return buf.Bytes(), nil
}

// Encoder writes successive items to an io.Writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write encodes item and writes it in full.
func (e *Encoder) Write(item Item) error {
	b, err := Encode(item)
	if err != nil {
		return err
	}
	_, err = e.w.Write(b)
	return errors.Wrap(err, "frame: write")
}
