package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, chunks [][]byte) []Item {
	t.Helper()
	d := NewDecoder()
	var items []Item
	for _, c := range chunks {
		d.Feed(c)
		for {
			item, err := d.Decode()
			if err == ErrNeedMoreData {
				break
			}
			require.NoError(t, err)
			items = append(items, item)
		}
	}
	return items
}

// Scenario 1 from spec §8: minimal SEND encodes to literal wire bytes.
func TestEncodeMinimalSend(t *testing.T) {
	f := New(CmdSend).Append(HeaderDestination, "/q/a").SetBody([]byte("hi"))
	b, err := Encode(FrameItem(f))
	require.NoError(t, err)
	assert.Equal(t, "SEND\ndestination:/q/a\n\nhi\x00", string(b))
}

// Scenario 2: a binary body forces a synthesized content-length header.
func TestEncodeBinaryBodyForcesContentLength(t *testing.T) {
	f := New(CmdSend).Append(HeaderDestination, "/q/a").SetBody([]byte{0x00, 0x01, 0x02})
	b, err := Encode(FrameItem(f))
	require.NoError(t, err)
	assert.Contains(t, string(b), "content-length:3\n")
	assert.True(t, bytes.HasSuffix(b, append([]byte{0x00, 0x01, 0x02}, 0)))
}

// Scenario 3: escape round-trip of a header value containing backslash,
// colon and newline.
func TestEscapeRoundTrip(t *testing.T) {
	f := New(CmdSend).Append(HeaderDestination, "/q/a").Append("path", "C:\\Users\\me\nnext")
	b, err := Encode(FrameItem(f))
	require.NoError(t, err)
	assert.Contains(t, string(b), `path:C\c\\Users\\me\nnext`)

	d := NewDecoder()
	d.Feed(b)
	item, err := d.Decode()
	require.NoError(t, err)
	v, ok := item.Frame.Get("path")
	require.True(t, ok)
	assert.Equal(t, "C:\\Users\\me\nnext", v)
}

// Scenario 4: heartbeats interleaved with frames decode to the expected
// item sequence.
func TestDecodeHeartbeatInterleave(t *testing.T) {
	wire := []byte("\nSEND\n\nhi\x00\n\nMESSAGE\nmessage-id:1\n\nbody\x00\n\n")
	items := decodeAll(t, [][]byte{wire})

	require.Len(t, items, 5)
	assert.True(t, items[0].IsHeartbeat())
	assert.Equal(t, CmdSend, items[1].Frame.Command)
	assert.True(t, items[2].IsHeartbeat())
	assert.Equal(t, CmdMessage, items[3].Frame.Command)
	assert.True(t, items[4].IsHeartbeat())
}

// Chunk independence: feeding one byte at a time produces the same
// sequence as feeding the whole message at once.
func TestChunkIndependence(t *testing.T) {
	wire := []byte("\nSEND\ndestination:/q/a\ncontent-length:5\n\nhello\x00\nCONNECTED\nheart-beat:0,0\n\n\x00\n")

	whole := decodeAll(t, [][]byte{wire})

	byteAtATime := make([][]byte, len(wire))
	for i, b := range wire {
		byteAtATime[i] = []byte{b}
	}
	oneAtATime := decodeAll(t, byteAtATime)

	windowed := make([][]byte, 0)
	for i := 0; i < len(wire); i += 3 {
		end := i + 3
		if end > len(wire) {
			end = len(wire)
		}
		windowed = append(windowed, wire[i:end])
	}
	inWindows := decodeAll(t, windowed)

	require.Equal(t, len(whole), len(oneAtATime))
	require.Equal(t, len(whole), len(inWindows))
	for i := range whole {
		assertItemsEqual(t, whole[i], oneAtATime[i])
		assertItemsEqual(t, whole[i], inWindows[i])
	}
}

func assertItemsEqual(t *testing.T, a, b Item) {
	t.Helper()
	require.Equal(t, a.IsHeartbeat(), b.IsHeartbeat())
	if a.IsHeartbeat() {
		return
	}
	assert.Equal(t, a.Frame.Command, b.Frame.Command)
	assert.Equal(t, a.Frame.Headers, b.Frame.Headers)
	assert.Equal(t, a.Frame.Body, b.Frame.Body)
}

func TestContentLengthZeroIsValid(t *testing.T) {
	wire := []byte("SEND\ndestination:/q/a\ncontent-length:0\n\n\x00")
	items := decodeAll(t, [][]byte{wire})
	require.Len(t, items, 1)
	assert.Equal(t, []byte{}, items[0].Frame.Body)
}

func TestDuplicateHeadersPreservedLookupFirst(t *testing.T) {
	wire := []byte("MESSAGE\nfoo:1\nfoo:2\nmessage-id:1\n\nbody\x00")
	items := decodeAll(t, [][]byte{wire})
	require.Len(t, items, 1)
	require.Len(t, items[0].Frame.Headers, 3)
	v, ok := items[0].Frame.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestEmptyCommandIsError(t *testing.T) {
	// A lone CR before the first LF does not trip the heartbeat fast path
	// (that only fires on a leading LF); after stripping the CR the
	// command line is empty, which is a protocol error.
	wire := []byte("\r\ndestination:/q/a\n\nhi\x00")
	d := NewDecoder()
	d.Feed(wire)
	_, err := d.Decode()
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestEmptyFrameLeadingNulIsError(t *testing.T) {
	// A leading NUL at a frame boundary (no command line at all) is an
	// empty frame, not an incomplete one; it must not stall on
	// ErrNeedMoreData waiting for an LF that will never arrive.
	d := NewDecoder()
	d.Feed([]byte{0})
	_, err := d.Decode()
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestBadContentLengthIsError(t *testing.T) {
	wire := []byte("SEND\ndestination:/q/a\ncontent-length:nope\n\nhi\x00")
	d := NewDecoder()
	d.Feed(wire)
	_, err := d.Decode()
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestMissingColonInHeaderIsError(t *testing.T) {
	wire := []byte("SEND\nbadheader\n\nhi\x00")
	d := NewDecoder()
	d.Feed(wire)
	_, err := d.Decode()
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestMissingNulAfterContentLengthIsError(t *testing.T) {
	wire := []byte("SEND\ndestination:/q/a\ncontent-length:5\n\nhelloX")
	d := NewDecoder()
	d.Feed(wire)
	_, err := d.Decode()
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestNeedMoreDataLeavesBufferUntouched(t *testing.T) {
	d := NewDecoder()
	d.Feed([]byte("SEND\ndestination:/q/a\n\npart"))
	_, err := d.Decode()
	require.Equal(t, ErrNeedMoreData, err)

	d.Feed([]byte("ial\x00"))
	item, err := d.Decode()
	require.NoError(t, err)
	assert.Equal(t, "partial", string(item.Frame.Body))
}

func TestFrameRoundTrip(t *testing.T) {
	f := New(CmdSend).
		Append(HeaderDestination, "/q/a").
		Append("custom", "value").
		SetBody([]byte("payload"))

	b, err := Encode(FrameItem(f))
	require.NoError(t, err)

	d := NewDecoder()
	d.Feed(b)
	item, err := d.Decode()
	require.NoError(t, err)

	assert.Equal(t, f.Command, item.Frame.Command)
	assert.Equal(t, f.Headers, item.Frame.Headers)
	assert.Equal(t, f.Body, item.Frame.Body)
}
