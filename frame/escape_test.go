package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"plain",
		"with:colon",
		"with\\backslash",
		"with\nnewline",
		"with\rcarriage",
		"C:\\Users\\me\nnext",
		"\\\\\\r\\n::",
	}
	for _, c := range cases {
		got, err := unescapeHeader(escapeHeader(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}

func TestUnescapeRejectsTrailingBackslash(t *testing.T) {
	_, err := unescapeHeader("value\\")
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestUnescapeRejectsUnknownEscape(t *testing.T) {
	_, err := unescapeHeader("value\\x")
	require.Error(t, err)
	assert.True(t, IsProtocolError(err))
}

func TestEscapeOnlyTouchesSpecialCharacters(t *testing.T) {
	assert.Equal(t, "no-special-chars-here", escapeHeader("no-special-chars-here"))
}
