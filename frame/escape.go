package frame

import "strings"

// escapeHeader applies the STOMP 1.2 header escape table to header keys and
// values: backslash, CR, LF, and colon are escaped on the wire.
func escapeHeader(s string) string {
	if !strings.ContainsAny(s, "\\\r\n:") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		case ':':
			b.WriteString(`\c`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// unescapeHeader reverses escapeHeader. Any character following a lone
// backslash other than '\\', 'r', 'n', 'c' is a protocol error, as is a
// trailing backslash with nothing following it.
func unescapeHeader(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '\\' {
			b.WriteRune(r)
			continue
		}
		i++
		if i >= len(runes) {
			return "", newProtocolError("trailing escape character with no following character")
		}
		switch runes[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			return "", newProtocolError("invalid escape sequence \\%c", runes[i])
		}
	}
	return b.String(), nil
}
