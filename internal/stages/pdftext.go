package stages

import (
	"strings"
	"unicode"
)

// decodeContentText recovers readable text from a decoded PDF content
// stream by walking its text-showing operators (Tj, TJ, ', ").
// Positioning operators become line breaks. Fonts with custom CID
// encodings are skipped rather than emitted as garbage.
func decodeContentText(raw []byte) string {
	var (
		out     strings.Builder
		pending []string
	)

	flush := func(newline bool) {
		for _, s := range pending {
			out.WriteString(s)
		}
		pending = pending[:0]
		if newline {
			out.WriteByte('\n')
		}
	}

	i := 0
	for i < len(raw) {
		c := raw[i]
		switch {
		case c == '(':
			s, next := parseLiteralString(raw, i)
			pending = append(pending, s)
			i = next
		case c == '<' && i+1 < len(raw) && raw[i+1] != '<':
			s, next := parseHexString(raw, i)
			if s != "" {
				pending = append(pending, s)
			}
			i = next
		case c == '%':
			// Comment runs to end of line.
			for i < len(raw) && raw[i] != '\n' && raw[i] != '\r' {
				i++
			}
		case isRegularChar(c):
			start := i
			for i < len(raw) && isRegularChar(raw[i]) {
				i++
			}
			switch string(raw[start:i]) {
			case "Tj", "TJ":
				flush(false)
			case "'", "\"":
				out.WriteByte('\n')
				flush(false)
			case "Td", "TD", "T*":
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
				pending = pending[:0]
			case "ET":
				flush(true)
			}
		default:
			i++
		}
	}
	flush(false)

	return normalizeExtractedText(out.String())
}

// parseLiteralString decodes a PDF literal string starting at the
// opening parenthesis. Returns the decoded text and the index after
// the closing parenthesis.
func parseLiteralString(raw []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := start
	for i < len(raw) {
		c := raw[i]
		switch c {
		case '\\':
			if i+1 >= len(raw) {
				return sb.String(), i + 1
			}
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
				// Ignore.
			case '(', ')', '\\':
				sb.WriteByte(raw[i])
			case '\n', '\r':
				// Line continuation.
			default:
				// Octal escape \ddd.
				if raw[i] >= '0' && raw[i] <= '7' {
					val := 0
					for n := 0; n < 3 && i < len(raw) && raw[i] >= '0' && raw[i] <= '7'; n++ {
						val = val*8 + int(raw[i]-'0')
						i++
					}
					i--
					if val >= 32 && val < 127 {
						sb.WriteByte(byte(val))
					}
				} else {
					sb.WriteByte(raw[i])
				}
			}
			i++
		case '(':
			depth++
			if depth > 1 {
				sb.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// parseHexString decodes a PDF hex string starting at '<'. Output is
// kept only when it decodes to mostly printable text (plain Latin-1 or
// UTF-16BE); CID-encoded strings need font cmaps we do not carry.
func parseHexString(raw []byte, start int) (string, int) {
	i := start + 1
	var digits []byte
	for i < len(raw) && raw[i] != '>' {
		c := raw[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') {
			digits = append(digits, c)
		}
		i++
	}
	if i < len(raw) {
		i++ // consume '>'
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}

	bytesOut := make([]byte, 0, len(digits)/2)
	for j := 0; j+1 < len(digits); j += 2 {
		bytesOut = append(bytesOut, hexVal(digits[j])<<4|hexVal(digits[j+1]))
	}

	// UTF-16BE: even bytes are zero for Latin text.
	if len(bytesOut) >= 2 && len(bytesOut)%2 == 0 {
		zeros := 0
		for j := 0; j < len(bytesOut); j += 2 {
			if bytesOut[j] == 0 {
				zeros++
			}
		}
		if zeros == len(bytesOut)/2 {
			var sb strings.Builder
			for j := 1; j < len(bytesOut); j += 2 {
				sb.WriteByte(bytesOut[j])
			}
			if printableRatio(sb.String()) > 0.8 {
				return sb.String(), i
			}
			return "", i
		}
	}

	s := string(bytesOut)
	if printableRatio(s) > 0.8 {
		return s, i
	}
	return "", i
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func printableRatio(s string) float64 {
	if s == "" {
		return 0
	}
	printable := 0
	total := 0
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			printable++
		}
	}
	return float64(printable) / float64(total)
}

func isRegularChar(c byte) bool {
	switch c {
	case 0, 9, 10, 12, 13, 32, '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}

// normalizeExtractedText collapses runs of blank lines and trims
// trailing whitespace per line.
func normalizeExtractedText(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
