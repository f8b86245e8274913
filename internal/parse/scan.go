package parse

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isNameStartByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c >= 0x80
}

func isNameByte(c byte) bool {
	return isNameStartByte(c) || isDigit(c) || c == '-'
}

// validEscape reports whether src[i:] starts a CSS escape.
func validEscape(src string, i int) bool {
	return i+1 < len(src) && src[i] == '\\' && src[i+1] != '\n' && src[i+1] != '\r' && src[i+1] != '\f'
}

// nameStartsAt reports whether an identifier starts at i.
func nameStartsAt(src string, i int) bool {
	if i >= len(src) {
		return false
	}
	c := src[i]
	switch {
	case isNameStartByte(c):
		return true
	case c == '\\':
		return validEscape(src, i)
	case c == '-':
		if i+1 >= len(src) {
			return false
		}
		n := src[i+1]
		return n == '-' || isNameStartByte(n) || validEscape(src, i+1)
	}
	return false
}

// scanName returns the end of the identifier starting at i.
func scanName(src string, i int) int {
	for i < len(src) {
		c := src[i]
		switch {
		case isNameByte(c):
			i++
		case validEscape(src, i):
			i = skipEscape(src, i)
		default:
			return i
		}
	}
	return i
}

// skipEscape returns the end of the escape sequence starting at the
// backslash at i.
func skipEscape(src string, i int) int {
	i++
	if i >= len(src) {
		return i
	}
	if isHex(src[i]) {
		n := 0
		for i < len(src) && n < 6 && isHex(src[i]) {
			i++
			n++
		}
		if i < len(src) && isSpace(src[i]) {
			if src[i] == '\r' && i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
			i++
		}
		return i
	}
	_, size := utf8.DecodeRuneInString(src[i:])
	return i + size
}

// skipComment returns the offset after the comment starting at i, and
// whether the comment was terminated.
func skipComment(src string, i int) (int, bool) {
	end := strings.Index(src[i+2:], "*/")
	if end < 0 {
		return len(src), false
	}
	return i + 2 + end + 2, true
}

// skipString returns the offset after the string starting at the quote at
// i. An unescaped newline ends a bad string. ok is false at EOF.
func skipString(src string, i int) (int, bool) {
	quote := src[i]
	i++
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return i + 1, true
		case c == '\\':
			if i+1 < len(src) {
				i += 2
				continue
			}
			i++
		case c == '\n':
			return i, true
		default:
			i++
		}
	}
	return i, false
}

// skipSpaceAndComments skips whitespace and comments.
func skipSpaceAndComments(src string, i int) int {
	for i < len(src) {
		switch {
		case isSpace(src[i]):
			i++
		case strings.HasPrefix(src[i:], "/*"):
			i, _ = skipComment(src, i)
		default:
			return i
		}
	}
	return i
}

// skipNumber returns the end of the numeric token starting at i, including
// a trailing unit or percent sign.
func skipNumber(src string, i int) int {
	for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
		i++
	}
	if i < len(src) && src[i] == '%' {
		return i + 1
	}
	return scanName(src, i)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// Unescape resolves CSS escapes in s: hex escapes become code points,
// an escaped newline is dropped, any other escaped character stands for
// itself.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			i++
			continue
		}
		n := s[i+1]
		switch {
		case n == '\n' || n == '\f':
			i += 2
		case n == '\r':
			i += 2
			if i < len(s) && s[i] == '\n' {
				i++
			}
		case isHex(n):
			j := i + 1
			for j < len(s) && j-i-1 < 6 && isHex(s[j]) {
				j++
			}
			v, _ := strconv.ParseUint(s[i+1:j], 16, 32)
			r := rune(v)
			if r == 0 || r > utf8.MaxRune || (r >= 0xD800 && r <= 0xDFFF) {
				r = utf8.RuneError
			}
			b.WriteRune(r)
			if j < len(s) && isSpace(s[j]) {
				j++
			}
			i = j
		default:
			_, size := utf8.DecodeRuneInString(s[i+1:])
			b.WriteString(s[i+1 : i+1+size])
			i += 1 + size
		}
	}
	return b.String()
}

// unquote strips matching quotes and resolves escapes.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	} else if len(s) >= 1 && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	return Unescape(s)
}
