package util

import (
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

// Truncate returns s in NFC form, cut to at most max characters. Invalid
// UTF-8 sequences are replaced before counting.
func Truncate(s string, max int) string {
	s = norm.NFC.String(strings.ToValidUTF8(s, "�"))
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
