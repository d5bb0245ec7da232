package testutil

import (
	"encoding/hex"
	"strings"
	"testing"
)

// ParseHex decodes space separated hex bytes such as "48 83 ec 10".
func ParseHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.Join(strings.Fields(s), ""))
	if err != nil {
		t.Fatalf("bad hex %q: %v", s, err)
	}
	return b
}

// FormatHex is the inverse of ParseHex.
func FormatHex(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = hex.EncodeToString([]byte{c})
	}
	return strings.Join(parts, " ")
}

// ExpectBytes fails the test when got differs from the hex string want.
func ExpectBytes(t *testing.T, name string, got []byte, want string) {
	t.Helper()
	if g, w := FormatHex(got), FormatHex(ParseHex(t, want)); g != w {
		t.Fatalf("%s: bytes=%s, want %s", name, g, w)
	}
}
