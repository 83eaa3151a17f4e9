package service

import (
	"crypto/rand"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const passcodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Normalize lowercases the input, strips diacritics (NFD decomposition plus
// combining-mark removal) and drops every character outside [a-z0-9].
// Normalize(Normalize(s)) == Normalize(s) for any input.
func Normalize(text string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), text)
	if err != nil {
		stripped = text
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GenerateEmail derives the institutional address for a student. Collisions
// are not detected here; they surface as EMAIL_IN_USE at account creation.
func GenerateEmail(firstName, lastName string, year int, domain string) string {
	return fmt.Sprintf("%s.%s%d@%s", Normalize(firstName), Normalize(lastName), year, domain)
}

// GeneratePasscode returns an uppercase base36 token of the given length
// from crypto/rand. Bytes at or above the largest multiple of the alphabet
// size are discarded so every character is equally likely. The token doubles
// as the initial account secret and the passcode persisted on the profile
// for distribution.
func GeneratePasscode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}
	limit := byte(256 - 256%len(passcodeAlphabet))
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate passcode: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, passcodeAlphabet[int(b)%len(passcodeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
