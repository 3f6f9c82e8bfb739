// Package ident normalizes participant and session identifiers before they
// reach the balancer.
//
// Identifiers arrive from survey platforms as query parameters or JSON
// fields. Two byte sequences that render identically (composed vs decomposed
// accents, stray whitespace) must address the same assignment row, so every
// identifier is trimmed and converted to Unicode NFC.
package ident

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest accepted identifier, in bytes after normalization.
const MaxLength = 256

// ErrInvalid is returned for empty, oversized, or control-character identifiers.
var ErrInvalid = errors.New("invalid identifier")

// Normalize trims and NFC-normalizes raw. field names the identifier in
// error messages ("participant", "session").
func Normalize(field, raw string) (string, error) {
	s := norm.NFC.String(strings.TrimSpace(raw))
	if s == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalid, field)
	}
	if len(s) > MaxLength {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalid, field, MaxLength)
	}
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %s contains control characters", ErrInvalid, field)
	}
	return s, nil
}

// Pair normalizes a participant and session identifier together.
func Pair(participant, session string) (string, string, error) {
	p, err := Normalize("participant", participant)
	if err != nil {
		return "", "", err
	}
	s, err := Normalize("session", session)
	if err != nil {
		return "", "", err
	}
	return p, s, nil
}
