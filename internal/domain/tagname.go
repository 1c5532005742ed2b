package domain

import (
	"errors"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyTagName is returned when a tag name is blank after trimming.
var ErrEmptyTagName = errors.New("tag name is empty")

// NormalizeTagName returns the form tag uniqueness is decided on:
// surrounding whitespace trimmed, Unicode case-folded, then NFC-normalized.
//
// "  Go ", "GO" and "go" all normalize to "go"; "Straße" and "STRASSE"
// both normalize to "strasse".
func NormalizeTagName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyTagName
	}
	folded := cases.Fold().String(trimmed)
	return norm.NFC.String(folded), nil
}
