package validator

import (
	"errors"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidAccountID = errors.New("invalid account id")
	ErrInvalidText      = errors.New("invalid proposition text")
	ErrInvalidReason    = errors.New("invalid dispute reason")
	ErrInvalidMediaKind = errors.New("invalid media kind")
	ErrInvalidRole      = errors.New("invalid role")
)

const (
	maxTextLength   = 280
	maxReasonLength = 500
)

var (
	accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	roleRegex      = regexp.MustCompile(`^[a-z_]{3,30}$`)
)

var mediaKinds = map[string]bool{
	"image": true,
	"video": true,
}

func ValidateAccountID(id string) error {
	if !accountIDRegex.MatchString(id) {
		return ErrInvalidAccountID
	}
	return nil
}

func ValidatePropositionText(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxTextLength {
		return ErrInvalidText
	}
	return nil
}

func ValidateReason(reason string) error {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxReasonLength {
		return ErrInvalidReason
	}
	return nil
}

func ValidateMediaKind(kind string) error {
	if !mediaKinds[kind] {
		return ErrInvalidMediaKind
	}
	return nil
}

// ValidateRole accepts a well-formed role that is one of known.
func ValidateRole(role string, known []string) error {
	if !roleRegex.MatchString(role) || !slices.Contains(known, role) {
		return ErrInvalidRole
	}
	return nil
}
