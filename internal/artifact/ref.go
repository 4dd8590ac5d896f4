package artifact

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"

	"wager/internal/models"
)

var (
	ErrEmptyRef   = errors.New("artifact reference is empty")
	ErrInlineData = errors.New("artifact must be uploaded, not inlined")
	ErrBadRef     = errors.New("artifact reference is not a storage path or URL")
)

const maxRefLength = 512

var storagePathRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9/_.\-]*$`)

// Ref is a parsed proof location. Only storage paths can be scoped by a
// grant; legacy URLs are handed out unchanged.
type Ref struct {
	Kind  models.ProofRefKind
	Value string
}

func (r Ref) IsStoragePath() bool {
	return r.Kind == models.RefStoragePath
}

// ParseRef classifies raw once. Inline payloads are refused outright.
func ParseRef(raw string) (Ref, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Ref{}, ErrEmptyRef
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "data:") || strings.ContainsAny(trimmed, "\n\r ") || len(trimmed) > maxRefLength {
		return Ref{}, ErrInlineData
	}
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		parsed, err := url.Parse(trimmed)
		if err != nil || parsed.Host == "" {
			return Ref{}, ErrBadRef
		}
		return Ref{Kind: models.RefLegacyURL, Value: parsed.String()}, nil
	}
	if strings.Contains(trimmed, "://") {
		return Ref{}, ErrBadRef
	}
	cleaned := path.Clean(trimmed)
	if cleaned != trimmed || strings.HasPrefix(cleaned, "../") || cleaned == ".." || !storagePathRegex.MatchString(cleaned) {
		return Ref{}, ErrBadRef
	}
	return Ref{Kind: models.RefStoragePath, Value: cleaned}, nil
}
