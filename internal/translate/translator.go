package translate

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the translation provider cannot be
// reached or returns malformed output. Callers decide the fallback policy;
// the conversation pipeline treats it as fatal for the turn.
var ErrUnavailable = errors.New("translation provider unavailable")

// Translator detects languages and translates text between them.
// Language tags are ISO-639 codes ("en", "fr", ...).
type Translator interface {
	// Detect returns the ISO-639 tag of the text's language.
	Detect(ctx context.Context, text string) (string, error)

	// Translate returns text rendered in the target language. When the
	// text is already in the target language it is returned unchanged,
	// without a provider round-trip.
	Translate(ctx context.Context, text, target string) (string, error)
}
