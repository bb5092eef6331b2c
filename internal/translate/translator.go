package translate

import "context"

// Translator converts source text to a target language.
//
// Implementations are stateless from the caller's perspective: one call, one
// result or one error. Callers treat any error as final for the text they
// submitted; there is no retry contract.
type Translator interface {
	Translate(ctx context.Context, sourceText, targetLang string) (string, error)
}
