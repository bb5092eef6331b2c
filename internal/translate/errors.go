package translate

import "errors"

var (
	ErrRateLimited     = errors.New("rate limited by translation gateway")
	ErrAuthFailed      = errors.New("translation gateway authentication failed")
	ErrUnsupportedLang = errors.New("target language not supported by gateway")
	ErrEmptyResult     = errors.New("translation gateway returned no text")
)
