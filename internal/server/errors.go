package server

import "errors"

// asSuggester walks the error chain looking for a Suggestion() carrier.
func asSuggester(err error, out *suggester) bool {
	for err != nil {
		if s, ok := err.(suggester); ok {
			*out = s
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
