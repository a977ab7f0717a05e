package chat

import "errors"

var (
	ErrSessionBusy        = errors.New("session is busy with another query")
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrSuggestionResolved = errors.New("suggestion has already been resolved")
	ErrNoSuggestion       = errors.New("message has no suggestion")
	ErrGenerationParse    = errors.New("could not parse generated edit")
	ErrTargetNotFound     = errors.New("suggested file not found")
)
