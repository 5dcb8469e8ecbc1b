// Package chat runs retrieval-augmented conversation turns. A turn
// persists the user message, retrieves relevant passages from the
// session index, streams the model reply chunk by chunk, and persists
// the completed reply.
package chat

import "errors"

// Sentinel errors for turn execution.
// Only errors that are checked with errors.Is() are defined here.
var (
	// ErrRetrievalFailed indicates the session index could not be
	// queried for grounding passages.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrGenerationFailed indicates the model call failed or the
	// stream broke before completion.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrEmptyQuery indicates the turn carried no message text.
	ErrEmptyQuery = errors.New("empty query")
)
