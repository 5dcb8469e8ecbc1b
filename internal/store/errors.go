package store

import "errors"

// Sentinel errors for store operations.
// These are part of the Store's public API and should be checked with
// errors.Is().
var (
	// ErrNotFound indicates the requested chat does not exist.
	ErrNotFound = errors.New("chat not found")

	// ErrPermissionDenied indicates the chat exists but belongs to a
	// different owner.
	ErrPermissionDenied = errors.New("chat not owned by caller")

	// ErrInvalidRole indicates a message role outside user/assistant.
	ErrInvalidRole = errors.New("invalid message role")
)
