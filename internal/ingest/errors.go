// Package ingest turns uploaded documents and web pages into indexed
// chunks. Extraction dispatches on file extension, extracted text is
// split into overlapping chunks, and writes into a session index are
// serialized by the session's ingestion lock.
package ingest

import "errors"

// Sentinel errors for ingestion.
// Only errors that are checked with errors.Is() are defined here.
var (
	// ErrUnsupportedFormat indicates the file extension has no extractor.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrDocumentTooLarge indicates the document exceeds the size cap.
	ErrDocumentTooLarge = errors.New("document too large")

	// ErrEmptyDocument indicates extraction produced no text.
	ErrEmptyDocument = errors.New("document contains no text")

	// ErrIngestionFailed indicates extraction or indexing failed.
	ErrIngestionFailed = errors.New("ingestion failed")
)
