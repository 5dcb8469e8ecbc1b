// Package index provides the per-session embedding index capability.
//
// Each chat session owns one Handle: an embedding-backed similarity index
// persisted under a path deterministically derived from (owner, chat).
// The persisted artifacts survive process restart; reopening a Handle for
// the same key reattaches to the same content.
//
// The underlying store is chromem-go, an embedded vector database with
// filesystem persistence. Nearest-neighbor search and vector math are its
// concern, not this package's.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

// Chunk is a bounded text window scheduled for indexing.
type Chunk struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is a single similarity search hit.
type Result struct {
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// Handle wraps one session's persisted similarity index.
//
// Handle methods are safe for concurrent readers; concurrent Add calls for
// the same session must be serialized by the caller (the registry hands out
// a session lock for that purpose).
type Handle struct {
	db   *chromem.DB
	col  *chromem.Collection
	path string
}

// Open opens (creating if necessary) the index for (owner, chatID) under
// baseDir, using embed to turn text into vectors. Previously persisted
// content is immediately searchable.
func Open(baseDir, owner, chatID string, embed chromem.EmbeddingFunc) (*Handle, error) {
	path := ArtifactPath(baseDir, owner, chatID)
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening index at %s: %w", path, err)
	}

	col, err := db.GetOrCreateCollection(collectionName(owner, chatID), nil, embed)
	if err != nil {
		return nil, fmt.Errorf("opening collection for chat %s: %w", chatID, err)
	}

	return &Handle{db: db, col: col, path: path}, nil
}

// Add embeds and stores the given chunks.
func (h *Handle) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID:       c.ID,
			Content:  c.Content,
			Metadata: c.Metadata,
		})
	}

	if err := h.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding %d chunks: %w", len(chunks), err)
	}
	return nil
}

// Search returns up to k chunks nearest to query by embedding similarity.
// Returns fewer than k results when the index holds fewer chunks, and no
// error on an empty index.
func (h *Handle) Search(ctx context.Context, query string, k int) ([]Result, error) {
	count := h.col.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	hits, err := h.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Content:    hit.Content,
			Metadata:   hit.Metadata,
			Similarity: hit.Similarity,
		})
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (h *Handle) Count() int {
	return h.col.Count()
}

// Path returns the directory holding this index's persisted artifacts.
func (h *Handle) Path() string {
	return h.path
}

// ArtifactPath derives the persisted index location for (owner, chatID).
// The derivation is deterministic so a rebuilt handle reattaches to the
// same content.
func ArtifactPath(baseDir, owner, chatID string) string {
	return filepath.Join(baseDir, sanitizePathSegment(owner), sanitizePathSegment(chatID))
}

// RemoveArtifacts deletes the persisted index tree for (owner, chatID).
// Removing an absent tree is not an error.
func RemoveArtifacts(baseDir, owner, chatID string) error {
	path := ArtifactPath(baseDir, owner, chatID)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing index artifacts at %s: %w", path, err)
	}
	return nil
}

// collectionName builds the chromem collection name for a session.
func collectionName(owner, chatID string) string {
	return sanitizePathSegment(owner) + "_" + sanitizePathSegment(chatID)
}

// sanitizePathSegment maps an identifier onto a safe directory name.
// Anything outside [A-Za-z0-9._-] becomes '-', and path traversal names
// collapse to a single '-'.
func sanitizePathSegment(s string) string {
	if s == "" || s == "." || s == ".." {
		return "-"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return "-"
	}
	return out
}
