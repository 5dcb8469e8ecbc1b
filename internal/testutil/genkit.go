package testutil

import (
	"testing"

	"github.com/firebase/genkit/go/genkit"
)

// NewGenkit creates a plugin-free Genkit instance for tests. Models
// and embedders are registered explicitly via the mocks in this
// package, so no provider plugin or API key is needed.
func NewGenkit(t *testing.T) *genkit.Genkit {
	t.Helper()
	return genkit.Init(t.Context())
}
