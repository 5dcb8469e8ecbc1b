package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/msalmanai62/rag-bot/internal/index"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		passages []index.Result
		contains []string
		excludes []string
	}{
		{
			name:     "no passages omits context block",
			query:    "what is the capital of France?",
			passages: nil,
			contains: []string{"Question: what is the capital of France?"},
			excludes: []string{"Context:"},
		},
		{
			name:  "single passage",
			query: "how do I reset it?",
			passages: []index.Result{
				{Content: "Hold the button for ten seconds to reset."},
			},
			contains: []string{
				"Context:",
				"Hold the button for ten seconds to reset.",
				"Question: how do I reset it?",
			},
		},
		{
			name:  "multiple passages separated",
			query: "q",
			passages: []index.Result{
				{Content: "first passage"},
				{Content: "second passage"},
			},
			contains: []string{"first passage\n---\nsecond passage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPrompt(tt.query, tt.passages)
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, bad := range tt.excludes {
				assert.NotContains(t, got, bad)
			}
		})
	}
}

func TestBuildPromptPreservesPassageOrder(t *testing.T) {
	passages := []index.Result{
		{Content: "AAA"},
		{Content: "BBB"},
		{Content: "CCC"},
	}
	got := BuildPrompt("q", passages)

	posA := strings.Index(got, "AAA")
	posB := strings.Index(got, "BBB")
	posC := strings.Index(got, "CCC")
	assert.True(t, posA < posB && posB < posC, "passages must appear in retrieval order")
}
