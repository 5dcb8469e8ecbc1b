package chat

import (
	"strings"

	"github.com/msalmanai62/rag-bot/internal/index"
)

const promptPreamble = `You are a helpful assistant. Answer the question using the context below. If the context does not contain the answer, say so instead of guessing.`

// BuildPrompt assembles the retrieval-augmented prompt for one turn.
// It is a pure function of the query and the retrieved passages so
// context assembly can be tested without any model wiring. Passages
// are included in retrieval order; an empty slice produces a prompt
// with no context block.
func BuildPrompt(query string, passages []index.Result) string {
	var b strings.Builder
	b.WriteString(promptPreamble)

	if len(passages) > 0 {
		b.WriteString("\n\nContext:\n")
		for i, p := range passages {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			b.WriteString(p.Content)
		}
	}

	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return b.String()
}
