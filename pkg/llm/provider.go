package llm

import (
	"context"
	"iter"

	"github.com/kiranojhanp/ai-agents/pkg/tool"
)

// Provider is an LLM backend. Both methods receive the full transcript,
// including the leading system message, and the capability catalog.
type Provider interface {
	// Complete blocks until the whole assistant message is available.
	Complete(ctx context.Context, messages []Message, tools []tool.Tool) (*Message, error)

	// Stream yields the assistant message as chunks in arrival order. The
	// sequence is finite and can be consumed once; an error ends it.
	Stream(ctx context.Context, messages []Message, tools []tool.Tool) iter.Seq2[Chunk, error]
}

// SplitSystem separates leading system messages from the rest of the
// transcript. Most vendor APIs take the system prompt out of band.
func SplitSystem(messages []Message) (string, []Message) {
	var system string

	for i, m := range messages {
		if m.Role != RoleSystem {
			return system, messages[i:]
		}

		if system != "" {
			system += "\n\n"
		}

		system += m.Content
	}

	return system, nil
}
