package llm

import (
	"slices"
	"strings"
)

// Accumulator merges streamed chunks into one assistant message. Text is
// concatenated in arrival order; tool call fragments are merged by index,
// keeping the order in which each index first appeared.
type Accumulator struct {
	content strings.Builder

	calls []ToolCall
	index []int

	started bool
}

func (a *Accumulator) Add(chunk Chunk) {
	a.started = true

	a.content.WriteString(chunk.Content)

	for _, d := range chunk.ToolCalls {
		pos := slices.Index(a.index, d.Index)

		if pos < 0 {
			a.index = append(a.index, d.Index)
			a.calls = append(a.calls, ToolCall{})

			pos = len(a.calls) - 1
		}

		call := &a.calls[pos]

		if d.ID != "" {
			call.ID = d.ID
		}

		if d.Name != "" {
			call.Name = d.Name
		}

		call.Args += d.Args
	}
}

// Started reports whether at least one chunk has been added.
func (a *Accumulator) Started() bool {
	return a.started
}

func (a *Accumulator) Message() Message {
	return Message{
		Role:    RoleAssistant,
		Content: a.content.String(),

		ToolCalls: slices.Clone(a.calls),
	}
}
