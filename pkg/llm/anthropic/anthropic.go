package anthropic

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/kiranojhanp/ai-agents/pkg/llm"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
)

const DefaultMaxTokens = 4096

var _ llm.Provider = (*Provider)(nil)

type Provider struct {
	Client anthropic.Client
	Model  string

	MaxTokens int64
}

func New(client anthropic.Client, model string) *Provider {
	return &Provider{
		Client: client,
		Model:  model,

		MaxTokens: DefaultMaxTokens,
	}
}

func (p *Provider) Complete(ctx context.Context, messages []llm.Message, tools []tool.Tool) (*llm.Message, error) {
	resp, err := p.Client.Messages.New(ctx, p.params(messages, tools))

	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var calls []llm.ToolCall

	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)

		case anthropic.ToolUseBlock:
			calls = append(calls, llm.ToolCall{
				ID:   b.ID,
				Name: b.Name,
				Args: string(b.Input),
			})
		}
	}

	msg := llm.AssistantMessage(text.String(), calls...)

	return &msg, nil
}

func (p *Provider) Stream(ctx context.Context, messages []llm.Message, tools []tool.Tool) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		stream := p.Client.Messages.NewStreaming(ctx, p.params(messages, tools))
		defer stream.Close()

		for stream.Next() {
			var chunk llm.Chunk

			switch event := stream.Current().AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if event.ContentBlock.Type != "tool_use" {
					continue
				}

				chunk.ToolCalls = []llm.ToolCallDelta{{
					Index: int(event.Index),

					ID:   event.ContentBlock.ID,
					Name: event.ContentBlock.Name,
				}}

			case anthropic.ContentBlockDeltaEvent:
				switch delta := event.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					chunk.Content = delta.Text

				case anthropic.InputJSONDelta:
					chunk.ToolCalls = []llm.ToolCallDelta{{
						Index: int(event.Index),

						Args: delta.PartialJSON,
					}}

				default:
					continue
				}

			default:
				continue
			}

			if !yield(chunk, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield(llm.Chunk{}, err)
		}
	}
}

func (p *Provider) params(messages []llm.Message, tools []tool.Tool) anthropic.MessageNewParams {
	system, rest := llm.SplitSystem(messages)

	maxTokens := p.MaxTokens

	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.Model),
		MaxTokens: maxTokens,

		Messages: formatMessages(rest),
		Tools:    formatTools(tools),
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	return params
}

func formatTools(tools []tool.Tool) []anthropic.ToolUnionParam {
	var result []anthropic.ToolUnionParam

	for _, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Properties: t.Parameters()["properties"],
		}

		if t.Schema != nil {
			schema.Required = t.Schema.Required
		}

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),

				InputSchema: schema,
			},
		})
	}

	return result
}

// formatMessages maps the transcript to alternating user / assistant turns.
// Consecutive tool results are folded into a single user message, which is
// how the Messages API expects them.
func formatMessages(messages []llm.Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(results) == 0 {
			return
		}

		result = append(result, anthropic.NewUserMessage(results...))
		results = nil
	}

	for _, m := range messages {
		if m.Role == llm.RoleTool {
			isError := strings.HasPrefix(m.Content, "error: ")
			results = append(results, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isError))

			continue
		}

		flush()

		switch m.Role {
		case llm.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion

			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}

			for _, tc := range m.ToolCalls {
				args := json.RawMessage(tc.Args)

				if !json.Valid(args) {
					args = json.RawMessage("{}")
				}

				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}

			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	flush()

	return result
}
