package openai

import (
	"context"
	"iter"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"

	"github.com/kiranojhanp/ai-agents/pkg/llm"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
)

var _ llm.Provider = (*Provider)(nil)

type Provider struct {
	Client openai.Client
	Model  string
}

func New(client openai.Client, model string) *Provider {
	return &Provider{
		Client: client,
		Model:  model,
	}
}

func (p *Provider) Complete(ctx context.Context, messages []llm.Message, tools []tool.Tool) (*llm.Message, error) {
	resp, err := p.Client.Responses.New(ctx, p.params(messages, tools))

	if err != nil {
		return nil, err
	}

	msg := llm.AssistantMessage(resp.OutputText())

	for _, item := range resp.Output {
		if item.Type != "function_call" {
			continue
		}

		fc := item.AsFunctionCall()

		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:   fc.CallID,
			Name: fc.Name,
			Args: fc.Arguments,
		})
	}

	return &msg, nil
}

func (p *Provider) Stream(ctx context.Context, messages []llm.Message, tools []tool.Tool) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		stream := p.Client.Responses.NewStreaming(ctx, p.params(messages, tools))
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()

			var chunk llm.Chunk

			switch event.Type {
			case "response.output_text.delta":
				chunk.Content = event.Delta

			case "response.output_item.added":
				if event.Item.Type != "function_call" {
					continue
				}

				fc := event.Item.AsFunctionCall()

				chunk.ToolCalls = []llm.ToolCallDelta{{
					Index: int(event.OutputIndex),

					ID:   fc.CallID,
					Name: fc.Name,
					Args: fc.Arguments,
				}}

			case "response.function_call_arguments.delta":
				chunk.ToolCalls = []llm.ToolCallDelta{{
					Index: int(event.OutputIndex),

					Args: event.Delta,
				}}

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

func (p *Provider) params(messages []llm.Message, tools []tool.Tool) responses.ResponseNewParams {
	instructions, rest := llm.SplitSystem(messages)

	params := responses.ResponseNewParams{
		Model: p.Model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: formatMessages(rest)},
		Tools: formatTools(tools),
	}

	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	return params
}

func formatTools(tools []tool.Tool) []responses.ToolUnionParam {
	var result []responses.ToolUnionParam

	for _, t := range tools {
		param := responses.ToolParamOfFunction(t.Name, t.Parameters(), false)

		if param.OfFunction != nil && t.Description != "" {
			param.OfFunction.Description = openai.String(t.Description)
		}

		result = append(result, param)
	}

	return result
}

func formatMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	var result []responses.ResponseInputItemUnionParam

	for _, m := range messages {
		switch m.Role {
		case llm.RoleTool:
			result = append(result, responses.ResponseInputItemUnionParam{
				OfFunctionCallOutput: &responses.ResponseInputItemFunctionCallOutputParam{
					CallID: m.ToolCallID,
					Output: responses.ResponseInputItemFunctionCallOutputOutputUnionParam{
						OfString: openai.String(m.Content),
					},
				},
			})

		case llm.RoleAssistant:
			if m.Content != "" {
				result = append(result, textMessage(responses.EasyInputMessageRoleAssistant, m.Content))
			}

			for _, tc := range m.ToolCalls {
				args := tc.Args

				if args == "" {
					args = "{}"
				}

				result = append(result, responses.ResponseInputItemUnionParam{
					OfFunctionCall: &responses.ResponseFunctionToolCallParam{
						CallID:    tc.ID,
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}

		case llm.RoleSystem:
			result = append(result, textMessage(responses.EasyInputMessageRoleSystem, m.Content))

		default:
			result = append(result, textMessage(responses.EasyInputMessageRoleUser, m.Content))
		}
	}

	return result
}

func textMessage(role responses.EasyInputMessageRole, text string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemUnionParam{
		OfMessage: &responses.EasyInputMessageParam{
			Role:    role,
			Content: responses.EasyInputMessageContentUnionParam{OfString: openai.String(text)},
		},
	}
}
