package llm

type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

type Message struct {
	Role MessageRole

	Content string

	// set on assistant messages that request capabilities
	ToolCalls []ToolCall

	// set on tool messages, the id of the request being answered
	ToolCallID string
}

type ToolCall struct {
	ID string

	Name string
	Args string
}

// Chunk is one incremental fragment of a streamed assistant message.
type Chunk struct {
	Content string

	ToolCalls []ToolCallDelta
}

// ToolCallDelta is a partial tool call. Fragments sharing an Index belong
// to the same call: ID and Name usually arrive first, Args in pieces.
type ToolCallDelta struct {
	Index int

	ID   string
	Name string
	Args string
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

func ToolMessage(id, content string) Message {
	return Message{Role: RoleTool, ToolCallID: id, Content: content}
}
