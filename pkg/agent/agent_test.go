package agent

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/kiranojhanp/ai-agents/pkg/asana"
	"github.com/kiranojhanp/ai-agents/pkg/config"
	"github.com/kiranojhanp/ai-agents/pkg/llm"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
	"github.com/kiranojhanp/ai-agents/pkg/tool/task"
)

type round struct {
	msg    llm.Message
	chunks []llm.Chunk

	err error
}

// fakeProvider replays rounds in order and repeats the last one.
type fakeProvider struct {
	rounds []round

	calls int
	seen  []int
}

func (p *fakeProvider) next(messages []llm.Message) round {
	p.seen = append(p.seen, len(messages))

	i := min(p.calls, len(p.rounds)-1)
	p.calls++

	return p.rounds[i]
}

func (p *fakeProvider) Complete(ctx context.Context, messages []llm.Message, tools []tool.Tool) (*llm.Message, error) {
	r := p.next(messages)

	if r.err != nil {
		return nil, r.err
	}

	msg := r.msg

	return &msg, nil
}

func (p *fakeProvider) Stream(ctx context.Context, messages []llm.Message, tools []tool.Tool) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		r := p.next(messages)

		for _, c := range r.chunks {
			if !yield(c, nil) {
				return
			}
		}

		if r.err != nil {
			yield(llm.Chunk{}, r.err)
		}
	}
}

type fakeCreator struct {
	names []string

	err    error
	onCall func()
}

func (f *fakeCreator) CreateTask(ctx context.Context, t asana.TaskRequest) (*asana.Task, error) {
	f.names = append(f.names, t.Name)

	if f.onCall != nil {
		f.onCall()
	}

	if f.err != nil {
		return nil, f.err
	}

	data, _ := json.Marshal(map[string]any{"gid": "1", "name": t.Name, "due_on": t.DueOn})

	return &asana.Task{GID: "1", Name: t.Name, DueOn: t.DueOn, Data: data}, nil
}

func newAgent(t *testing.T, provider llm.Provider, creator task.Creator) *Agent {
	t.Helper()

	tools, err := tool.NewRegistry(task.Tools(creator, task.Options{
		Project: "p1",

		Now: func() time.Time {
			return time.Date(2024, 3, 7, 9, 0, 0, 0, time.Local)
		},
	})...)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return New(&config.Config{
		Provider: provider,

		Tools:        tools,
		Instructions: "You are a project manager.",

		MaxDepth: 5,
	})
}

func call(id, name string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: task.Name, Args: `{"task_name":"` + name + `","due_on":"today"}`}
}

func roles(messages []llm.Message) string {
	var result []string

	for _, m := range messages {
		result = append(result, string(m.Role))
	}

	return strings.Join(result, ",")
}

func TestCompleteWithoutToolCalls(t *testing.T) {
	provider := &fakeProvider{rounds: []round{{msg: llm.AssistantMessage("Hello!")}}}
	creator := &fakeCreator{}

	a := newAgent(t, provider, creator)

	msg, err := a.Complete(context.Background(), "hi")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Content != "Hello!" {
		t.Errorf("expected 'Hello!', got '%s'", msg.Content)
	}

	if provider.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.calls)
	}

	if len(creator.names) != 0 {
		t.Errorf("expected no task creation, got %v", creator.names)
	}

	if got := roles(a.Messages()); got != "system,user,assistant" {
		t.Errorf("unexpected transcript %s", got)
	}
}

func TestCompleteWithToolCalls(t *testing.T) {
	provider := &fakeProvider{rounds: []round{
		{msg: llm.AssistantMessage("", call("call_1", "A"), call("call_2", "B"))},
		{msg: llm.AssistantMessage("Created both tasks.")},
	}}

	creator := &fakeCreator{}

	a := newAgent(t, provider, creator)

	msg, err := a.Complete(context.Background(), "create A and B")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Content != "Created both tasks." {
		t.Errorf("unexpected reply '%s'", msg.Content)
	}

	if strings.Join(creator.names, ",") != "A,B" {
		t.Errorf("expected tasks A,B in order, got %v", creator.names)
	}

	messages := a.Messages()

	if got := roles(messages); got != "system,user,assistant,tool,tool,assistant" {
		t.Fatalf("unexpected transcript %s", got)
	}

	if messages[3].ToolCallID != "call_1" || messages[4].ToolCallID != "call_2" {
		t.Errorf("expected results for call_1, call_2, got %s, %s", messages[3].ToolCallID, messages[4].ToolCallID)
	}

	if !strings.Contains(messages[3].Content, `"name": "A"`) {
		t.Errorf("expected confirmation for A, got %q", messages[3].Content)
	}

	if len(provider.seen) != 2 || provider.seen[1] != 5 {
		t.Errorf("expected second round to see 5 messages, got %v", provider.seen)
	}
}

func TestCompleteRecursionLimit(t *testing.T) {
	provider := &fakeProvider{rounds: []round{
		{msg: llm.AssistantMessage("", call("call_1", "again"))},
	}}

	a := newAgent(t, provider, &fakeCreator{})

	_, err := a.Complete(context.Background(), "loop")

	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}

	if provider.calls != 6 {
		t.Errorf("expected 6 provider calls, got %d", provider.calls)
	}

	messages := a.Messages()

	if last := messages[len(messages)-1]; last.Role != llm.RoleTool {
		t.Errorf("expected transcript to end with a tool result, got %s", last.Role)
	}
}

func TestCompleteToolFailuresContinue(t *testing.T) {
	provider := &fakeProvider{rounds: []round{
		{msg: llm.AssistantMessage("", call("call_1", "A"), llm.ToolCall{ID: "call_2", Name: "delete_everything", Args: `{}`})},
		{msg: llm.AssistantMessage("Sorry, that failed.")},
	}}

	creator := &fakeCreator{err: &asana.APIError{StatusCode: 403, Messages: []string{"Forbidden"}}}

	a := newAgent(t, provider, creator)

	msg, err := a.Complete(context.Background(), "create A")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if msg.Content != "Sorry, that failed." {
		t.Errorf("unexpected reply '%s'", msg.Content)
	}

	messages := a.Messages()

	if !strings.HasPrefix(messages[3].Content, "error: ExternalApiError: ") {
		t.Errorf("expected external api error, got %q", messages[3].Content)
	}

	if !strings.HasPrefix(messages[4].Content, "error: UnknownCapability: ") {
		t.Errorf("expected unknown capability error, got %q", messages[4].Content)
	}
}

func TestCompleteProviderError(t *testing.T) {
	provider := &fakeProvider{rounds: []round{{err: errors.New("rate limited")}}}

	a := newAgent(t, provider, &fakeCreator{})

	if _, err := a.Complete(context.Background(), "hi"); err == nil || err.Error() != "rate limited" {
		t.Fatalf("expected provider error, got %v", err)
	}

	if got := roles(a.Messages()); got != "system,user" {
		t.Errorf("unexpected transcript %s", got)
	}
}

func TestCompleteCancelledDuringTools(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeProvider{rounds: []round{
		{msg: llm.AssistantMessage("", call("call_1", "A"), call("call_2", "B"))},
		{msg: llm.AssistantMessage("done")},
	}}

	creator := &fakeCreator{onCall: cancel}

	a := newAgent(t, provider, creator)

	if _, err := a.Complete(ctx, "create A and B"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(creator.names) != 1 {
		t.Errorf("expected 1 task creation, got %v", creator.names)
	}

	if got := roles(a.Messages()); got != "system,user" {
		t.Errorf("expected incomplete request to be dropped, got %s", got)
	}
}

func TestSend(t *testing.T) {
	provider := &fakeProvider{rounds: []round{
		{chunks: []llm.Chunk{
			{Content: "On it. "},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: task.Name}}},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, Args: `{"task_name":`}}},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, Args: `"A"}`}}},
		}},
		{chunks: []llm.Chunk{{Content: "Hel"}, {Content: "lo"}}},
	}}

	creator := &fakeCreator{}

	a := newAgent(t, provider, creator)

	var chunks []llm.Chunk

	for chunk, err := range a.Send(context.Background(), "create A") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		chunks = append(chunks, chunk)
	}

	if len(chunks) != 6 {
		t.Fatalf("expected 6 chunks, got %d", len(chunks))
	}

	if chunks[0].Content != "On it. " || chunks[4].Content != "Hel" || chunks[5].Content != "lo" {
		t.Errorf("expected chunks in arrival order, got %+v", chunks)
	}

	if len(creator.names) != 1 || creator.names[0] != "A" {
		t.Errorf("expected task A, got %v", creator.names)
	}

	messages := a.Messages()

	if got := roles(messages); got != "system,user,assistant,tool,assistant" {
		t.Fatalf("unexpected transcript %s", got)
	}

	if messages[2].Content != "On it. " || messages[2].ToolCalls[0].Args != `{"task_name":"A"}` {
		t.Errorf("unexpected accumulated request %+v", messages[2])
	}

	if messages[4].Content != "Hello" {
		t.Errorf("expected final reply 'Hello', got '%s'", messages[4].Content)
	}
}

func TestSendStop(t *testing.T) {
	provider := &fakeProvider{rounds: []round{
		{chunks: []llm.Chunk{
			{Content: "partial"},
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: task.Name, Args: `{"task_name":"A"}`}}},
		}},
	}}

	creator := &fakeCreator{}

	a := newAgent(t, provider, creator)

	for range a.Send(context.Background(), "create A") {
		break
	}

	if provider.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.calls)
	}

	if len(creator.names) != 0 {
		t.Errorf("expected no task creation, got %v", creator.names)
	}

	if got := roles(a.Messages()); got != "system,user" {
		t.Errorf("unexpected transcript %s", got)
	}
}

func TestSendRecursionLimit(t *testing.T) {
	provider := &fakeProvider{rounds: []round{
		{chunks: []llm.Chunk{
			{ToolCalls: []llm.ToolCallDelta{{Index: 0, ID: "call_1", Name: task.Name, Args: `{"task_name":"A"}`}}},
		}},
	}}

	a := newAgent(t, provider, &fakeCreator{})

	var last error

	for _, err := range a.Send(context.Background(), "loop") {
		if err != nil {
			last = err
		}
	}

	if !errors.Is(last, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", last)
	}

	if provider.calls != 6 {
		t.Errorf("expected 6 provider calls, got %d", provider.calls)
	}
}

func TestClear(t *testing.T) {
	provider := &fakeProvider{rounds: []round{{msg: llm.AssistantMessage("Hello!")}}}

	a := newAgent(t, provider, &fakeCreator{})

	session := a.Session()

	if _, err := a.Complete(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a.Clear()

	if a.Session() == session {
		t.Error("expected a new session id")
	}

	if got := roles(a.Messages()); got != "system" {
		t.Errorf("expected only the system message, got %s", got)
	}
}
