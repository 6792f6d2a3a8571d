package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/kiranojhanp/ai-agents/pkg/config"
	"github.com/kiranojhanp/ai-agents/pkg/ledger"
	"github.com/kiranojhanp/ai-agents/pkg/llm"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
)

// ErrRecursionLimit ends a turn in which the model kept requesting tools
// past the configured depth.
var ErrRecursionLimit = errors.New("recursion limit exceeded: model is tool calling too much")

var errYieldStopped = errors.New("yield stopped")

// Agent drives one chat session. It owns the transcript and must not be
// used by more than one turn at a time.
type Agent struct {
	*config.Config

	session  string
	messages []llm.Message
}

func New(cfg *config.Config) *Agent {
	a := &Agent{
		Config: cfg,
	}

	a.Clear()

	return a
}

// Session returns the id of the current session.
func (a *Agent) Session() string {
	return a.session
}

// Messages returns a copy of the transcript.
func (a *Agent) Messages() []llm.Message {
	return slices.Clone(a.messages)
}

// Clear starts a new session with a fresh transcript.
func (a *Agent) Clear() {
	a.session = uuid.NewString()
	a.messages = nil

	if a.Instructions != "" {
		a.messages = append(a.messages, llm.SystemMessage(a.Instructions))
	}
}

// Complete runs one blocking turn and returns the final assistant message,
// which is also appended to the transcript.
func (a *Agent) Complete(ctx context.Context, input string) (*llm.Message, error) {
	mark := len(a.messages)

	a.messages = append(a.messages, llm.UserMessage(input))

	msg, err := a.Respond(ctx, 0)

	if err != nil {
		a.repair(mark)
		a.logger().Error("turn failed", "session", a.session, "error", err)

		return nil, err
	}

	a.messages = append(a.messages, *msg)

	return msg, nil
}

// Respond asks the model for the next assistant message given the current
// transcript. Tool requests are executed and answered in order and the
// model is asked again, until it replies without requests or the depth
// limit is exceeded. The final message is returned, not appended.
func (a *Agent) Respond(ctx context.Context, depth int) (*llm.Message, error) {
	for ; ; depth++ {
		if err := a.checkDepth(depth); err != nil {
			return nil, err
		}

		msg, err := a.Provider.Complete(ctx, a.messages, a.Tools.List())

		if err != nil {
			return nil, err
		}

		msg.Role = llm.RoleAssistant

		if len(msg.ToolCalls) == 0 {
			return msg, nil
		}

		if err := a.processToolCalls(ctx, *msg); err != nil {
			return nil, err
		}
	}
}

// Send runs one streaming turn. Every chunk from the model is yielded as it
// arrives, across all rounds of the turn. When the caller stops iterating
// the turn is abandoned.
func (a *Agent) Send(ctx context.Context, input string) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		mark := len(a.messages)

		a.messages = append(a.messages, llm.UserMessage(input))

		msg, err := a.stream(ctx, 0, yield)

		if err != nil {
			a.repair(mark)

			if err != errYieldStopped {
				a.logger().Error("turn failed", "session", a.session, "error", err)
				yield(llm.Chunk{}, err)
			}

			return
		}

		a.messages = append(a.messages, *msg)
	}
}

func (a *Agent) stream(ctx context.Context, depth int, yield func(llm.Chunk, error) bool) (*llm.Message, error) {
	for ; ; depth++ {
		if err := a.checkDepth(depth); err != nil {
			return nil, err
		}

		var acc llm.Accumulator

		for chunk, err := range a.Provider.Stream(ctx, a.messages, a.Tools.List()) {
			if err != nil {
				return nil, err
			}

			acc.Add(chunk)

			if !yield(chunk, nil) {
				return nil, errYieldStopped
			}
		}

		msg := acc.Message()

		if len(msg.ToolCalls) == 0 {
			return &msg, nil
		}

		if err := a.processToolCalls(ctx, msg); err != nil {
			return nil, err
		}
	}
}

func (a *Agent) checkDepth(depth int) error {
	limit := a.MaxDepth

	if limit <= 0 {
		limit = config.DefaultMaxDepth
	}

	if depth > limit {
		return fmt.Errorf("%w (depth %d, max %d)", ErrRecursionLimit, depth, limit)
	}

	return nil
}

// processToolCalls appends the assistant request followed by one tool result
// per call, in the order the model emitted them.
func (a *Agent) processToolCalls(ctx context.Context, msg llm.Message) error {
	a.messages = append(a.messages, msg)

	for _, tc := range msg.ToolCalls {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome := a.Tools.Execute(ctx, tc.Name, tc.Args)

		a.record(ctx, tc, outcome)

		a.messages = append(a.messages, llm.ToolMessage(tc.ID, outcome.Text()))
	}

	return nil
}

func (a *Agent) record(ctx context.Context, tc llm.ToolCall, outcome tool.Outcome) {
	logger := a.logger().With("session", a.session, "tool", tc.Name, "call", tc.ID)

	entry := ledger.Entry{
		Session: a.session,
		CallID:  tc.ID,

		Tool: tc.Name,
		Args: []byte(tc.Args),

		Result: outcome.Text(),
	}

	if outcome.Failed() {
		entry.Kind = string(outcome.Err.Kind)
		logger.Error("tool failed", "kind", outcome.Err.Kind, "error", outcome.Err.Err)
	} else {
		logger.Info("tool executed")
	}

	if a.Ledger == nil {
		return
	}

	if err := a.Ledger.Record(ctx, entry); err != nil {
		logger.Warn("failed to record invocation", "error", err)
	}
}

// repair drops a trailing assistant request whose results are incomplete,
// which happens when a turn is abandoned while tools run. Completed
// request/result pairs stay, they describe side effects that happened.
func (a *Agent) repair(mark int) {
	for i := len(a.messages) - 1; i >= mark; i-- {
		m := a.messages[i]

		if m.Role != llm.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}

		if len(a.messages)-1-i < len(m.ToolCalls) {
			a.messages = a.messages[:i]
		}

		return
	}
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return a.Logger
}
