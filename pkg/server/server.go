package server

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/kiranojhanp/ai-agents/pkg/agent"
	"github.com/kiranojhanp/ai-agents/pkg/config"
	"github.com/kiranojhanp/ai-agents/pkg/ledger"
	"github.com/kiranojhanp/ai-agents/pkg/llm"
	"github.com/kiranojhanp/ai-agents/pkg/markdown"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
)

//go:embed static
var static embed.FS

// Server is the web chat surface. It hosts a single chat session; turns
// are processed one at a time.
type Server struct {
	config *config.Config

	agent *agent.Agent
	turn  chan struct{}

	mu      sync.Mutex
	history []llm.Message

	handler http.Handler
}

func New(cfg *config.Config) *Server {
	s := &Server{
		config: cfg,

		agent: agent.New(cfg),
		turn:  make(chan struct{}, 1),
	}

	s.refresh()

	mux := http.NewServeMux()

	assets, _ := fs.Sub(static, "static")
	mux.Handle("/", http.FileServerFS(assets))

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/messages", s.handleMessages)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("GET /api/invocations", s.handleInvocations)

	mux.Handle("/mcp", s.mcpHandler())

	s.handler = cors.AllowAll().Handler(mux)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.handler)
}

// acquire claims the session for one turn. It does not wait: a session that
// is busy is reported to the caller.
func (s *Server) acquire() bool {
	select {
	case s.turn <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Server) release() {
	<-s.turn
}

func (s *Server) refresh() {
	messages := s.agent.Messages()

	s.mu.Lock()
	s.history = messages
	s.mu.Unlock()
}

type chatRequest struct {
	Message string `json:"message"`
}

type event struct {
	Type string `json:"type"`

	Content   string          `json:"content,omitempty"`
	ToolCalls []toolCallEvent `json:"tool_calls,omitempty"`

	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

type toolCallEvent struct {
	Index int `json:"index"`

	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Args string `json:"args,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	message := strings.TrimSpace(req.Message)

	if message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	if !s.acquire() {
		http.Error(w, "a turn is already in progress", http.StatusConflict)
		return
	}

	defer s.release()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	w.WriteHeader(http.StatusOK)

	failed := false

	for chunk, err := range s.agent.Send(r.Context(), message) {
		if err != nil {
			failed = true
			writeEvent(w, event{Type: "error", Error: err.Error()})

			break
		}

		e := event{
			Type:    "chunk",
			Content: chunk.Content,
		}

		for _, tc := range chunk.ToolCalls {
			e.ToolCalls = append(e.ToolCalls, toolCallEvent{
				Index: tc.Index,

				ID:   tc.ID,
				Name: tc.Name,
				Args: tc.Args,
			})
		}

		if err := writeEvent(w, e); err != nil {
			break
		}
	}

	s.refresh()

	if failed {
		return
	}

	done := event{Type: "done"}

	if reply, ok := lastReply(s.agent.Messages()); ok {
		done.HTML = markdown.HTML(reply.Content)
	}

	writeEvent(w, done)
}

func lastReply(messages []llm.Message) (llm.Message, bool) {
	if len(messages) == 0 {
		return llm.Message{}, false
	}

	m := messages[len(messages)-1]

	if m.Role != llm.RoleAssistant || len(m.ToolCalls) > 0 {
		return llm.Message{}, false
	}

	return m, true
}

func writeEvent(w http.ResponseWriter, e event) error {
	data, err := json.Marshal(e)

	if err != nil {
		return err
	}

	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}

	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}

type messageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	history := s.history
	s.mu.Unlock()

	result := []messageResponse{}

	for _, m := range history {
		if m.Content == "" {
			continue
		}

		switch m.Role {
		case llm.RoleUser:
			result = append(result, messageResponse{Role: string(m.Role), Content: m.Content})

		case llm.RoleAssistant:
			result = append(result, messageResponse{Role: string(m.Role), Content: m.Content, HTML: markdown.HTML(m.Content)})
		}
	}

	writeJSON(w, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !s.acquire() {
		http.Error(w, "a turn is already in progress", http.StatusConflict)
		return
	}

	defer s.release()

	s.agent.Clear()
	s.refresh()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	if s.config.Ledger == nil {
		http.Error(w, "invocation ledger is disabled", http.StatusNotFound)
		return
	}

	limit := 50

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)

		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		limit = n
	}

	entries, err := s.config.Ledger.List(r.Context(), limit)

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// mcpHandler exposes the capability catalog to MCP clients, executing calls
// through the same registry the agent uses.
func (s *Server) mcpHandler() http.Handler {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "asana-agent",
		Version: "1.0.0",
	}, nil)

	for _, t := range s.config.Tools.List() {
		s.addTool(server, t)
	}

	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})
}

func (s *Server) addTool(server *mcp.Server, t tool.Tool) {
	mcpTool := &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,

		InputSchema: t.Schema,
	}

	server.AddTool(mcpTool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := string(req.Params.Arguments)

		outcome := s.config.Tools.Execute(ctx, t.Name, args)

		if s.config.Ledger != nil {
			entry := ledger.Entry{
				Session: "mcp",

				Tool: t.Name,
				Args: []byte(args),

				Result: outcome.Text(),
			}

			if outcome.Failed() {
				entry.Kind = string(outcome.Err.Kind)
			}

			s.config.Ledger.Record(ctx, entry)
		}

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: outcome.Text()}},
			IsError: outcome.Failed(),
		}, nil
	})
}
