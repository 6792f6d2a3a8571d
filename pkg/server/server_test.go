package server

import (
	"bufio"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiranojhanp/ai-agents/pkg/config"
	"github.com/kiranojhanp/ai-agents/pkg/ledger"
	"github.com/kiranojhanp/ai-agents/pkg/llm"
	"github.com/kiranojhanp/ai-agents/pkg/tool"
)

type chunkProvider struct {
	chunks []llm.Chunk
}

func (p *chunkProvider) Complete(ctx context.Context, messages []llm.Message, tools []tool.Tool) (*llm.Message, error) {
	var acc llm.Accumulator

	for _, c := range p.chunks {
		acc.Add(c)
	}

	msg := acc.Message()

	return &msg, nil
}

func (p *chunkProvider) Stream(ctx context.Context, messages []llm.Message, tools []tool.Tool) iter.Seq2[llm.Chunk, error] {
	return func(yield func(llm.Chunk, error) bool) {
		for _, c := range p.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func newServer(t *testing.T, l *ledger.Ledger) *Server {
	t.Helper()

	tools, err := tool.NewRegistry()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return New(&config.Config{
		Provider: &chunkProvider{chunks: []llm.Chunk{{Content: "**Done**"}, {Content: ", task created."}}},

		Tools:        tools,
		Instructions: "You are a project manager.",

		Ledger: l,
	})
}

func readEvents(t *testing.T, resp *http.Response) []event {
	t.Helper()

	var events []event

	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		line, ok := strings.CutPrefix(scanner.Text(), "data: ")

		if !ok {
			continue
		}

		var e event

		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid event %q: %v", line, err)
		}

		events = append(events, e)
	}

	return events
}

func TestChat(t *testing.T) {
	s := newServer(t, nil)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader(`{"message":"create a task"}`))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected event stream, got %q", ct)
	}

	events := readEvents(t, resp)

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}

	if events[0].Type != "chunk" || events[0].Content != "**Done**" || events[1].Content != ", task created." {
		t.Errorf("unexpected chunk events %+v", events[:2])
	}

	if events[2].Type != "done" || !strings.Contains(events[2].HTML, "<strong>Done</strong>") {
		t.Errorf("unexpected done event %+v", events[2])
	}

	resp, err = http.Get(srv.URL + "/api/messages")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer resp.Body.Close()

	var messages []messageResponse

	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(messages) != 2 || messages[0].Role != "user" || messages[1].Content != "**Done**, task created." {
		t.Errorf("unexpected history %+v", messages)
	}
}

func TestChatValidation(t *testing.T) {
	s := newServer(t, nil)

	tests := []string{
		`not json`,
		`{"message":"   "}`,
	}

	for _, body := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))

		s.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", body, rec.Code)
		}
	}
}

func TestChatConflict(t *testing.T) {
	s := newServer(t, nil)

	if !s.acquire() {
		t.Fatal("expected to acquire the session")
	}

	defer s.release()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))

	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rec.Code)
	}
}

func TestReset(t *testing.T) {
	s := newServer(t, nil)

	session := s.agent.Session()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`)))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reset", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	if s.agent.Session() == session {
		t.Error("expected a new session")
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages", nil))

	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected empty history, got %s", body)
	}
}

func TestInvocations(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(t, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invocations", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 without ledger, got %d", rec.Code)
	}

	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defer l.Close()

	if err := l.Record(context.Background(), ledger.Entry{Session: "s1", Tool: "create_asana_task", Args: []byte(`{}`), Result: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := newServer(t, l)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invocations?limit=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var entries []ledger.Entry

	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 1 || entries[0].Tool != "create_asana_task" {
		t.Errorf("unexpected entries %+v", entries)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invocations?limit=x", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for invalid limit, got %d", rec.Code)
	}
}

func TestIndex(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(t, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "api/chat") {
		t.Error("expected chat widget")
	}
}
