package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/anne-chat/anne/internal/assistant"
	"github.com/anne-chat/anne/internal/llm"
	"github.com/anne-chat/anne/internal/memory"
	"github.com/anne-chat/anne/internal/session"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Chat(_ context.Context, model string, _ []llm.Message, _ llm.Options) (*llm.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.ChatResponse{Model: model, Message: llm.Message{Role: "assistant", Content: s.reply}}, nil
}

func (s *stubLLM) Ping(context.Context) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	server *Server
	store  memory.Store
	http   *httptest.Server
}

func newTestEnv(t *testing.T, client llm.Client) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	sessions, err := session.NewStore(db)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}

	store := memory.NewInMemoryStore(0)
	logger := quietLogger()
	gw := assistant.NewGateway(client, "test-model", llm.Options{}, "", logger)
	pipeline := assistant.NewPipeline(store, gw, nil, "Test persona.", 0, logger)

	srv := NewServer("127.0.0.1:0", pipeline, store, sessions, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, store: store, http: ts}
}

func postJSON(t *testing.T, url string, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, err := http.Get(env.http.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}
}

func TestRootInfo(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, err := http.Get(env.http.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var info map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info["name"] != "Anne" || info["status"] != "ok" {
		t.Errorf("root info = %v", info)
	}
}

func TestRootUnknownPath(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, err := http.Get(env.http.URL + "/no-such-path")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /no-such-path = %d, want 404", resp.StatusCode)
	}
}

func TestChatRoundTrip(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "hello back"})

	resp, body := postJSON(t, env.http.URL+"/chat", `{"message":"hi","sessionId":"abc"}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /chat = %d, want 200", resp.StatusCode)
	}
	if body["response"] != "hello back" {
		t.Errorf("response = %v, want hello back", body["response"])
	}
	if body["session_id"] != "abc" {
		t.Errorf("session_id = %v, want abc", body["session_id"])
	}
	if html, _ := body["response_html"].(string); !strings.Contains(html, "hello back") {
		t.Errorf("response_html = %q, want rendered reply", html)
	}

	turns, _ := env.store.All(context.Background(), "abc")
	if len(turns) != 2 {
		t.Errorf("store holds %d turns after one exchange, want 2", len(turns))
	}
}

func TestChatDerivedIdentityIsStable(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	_, first := postJSON(t, env.http.URL+"/chat", `{"message":"one"}`)
	_, second := postJSON(t, env.http.URL+"/chat", `{"message":"two"}`)

	sid, _ := first["session_id"].(string)
	if !strings.HasPrefix(sid, "anon_") {
		t.Errorf("derived session_id = %q, want anon_ prefix", sid)
	}
	if second["session_id"] != sid {
		t.Errorf("derived identity changed between requests: %v then %v", sid, second["session_id"])
	}
}

func TestChatInvalidBody(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, _ := postJSON(t, env.http.URL+"/chat", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /chat with garbage = %d, want 400", resp.StatusCode)
	}
}

func TestChatProviderFailureStillAnswers(t *testing.T) {
	env := newTestEnv(t, &stubLLM{err: errors.New("model down")})

	resp, body := postJSON(t, env.http.URL+"/chat", `{"message":"hi","sessionId":"s1"}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /chat during outage = %d, want 200", resp.StatusCode)
	}
	if body["response"] != assistant.DefaultFallbackReply {
		t.Errorf("response = %v, want fallback reply", body["response"])
	}
}

func TestSessionSaveAndGet(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, body := postJSON(t, env.http.URL+"/session", `{"id":"s1","messages":["hi"]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /session = %d, want 200", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Errorf("save ok = %v, want true", body["ok"])
	}

	getResp, err := http.Get(env.http.URL + "/session/s1")
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()

	var rec map[string]any
	if err := json.NewDecoder(getResp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec["id"] != "s1" {
		t.Errorf("fetched id = %v, want s1", rec["id"])
	}
	if rec["createdAt"] == nil || rec["updatedAt"] == nil {
		t.Errorf("timestamps not filled into payload: %v", rec)
	}
	if msgs, ok := rec["messages"].([]any); !ok || len(msgs) != 1 {
		t.Errorf("payload not preserved: %v", rec["messages"])
	}
}

func TestSessionGetClientTimestampsWin(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	postJSON(t, env.http.URL+"/session",
		`{"id":"s1","createdAt":"2026-01-01T00:00:00Z","messages":[]}`)

	getResp, err := http.Get(env.http.URL + "/session/s1")
	if err != nil {
		t.Fatal(err)
	}
	defer getResp.Body.Close()

	var rec map[string]any
	if err := json.NewDecoder(getResp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec["createdAt"] != "2026-01-01T00:00:00Z" {
		t.Errorf("createdAt = %v, client-supplied value must survive", rec["createdAt"])
	}
	if rec["updatedAt"] == nil {
		t.Errorf("missing updatedAt not filled in: %v", rec)
	}
}

func TestSessionSaveMissingID(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, body := postJSON(t, env.http.URL+"/session", `{"messages":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /session without id = %d, want 400", resp.StatusCode)
	}
	if body["ok"] != false || body["error"] == nil {
		t.Errorf("error envelope = %v, want ok=false with error", body)
	}
}

func TestSessionGetUnknown(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, err := http.Get(env.http.URL + "/session/never-saved")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET unknown session = %d, want 404", resp.StatusCode)
	}
}

func TestClearMemory(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	postJSON(t, env.http.URL+"/chat", `{"message":"remember me","sessionId":"s1"}`)

	resp, body := postJSON(t, env.http.URL+"/clear_memory", `{"sessionId":"s1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /clear_memory = %d, want 200", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Errorf("clear ok = %v, want true", body["ok"])
	}
	if body["session_id"] != "s1" {
		t.Errorf("cleared session = %v, want s1", body["session_id"])
	}

	turns, _ := env.store.All(context.Background(), "s1")
	if len(turns) != 0 {
		t.Errorf("memory not cleared: %v", turns)
	}
}

func TestClearMemoryMissingIdentity(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	// Build up an anonymous session so a wrongly-derived clear would
	// have something to delete.
	postJSON(t, env.http.URL+"/chat", `{"message":"hi"}`)
	stats := env.store.Stats(context.Background())
	if stats["turns"] == 0 {
		t.Fatal("expected anonymous turns before clear attempt")
	}

	for _, payload := range []string{`{}`, ``, `{"message":"x"}`} {
		resp, body := postJSON(t, env.http.URL+"/clear_memory", payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("POST /clear_memory %q = %d, want 400", payload, resp.StatusCode)
		}
		if body["ok"] != false {
			t.Errorf("clear ok = %v, want false", body["ok"])
		}
		if body["error"] != "need sessionId" {
			t.Errorf("clear error = %v, want need sessionId", body["error"])
		}
	}

	after := env.store.Stats(context.Background())
	if after["turns"] != stats["turns"] {
		t.Errorf("turns = %v after rejected clear, want untouched %v", after["turns"], stats["turns"])
	}
}

func TestMemoryStats(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	postJSON(t, env.http.URL+"/chat", `{"message":"hi","sessionId":"s1"}`)

	resp, err := http.Get(env.http.URL + "/memory/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats["sessions"] != float64(1) || stats["turns"] != float64(2) {
		t.Errorf("stats = %v, want 1 session with 2 turns", stats)
	}
}

func TestWidgetServed(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "ok"})

	resp, err := http.Get(env.http.URL + "/widget")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /widget = %d, want 200", resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Anne") {
		t.Error("widget page does not mention Anne")
	}
}

func TestChatWebSocket(t *testing.T) {
	env := newTestEnv(t, &stubLLM{reply: "over the wire"})

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{"message": "hi", "sessionId": "ws-1"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var reply ChatResponse
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Response != "over the wire" {
		t.Errorf("ws response = %q, want over the wire", reply.Response)
	}
	if reply.SessionID != "ws-1" {
		t.Errorf("ws session_id = %q, want ws-1", reply.SessionID)
	}

	turns, _ := env.store.All(context.Background(), "ws-1")
	if len(turns) != 2 {
		t.Errorf("store holds %d turns after ws exchange, want 2", len(turns))
	}
}
