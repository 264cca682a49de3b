package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/kiln/internal/inference"
)

type testEngine struct {
	texts []string
	err   error

	gotReq *inference.Request
}

func (e *testEngine) Generate(ctx context.Context, req *inference.Request, stream inference.StreamFunc) (*inference.Result, error) {
	e.gotReq = req
	if e.err != nil {
		return nil, e.err
	}
	if stream != nil {
		for _, part := range e.texts {
			stream(part)
		}
	}
	return &inference.Result{
		Texts:        []string{strings.Join(e.texts, "")},
		FinishReason: "stop",
		Stats:        inference.Stats{PromptTokens: 2, TokensGenerated: len(e.texts)},
	}, nil
}

func newTestEcho(engine *testEngine) *echo.Echo {
	server := NewServer(engine, inference.GenDefaults{})
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGenerateBlocking(t *testing.T) {
	t.Parallel()

	engine := &testEngine{texts: []string{"hel", "lo"}}
	e := newTestEcho(engine)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"hi","max_tokens":8}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}

	var resp GenerateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "gen-") {
		t.Fatalf("unexpected id %q", resp.ID)
	}
	if len(resp.Texts) != 1 || resp.Texts[0] != "hello" {
		t.Fatalf("unexpected texts %v", resp.Texts)
	}
	if resp.FinishReason != "stop" {
		t.Fatalf("finish_reason = %q", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	if engine.gotReq == nil || engine.gotReq.Steps != 8 {
		t.Fatalf("engine request = %+v", engine.gotReq)
	}
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testEngine{texts: []string{"x"}})

	for name, body := range map[string]string{
		"missing-prompt": `{}`,
		"bad-json":       `{"prompt":`,
		"unknown-field":  `{"prompt":"hi","frobnicate":1}`,
	} {
		rec := doJSON(t, e, http.MethodPost, "/v1/generate", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d body=%s", name, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "invalid_request_error") {
			t.Fatalf("%s: unexpected error body %s", name, rec.Body.String())
		}
	}
}

func TestGenerateEngineError(t *testing.T) {
	t.Parallel()

	engine := &testEngine{err: errors.New("device lost")}
	e := newTestEcho(engine)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate", `{"prompt":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "device lost") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestGenerateStream(t *testing.T) {
	t.Parallel()

	engine := &testEngine{texts: []string{"a", "b"}}
	e := newTestEcho(engine)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate/stream", `{"prompt":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("content type %q", got)
	}

	body := rec.Body.String()
	events := parseSSE(t, body)
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3 (two deltas plus final): %s", len(events), body)
	}

	var first GenerateChunk
	if err := json.Unmarshal([]byte(events[0]), &first); err != nil {
		t.Fatalf("decode first chunk: %v", err)
	}
	if first.Delta != "a" || first.Object != "generation.chunk" {
		t.Fatalf("unexpected first chunk %+v", first)
	}

	var final GenerateChunk
	if err := json.Unmarshal([]byte(events[len(events)-1]), &final); err != nil {
		t.Fatalf("decode final chunk: %v", err)
	}
	if final.FinishReason != "stop" || final.Usage == nil {
		t.Fatalf("unexpected final chunk %+v", final)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Fatalf("missing [DONE] terminator: %s", body)
	}
}

func TestGenerateStreamEngineError(t *testing.T) {
	t.Parallel()

	engine := &testEngine{err: errors.New("device lost")}
	e := newTestEcho(engine)

	rec := doJSON(t, e, http.MethodPost, "/v1/generate/stream", `{"prompt":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "device lost") {
		t.Fatalf("error chunk missing: %s", rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testEngine{})
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testEngine{})
	rec := doJSON(t, e, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Fatalf("no metrics in body: %.200s", rec.Body.String())
	}
}

// parseSSE returns the JSON payloads of the data: events, excluding [DONE].
func parseSSE(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	for _, line := range strings.Split(body, "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok || payload == "[DONE]" {
			continue
		}
		out = append(out, payload)
	}
	return out
}
