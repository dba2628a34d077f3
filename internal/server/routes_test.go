package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/eduardohotta/cortex-sub000/internal/config"
	"github.com/eduardohotta/cortex-sub000/internal/history"
	"github.com/eduardohotta/cortex-sub000/internal/pipeline"
	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
	"github.com/eduardohotta/cortex-sub000/pkg/assistant"
	"github.com/eduardohotta/cortex-sub000/pkg/audio"
	"github.com/eduardohotta/cortex-sub000/pkg/stt"
)

type stubSTT struct {
	ch chan stt.Event
}

func (s *stubSTT) Configure(stt.Config) error  { return nil }
func (s *stubSTT) Start(context.Context) error { return nil }
func (s *stubSTT) Stop()                       {}
func (s *stubSTT) ProcessAudio([]byte)         {}
func (s *stubSTT) Events() <-chan stt.Event    { return s.ch }

type cannedProvider struct {
	answer string
}

func (p *cannedProvider) Name() string { return "local" }

func (p *cannedProvider) Stream(ctx context.Context, req assistant.Request, onDelta func(string)) (string, error) {
	onDelta(p.answer)
	return p.answer, nil
}

func newTestRouter(t *testing.T, answer string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := Logger.New(true)

	settings := &config.Settings{}
	settings.ApplyDefaults()
	settings.LLM.Provider = "local"
	settings.History.Path = filepath.Join(t.TempDir(), "history.json")

	llm := assistant.NewEngine(map[string]assistant.Provider{"local": &cannedProvider{answer: answer}}, logger)
	llm.Configure(assistant.Options{Provider: "local", Model: "test"})

	store := history.NewStore(settings.History.Path, settings.History.MaxTurns, logger)
	capture := audio.NewCapture(settings.Audio, logger)
	engine := &stubSTT{ch: make(chan stt.Event, 8)}
	coordinator := pipeline.NewCoordinator(settings, capture, engine, llm, store, logger)

	router := gin.New()
	InitializeRoutes(context.Background(), router, NewServerDependencies(coordinator, capture, logger, settings))
	return router
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthRoute(t *testing.T) {
	router := newTestRouter(t, "")
	if w := doRequest(router, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}

func TestAskWithEmptyTranscript(t *testing.T) {
	router := newTestRouter(t, "irrelevant")
	w := doRequest(router, http.MethodPost, "/ask", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAskWithQuestionBody(t *testing.T) {
	router := newTestRouter(t, "a long enough answer")
	w := doRequest(router, http.MethodPost, "/ask", `{"question":"what happened"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["answer"] != "a long enough answer" {
		t.Fatalf("answer = %q", resp["answer"])
	}
}

func TestHistoryRoundTrip(t *testing.T) {
	router := newTestRouter(t, "a long enough answer")
	_ = doRequest(router, http.MethodPost, "/ask", `{"question":"q1"}`)

	w := doRequest(router, http.MethodGet, "/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d", resp.Count)
	}

	if w := doRequest(router, http.MethodDelete, "/history", ""); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = doRequest(router, http.MethodGet, "/history", "")
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 0 {
		t.Fatalf("count after clear = %d", resp.Count)
	}
}

func TestDefinitionRequiresTerm(t *testing.T) {
	router := newTestRouter(t, "a definition")
	if w := doRequest(router, http.MethodPost, "/definition", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTranscriptRoute(t *testing.T) {
	router := newTestRouter(t, "")
	w := doRequest(router, http.MethodGet, "/transcript", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Transcript string `json:"transcript"`
		Tokens     int    `json:"tokens"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Transcript != "" || resp.Tokens != 0 {
		t.Fatalf("unexpected transcript state: %+v", resp)
	}
}

func TestAbortRoute(t *testing.T) {
	router := newTestRouter(t, "")
	if w := doRequest(router, http.MethodPost, "/abort", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
