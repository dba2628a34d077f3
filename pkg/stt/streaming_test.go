package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newStreamServer runs a provider double: echoes a scripted result for every
// binary frame it receives.
func newStreamServer(t *testing.T, results []string, finals []bool, authCh chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authCh != nil {
			authCh <- r.Header.Get("Authorization")
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		i := 0
		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt != websocket.BinaryMessage || i >= len(results) {
				continue
			}
			payload := `{"is_final":` + boolStr(finals[i]) +
				`,"channel":{"alternatives":[{"transcript":"` + results[i] + `"}]}}`
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
			i++
		}
	}))
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestStreamingTranscripts(t *testing.T) {
	authCh := make(chan string, 1)
	server := newStreamServer(t, []string{"hello", "hello world"}, []bool{false, true}, authCh)
	defer server.Close()

	eng := NewStreamingEngine(wsURL(server), Logger.New(true))
	if err := eng.Configure(Config{APIKey: "dg-key", Language: "en", Model: "nova-2"}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer eng.Stop()

	waitForEvent(t, eng.Events(), EventReady)
	if got := <-authCh; got != "Token dg-key" {
		t.Fatalf("authorization header = %q", got)
	}

	eng.ProcessAudio(make([]byte, 3200))
	ev := waitForEvent(t, eng.Events(), EventTranscript)
	if ev.Transcript.Text != "hello" || ev.Transcript.IsFinal {
		t.Fatalf("first result: %+v", ev.Transcript)
	}

	eng.ProcessAudio(make([]byte, 3200))
	ev = waitForEvent(t, eng.Events(), EventTranscript)
	if ev.Transcript.Text != "hello world" || !ev.Transcript.IsFinal {
		t.Fatalf("second result: %+v", ev.Transcript)
	}
}

func TestStreamingSuppressesEmptyTranscripts(t *testing.T) {
	server := newStreamServer(t, []string{"", "real text"}, []bool{true, true}, nil)
	defer server.Close()

	eng := NewStreamingEngine(wsURL(server), Logger.New(true))
	_ = eng.Configure(Config{APIKey: "k"})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer eng.Stop()

	eng.ProcessAudio(make([]byte, 320)) // provokes the empty heartbeat
	eng.ProcessAudio(make([]byte, 320))

	ev := waitForEvent(t, eng.Events(), EventTranscript)
	if ev.Transcript.Text != "real text" {
		t.Fatalf("empty transcript leaked, got %+v", ev.Transcript)
	}
}

func TestStreamingDialFailure(t *testing.T) {
	eng := NewStreamingEngine("ws://127.0.0.1:1", Logger.New(true))
	_ = eng.Configure(Config{APIKey: "k"})
	if err := eng.Start(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestStreamingStopIsIdempotent(t *testing.T) {
	server := newStreamServer(t, nil, nil, nil)
	defer server.Close()

	eng := NewStreamingEngine(wsURL(server), Logger.New(true))
	_ = eng.Configure(Config{APIKey: "k"})
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	eng.Stop()
	eng.Stop()

	// no error events from the read loop after a deliberate stop
	select {
	case ev := <-eng.Events():
		if ev.Type == EventError {
			t.Fatalf("unexpected error event after stop: %v", ev.Err)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestStreamingUnconfiguredStart(t *testing.T) {
	eng := NewStreamingEngine("ws://localhost:0", Logger.New(true))
	if err := eng.Start(context.Background()); err == nil {
		t.Fatal("expected error for unconfigured engine")
	}
}
