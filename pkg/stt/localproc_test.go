package stt

import "testing"

func TestNormalizeModel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"whisper-base", "base"},
		{"whisper-large-v3", "large-v3"},
		{"small", "small"},
		{"turbo", "turbo"},
		{"gpt-4o-transcribe", "base"},
		{"", "base"},
	}
	for _, c := range cases {
		if got := normalizeModel(c.in); got != c.want {
			t.Errorf("normalizeModel(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseLocalLine(t *testing.T) {
	msg, ok := parseLocalLine(`{"status":"ready"}`)
	if !ok || msg.Status != "ready" {
		t.Fatalf("ready line: %+v ok=%v", msg, ok)
	}

	msg, ok = parseLocalLine(`{"text":"hello there","isFinal":true}`)
	if !ok || msg.Text != "hello there" || !msg.IsFinal {
		t.Fatalf("text line: %+v ok=%v", msg, ok)
	}

	msg, ok = parseLocalLine(`{"status":"fallback_cpu","message":"cuda unavailable"}`)
	if !ok || msg.Status != "fallback_cpu" || msg.Message != "cuda unavailable" {
		t.Fatalf("fallback line: %+v ok=%v", msg, ok)
	}

	msg, ok = parseLocalLine(`{"error":"model load failed"}`)
	if !ok || msg.Error != "model load failed" {
		t.Fatalf("error line: %+v ok=%v", msg, ok)
	}

	for _, noise := range []string{"", "   ", "INFO loading model", "{broken json"} {
		if _, ok := parseLocalLine(noise); ok {
			t.Errorf("parseLocalLine(%q) accepted noise", noise)
		}
	}
}

func TestProgressFromStderr(t *testing.T) {
	p, ok := progressFromStderr(" 42%|████      | 120M/290M [00:05<00:07, 24.0MB/s]")
	if !ok || p.Percent != 42 {
		t.Fatalf("tqdm line: %+v ok=%v", p, ok)
	}

	p, ok = progressFromStderr("Downloading model.bin")
	if !ok || p.Percent != -1 {
		t.Fatalf("download line without percent: %+v ok=%v", p, ok)
	}

	p, ok = progressFromStderr("Fetching 4 files")
	if !ok {
		t.Fatalf("fetching line: %+v ok=%v", p, ok)
	}

	if _, ok := progressFromStderr("UserWarning: something unrelated"); ok {
		t.Fatal("unrelated stderr line misread as progress")
	}
}
