package stt

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
)

// localMessage is one newline-delimited JSON message from the whisper bridge
// subprocess. Lines that do not parse are incidental log output.
type localMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Text    string `json:"text"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Warning string `json:"warning"`
}

var knownModelSizes = []string{"tiny", "base", "small", "medium", "large", "turbo"}

var progressRe = regexp.MustCompile(`(\d+)%`)

// normalizeModel maps cloud whisper model names onto the sizes the local
// bridge accepts; unknown names default to base.
func normalizeModel(model string) string {
	model = strings.TrimPrefix(model, "whisper-")
	for _, size := range knownModelSizes {
		if strings.HasPrefix(model, size) {
			return model
		}
	}
	return "base"
}

// parseLocalLine decodes one stdout line. ok is false for noise.
func parseLocalLine(line string) (localMessage, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "{") {
		return localMessage{}, false
	}
	var msg localMessage
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		return localMessage{}, false
	}
	return msg, true
}

// progressFromStderr recognizes model-download output (tqdm style) on the
// bridge's stderr. Percent is -1 when activity is seen without a number.
func progressFromStderr(line string) (Progress, bool) {
	if !strings.Contains(line, "%|") && !strings.Contains(line, "Downloading") && !strings.Contains(line, "Fetching") {
		return Progress{}, false
	}
	if m := progressRe.FindStringSubmatch(line); m != nil {
		percent, _ := strconv.Atoi(m[1])
		return Progress{Percent: percent, Message: "downloading model"}, true
	}
	return Progress{Percent: -1, Message: "preparing download"}, true
}

// LocalEngine drives a long-lived transcription subprocess. Frames written
// before the bridge's ready handshake are queued locally, flushed once on
// ready, then written through directly.
type LocalEngine struct {
	pythonPath string
	scriptPath string
	logger     *Logger.Logger
	emitter

	mu         sync.Mutex
	cfg        Config
	configured bool
	active     bool
	ready      bool
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	pending    [][]byte
}

func NewLocalEngine(pythonPath, scriptPath string, logger *Logger.Logger) *LocalEngine {
	return &LocalEngine{
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		logger:     logger.Named("stt.local"),
		emitter:    newEmitter("faster-whisper"),
	}
}

func (l *LocalEngine) Events() <-chan Event { return l.ch }

func (l *LocalEngine) Configure(cfg Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		return fmt.Errorf("cannot reconfigure while active")
	}
	l.cfg = cfg
	l.configured = true
	return nil
}

func (l *LocalEngine) Start(ctx context.Context) error {
	l.mu.Lock()
	if !l.configured {
		l.mu.Unlock()
		return fmt.Errorf("local engine not configured")
	}
	if l.active {
		l.mu.Unlock()
		return nil
	}
	cfg := l.cfg
	l.mu.Unlock()

	args := []string{"-u", l.scriptPath, "--model", normalizeModel(cfg.Model)}
	device := cfg.Device
	if device == "" {
		device = "auto"
	}
	args = append(args, "--device", device)
	if cfg.Language != "" && cfg.Language != "auto" {
		args = append(args, "--language", strings.SplitN(cfg.Language, "-", 2)[0])
	}

	cmd := exec.Command(l.pythonPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open bridge stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open bridge stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open bridge stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to spawn transcription bridge: %w", err)
	}

	l.mu.Lock()
	l.cmd = cmd
	l.stdin = stdin
	l.active = true
	l.ready = false
	l.pending = nil
	l.mu.Unlock()

	go l.readStdout(stdout)
	go l.readStderr(stderr)
	go func() {
		_ = cmd.Wait()
		l.mu.Lock()
		crashed := l.active && l.cmd == cmd
		if crashed {
			l.active = false
			l.ready = false
			l.cmd = nil
			l.stdin = nil
			l.pending = nil
		}
		l.mu.Unlock()
		if crashed {
			l.send(Event{Type: EventStopped})
		}
	}()

	return nil
}

func (l *LocalEngine) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		msg, ok := parseLocalLine(line)
		if !ok {
			if strings.TrimSpace(line) != "" {
				l.logger.Debugf("bridge: %s", strings.TrimSpace(line))
			}
			continue
		}
		switch {
		case msg.Status == "ready":
			l.handleReady()
		case msg.Status == "fallback_cpu":
			l.send(Event{Type: EventFallback, Message: msg.Message})
		case msg.Error != "":
			l.error(fmt.Errorf("bridge error: %s", msg.Error))
		case msg.Warning != "":
			l.logger.Warnf("bridge: %s", msg.Warning)
		case msg.Text != "":
			l.transcript(msg.Text, true)
		}
	}
}

func (l *LocalEngine) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if p, ok := progressFromStderr(line); ok {
			l.send(Event{Type: EventDownloadProgress, Progress: p})
			continue
		}
		if msg := strings.TrimSpace(line); msg != "" && !strings.Contains(msg, "UserWarning") {
			l.logger.Debugf("bridge: %s", msg)
		}
	}
}

func (l *LocalEngine) handleReady() {
	l.mu.Lock()
	l.ready = true
	pending := l.pending
	l.pending = nil
	stdin := l.stdin
	l.mu.Unlock()

	l.logger.Info("transcription bridge ready")
	l.send(Event{Type: EventReady})

	if len(pending) > 0 && stdin != nil {
		var combined []byte
		for _, frame := range pending {
			combined = append(combined, frame...)
		}
		if _, err := stdin.Write(combined); err != nil {
			l.error(fmt.Errorf("failed to flush queued audio: %w", err))
		}
	}
}

// ProcessAudio writes through to the bridge's stdin once the handshake has
// arrived; earlier frames queue locally.
func (l *LocalEngine) ProcessAudio(frame []byte) {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	if !l.ready {
		buf := make([]byte, len(frame))
		copy(buf, frame)
		l.pending = append(l.pending, buf)
		l.mu.Unlock()
		return
	}
	stdin := l.stdin
	l.mu.Unlock()

	if stdin == nil {
		return
	}
	if _, err := stdin.Write(frame); err != nil {
		l.error(fmt.Errorf("bridge write failed: %w", err))
	}
}

func (l *LocalEngine) Stop() {
	l.mu.Lock()
	if !l.active {
		l.mu.Unlock()
		return
	}
	l.active = false
	l.ready = false
	cmd := l.cmd
	l.cmd = nil
	l.stdin = nil
	l.pending = nil
	l.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	l.send(Event{Type: EventStopped})
}
