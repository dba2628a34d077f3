package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/eduardohotta/cortex-sub000/pkg/Logger"
)

// quotaKeywords mirror the signatures providers use for exhausted quota.
var quotaKeywords = []string{
	"quota", "rate limit", "insufficient_quota", "billing", "exceeded", "limit reached",
}

// IsQuotaError reports whether a provider failure means the key ran out of
// quota (retryable on another key) rather than a fatal error.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) && (perr.StatusCode == 429 || perr.StatusCode == 402) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range quotaKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// newRequestFSM models a generation request's lifecycle. rotate loops a
// quota failure back to requested with the next credential. The terminal
// event emitted for a request is read off this machine, so a transition the
// machine rejects means the engine fired events out of order.
func newRequestFSM() *fsm.FSM {
	return fsm.NewFSM(
		"idle",
		fsm.Events{
			{Name: "request", Src: []string{"idle"}, Dst: "requested"},
			{Name: "stream", Src: []string{"requested"}, Dst: "streaming"},
			{Name: "rotate", Src: []string{"streaming"}, Dst: "requested"},
			{Name: "complete", Src: []string{"streaming"}, Dst: "completed"},
			{Name: "fail", Src: []string{"requested", "streaming"}, Dst: "failed"},
			{Name: "abort", Src: []string{"requested", "streaming"}, Dst: "aborted"},
		},
		fsm.Callbacks{},
	)
}

// Engine turns a question plus system prompt into a streamed answer across
// providers, with credential rotation and single-flight cancellation: a new
// Generate always preempts the in-flight one.
type Engine struct {
	logger    *Logger.Logger
	providers map[string]Provider
	events    chan Event

	mu        sync.Mutex
	opts      Options
	keys      *KeySet
	cancel    context.CancelFunc
	currentID uuid.UUID
}

func NewEngine(providers map[string]Provider, logger *Logger.Logger) *Engine {
	return &Engine{
		logger:    logger.Named("llm"),
		providers: providers,
		events:    make(chan Event, 64),
		keys:      NewKeySet(nil),
	}
}

func (e *Engine) Events() <-chan Event { return e.events }

// Configure sets the active provider, model, and generation parameters. A
// changed credential list rebuilds the key set, resetting cursor and flags.
func (e *Engine) Configure(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !equalKeys(opts.APIKeys, e.opts.APIKeys) {
		e.keys = NewKeySet(opts.APIKeys)
		e.logger.Infof("loaded %d API key(s) for rotation", e.keys.Len())
	}
	e.opts = opts
}

// Abort cancels the in-flight generation; a no-op when idle.
func (e *Engine) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) KeyStatus() KeyStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.keys.Status()
}

// Generate streams an answer for question. Chunk events fire as deltas
// arrive; the returned string is the full text. An aborted call returns
// ("", nil) after an Aborted event. Quota failures rotate credentials; any
// other provider error is fatal for this call.
func (e *Engine) Generate(ctx context.Context, question, systemPrompt string) (string, error) {
	e.mu.Lock()
	if e.cancel != nil {
		// single-flight: the newcomer preempts
		e.cancel()
	}
	genCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	id := uuid.New()
	e.currentID = id
	opts := e.opts
	keys := e.keys
	provider, ok := e.providers[opts.Provider]
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.currentID == id {
			e.cancel = nil
		}
		e.mu.Unlock()
		cancel()
	}()

	machine := newRequestFSM()
	e.advance(machine, "request")

	if !ok {
		return e.finish(genCtx, machine, id, "", fmt.Errorf("unknown provider: %s", opts.Provider))
	}

	req := Request{ID: id, Question: question, SystemPrompt: systemPrompt, Options: opts}
	onDelta := func(delta string) {
		if genCtx.Err() != nil {
			// aborted: drop further deltas on the floor
			return
		}
		e.emit(Event{Type: EventChunk, RequestID: id, Chunk: delta})
	}

	if opts.Provider == "local" {
		// the embedded model has no credentials to rotate; it may cold-load,
		// so tell the UI which model it is waiting on
		e.emit(Event{Type: EventModelStatus, RequestID: id, Status: "loading " + opts.Model})
		text, err := e.attempt(genCtx, machine, provider, req, onDelta)
		return e.finish(genCtx, machine, id, text, err)
	}

	maxAttempts := keys.Len()
	if maxAttempts == 0 {
		return e.finish(genCtx, machine, id, "", fmt.Errorf("no API keys configured for provider %s", opts.Provider))
	}

	var lastErr error
	// one extra round after full exhaustion resets the flags
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		if genCtx.Err() != nil {
			return e.finish(genCtx, machine, id, "", genCtx.Err())
		}
		key, _ := keys.Current()
		req.APIKey = key

		text, err := e.attempt(genCtx, machine, provider, req, onDelta)
		if err == nil || genCtx.Err() != nil {
			return e.finish(genCtx, machine, id, text, err)
		}
		// a timed-out call is fatal, not a credential problem
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || !IsQuotaError(err) {
			return e.finish(genCtx, machine, id, "", err)
		}

		lastErr = err
		keys.MarkFailed(key)
		e.emit(Event{Type: EventKeyFailed, RequestID: id, Keys: keys.Status()})
		keys.Rotate()
		e.emit(Event{Type: EventKeyRotated, RequestID: id, Keys: keys.Status()})
		e.emit(Event{Type: EventQuotaExceeded, RequestID: id, Keys: keys.Status()})
		e.advance(machine, "rotate")
		e.logger.Warnf("quota exhausted on key %s, rotating (attempt %d/%d)",
			MaskKey(key), attempt+1, maxAttempts)
	}

	return e.finish(genCtx, machine, id, "", fmt.Errorf("all %d API keys exhausted: %w", maxAttempts, lastErr))
}

// advance drives the request lifecycle machine. A rejected transition means
// the engine fired events out of order, which is a bug worth shouting about.
func (e *Engine) advance(machine *fsm.FSM, event string) {
	if err := machine.Event(context.Background(), event); err != nil {
		e.logger.Errorf("lifecycle transition %q rejected in state %s: %v", event, machine.Current(), err)
	}
}

// attempt runs one provider call under the per-call timeout.
func (e *Engine) attempt(ctx context.Context, machine *fsm.FSM, provider Provider, req Request, onDelta func(string)) (string, error) {
	e.advance(machine, "stream")
	callCtx := ctx
	if req.Options.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, req.Options.Timeout)
		defer cancel()
	}
	return provider.Stream(callCtx, req, onDelta)
}

// finish resolves the request to its terminal state and emits the event that
// state dictates. The machine, not the call site, decides what goes outward.
func (e *Engine) finish(ctx context.Context, machine *fsm.FSM, id uuid.UUID, text string, err error) (string, error) {
	switch {
	case ctx.Err() != nil:
		e.advance(machine, "abort")
	case err != nil:
		e.advance(machine, "fail")
	default:
		e.advance(machine, "complete")
	}

	switch state := machine.Current(); state {
	case "aborted":
		e.emit(Event{Type: EventAborted, RequestID: id})
		return "", nil
	case "failed":
		e.emit(Event{Type: EventError, RequestID: id, Err: err})
		return "", err
	case "completed":
		e.emit(Event{Type: EventComplete, RequestID: id, Text: text})
		return text, nil
	default:
		e.logger.Errorf("request %s stuck in non-terminal state %s", id, state)
		return text, err
	}
}

// GenerateDefinition is the side-channel one-shot call. It shares the
// credential pool but never touches the single-flight token, so it cannot
// cancel or be cancelled by a primary generation.
func (e *Engine) GenerateDefinition(ctx context.Context, term, systemPrompt string) (string, error) {
	e.mu.Lock()
	opts := e.opts
	keys := e.keys
	provider, ok := e.providers[opts.Provider]
	e.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("unknown provider: %s", opts.Provider)
	}

	req := Request{ID: uuid.New(), Question: term, SystemPrompt: systemPrompt, Options: opts}
	noDelta := func(string) {}

	call := func() (string, error) {
		callCtx := ctx
		if opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
			defer cancel()
		}
		return provider.Stream(callCtx, req, noDelta)
	}

	if opts.Provider == "local" {
		return call()
	}
	if keys.Len() == 0 {
		return "", fmt.Errorf("no API keys configured for provider %s", opts.Provider)
	}

	var lastErr error
	for attempt := 0; attempt < keys.Len(); attempt++ {
		key, _ := keys.Current()
		req.APIKey = key
		text, err := call()
		if err == nil {
			return text, nil
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || !IsQuotaError(err) {
			return "", err
		}
		lastErr = err
		keys.MarkFailed(key)
		keys.Rotate()
		e.emit(Event{Type: EventKeyFailed, RequestID: req.ID, Keys: keys.Status()})
	}
	return "", fmt.Errorf("all %d API keys exhausted: %w", keys.Len(), lastErr)
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		// consumer stalled, drop rather than block the generation path
	}
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
