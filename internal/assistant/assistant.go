// Package assistant gates a priority speaker's audio through wake word and
// intent engines and dispatches recognized commands.
//
// Audio enters through HandleFrame on the transport's receive goroutine.
// That goroutine never blocks: it resamples frames into engine windows and
// hands them to the detector over a bounded channel, or, while a follow-up
// query is being captured, appends them to the capture buffer. The detector
// owns the wake gate. Replies and intents are each drained by a single
// goroutine, so both are handled strictly in order.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/discord-voice-assistant/internal/logging"
)

type Config struct {
	// AlwaysAwake routes every window to the intent engine and skips the
	// wake word.
	AlwaysAwake bool
	// TransportRate is the sample rate of frames given to HandleFrame.
	TransportRate int
	// EngineRate and WindowSize describe what the engines consume.
	EngineRate int
	WindowSize int
	// WindowBacklog is how many windows may wait for the detector before
	// new ones are dropped.
	WindowBacklog int

	// Greeting is formatted with the speaker's display name.
	Greeting string
	// Acknowledgement is formatted with the intent name.
	Acknowledgement string
	EmptyQueryReply string

	Capture CaptureConfig
}

func DefaultConfig() Config {
	return Config{
		TransportRate:   48000,
		EngineRate:      16000,
		WindowSize:      512,
		WindowBacklog:   32,
		Greeting:        "Hi %s, how can I help you?",
		Acknowledgement: "Okay, I will %s",
		EmptyQueryReply: "Sorry, I didn't catch that.",
		Capture:         DefaultCaptureConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TransportRate <= 0 {
		c.TransportRate = d.TransportRate
	}
	if c.EngineRate <= 0 {
		c.EngineRate = d.EngineRate
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.WindowBacklog <= 0 {
		c.WindowBacklog = d.WindowBacklog
	}
	if c.Greeting == "" {
		c.Greeting = d.Greeting
	}
	if c.Acknowledgement == "" {
		c.Acknowledgement = d.Acknowledgement
	}
	if c.EmptyQueryReply == "" {
		c.EmptyQueryReply = d.EmptyQueryReply
	}
	c.Capture = c.Capture.withDefaults()
	return c
}

// Engines are the speech engines the assistant drives.
type Engines struct {
	WakeWord    WakeWordEngine
	Intent      IntentEngine
	Transcriber Transcriber
	Synthesizer Synthesizer
}

type Assistant struct {
	cfg      Config
	engines  Engines
	commands CommandRegistry

	replies *fifo[string]
	intents *fifo[queuedIntent]

	// mu serializes Enable and Disable.
	mu      sync.Mutex
	current *session
	// draining is a disabled session whose goroutines had not exited when
	// Disable returned.
	draining *session
	active   atomic.Pointer[session]

	errMu sync.Mutex
	err   error

	dropped atomic.Int64
}

type session struct {
	target    Target
	gate      *Gate
	resampler *FrameResampler
	windows   chan []int16

	captures     *captureRegistry
	transcribing atomic.Bool
	queryReady   chan CaptureResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, engines Engines, commands CommandRegistry) (*Assistant, error) {
	switch {
	case engines.WakeWord == nil:
		return nil, errors.New("assistant: wake word engine is required")
	case engines.Intent == nil:
		return nil, errors.New("assistant: intent engine is required")
	case engines.Transcriber == nil:
		return nil, errors.New("assistant: transcriber is required")
	case engines.Synthesizer == nil:
		return nil, errors.New("assistant: synthesizer is required")
	case commands == nil:
		return nil, errors.New("assistant: command registry is required")
	}
	return &Assistant{
		cfg:      cfg.withDefaults(),
		engines:  engines,
		commands: commands,
		replies:  newFIFO[string](),
		intents:  newFIFO[queuedIntent](),
	}, nil
}

// Enable binds the assistant to a voice connection and starts listening to
// the priority speaker. Enabling an enabled assistant is a no-op.
func (a *Assistant) Enable(ctx context.Context, t Target) error {
	if t.Voice == nil || t.Text == nil {
		return errors.New("assistant: target needs a voice transport and a text channel")
	}
	if t.Speaker.ID == "" {
		return errors.New("assistant: target needs a priority speaker")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		logging.InfowCtx(ctx, "assistant already enabled")
		return nil
	}
	if err := a.waitDrained(ctx); err != nil {
		return err
	}

	res, err := NewFrameResampler(a.cfg.TransportRate, a.cfg.EngineRate, a.cfg.WindowSize)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(logging.WithFields(context.WithoutCancel(ctx),
		logging.UserFields(t.Speaker.ID, t.Speaker.DisplayName)...))
	queryReady := make(chan CaptureResult, 1)
	s := &session{
		target:     t,
		gate:       NewGate(a.cfg.AlwaysAwake),
		resampler:  res,
		windows:    make(chan []int16, a.cfg.WindowBacklog),
		captures:   newCaptureRegistry(runCtx, a.cfg.Capture, a.engines.Transcriber, queryReady),
		queryReady: queryReady,
		ctx:        runCtx,
		cancel:     cancel,
	}
	s.gate.Enable()

	a.errMu.Lock()
	a.err = nil
	a.errMu.Unlock()

	a.current = s
	a.active.Store(s)
	a.goTask(s, "detector", a.runDetector)
	a.goTask(s, "speaker", a.runSpeaker)
	a.goTask(s, "dispatcher", a.runDispatcher)

	if err := t.Voice.Listen(a.HandleFrame); err != nil {
		a.teardown(s)
		a.current = nil
		s.wg.Wait()
		return fmt.Errorf("assistant: listen: %w", err)
	}
	logging.InfowCtx(ctx, "assistant enabled",
		append(logging.UserFields(t.Speaker.ID, t.Speaker.DisplayName), "always_awake", a.cfg.AlwaysAwake)...)
	return nil
}

// Disable stops listening, cancels the session's goroutines and capture
// workers, and drops every pending reply and intent. It waits for the
// goroutines to exit or ctx to end. Disabling a disabled assistant is a
// no-op.
func (a *Assistant) Disable(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.current
	if s == nil {
		err := a.waitDrained(ctx)
		a.replies.Clear()
		a.intents.Clear()
		logging.DebugwCtx(ctx, "assistant already disabled")
		return err
	}
	a.current = nil
	a.teardown(s)
	if err := s.target.Voice.StopListening(); err != nil {
		logging.WarnwCtx(ctx, "failed to stop listening", "error", err)
	}

	a.draining = s
	if err := a.waitDrained(ctx); err != nil {
		return err
	}
	logging.InfowCtx(ctx, "assistant disabled", logging.UserFields(s.target.Speaker.ID, s.target.Speaker.DisplayName)...)
	return nil
}

// waitDrained waits for the goroutines of a previously disabled session.
// a.mu must be held.
func (a *Assistant) waitDrained(ctx context.Context) error {
	s := a.draining
	if s == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.draining = nil
		// a command finishing during shutdown may still have queued a reply
		a.replies.Clear()
		a.intents.Clear()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrStillStopping, ctx.Err())
	}
}

func (a *Assistant) teardown(s *session) {
	a.active.CompareAndSwap(s, nil)
	s.gate.Disable()
	s.transcribing.Store(false)
	a.replies.Clear()
	a.intents.Clear()
	s.cancel()
	s.captures.StopAll()
}

func (a *Assistant) goTask(s *session, name string, fn func(context.Context, *session) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn(s.ctx, s)
		if err == nil || s.ctx.Err() != nil {
			return
		}
		logging.ErrorwCtx(s.ctx, "assistant task terminated", "task", name, "error", err)
		a.errMu.Lock()
		if a.err == nil {
			a.err = fmt.Errorf("%s: %w", name, err)
		}
		a.errMu.Unlock()
	}()
}

// Err returns the first error that terminated one of the session's
// goroutines, or nil.
func (a *Assistant) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.err
}

// State reports the wake gate state of the current session.
func (a *Assistant) State() State {
	s := a.active.Load()
	if s == nil {
		return StateDisabled
	}
	return s.gate.State()
}

// Dropped counts windows discarded because the detector fell behind.
func (a *Assistant) Dropped() int64 { return a.dropped.Load() }

// Transcribing reports whether a follow-up query is being captured.
func (a *Assistant) Transcribing() bool {
	s := a.active.Load()
	return s != nil && s.transcribing.Load()
}

// HandleFrame is the FrameHandler given to the voice transport. It must be
// called from a single goroutine.
func (a *Assistant) HandleFrame(speakerID string, pcm []int16) {
	s := a.active.Load()
	if s == nil || speakerID != s.target.Speaker.ID {
		return
	}
	if s.transcribing.Load() {
		s.captures.Append(speakerID, pcm)
		return
	}
	windows, err := s.resampler.Push(pcm)
	if err != nil {
		logging.Warnw("dropping frame", "error", err, "user.id", speakerID)
		return
	}
	for _, w := range windows {
		select {
		case s.windows <- w:
		default:
			n := a.dropped.Add(1)
			logging.Warnw("dropping window; detector backlog full", "dropped_total", n)
		}
	}
}

func (a *Assistant) runDetector(ctx context.Context, s *session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case w := <-s.windows:
			if err := a.detect(s, w); err != nil {
				return err
			}
		}
	}
}

func (a *Assistant) detect(s *session, window []int16) error {
	switch s.gate.Route() {
	case RouteWakeWord:
		fired, err := a.engines.WakeWord.Process(window)
		if err != nil {
			return fmt.Errorf("wake word: %w", err)
		}
		if fired && s.gate.Wake() {
			name := s.target.Speaker.DisplayName
			if name == "" {
				name = s.target.Speaker.ID
			}
			logging.Infow("wake word detected", logging.UserFields(s.target.Speaker.ID, name)...)
			a.Say(fmt.Sprintf(a.cfg.Greeting, name))
		}
	case RouteIntent:
		final, err := a.engines.Intent.Process(window)
		if err != nil {
			return fmt.Errorf("intent: %w", err)
		}
		if !final {
			return nil
		}
		inf, err := a.engines.Intent.Inference()
		if err != nil {
			return fmt.Errorf("intent inference: %w", err)
		}
		if !inf.Understood {
			logging.Debugw("inference not understood; still listening")
			return nil
		}
		cid := uuid.NewString()
		logging.Infow("intent recognized", logging.IntentFields(inf.Name, true, cid)...)
		a.intents.Push(queuedIntent{inference: inf, correlationID: cid})
		s.gate.Sleep()
	}
	return nil
}
