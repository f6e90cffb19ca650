package assistant

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

type fakeWakeWord struct {
	mu     sync.Mutex
	calls  int
	fireAt int // 1-based call that returns true; 0 never fires
	block  chan struct{}
	err    error
}

func (f *fakeWakeWord) Process(frame []int16) (bool, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.fireAt > 0 && f.calls == f.fireAt, nil
}

func (f *fakeWakeWord) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeIntent finalizes on every window and hands out scripted inferences.
type fakeIntent struct {
	mu      sync.Mutex
	calls   int
	script  []Inference
	pending *Inference
}

func (f *fakeIntent) Process(frame []int16) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.script) == 0 {
		return false, nil
	}
	inf := f.script[0]
	f.script = f.script[1:]
	f.pending = &inf
	return true, nil
}

func (f *fakeIntent) Inference() (Inference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		return Inference{}, errors.New("no inference")
	}
	inf := *f.pending
	f.pending = nil
	return inf, nil
}

func (f *fakeIntent) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTranscriber struct {
	mu       sync.Mutex
	text     string
	err      error
	segments []Segment
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, seg Segment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = append(f.segments, seg)
	return f.text, f.err
}

func (f *fakeTranscriber) Segments() []Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Segment(nil), f.segments...)
}

func (f *fakeTranscriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.segments)
}

type fakeSynth struct {
	block chan struct{}
	calls atomic.Int64
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) (Asset, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return Asset{}, ctx.Err()
		}
	}
	return Asset{PCM: make([]int16, 4), SampleRate: 48000, Channels: 2}, nil
}

type fakeVoice struct {
	mu      sync.Mutex
	handler FrameHandler
	listens int
	stops   int
	plays   int
	playing atomic.Bool
}

func (f *fakeVoice) Listen(h FrameHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.listens++
	return nil
}

func (f *fakeVoice) StopListening() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
	f.stops++
	return nil
}

func (f *fakeVoice) IsPlaying() bool { return f.playing.Load() }

func (f *fakeVoice) Play(ctx context.Context, a Asset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return nil
}

// send delivers a frame the way the transport's receive goroutine would.
func (f *fakeVoice) send(speakerID string, pcm []int16) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(speakerID, pcm)
	}
}

func (f *fakeVoice) counts() (listens, stops, plays int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listens, f.stops, f.plays
}

type fakeText struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeText) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeText) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeText) Count(text string) int {
	n := 0
	for _, s := range f.Sent() {
		if s == text {
			n++
		}
	}
	return n
}

type recordedRun struct {
	intent Intent
	query  string
}

type fakeCommands struct {
	mu   sync.Mutex
	runs []recordedRun
	err  error
	// block, when set, holds every run until closed, ignoring ctx.
	block   chan struct{}
	entered atomic.Int32
}

func (f *fakeCommands) Resolve(intent Intent) (Command, bool) {
	if intent == IntentAsk {
		return nil, false
	}
	return CommandFunc(func(ctx context.Context, inv Invocation) error {
		f.entered.Add(1)
		if f.block != nil {
			<-f.block
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.runs = append(f.runs, recordedRun{intent: inv.Intent, query: inv.Query})
		return f.err
	}), true
}

func (f *fakeCommands) Runs() []recordedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRun(nil), f.runs...)
}

// stereo builds an interleaved frame of n stereo frames at a constant level.
func stereo(n int, level int16) []int16 {
	pcm := make([]int16, n*2)
	for i := range pcm {
		pcm[i] = level
	}
	return pcm
}
