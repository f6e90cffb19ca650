package assistant

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/discord-voice-assistant/internal/logging"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	a      *Assistant
	wake   *fakeWakeWord
	intent *fakeIntent
	stt    *fakeTranscriber
	synth  *fakeSynth
	voice  *fakeVoice
	text   *fakeText
	cmds   *fakeCommands
}

func testConfig() Config {
	cfg := DefaultConfig()
	// equal rates keep windows an exact function of the input
	cfg.TransportRate = 16000
	cfg.EngineRate = 16000
	cfg.Capture.ReadRetries = 1
	cfg.Capture.ReadRetryInterval = 20 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		wake:   &fakeWakeWord{},
		intent: &fakeIntent{},
		stt:    &fakeTranscriber{},
		synth:  &fakeSynth{},
		voice:  &fakeVoice{},
		text:   &fakeText{},
		cmds:   &fakeCommands{},
	}
	a, err := New(cfg, Engines{
		WakeWord:    h.wake,
		Intent:      h.intent,
		Transcriber: h.stt,
		Synthesizer: h.synth,
	}, h.cmds)
	require.NoError(t, err)
	h.a = a
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = a.Disable(ctx)
	})
	return h
}

func (h *harness) enable(t *testing.T) {
	t.Helper()
	err := h.a.Enable(context.Background(), Target{
		Voice:   h.voice,
		Text:    h.text,
		Speaker: Speaker{ID: "alice-id", DisplayName: "Alice"},
	})
	require.NoError(t, err)
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core).Sugar())
	t.Cleanup(func() { logging.SetLogger(nil) })
	return logs
}

// window sends exactly one engine window from the priority speaker.
func (h *harness) window() {
	h.voice.send("alice-id", stereo(512, 0))
}

func TestNewRequiresEngines(t *testing.T) {
	_, err := New(DefaultConfig(), Engines{}, &fakeCommands{})
	require.Error(t, err)
}

func TestEnableRejectsIncompleteTarget(t *testing.T) {
	h := newHarness(t, testConfig())
	err := h.a.Enable(context.Background(), Target{Voice: h.voice, Text: h.text})
	require.Error(t, err)
	assert.Equal(t, StateDisabled, h.a.State())
}

func TestNonPriorityFramesAreDiscarded(t *testing.T) {
	h := newHarness(t, testConfig())
	h.wake.fireAt = 1
	h.enable(t)

	for i := 0; i < 50; i++ {
		h.voice.send("bob-id", stereo(512, 1000))
	}
	// flush anything the detector may still be holding
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, StateDormant, h.a.State())
	assert.Zero(t, h.wake.Calls())
	assert.Zero(t, h.intent.Calls())
	assert.Zero(t, h.a.active.Load().resampler.Buffered())
	assert.Empty(t, h.text.Sent())
}

func TestDormantFeedsOnlyWakeWord(t *testing.T) {
	h := newHarness(t, testConfig())
	h.enable(t)

	for i := 0; i < 5; i++ {
		h.window()
	}
	require.Eventually(t, func() bool { return h.wake.Calls() == 5 }, waitFor, tick)
	assert.Zero(t, h.intent.Calls())
	assert.Equal(t, StateDormant, h.a.State())
}

func TestWakeWordAcrossTwoFrames(t *testing.T) {
	h := newHarness(t, testConfig())
	h.wake.fireAt = 1
	h.enable(t)

	// 600 samples across two frames yields one 512 window
	h.voice.send("alice-id", stereo(300, 0))
	h.voice.send("alice-id", stereo(300, 0))

	require.Eventually(t, func() bool { return h.a.State() == StateAwake }, waitFor, tick)
	require.Eventually(t, func() bool { return len(h.text.Sent()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"Hi Alice, how can I help you?"}, h.text.Sent())
	assert.Equal(t, 1, h.wake.Calls())
	assert.Equal(t, 88, h.a.active.Load().resampler.Buffered())
}

func TestAwakeStopIntentAcknowledgesAndRuns(t *testing.T) {
	h := newHarness(t, testConfig())
	h.wake.fireAt = 1
	h.intent.script = []Inference{{Name: "stop", Understood: true}}
	h.enable(t)

	h.window()
	require.Eventually(t, func() bool { return h.a.State() == StateAwake }, waitFor, tick)
	h.window()

	require.Eventually(t, func() bool { return len(h.cmds.Runs()) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.text.Count("Okay, I will stop") == 1 }, waitFor, tick)
	assert.Equal(t, IntentStop, h.cmds.Runs()[0].intent)
	assert.Equal(t, StateDormant, h.a.State())
	assert.Zero(t, h.a.active.Load().captures.started.Load())
	assert.Zero(t, h.stt.Calls())
}

func TestAlwaysAwakeSkipsWakeWord(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	h := newHarness(t, cfg)
	h.intent.script = []Inference{{Name: "pause", Understood: true}, {Name: "resume", Understood: true}}
	h.enable(t)

	h.window()
	h.window()
	require.Eventually(t, func() bool { return len(h.cmds.Runs()) == 2 }, waitFor, tick)
	assert.Zero(t, h.wake.Calls())
	assert.Equal(t, StateAwake, h.a.State())
	assert.Equal(t, []recordedRun{{intent: IntentPause}, {intent: IntentResume}}, h.cmds.Runs())
}

func TestUnknownAndNotUnderstoodInferencesAreDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	h := newHarness(t, cfg)
	logs := observeLogs(t)
	h.intent.script = []Inference{
		{Name: "stop", Understood: false},
		{Name: "dance", Understood: true},
		// no command is registered for ask
		{Name: "ask", Understood: true},
		{Name: "skip", Understood: true},
	}
	h.enable(t)

	for i := 0; i < 4; i++ {
		h.window()
	}
	require.Eventually(t, func() bool { return len(h.cmds.Runs()) == 1 }, waitFor, tick)
	assert.Equal(t, IntentSkip, h.cmds.Runs()[0].intent)
	require.Eventually(t, func() bool { return len(h.text.Sent()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"Okay, I will skip"}, h.text.Sent())

	assert.Equal(t, 1, logs.FilterMessage("discarding inference with unknown intent").FilterLevelExact(zapcore.DebugLevel).Len())
	assert.Equal(t, 1, logs.FilterMessage("no command registered for intent").FilterLevelExact(zapcore.DebugLevel).Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestTwoPhasePlay(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	// wide enough that the five frames below land in one phrase
	cfg.Capture.ReadRetries = 5
	h := newHarness(t, cfg)
	h.intent.script = []Inference{{Name: "play", Understood: true}}
	h.stt.text = "X"
	h.enable(t)

	h.window()
	require.Eventually(t, h.a.Transcribing, waitFor, tick)

	for i := 0; i < 5; i++ {
		h.voice.send("alice-id", stereo(960, 4000))
	}
	// another speaker talking over the query is ignored
	h.voice.send("bob-id", stereo(960, 4000))

	require.Eventually(t, func() bool { return len(h.cmds.Runs()) == 1 }, waitFor, tick)
	assert.Equal(t, recordedRun{intent: IntentPlay, query: "X"}, h.cmds.Runs()[0])
	assert.False(t, h.a.Transcribing())
	assert.Equal(t, int64(1), h.a.active.Load().captures.started.Load())
	assert.Equal(t, 1, h.stt.Calls())
	require.Eventually(t, func() bool { return len(h.text.Sent()) == 1 }, waitFor, tick)
	assert.Equal(t, 1, h.text.Count("What would you like me to play?"))

	seg := h.stt.Segments()[0]
	assert.Equal(t, 1, seg.Channels)
	assert.Len(t, seg.PCM, 5*960)
	assert.Equal(t, int16(8000), seg.PCM[0], "channels are summed")
}

func TestEmptyQueryIsNotRun(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	h := newHarness(t, cfg)
	h.intent.script = []Inference{{Name: "play", Understood: true}}
	h.stt.text = "   "
	h.enable(t)

	h.window()
	require.Eventually(t, h.a.Transcribing, waitFor, tick)
	h.voice.send("alice-id", stereo(960, 4000))

	require.Eventually(t, func() bool { return h.text.Count("Sorry, I didn't catch that.") == 1 }, waitFor, tick)
	assert.Empty(t, h.cmds.Runs())
	assert.False(t, h.a.Transcribing())
}

func TestTranscriptionErrorTerminatesDispatcher(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	h := newHarness(t, cfg)
	h.intent.script = []Inference{{Name: "play", Understood: true}}
	h.stt.err = errors.New("stt down")
	h.enable(t)

	h.window()
	require.Eventually(t, h.a.Transcribing, waitFor, tick)
	h.voice.send("alice-id", stereo(960, 4000))

	require.Eventually(t, func() bool { return h.a.Err() != nil }, waitFor, tick)
	assert.ErrorContains(t, h.a.Err(), "dispatcher")
	assert.Empty(t, h.cmds.Runs())
}

func TestWakeWordErrorTerminatesDetector(t *testing.T) {
	h := newHarness(t, testConfig())
	logs := observeLogs(t)
	h.wake.err = errors.New("engine crashed")
	h.enable(t)

	h.window()
	require.Eventually(t, func() bool { return h.a.Err() != nil }, waitFor, tick)
	assert.ErrorContains(t, h.a.Err(), "engine crashed")

	require.Eventually(t, func() bool {
		return logs.FilterMessage("assistant task terminated").Len() == 1
	}, waitFor, tick)
	fields := logs.FilterMessage("assistant task terminated").All()[0].ContextMap()
	assert.Equal(t, "alice-id", fields["user.id"], "session fields are attached")
	assert.Equal(t, "detector", fields["task"])
}

func TestCommandErrorDoesNotStopDispatcher(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	h := newHarness(t, cfg)
	h.cmds.err = errors.New("boom")
	h.intent.script = []Inference{{Name: "stop", Understood: true}, {Name: "skip", Understood: true}}
	h.enable(t)

	h.window()
	h.window()
	require.Eventually(t, func() bool { return len(h.cmds.Runs()) == 2 }, waitFor, tick)
	assert.NoError(t, h.a.Err())
}

func TestSayIsFIFO(t *testing.T) {
	h := newHarness(t, testConfig())
	h.enable(t)

	var want []string
	for i := 0; i < 20; i++ {
		msg := fmt.Sprintf("message %d", i)
		want = append(want, msg)
		h.a.Say(msg)
	}
	require.Eventually(t, func() bool { return len(h.text.Sent()) == len(want) }, waitFor, tick)
	assert.Equal(t, want, h.text.Sent())
	_, _, plays := h.voice.counts()
	assert.Equal(t, len(want), plays)
}

func TestSayWhilePlayingSendsTextOnly(t *testing.T) {
	h := newHarness(t, testConfig())
	h.voice.playing.Store(true)
	h.enable(t)

	h.a.Say("hello")
	require.Eventually(t, func() bool { return len(h.text.Sent()) == 1 }, waitFor, tick)
	_, _, plays := h.voice.counts()
	assert.Zero(t, plays)
}

func TestDoubleEnableIsNoop(t *testing.T) {
	h := newHarness(t, testConfig())
	h.enable(t)
	h.enable(t)

	listens, _, _ := h.voice.counts()
	assert.Equal(t, 1, listens)
}

func TestDisableIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig())
	h.synth.block = make(chan struct{})
	h.enable(t)

	h.a.Say("one")
	h.a.Say("two")
	h.a.Say("three")
	require.Eventually(t, func() bool { return h.synth.calls.Load() == 1 }, waitFor, tick)

	ctx := context.Background()
	require.NoError(t, h.a.Disable(ctx))
	require.NoError(t, h.a.Disable(ctx))

	assert.Equal(t, StateDisabled, h.a.State())
	assert.Zero(t, h.a.replies.Len())
	assert.Zero(t, h.a.intents.Len())
	_, stops, _ := h.voice.counts()
	assert.Equal(t, 1, stops)
	assert.Empty(t, h.text.Sent())

	// frames after disable reach nothing
	h.window()
	assert.Zero(t, h.wake.Calls())
}

func TestDisableStopsCapture(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	cfg.Capture.ReadRetries = 50
	h := newHarness(t, cfg)
	h.intent.script = []Inference{{Name: "play", Understood: true}}
	h.enable(t)

	h.window()
	require.Eventually(t, h.a.Transcribing, waitFor, tick)
	h.voice.send("alice-id", stereo(960, 4000))
	s := h.a.active.Load()
	require.Eventually(t, func() bool { return s.captures.started.Load() == 1 }, waitFor, tick)

	require.NoError(t, h.a.Disable(context.Background()))
	assert.False(t, h.a.Transcribing())
	cs := s.captures.get("alice-id")
	select {
	case <-cs.Done():
	case <-time.After(waitFor):
		t.Fatal("capture worker still running after disable")
	}
	assert.Zero(t, cs.buf.Len())
	assert.Zero(t, h.stt.Calls())
}

func TestReenableAfterDisable(t *testing.T) {
	h := newHarness(t, testConfig())
	h.wake.fireAt = 1
	h.enable(t)
	require.NoError(t, h.a.Disable(context.Background()))
	h.enable(t)

	h.window()
	require.Eventually(t, func() bool { return h.a.State() == StateAwake }, waitFor, tick)
}

func TestDetectorBacklogDropsNewest(t *testing.T) {
	cfg := testConfig()
	cfg.WindowBacklog = 2
	h := newHarness(t, cfg)
	h.wake.block = make(chan struct{})
	h.enable(t)

	for i := 0; i < 10; i++ {
		h.window()
	}
	assert.GreaterOrEqual(t, h.a.Dropped(), int64(7))
	close(h.wake.block)
	require.Eventually(t, func() bool { return int64(h.wake.Calls())+h.a.Dropped() == 10 }, waitFor, tick)
}

func TestMalformedFrameIsDropped(t *testing.T) {
	h := newHarness(t, testConfig())
	h.enable(t)

	h.voice.send("alice-id", make([]int16, 1023))
	h.window()
	require.Eventually(t, func() bool { return h.wake.Calls() == 1 }, waitFor, tick)
	assert.Zero(t, h.a.active.Load().resampler.Buffered())
}

func TestSilentFollowUpEndsCapture(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	cfg.Capture.PhraseTimeLimit = 200 * time.Millisecond
	h := newHarness(t, cfg)
	h.intent.script = []Inference{{Name: "play", Understood: true}, {Name: "stop", Understood: true}}
	h.enable(t)

	h.window()
	require.Eventually(t, h.a.Transcribing, waitFor, tick)
	// 1.5 s of silence from the priority speaker
	for i := 0; i < 75; i++ {
		h.voice.send("alice-id", stereo(960, 0))
	}

	require.Eventually(t, func() bool { return !h.a.Transcribing() }, waitFor, tick)
	require.Eventually(t, func() bool { return h.text.Count("Sorry, I didn't catch that.") == 1 }, waitFor, tick)
	assert.Zero(t, h.stt.Calls())
	assert.Empty(t, h.cmds.Runs())

	// the dispatcher moves on to the next intent
	h.window()
	require.Eventually(t, func() bool { return len(h.cmds.Runs()) == 1 }, waitFor, tick)
	assert.Equal(t, IntentStop, h.cmds.Runs()[0].intent)
}

func TestFollowUpWithoutAudioGivesUp(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	cfg.Capture.PhraseTimeLimit = 100 * time.Millisecond
	h := newHarness(t, cfg)
	h.intent.script = []Inference{{Name: "play", Understood: true}}
	h.enable(t)

	h.window()
	require.Eventually(t, h.a.Transcribing, waitFor, tick)
	s := h.a.active.Load()

	require.Eventually(t, func() bool { return !h.a.Transcribing() }, waitFor, tick)
	require.Eventually(t, func() bool { return h.text.Count("Sorry, I didn't catch that.") == 1 }, waitFor, tick)
	assert.Zero(t, s.captures.started.Load())
	assert.Empty(t, h.cmds.Runs())

	// audio after giving up goes back to the engines, not the capture
	h.voice.send("alice-id", stereo(960, 4000))
	assert.Zero(t, s.captures.started.Load())
	assert.Zero(t, s.captures.get("alice-id").buf.Len())
}

func TestEnableWaitsForStoppingSession(t *testing.T) {
	cfg := testConfig()
	cfg.AlwaysAwake = true
	h := newHarness(t, cfg)
	h.cmds.block = make(chan struct{})
	h.intent.script = []Inference{{Name: "stop", Understood: true}}
	h.enable(t)

	h.window()
	require.Eventually(t, func() bool { return h.cmds.entered.Load() == 1 }, waitFor, tick)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.a.Disable(ctx), context.DeadlineExceeded)
	assert.Equal(t, StateDisabled, h.a.State())

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	err := h.a.Enable(ctx2, Target{Voice: h.voice, Text: h.text, Speaker: Speaker{ID: "alice-id"}})
	require.ErrorIs(t, err, ErrStillStopping)
	listens, _, _ := h.voice.counts()
	assert.Equal(t, 1, listens, "no second session while the first is stopping")

	close(h.cmds.block)
	h.enable(t)
	listens, _, _ = h.voice.counts()
	assert.Equal(t, 2, listens)
}
