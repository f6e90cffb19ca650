package assistant

import (
	"context"
	"errors"
)

var (
	// ErrNotEnabled is returned by operations that need an enabled session.
	ErrNotEnabled = errors.New("assistant: not enabled")
	// ErrMalformedFrame marks a transport frame that is not interleaved stereo.
	ErrMalformedFrame = errors.New("assistant: malformed frame")
	// ErrStillStopping means a disabled session's goroutines have not exited
	// yet.
	ErrStillStopping = errors.New("assistant: previous session still stopping")
)

// Inference is the result of one finalized utterance from the intent engine.
type Inference struct {
	Name       string
	Understood bool
	Slots      map[string]string
}

// Segment is a captured audio span handed to the speech-to-text engine.
type Segment struct {
	PCM        []int16
	SampleRate int
	Channels   int
	// CorrelationID ties the segment to its capture session in logs.
	CorrelationID string
}

// Asset is playable audio produced by the text-to-speech engine.
type Asset struct {
	PCM        []int16
	SampleRate int
	Channels   int
}

// WakeWordEngine consumes fixed-size mono windows at the engine rate.
type WakeWordEngine interface {
	Process(frame []int16) (bool, error)
}

// IntentEngine buffers windows until an utterance boundary, then reports
// that the inference is finalized.
type IntentEngine interface {
	Process(frame []int16) (bool, error)
	Inference() (Inference, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, seg Segment) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Asset, error)
}

// FrameHandler receives decoded interleaved stereo PCM for one speaker.
// It is called from the transport's receive goroutine.
type FrameHandler func(speakerID string, pcm []int16)

// VoiceTransport is the voice connection the assistant listens and speaks on.
type VoiceTransport interface {
	Listen(h FrameHandler) error
	StopListening() error
	IsPlaying() bool
	// Play starts playback and returns without waiting for it to finish.
	Play(ctx context.Context, a Asset) error
}

// TextChannel receives the text form of every reply.
type TextChannel interface {
	Send(ctx context.Context, text string) error
}

// Speaker identifies the priority speaker.
type Speaker struct {
	ID          string
	DisplayName string
}

// Target is everything Enable needs to bind the assistant to a conversation.
type Target struct {
	Voice   VoiceTransport
	Text    TextChannel
	Speaker Speaker
	GuildID string
}

// Invocation is what a command receives when the dispatcher runs it.
type Invocation struct {
	Target        Target
	Intent        Intent
	Query         string
	Slots         map[string]string
	CorrelationID string
	// Say queues a reply through the assistant's reply queue.
	Say func(text string)
}

type Command interface {
	Run(ctx context.Context, inv Invocation) error
}

// CommandFunc adapts a function to Command.
type CommandFunc func(ctx context.Context, inv Invocation) error

func (f CommandFunc) Run(ctx context.Context, inv Invocation) error { return f(ctx, inv) }

type CommandRegistry interface {
	Resolve(intent Intent) (Command, bool)
}
