package assistant

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/discord-voice-assistant/internal/logging"
)

// CaptureConfig controls follow-up phrase capture.
type CaptureConfig struct {
	SampleRate int
	Channels   int
	// ChunkFrames is how many frames the worker reads per step.
	ChunkFrames int
	// ReadRetries and ReadRetryInterval bound how long a read waits for
	// audio before treating the input as ended.
	ReadRetries       int
	ReadRetryInterval time.Duration
	PauseThreshold    time.Duration
	PhraseTimeLimit   time.Duration
	EnergyThreshold   float64
	// MaxBufferBytes caps buffered audio; the oldest bytes are trimmed
	// first. Zero means unbounded.
	MaxBufferBytes int
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:        48000,
		Channels:          2,
		ChunkFrames:       960,
		ReadRetries:       10,
		ReadRetryInterval: 100 * time.Millisecond,
		PauseThreshold:    800 * time.Millisecond,
		PhraseTimeLimit:   10 * time.Second,
		EnergyThreshold:   300,
		MaxBufferBytes:    48000 * 2 * 2 * 30,
	}
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	d := DefaultCaptureConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = d.Channels
	}
	if c.ChunkFrames <= 0 {
		c.ChunkFrames = d.ChunkFrames
	}
	if c.ReadRetries <= 0 {
		c.ReadRetries = d.ReadRetries
	}
	if c.ReadRetryInterval <= 0 {
		c.ReadRetryInterval = d.ReadRetryInterval
	}
	if c.PauseThreshold <= 0 {
		c.PauseThreshold = d.PauseThreshold
	}
	if c.PhraseTimeLimit <= 0 {
		c.PhraseTimeLimit = d.PhraseTimeLimit
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = d.EnergyThreshold
	}
	return c
}

// startTimeout is how long a follow-up may wait for its first audio before
// the capture is abandoned.
func (c CaptureConfig) startTimeout() time.Duration {
	return c.PhraseTimeLimit + time.Duration(c.ReadRetries)*c.ReadRetryInterval
}

// CaptureBuffer is a byte buffer written by the transport goroutine and
// read by one capture worker. Writes never block.
type CaptureBuffer struct {
	mu     sync.Mutex
	buf    []byte
	max    int
	notify chan struct{}
}

func NewCaptureBuffer(max int) *CaptureBuffer {
	return &CaptureBuffer{max: max, notify: make(chan struct{}, 1)}
}

func (b *CaptureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.buf = append(b.buf, p...)
	if b.max > 0 && len(b.buf) > b.max {
		over := len(b.buf) - b.max
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
	return len(p), nil
}

func (b *CaptureBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *CaptureBuffer) Reset() {
	b.mu.Lock()
	b.buf = nil
	b.mu.Unlock()
}

func (b *CaptureBuffer) take(n int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	if n > len(b.buf) {
		n = len(b.buf)
	}
	out := make([]byte, n)
	copy(out, b.buf[:n])
	b.buf = b.buf[n:]
	return out
}

// ReadChunk returns up to n bytes. When fewer than n are buffered it waits
// up to wait for more, then returns whatever it has. An empty result with a
// nil error means no audio arrived in time.
func (b *CaptureBuffer) ReadChunk(ctx context.Context, n int, wait time.Duration) ([]byte, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		if b.Len() >= n {
			return b.take(n), nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return b.take(n), nil
		case <-b.notify:
		}
	}
}

// CaptureResult is delivered once a capture worker has a transcript.
type CaptureResult struct {
	SpeakerID     string
	Text          string
	CorrelationID string
	Err           error
}

// CaptureSession is one speaker's follow-up buffer and its worker.
type CaptureSession struct {
	SpeakerID     string
	CorrelationID string

	buf *CaptureBuffer

	mu      sync.Mutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func newCaptureSession(speakerID string, maxBytes int) *CaptureSession {
	return &CaptureSession{
		SpeakerID:     speakerID,
		CorrelationID: uuid.NewString(),
		buf:           NewCaptureBuffer(maxBytes),
		done:          make(chan struct{}),
	}
}

// Stop cancels the worker, if any, and clears the buffer. A stopped session
// ignores further audio.
func (c *CaptureSession) Stop() {
	c.mu.Lock()
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.buf.Reset()
}

// abandonIfIdle stops the session if no audio has started its worker and
// reports whether it did.
func (c *CaptureSession) abandonIfIdle() bool {
	c.mu.Lock()
	idle := !c.started && !c.closed
	if idle {
		c.closed = true
	}
	c.mu.Unlock()
	if idle {
		c.buf.Reset()
	}
	return idle
}

// Done is closed when the worker exits. It never closes for a session whose
// worker was not started.
func (c *CaptureSession) Done() <-chan struct{} { return c.done }

// captureRegistry maps speaker ids to capture sessions. Append runs on the
// transport goroutine; Reset and Stop run on the dispatcher.
type captureRegistry struct {
	cfg     CaptureConfig
	stt     Transcriber
	parent  context.Context
	results chan<- CaptureResult

	mu       sync.Mutex
	sessions map[string]*CaptureSession

	started atomic.Int64
}

func newCaptureRegistry(parent context.Context, cfg CaptureConfig, stt Transcriber, results chan<- CaptureResult) *captureRegistry {
	return &captureRegistry{
		cfg:      cfg.withDefaults(),
		stt:      stt,
		parent:   parent,
		results:  results,
		sessions: make(map[string]*CaptureSession),
	}
}

func (r *captureRegistry) get(speakerID string) *CaptureSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[speakerID]
	if !ok {
		s = newCaptureSession(speakerID, r.cfg.MaxBufferBytes)
		r.sessions[speakerID] = s
	}
	return s
}

// Reset stops any existing session for the speaker and installs a fresh one.
func (r *captureRegistry) Reset(speakerID string) *CaptureSession {
	fresh := newCaptureSession(speakerID, r.cfg.MaxBufferBytes)
	r.mu.Lock()
	old := r.sessions[speakerID]
	r.sessions[speakerID] = fresh
	r.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	return fresh
}

// Append buffers decoded stereo PCM and starts the worker on first audio.
func (r *captureRegistry) Append(speakerID string, pcm []int16) {
	s := r.get(speakerID)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	startWorker := !s.started
	var ctx context.Context
	if startWorker {
		s.started = true
		ctx, s.cancel = context.WithCancel(r.parent)
	}
	s.mu.Unlock()

	_, _ = s.buf.Write(pcmToBytes(pcm))
	if startWorker {
		r.started.Add(1)
		logging.Debugw("capture worker started", logging.CaptureFields(speakerID, s.buf.Len(), s.CorrelationID)...)
		go r.run(ctx, s)
	}
}

func (r *captureRegistry) Stop(speakerID string) {
	r.mu.Lock()
	s := r.sessions[speakerID]
	r.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (r *captureRegistry) StopAll() {
	r.mu.Lock()
	all := make([]*CaptureSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()
	for _, s := range all {
		s.Stop()
	}
}

func (r *captureRegistry) run(ctx context.Context, s *CaptureSession) {
	defer close(s.done)
	pcm, err := listenPhrase(ctx, s.buf, r.cfg)
	if err != nil {
		return
	}
	res := CaptureResult{SpeakerID: s.SpeakerID, CorrelationID: s.CorrelationID}
	if len(pcm) == 0 {
		logging.Infow("no speech before the phrase limit", "user.id", s.SpeakerID, "correlation_id", s.CorrelationID)
	} else {
		res.Text, res.Err = r.stt.Transcribe(ctx, Segment{
			PCM:           pcm,
			SampleRate:    r.cfg.SampleRate,
			Channels:      1,
			CorrelationID: s.CorrelationID,
		})
		if ctx.Err() != nil {
			return
		}
	}
	select {
	case r.results <- res:
	default:
		logging.Warnw("dropping transcript; query already pending", "correlation_id", s.CorrelationID)
	}
}

// listenPhrase reads chunks until a phrase has been spoken and followed by
// a pause, the phrase limit is reached, or input ends after speech began.
// Audio before the first loud chunk is discarded. If nothing loud arrives
// within the phrase limit it returns an empty phrase.
func listenPhrase(ctx context.Context, buf *CaptureBuffer, cfg CaptureConfig) ([]int16, error) {
	chunkBytes := cfg.ChunkFrames * cfg.Channels * 2
	wait := time.Duration(cfg.ReadRetries) * cfg.ReadRetryInterval

	var (
		phrase  []int16
		started bool
		spoken  time.Duration
		silence time.Duration
		// quiet audio and empty reads before speech started
		waited time.Duration
	)
	for {
		chunk, err := buf.ReadChunk(ctx, chunkBytes, wait)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			if started {
				return phrase, nil
			}
			waited += wait
			if waited >= cfg.PhraseTimeLimit {
				return nil, nil
			}
			continue
		}
		mono := downmix(chunk, cfg.Channels)
		dur := time.Duration(len(mono)) * time.Second / time.Duration(cfg.SampleRate)
		loud := rmsEnergy(mono) >= cfg.EnergyThreshold
		if !started {
			if !loud {
				waited += dur
				if waited >= cfg.PhraseTimeLimit {
					return nil, nil
				}
				continue
			}
			started = true
		}
		phrase = append(phrase, mono...)
		spoken += dur
		if loud {
			silence = 0
		} else {
			silence += dur
		}
		if silence >= cfg.PauseThreshold || spoken >= cfg.PhraseTimeLimit {
			return phrase, nil
		}
	}
}
