package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/logging"
)

const (
	transportRate     = 48000
	transportChannels = 2
	// frameSize is samples per channel in one 20 ms opus frame.
	frameSize     = transportRate / 50
	maxOpusPacket = 4000
)

var (
	ErrOpusUnavailable = errors.New("voice: built without opus support")
	ErrListening       = errors.New("voice: already listening")
	ErrBusy            = errors.New("voice: already playing")
)

type frameDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

type frameEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// Connection adapts a discordgo voice connection to assistant.VoiceTransport.
// Received packets are decoded per SSRC and attributed to the user named by
// the latest speaking update for that SSRC.
type Connection struct {
	recv     <-chan *discordgo.Packet
	send     chan<- []byte
	speaking func(bool) error

	newDecoder func() (frameDecoder, error)
	newEncoder func() (frameEncoder, error)

	mu        sync.Mutex
	ssrcUsers map[uint32]string
	decoders  map[uint32]frameDecoder
	stop      chan struct{}
	done      chan struct{}

	playing    atomic.Bool
	decodeErrs atomic.Int64
}

var _ assistant.VoiceTransport = (*Connection)(nil)

// NewConnection wraps vc and registers its speaking update handler.
func NewConnection(vc *discordgo.VoiceConnection) *Connection {
	c := newConnection(vc.OpusRecv, vc.OpusSend, vc.Speaking)
	vc.AddHandler(func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		c.HandleSpeakingUpdate(su)
	})
	return c
}

func newConnection(recv <-chan *discordgo.Packet, send chan<- []byte, speaking func(bool) error) *Connection {
	return &Connection{
		recv:       recv,
		send:       send,
		speaking:   speaking,
		newDecoder: newOpusDecoder,
		newEncoder: newOpusEncoder,
		ssrcUsers:  make(map[uint32]string),
		decoders:   make(map[uint32]frameDecoder),
	}
}

// HandleSpeakingUpdate maps the update's SSRC to its user.
func (c *Connection) HandleSpeakingUpdate(su *discordgo.VoiceSpeakingUpdate) {
	if su == nil || su.UserID == "" {
		return
	}
	c.mu.Lock()
	prev := c.ssrcUsers[uint32(su.SSRC)]
	c.ssrcUsers[uint32(su.SSRC)] = su.UserID
	c.mu.Unlock()
	if prev != su.UserID {
		logging.Debugw("mapped SSRC to user", "ssrc", su.SSRC, "user.id", su.UserID)
	}
}

// UserForSSRC returns the user last seen speaking on ssrc.
func (c *Connection) UserForSSRC(ssrc uint32) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ssrcUsers[ssrc]
}

// Listen starts the receive goroutine. h is called from that goroutine only.
func (c *Connection) Listen(h assistant.FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return ErrListening
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.receive(h, c.stop, c.done)
	return nil
}

// StopListening stops the receive goroutine and waits for it to exit.
func (c *Connection) StopListening() error {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (c *Connection) receive(h assistant.FrameHandler, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	pcm := make([]int16, frameSize*transportChannels)
	for {
		select {
		case <-stop:
			return
		case pkt, ok := <-c.recv:
			if !ok {
				logging.Infow("voice receive channel closed")
				return
			}
			if pkt == nil {
				continue
			}
			userID, dec, err := c.route(pkt.SSRC)
			if err != nil {
				logging.Warnw("failed to create opus decoder", "ssrc", pkt.SSRC, "err", err)
				continue
			}
			if userID == "" {
				// no speaking update yet for this SSRC
				continue
			}
			n, err := dec.Decode(pkt.Opus, pcm)
			if err != nil {
				total := c.decodeErrs.Add(1)
				logging.Debugw("opus decode error", "ssrc", pkt.SSRC, "err", err, "decode_errors", total)
				continue
			}
			frame := make([]int16, n*transportChannels)
			copy(frame, pcm)
			h(userID, frame)
		}
	}
}

func (c *Connection) route(ssrc uint32) (string, frameDecoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	userID := c.ssrcUsers[ssrc]
	if userID == "" {
		return "", nil, nil
	}
	dec, ok := c.decoders[ssrc]
	if !ok {
		d, err := c.newDecoder()
		if err != nil {
			return "", nil, err
		}
		dec = d
		c.decoders[ssrc] = dec
	}
	return userID, dec, nil
}

func (c *Connection) IsPlaying() bool { return c.playing.Load() }

// Play converts the asset to 48 kHz stereo and streams it as opus frames on
// a background goroutine. It returns ErrBusy if something is playing.
func (c *Connection) Play(ctx context.Context, a assistant.Asset) error {
	pcm, err := toTransportPCM(a)
	if err != nil {
		return err
	}
	enc, err := c.newEncoder()
	if err != nil {
		return err
	}
	if !c.playing.CompareAndSwap(false, true) {
		return ErrBusy
	}
	go func() {
		defer c.playing.Store(false)
		if err := c.stream(ctx, enc, pcm); err != nil && ctx.Err() == nil {
			logging.Warnw("playback failed", "err", err)
		}
	}()
	return nil
}

func (c *Connection) stream(ctx context.Context, enc frameEncoder, pcm []int16) error {
	if c.speaking != nil {
		if err := c.speaking(true); err != nil {
			return fmt.Errorf("speaking on: %w", err)
		}
		defer func() { _ = c.speaking(false) }()
	}
	step := frameSize * transportChannels
	frame := make([]int16, step)
	for off := 0; off < len(pcm); off += step {
		n := copy(frame, pcm[off:min(off+step, len(pcm))])
		clear(frame[n:])
		buf := make([]byte, maxOpusPacket)
		m, err := enc.Encode(frame, buf)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.send <- buf[:m]:
		}
	}
	return nil
}
