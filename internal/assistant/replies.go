package assistant

import (
	"context"
	"fmt"

	"github.com/discord-voice-assistant/internal/logging"
)

// Say queues text to be spoken and posted to the text channel. It never
// blocks and may be called before Enable; queued replies are dropped by
// Disable.
func (a *Assistant) Say(text string) {
	if text == "" {
		return
	}
	a.replies.Push(text)
}

// runSpeaker drains the reply queue in order. One reply is synthesized,
// played (unless something else is already playing) and posted before the
// next is taken.
func (a *Assistant) runSpeaker(ctx context.Context, s *session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.replies.Notify():
		}
		for {
			if ctx.Err() != nil {
				return nil
			}
			msg, ok := a.replies.Pop()
			if !ok {
				break
			}
			if err := a.speak(ctx, s, msg); err != nil {
				return err
			}
		}
	}
}

func (a *Assistant) speak(ctx context.Context, s *session, msg string) error {
	asset, err := a.engines.Synthesizer.Synthesize(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("synthesize: %w", err)
	}
	if s.target.Voice.IsPlaying() {
		logging.Debugw("voice busy; reply sent as text only", "reply", msg)
	} else if err := s.target.Voice.Play(ctx, asset); err != nil {
		logging.Warnw("failed to play reply", "error", err)
	}
	if err := s.target.Text.Send(ctx, msg); err != nil {
		logging.Warnw("failed to post reply", "error", err)
	}
	return nil
}
