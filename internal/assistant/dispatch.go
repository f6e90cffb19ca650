package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/discord-voice-assistant/internal/logging"
)

type queuedIntent struct {
	inference     Inference
	correlationID string
}

// runDispatcher drains the intent queue one inference at a time. An
// inference that needs a follow-up query holds the queue until the query
// is captured or the session ends.
func (a *Assistant) runDispatcher(ctx context.Context, s *session) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.intents.Notify():
		}
		for {
			if ctx.Err() != nil {
				return nil
			}
			item, ok := a.intents.Pop()
			if !ok {
				break
			}
			if err := a.dispatch(ctx, s, item); err != nil {
				return err
			}
		}
	}
}

func (a *Assistant) dispatch(ctx context.Context, s *session, item queuedIntent) error {
	inf := item.inference
	fields := logging.IntentFields(inf.Name, inf.Understood, item.correlationID)

	intent, ok := ParseIntent(inf.Name)
	if !ok {
		logging.Debugw("discarding inference with unknown intent", fields...)
		return nil
	}
	cmd, ok := a.commands.Resolve(intent)
	if !ok {
		logging.Debugw("no command registered for intent", fields...)
		return nil
	}

	inv := Invocation{
		Target:        s.target,
		Intent:        intent,
		Slots:         inf.Slots,
		CorrelationID: item.correlationID,
		Say:           a.Say,
	}
	if prompt, ok := intent.FollowUp(); ok {
		query, proceed, err := a.awaitQuery(ctx, s, prompt, item.correlationID)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
		inv.Query = query
	} else {
		a.Say(fmt.Sprintf(a.cfg.Acknowledgement, intent))
	}

	logging.Infow("running command", fields...)
	if err := cmd.Run(ctx, inv); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logging.Warnw("command failed", append(fields, "error", err)...)
	}
	return nil
}

// awaitQuery runs the follow-up capture for the priority speaker. It
// reports proceed=false when the session ended or the transcript was
// empty; a transcription error is returned. A capture that receives no
// audio at all is given up after the capture start timeout and treated as
// an empty transcript.
func (a *Assistant) awaitQuery(ctx context.Context, s *session, prompt, correlationID string) (string, bool, error) {
	speaker := s.target.Speaker.ID

	capture := s.captures.Reset(speaker)
	select {
	case <-s.queryReady:
	default:
	}
	s.transcribing.Store(true)
	a.Say(prompt)

	idle := time.NewTimer(a.cfg.Capture.startTimeout())
	defer idle.Stop()

	var res CaptureResult
wait:
	for {
		select {
		case <-ctx.Done():
			s.transcribing.Store(false)
			s.captures.Stop(speaker)
			return "", false, nil
		case res = <-s.queryReady:
			break wait
		case <-idle.C:
			// once the worker runs, it ends the capture itself
			if capture.abandonIfIdle() {
				logging.Infow("no follow-up audio received", "correlation_id", correlationID, "capture_id", capture.CorrelationID)
				res = CaptureResult{SpeakerID: speaker, CorrelationID: capture.CorrelationID}
				break wait
			}
		}
	}
	s.transcribing.Store(false)
	s.captures.Stop(speaker)

	if res.Err != nil {
		return "", false, fmt.Errorf("transcribe: %w", res.Err)
	}
	query := strings.TrimSpace(res.Text)
	if query == "" {
		logging.Infow("follow-up transcript empty", "correlation_id", correlationID, "capture_id", res.CorrelationID)
		a.Say(a.cfg.EmptyQueryReply)
		return "", false, nil
	}
	logging.Infow("follow-up query captured", "correlation_id", correlationID, "capture_id", res.CorrelationID, "query", query)
	return query, true, nil
}
