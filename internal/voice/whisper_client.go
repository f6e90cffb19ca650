package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/logging"
)

// WhisperClient transcribes segments by POSTing them as WAV to a
// whisper-compatible HTTP service that answers {"text": "..."}.
type WhisperClient struct {
	URL       string
	Language  string
	Translate bool
	BeamSize  int
	Timeout   time.Duration
	Attempts  int
	Client    *http.Client
	// Archive, when set, keeps every transcribed segment with its result.
	Archive *Archive
}

var _ assistant.Transcriber = (*WhisperClient)(nil)

func (w *WhisperClient) endpoint() (string, error) {
	u, err := url.Parse(w.URL)
	if err != nil {
		return "", fmt.Errorf("whisper url: %w", err)
	}
	q := u.Query()
	if w.Translate {
		q.Set("task", "translate")
	}
	if w.BeamSize > 0 {
		q.Set("beam_size", strconv.Itoa(w.BeamSize))
	}
	if w.Language != "" {
		q.Set("language", w.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (w *WhisperClient) Transcribe(ctx context.Context, seg assistant.Segment) (string, error) {
	if w == nil || w.URL == "" {
		return "", errors.New("whisper: url not configured")
	}
	endpoint, err := w.endpoint()
	if err != nil {
		return "", err
	}
	if len(seg.PCM) == 0 {
		return "", nil
	}

	var sidecar string
	if w.Archive != nil {
		if sidecar, err = w.Archive.Save(seg, time.Now()); err != nil {
			logging.Warnw("whisper: failed to archive segment", "err", err, "correlation_id", seg.CorrelationID)
		}
	}

	durationMS := len(seg.PCM) / max(seg.Channels, 1) * 1000 / max(seg.SampleRate, 1)
	logging.Debugw("sending audio to whisper", "url", endpoint, "correlation_id", seg.CorrelationID, "samples", len(seg.PCM), "duration_ms", durationMS)

	sent := time.Now()
	resp, err := PostWithRetries(ctx, w.Client, Request{
		URL:           endpoint,
		Body:          buildWAV(seg.PCM, seg.SampleRate, seg.Channels),
		ContentType:   "audio/wav",
		Timeout:       w.Timeout,
		Attempts:      max(w.Attempts, 1),
		CorrelationID: seg.CorrelationID,
	})
	if err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("whisper: status %d", resp.StatusCode)
	}

	var out struct {
		Text         string          `json:"text"`
		ProcessingMS json.Number     `json:"processing_ms"`
		Segments     json.RawMessage `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	latency := time.Since(sent)
	transcript := strings.TrimSpace(out.Text)

	serverMS := 0
	if v := resp.Header.Get("X-Processing-Time-ms"); v != "" {
		serverMS, _ = strconv.Atoi(v)
	} else if n, err := out.ProcessingMS.Int64(); err == nil {
		serverMS = int(n)
	}
	logging.Infow("STT response received", "correlation_id", seg.CorrelationID, "status", resp.StatusCode,
		"stt_latency_ms", latency.Milliseconds(), "stt_server_ms", serverMS, "chars", len(transcript))

	if sidecar != "" {
		updates := map[string]interface{}{
			"stt_request_sent_utc": sent.UTC().Format(time.RFC3339Nano),
			"stt_latency_ms":       latency.Milliseconds(),
			"stt_status":           resp.StatusCode,
			"transcript":           transcript,
		}
		if serverMS > 0 {
			updates["stt_server_ms"] = serverMS
		}
		if len(out.Segments) > 0 {
			updates["segments"] = out.Segments
		}
		if err := w.Archive.MergeUpdatesForCID(seg.CorrelationID, updates); err != nil {
			logging.Warnw("whisper: failed to update sidecar", "err", err, "correlation_id", seg.CorrelationID)
		}
	}
	return transcript, nil
}
