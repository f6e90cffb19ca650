package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/logging"
)

// TTSClient synthesizes speech by POSTing {"text": ...} to a TTS service
// that answers with a PCM16 WAV.
type TTSClient struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
	Attempts  int
	Client    *http.Client
}

var _ assistant.Synthesizer = (*TTSClient)(nil)

func (t *TTSClient) Synthesize(ctx context.Context, text string) (assistant.Asset, error) {
	if t == nil || t.URL == "" {
		return assistant.Asset{}, errors.New("tts: url not configured")
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return assistant.Asset{}, err
	}
	attempts := t.Attempts
	if attempts <= 0 {
		attempts = 2
	}
	resp, err := PostWithRetries(ctx, t.Client, Request{
		URL:         t.URL,
		Body:        body,
		ContentType: "application/json",
		AuthToken:   t.AuthToken,
		Timeout:     t.Timeout,
		Attempts:    attempts,
	})
	if err != nil {
		return assistant.Asset{}, fmt.Errorf("tts: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		logging.Warnw("tts: returned non-2xx", "status", resp.StatusCode)
		return assistant.Asset{}, fmt.Errorf("tts: status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return assistant.Asset{}, fmt.Errorf("tts: read body: %w", err)
	}
	asset, err := parseWAV(audio)
	if err != nil {
		return assistant.Asset{}, fmt.Errorf("tts: %w", err)
	}
	logging.Debugw("tts: synthesized", "chars", len(text), "samples", len(asset.PCM), "sample_rate", asset.SampleRate)
	return asset, nil
}
