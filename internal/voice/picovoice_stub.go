//go:build !picovoice

package voice

import (
	"fmt"

	"github.com/discord-voice-assistant/internal/assistant"
)

// PicovoiceEngines is unavailable without the picovoice build tag.
type PicovoiceEngines struct{}

func NewPicovoiceEngines(cfg PicovoiceConfig) (*PicovoiceEngines, error) {
	return nil, fmt.Errorf("%w: build with -tags picovoice", ErrEngineUnavailable)
}

func (e *PicovoiceEngines) WakeWord() assistant.WakeWordEngine { return nil }

func (e *PicovoiceEngines) Intent() assistant.IntentEngine { return nil }

func (e *PicovoiceEngines) Close() error { return nil }
