//go:build picovoice

package voice

import (
	"errors"
	"fmt"

	porcupine "github.com/Picovoice/porcupine/binding/go/v3"
	rhino "github.com/Picovoice/rhino/binding/go/v3"

	"github.com/discord-voice-assistant/internal/assistant"
)

// PicovoiceEngines holds an initialized Porcupine wake word engine and a
// Rhino speech-to-intent engine. Both consume 512-sample 16 kHz windows.
type PicovoiceEngines struct {
	wake   *porcupine.Porcupine
	intent *rhino.Rhino
}

// NewPicovoiceEngines initializes both engines. Close releases them.
func NewPicovoiceEngines(cfg PicovoiceConfig) (*PicovoiceEngines, error) {
	if cfg.AccessKey == "" {
		return nil, fmt.Errorf("%w: access key required", ErrEngineUnavailable)
	}
	wake := &porcupine.Porcupine{AccessKey: cfg.AccessKey}
	if cfg.KeywordPath != "" {
		wake.KeywordPaths = []string{cfg.KeywordPath}
	} else {
		wake.BuiltInKeywords = []porcupine.BuiltInKeyword{porcupine.PICOVOICE}
	}
	if err := wake.Init(); err != nil {
		return nil, fmt.Errorf("porcupine init: %w", err)
	}
	intent := &rhino.Rhino{AccessKey: cfg.AccessKey, ContextPath: cfg.ContextPath}
	if err := intent.Init(); err != nil {
		_ = wake.Delete()
		return nil, fmt.Errorf("rhino init: %w", err)
	}
	return &PicovoiceEngines{wake: wake, intent: intent}, nil
}

func (e *PicovoiceEngines) WakeWord() assistant.WakeWordEngine { return porcupineEngine{e.wake} }

func (e *PicovoiceEngines) Intent() assistant.IntentEngine { return rhinoEngine{e.intent} }

func (e *PicovoiceEngines) Close() error {
	return errors.Join(e.wake.Delete(), e.intent.Delete())
}

type porcupineEngine struct{ p *porcupine.Porcupine }

func (e porcupineEngine) Process(frame []int16) (bool, error) {
	idx, err := e.p.Process(frame)
	if err != nil {
		return false, err
	}
	return idx >= 0, nil
}

type rhinoEngine struct{ r *rhino.Rhino }

func (e rhinoEngine) Process(frame []int16) (bool, error) { return e.r.Process(frame) }

func (e rhinoEngine) Inference() (assistant.Inference, error) {
	inf, err := e.r.GetInference()
	if err != nil {
		return assistant.Inference{}, err
	}
	return assistant.Inference{Name: inf.Intent, Understood: inf.IsUnderstood, Slots: inf.Slots}, nil
}
