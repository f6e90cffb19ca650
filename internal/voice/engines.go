package voice

import "errors"

// ErrEngineUnavailable is returned when a speech engine cannot be created
// in this build or configuration.
var ErrEngineUnavailable = errors.New("voice: engine unavailable")

// PicovoiceConfig locates the Porcupine keyword and the Rhino context.
type PicovoiceConfig struct {
	AccessKey   string
	KeywordPath string
	ContextPath string
}
