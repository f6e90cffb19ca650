//go:build !opus

package voice

// Builds without libopus get a transport that can map speakers but not
// decode or encode audio. Build with -tags opus for a working bot.

func newOpusDecoder() (frameDecoder, error) { return nil, ErrOpusUnavailable }

func newOpusEncoder() (frameEncoder, error) { return nil, ErrOpusUnavailable }
