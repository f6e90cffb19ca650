//go:build opus

package voice

import "github.com/hraban/opus"

func newOpusDecoder() (frameDecoder, error) {
	dec, err := opus.NewDecoder(transportRate, transportChannels)
	if err != nil {
		return nil, err
	}
	return dec, nil
}

func newOpusEncoder() (frameEncoder, error) {
	enc, err := opus.NewEncoder(transportRate, transportChannels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return enc, nil
}
