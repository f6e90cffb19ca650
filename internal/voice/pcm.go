package voice

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/discord-voice-assistant/internal/assistant"
)

// toTransportPCM converts an asset to interleaved 48 kHz stereo.
func toTransportPCM(a assistant.Asset) ([]int16, error) {
	if a.Channels < 1 || a.Channels > 2 || a.SampleRate <= 0 {
		return nil, fmt.Errorf("voice: unsupported asset %d Hz, %d channels", a.SampleRate, a.Channels)
	}
	if a.Channels == transportChannels && a.SampleRate == transportRate {
		return a.PCM, nil
	}

	mono := a.PCM
	if a.Channels == 2 {
		mono = make([]int16, len(a.PCM)/2)
		for i := range mono {
			mono[i] = int16((int32(a.PCM[i*2]) + int32(a.PCM[i*2+1])) / 2)
		}
	}

	if a.SampleRate != transportRate {
		r, err := resampling.New(&resampling.Config{
			InputRate:  float64(a.SampleRate),
			OutputRate: transportRate,
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("voice: create resampler: %w", err)
		}
		in := make([]float64, len(mono))
		for i, s := range mono {
			in[i] = float64(s) / 32768.0
		}
		out, err := r.Process(in)
		if err != nil {
			return nil, fmt.Errorf("voice: resample: %w", err)
		}
		mono = make([]int16, len(out))
		for i, s := range out {
			switch {
			case s >= 1.0:
				mono[i] = 32767
			case s <= -1.0:
				mono[i] = -32768
			default:
				mono[i] = int16(s * 32767.0)
			}
		}
	}

	stereo := make([]int16, len(mono)*2)
	for i, s := range mono {
		stereo[i*2] = s
		stereo[i*2+1] = s
	}
	return stereo, nil
}
