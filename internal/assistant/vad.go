package assistant

import (
	"encoding/binary"
	"math"
)

// pcmToBytes encodes samples as little-endian 16-bit PCM.
func pcmToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// downmix folds interleaved little-endian PCM into mono by summing the
// channels with clipping. A trailing partial frame is ignored.
func downmix(b []byte, channels int) []int16 {
	if channels < 1 {
		channels = 1
	}
	frameBytes := channels * 2
	frames := len(b) / frameBytes
	out := make([]int16, frames)
	for f := 0; f < frames; f++ {
		var sum int32
		for c := 0; c < channels; c++ {
			off := f*frameBytes + c*2
			sum += int32(int16(binary.LittleEndian.Uint16(b[off:])))
		}
		if sum > math.MaxInt16 {
			sum = math.MaxInt16
		} else if sum < math.MinInt16 {
			sum = math.MinInt16
		}
		out[f] = int16(sum)
	}
	return out
}

// rmsEnergy is the root mean square of the samples.
func rmsEnergy(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(pcm)))
}
