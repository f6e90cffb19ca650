package assistant

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// FrameResampler turns interleaved stereo transport frames into mono windows
// at the engine rate. It is owned by the transport receive goroutine and is
// not safe for concurrent use.
type FrameResampler struct {
	srcRate int
	dstRate int
	window  int

	// left is nil when the rates match and frames only need deinterleaving.
	left    resampling.Resampler
	scratch []float64
	buf     []int16
}

// NewFrameResampler builds a resampler from srcRate to dstRate that emits
// windows of exactly window samples.
func NewFrameResampler(srcRate, dstRate, window int) (*FrameResampler, error) {
	if srcRate <= 0 || dstRate <= 0 || window <= 0 {
		return nil, fmt.Errorf("resampler: invalid rates %d->%d window %d", srcRate, dstRate, window)
	}
	r := &FrameResampler{
		srcRate: srcRate,
		dstRate: dstRate,
		window:  window,
		buf:     make([]int16, 0, window*2),
	}
	if srcRate != dstRate {
		left, err := resampling.New(&resampling.Config{
			InputRate:  float64(srcRate),
			OutputRate: float64(dstRate),
			Channels:   1,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: create: %w", err)
		}
		r.left = left
	}
	return r, nil
}

// Push appends one stereo frame and returns every complete window now
// available, oldest first. Samples short of a window stay buffered for the
// next call. Only the left channel reaches the output buffer, so the right
// channel is dropped before resampling rather than after.
func (r *FrameResampler) Push(pcm []int16) ([][]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d samples is not interleaved stereo", ErrMalformedFrame, len(pcm))
	}
	frames := len(pcm) / 2

	if r.left == nil {
		for i := 0; i < frames; i++ {
			r.buf = append(r.buf, pcm[i*2])
		}
	} else {
		if cap(r.scratch) < frames {
			r.scratch = make([]float64, frames)
		}
		in := r.scratch[:frames]
		for i := range in {
			in[i] = float64(pcm[i*2]) / 32768.0
		}
		out, err := r.left.Process(in)
		if err != nil {
			return nil, fmt.Errorf("resampler: process: %w", err)
		}
		for _, s := range out {
			r.buf = append(r.buf, clampSample(s))
		}
	}

	n := len(r.buf) / r.window
	if n == 0 {
		return nil, nil
	}
	windows := make([][]int16, n)
	for i := range windows {
		w := make([]int16, r.window)
		copy(w, r.buf[i*r.window:(i+1)*r.window])
		windows[i] = w
	}
	rest := copy(r.buf, r.buf[n*r.window:])
	r.buf = r.buf[:rest]
	return windows, nil
}

// Buffered reports samples waiting for a full window.
func (r *FrameResampler) Buffered() int { return len(r.buf) }

func clampSample(s float64) int16 {
	switch {
	case s >= 1.0:
		return 32767
	case s <= -1.0:
		return -32768
	default:
		return int16(s * 32767.0)
	}
}
