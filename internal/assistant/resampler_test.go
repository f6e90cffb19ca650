package assistant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameResamplerPassthroughKeepsLeftChannel(t *testing.T) {
	r, err := NewFrameResampler(16000, 16000, 4)
	require.NoError(t, err)

	// left 1..6, right negated
	pcm := []int16{1, -1, 2, -2, 3, -3, 4, -4, 5, -5, 6, -6}
	windows, err := r.Push(pcm)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, []int16{1, 2, 3, 4}, windows[0])
	assert.Equal(t, 2, r.Buffered())

	windows, err = r.Push([]int16{7, -7, 8, -8, 9, -9, 10, -10, 11, -11, 12, -12})
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, []int16{5, 6, 7, 8}, windows[0])
	assert.Equal(t, []int16{9, 10, 11, 12}, windows[1])
	assert.Zero(t, r.Buffered())
}

func TestFrameResamplerWindowsAreCopies(t *testing.T) {
	r, err := NewFrameResampler(16000, 16000, 2)
	require.NoError(t, err)

	first, err := r.Push([]int16{1, 0, 2, 0})
	require.NoError(t, err)
	_, err = r.Push([]int16{3, 0, 4, 0})
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2}, first[0])
}

func TestFrameResamplerRejectsOddFrames(t *testing.T) {
	r, err := NewFrameResampler(48000, 16000, 512)
	require.NoError(t, err)

	_, err = r.Push(make([]int16, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedFrame))
	assert.Zero(t, r.Buffered())
}

func TestFrameResamplerDownsamples(t *testing.T) {
	r, err := NewFrameResampler(48000, 16000, 512)
	require.NoError(t, err)

	// one second of 20 ms frames
	total := 0
	for i := 0; i < 50; i++ {
		windows, err := r.Push(stereo(960, 1000))
		require.NoError(t, err)
		for _, w := range windows {
			require.Len(t, w, 512)
			total += len(w)
		}
	}
	total += r.Buffered()
	// roughly a third of the input; filter delay holds back a little
	assert.Greater(t, total, 8000)
	assert.Less(t, total, 17000)
}

func TestNewFrameResamplerValidates(t *testing.T) {
	_, err := NewFrameResampler(0, 16000, 512)
	assert.Error(t, err)
	_, err = NewFrameResampler(48000, 16000, 0)
	assert.Error(t, err)
}

func TestClampSample(t *testing.T) {
	assert.Equal(t, int16(32767), clampSample(1.5))
	assert.Equal(t, int16(-32768), clampSample(-2))
	assert.Equal(t, int16(0), clampSample(0))
}
