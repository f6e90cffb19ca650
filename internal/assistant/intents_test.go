package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIntent(t *testing.T) {
	for _, i := range Intents() {
		got, ok := ParseIntent(i.String())
		assert.True(t, ok, i.String())
		assert.Equal(t, i, got)
	}

	got, ok := ParseIntent("  PLAY ")
	assert.True(t, ok)
	assert.Equal(t, IntentPlay, got)

	_, ok = ParseIntent("dance")
	assert.False(t, ok)
	_, ok = ParseIntent("")
	assert.False(t, ok)
	assert.Equal(t, "unknown", IntentUnknown.String())
}

func TestFollowUp(t *testing.T) {
	p, ok := IntentPlay.FollowUp()
	assert.True(t, ok)
	assert.Equal(t, "What would you like me to play?", p)

	_, ok = IntentAsk.FollowUp()
	assert.True(t, ok)

	for _, i := range []Intent{IntentStop, IntentPause, IntentResume, IntentSkip} {
		_, ok := i.FollowUp()
		assert.False(t, ok, i.String())
	}
}

func TestFIFO(t *testing.T) {
	q := newFIFO[int]()
	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push(1)
	q.Push(2)
	q.Push(3)
	assert.Equal(t, 3, q.Len())
	select {
	case <-q.Notify():
	default:
		t.Fatal("push did not notify")
	}

	v, _ := q.Pop()
	assert.Equal(t, 1, v)
	q.Clear()
	assert.Zero(t, q.Len())
	_, ok = q.Pop()
	assert.False(t, ok)
}
