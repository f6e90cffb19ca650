package main

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var errNothingPlaying = errors.New("nothing is playing")

type track struct {
	ID          string
	Query       string
	RequestedBy string
}

// player is one guild's queue. The head of the queue is what is playing.
type player struct {
	mu     sync.Mutex
	queue  []track
	paused bool
}

func (p *player) play(query, requestedBy string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := track{ID: uuid.NewString(), Query: query, RequestedBy: requestedBy}
	p.queue = append(p.queue, t)
	if len(p.queue) == 1 {
		p.paused = false
		return fmt.Sprintf("Now playing %s.", query)
	}
	return fmt.Sprintf("Queued %s at position %d.", query, len(p.queue)-1)
}

func (p *player) stop() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", errNothingPlaying
	}
	p.queue = nil
	p.paused = false
	return "Stopped the music and cleared the queue.", nil
}

func (p *player) pause() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", errNothingPlaying
	}
	if p.paused {
		return "The music is already paused.", nil
	}
	p.paused = true
	return fmt.Sprintf("Paused %s.", p.queue[0].Query), nil
}

func (p *player) resume() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", errNothingPlaying
	}
	if !p.paused {
		return "The music is already playing.", nil
	}
	p.paused = false
	return fmt.Sprintf("Resumed %s.", p.queue[0].Query), nil
}

func (p *player) skip() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return "", errNothingPlaying
	}
	skipped := p.queue[0]
	p.queue = p.queue[1:]
	p.paused = false
	if len(p.queue) == 0 {
		return fmt.Sprintf("Skipped %s. The queue is empty.", skipped.Query), nil
	}
	return fmt.Sprintf("Skipped %s. Now playing %s.", skipped.Query, p.queue[0].Query), nil
}

func (p *player) snapshot() (queue []track, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]track(nil), p.queue...), p.paused
}

// library holds a player per guild.
type library struct {
	mu      sync.Mutex
	players map[string]*player
}

func newLibrary() *library {
	return &library{players: make(map[string]*player)}
}

func (l *library) player(guildID string) *player {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[guildID]
	if !ok {
		p = &player{}
		l.players[guildID] = p
	}
	return p
}
