// Package commands holds the commands the assistant runs for resolved
// intents.
package commands

import (
	"sync"

	"github.com/discord-voice-assistant/internal/assistant"
)

// Registry maps intents to commands. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	cmds map[assistant.Intent]assistant.Command
}

var _ assistant.CommandRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{cmds: make(map[assistant.Intent]assistant.Command)}
}

// Register binds cmd to intent, replacing any earlier binding.
func (r *Registry) Register(intent assistant.Intent, cmd assistant.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds[intent] = cmd
}

func (r *Registry) Resolve(intent assistant.Intent) (assistant.Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.cmds[intent]
	return cmd, ok
}

// Intents returns the bound intents in declaration order.
func (r *Registry) Intents() []assistant.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []assistant.Intent
	for _, i := range assistant.Intents() {
		if _, ok := r.cmds[i]; ok {
			out = append(out, i)
		}
	}
	return out
}

// musicIntents are served by tools of the same name.
var musicIntents = []assistant.Intent{
	assistant.IntentPlay,
	assistant.IntentStop,
	assistant.IntentPause,
	assistant.IntentResume,
	assistant.IntentSkip,
}

// Default binds the music intents to tools and ask to chat. A nil tools or
// chat leaves those intents unbound.
func Default(tools ToolCaller, chat Completer) *Registry {
	r := NewRegistry()
	if tools != nil {
		for _, i := range musicIntents {
			r.Register(i, &ToolCommand{Tools: tools, Tool: i.String()})
		}
	}
	if chat != nil {
		r.Register(assistant.IntentAsk, &AskCommand{Chat: chat})
	}
	return r
}
