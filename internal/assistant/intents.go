package assistant

import "strings"

// Intent is a command the intent engine can resolve an utterance to.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentPlay
	IntentStop
	IntentPause
	IntentResume
	IntentSkip
	IntentAsk
)

var intentNames = map[Intent]string{
	IntentPlay:   "play",
	IntentStop:   "stop",
	IntentPause:  "pause",
	IntentResume: "resume",
	IntentSkip:   "skip",
	IntentAsk:    "ask",
}

var intentByName = func() map[string]Intent {
	m := make(map[string]Intent, len(intentNames))
	for i, n := range intentNames {
		m[n] = i
	}
	return m
}()

// followUps holds the prompt for intents that need a spoken query before
// the command can run.
var followUps = map[Intent]string{
	IntentPlay: "What would you like me to play?",
	IntentAsk:  "What would you like to know?",
}

// ParseIntent resolves an engine intent name. Names are matched case
// insensitively.
func ParseIntent(name string) (Intent, bool) {
	i, ok := intentByName[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

func (i Intent) String() string {
	if n, ok := intentNames[i]; ok {
		return n
	}
	return "unknown"
}

// FollowUp returns the prompt to speak before capturing the query, if the
// intent takes one.
func (i Intent) FollowUp() (string, bool) {
	p, ok := followUps[i]
	return p, ok
}

// Intents lists every resolvable intent in declaration order.
func Intents() []Intent {
	return []Intent{IntentPlay, IntentStop, IntentPause, IntentResume, IntentSkip, IntentAsk}
}
