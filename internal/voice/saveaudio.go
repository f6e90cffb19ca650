package voice

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-assistant/internal/logging"
)

// StartCleaner prunes the archive every interval: pairs older than
// retention go first, then the oldest until at most maxFiles remain.
// The goroutine calls wg.Done on exit; the caller must wg.Add(1) first.
func (a *Archive) StartCleaner(ctx context.Context, wg *sync.WaitGroup, retention, interval time.Duration, maxFiles int) {
	go func() {
		defer wg.Done()
		if a == nil {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := a.prune(now, retention, maxFiles); n > 0 {
					logging.Debugw("archive: pruned captures", "removed", n, "dir", a.Dir)
				}
			}
		}
	}()
}

type archivedPair struct {
	jsonPath string
	wavPath  string
	mod      time.Time
}

func (a *Archive) prune(now time.Time, retention time.Duration, maxFiles int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		logging.Debugw("archive: cleanup readDir failed", "err", err)
		return 0
	}
	var pairs []archivedPair
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		jsonPath := filepath.Join(a.Dir, e.Name())
		info, err := e.Info()
		if err != nil {
			continue
		}
		wavPath := strings.TrimSuffix(jsonPath, ".json") + ".wav"
		if b, err := os.ReadFile(jsonPath); err == nil {
			var sc map[string]interface{}
			if json.Unmarshal(b, &sc) == nil {
				if v, ok := sc["wav_path"].(string); ok && v != "" {
					wavPath = v
				}
			}
		}
		pairs = append(pairs, archivedPair{jsonPath: jsonPath, wavPath: wavPath, mod: info.ModTime()})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].mod.Before(pairs[j].mod) })

	cutoff := now.Add(-retention)
	excess := 0
	if maxFiles > 0 && len(pairs) > maxFiles {
		excess = len(pairs) - maxFiles
	}
	removed := 0
	for i, p := range pairs {
		if i >= excess && (retention <= 0 || !p.mod.Before(cutoff)) {
			continue
		}
		_ = os.Remove(p.jsonPath)
		_ = os.Remove(p.wavPath)
		removed++
	}
	return removed
}
