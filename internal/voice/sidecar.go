package voice

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/logging"
)

// Archive keeps captured query audio on disk as WAV files, each paired with
// a JSON sidecar keyed by correlation id. A nil Archive is a no-op.
type Archive struct {
	Dir string

	mu sync.Mutex
}

func NewArchive(dir string) *Archive {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	return &Archive{Dir: dir}
}

// Save writes seg as <timestamp>_cid<id>.wav plus its sidecar and returns
// the sidecar path.
func (a *Archive) Save(seg assistant.Segment, now time.Time) (string, error) {
	if a == nil {
		return "", nil
	}
	base := fmt.Sprintf("%s_cid%s", now.UTC().Format("20060102T150405.000Z"), seg.CorrelationID)
	wavPath := filepath.Join(a.Dir, base+".wav")
	jsonPath := filepath.Join(a.Dir, base+".json")

	if err := SaveFileAtomic(wavPath, buildWAV(seg.PCM, seg.SampleRate, seg.Channels), 0o644); err != nil {
		return "", fmt.Errorf("archive wav: %w", err)
	}
	durationMS := 0
	if seg.SampleRate > 0 && seg.Channels > 0 {
		durationMS = len(seg.PCM) / seg.Channels * 1000 / seg.SampleRate
	}
	sc := map[string]interface{}{
		"correlation_id": seg.CorrelationID,
		"wav_path":       wavPath,
		"sample_rate":    seg.SampleRate,
		"channels":       seg.Channels,
		"duration_ms":    durationMS,
		"captured_utc":   now.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := SaveFileAtomic(jsonPath, b, 0o644); err != nil {
		return "", fmt.Errorf("archive sidecar: %w", err)
	}
	logging.Debugw("archived capture", "path", wavPath, "correlation_id", seg.CorrelationID)
	return jsonPath, nil
}

// FindByCID returns the sidecar path for cid, or "" if none exists.
func (a *Archive) FindByCID(cid string) string {
	if a == nil || cid == "" {
		return ""
	}
	matches, err := filepath.Glob(filepath.Join(a.Dir, "*_cid"+cid+".json"))
	if err == nil && len(matches) > 0 {
		return matches[0]
	}
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		logging.Warnw("sidecar: failed to list dir", "dir", a.Dir, "err", err)
		return ""
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(a.Dir, e.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			logging.Debugw("sidecar: failed to read file while searching by cid", "path", path, "err", err, "correlation_id", cid)
			continue
		}
		var sc map[string]interface{}
		if json.Unmarshal(b, &sc) == nil && sc["correlation_id"] == cid {
			return path
		}
	}
	return ""
}

// MergeUpdatesForCID merges updates into the sidecar for cid and rewrites
// it atomically.
func (a *Archive) MergeUpdatesForCID(cid string, updates map[string]interface{}) error {
	if a == nil {
		return fmt.Errorf("archive not configured")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	path := a.FindByCID(cid)
	if path == "" {
		return fmt.Errorf("sidecar not found for cid=%s (searched dir=%s)", cid, a.Dir)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sidecar %s: %w", path, err)
	}
	var sc map[string]interface{}
	if err := json.Unmarshal(b, &sc); err != nil {
		return fmt.Errorf("invalid sidecar JSON %s: %w", path, err)
	}
	for k, v := range updates {
		sc[k] = v
	}
	nb, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar %s: %w", path, err)
	}
	if err := SaveFileAtomic(path, nb, 0o644); err != nil {
		return err
	}
	logging.Debugw("sidecar: saved updates", "path", path, "correlation_id", cid)
	return nil
}
