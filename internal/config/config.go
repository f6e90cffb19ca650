// Package config reads the bot's settings from the environment, optionally
// preloaded from a .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/logging"
	"github.com/discord-voice-assistant/internal/voice"
)

type Config struct {
	DiscordToken  string
	CommandPrefix string
	ServiceName   string

	Assistant assistant.Config

	Picovoice voice.PicovoiceConfig
	Whisper   WhisperConfig
	TTS       TTSConfig
	SaveAudio SaveAudioConfig
	LLM       LLMConfig

	// MCPServerURL is used when the manifest names no servers.
	MCPServerURL string
}

type WhisperConfig struct {
	URL       string
	Language  string
	Translate bool
	BeamSize  int
	Timeout   time.Duration
	Attempts  int
}

type TTSConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

type SaveAudioConfig struct {
	Enabled         bool
	Dir             string
	Retention       time.Duration
	CleanupInterval time.Duration
	MaxFiles        int
}

type LLMConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	Timeout       time.Duration
}

// Load reads .env (if present) and then the environment. Variables already
// set in the environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Config{}, err
		}
		logging.Debugw("loaded env file", "path", f)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	a := assistant.DefaultConfig()
	a.AlwaysAwake = envBool("ASSISTANT_ALWAYS_AWAKE", a.AlwaysAwake)
	a.WindowBacklog = envInt("ASSISTANT_WINDOW_BACKLOG", a.WindowBacklog)
	a.Greeting = envString("ASSISTANT_GREETING", a.Greeting)
	a.Capture.PhraseTimeLimit = envMillis("CAPTURE_PHRASE_LIMIT_MS", a.Capture.PhraseTimeLimit)
	a.Capture.PauseThreshold = envMillis("CAPTURE_PAUSE_MS", a.Capture.PauseThreshold)
	a.Capture.EnergyThreshold = envFloat("CAPTURE_ENERGY_THRESHOLD", a.Capture.EnergyThreshold)

	return Config{
		DiscordToken:  envString("DISCORD_BOT_TOKEN", ""),
		CommandPrefix: envString("COMMAND_PREFIX", "!"),
		ServiceName:   envString("MCP_SERVICE_NAME", "voice-assistant"),
		Assistant:     a,
		Picovoice: voice.PicovoiceConfig{
			AccessKey:   envString("PV_ACCESS_KEY", ""),
			KeywordPath: envString("PV_KEYWORD_PATH", ""),
			ContextPath: envString("PV_CONTEXT_PATH", ""),
		},
		Whisper: WhisperConfig{
			URL:       envString("WHISPER_URL", ""),
			Language:  envString("STT_LANGUAGE", "en"),
			Translate: envBool("WHISPER_TRANSLATE", false),
			BeamSize:  envInt("STT_BEAM_SIZE", 0),
			Timeout:   envMillis("WHISPER_TIMEOUT_MS", 30*time.Second),
			Attempts:  envInt("WHISPER_ATTEMPTS", 2),
		},
		TTS: TTSConfig{
			URL:       envString("TTS_URL", ""),
			AuthToken: envString("TTS_AUTH_TOKEN", ""),
			Timeout:   envMillis("TTS_TIMEOUT_MS", 15*time.Second),
		},
		SaveAudio: SaveAudioConfig{
			Enabled:         envBool("SAVE_AUDIO_ENABLED", false),
			Dir:             envString("SAVE_AUDIO_DIR", "/app/wavs"),
			Retention:       envSeconds("SAVE_AUDIO_RETENTION_SECS", 24*time.Hour),
			CleanupInterval: envSeconds("SAVE_AUDIO_CLEAN_INTERVAL_SECS", 10*time.Minute),
			MaxFiles:        envInt("SAVE_AUDIO_MAX_FILES", 0),
		},
		LLM: LLMConfig{
			BaseURL:       envString("OPENAI_BASE_URL", "http://127.0.0.1:8000/v1"),
			APIKey:        envString("OPENAI_API_KEY", ""),
			Model:         envString("OPENAI_MODEL", "local"),
			FallbackModel: envString("OPENAI_FALLBACK_MODEL", ""),
			MaxTokens:     envInt("LLM_MAX_TOKENS", 512),
			Timeout:       envMillis("OPENAI_TIMEOUT_MS", 20*time.Second),
		},
		MCPServerURL: envString("MCP_SERVER_URL", ""),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		logging.Warnw("invalid integer setting; using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		logging.Warnw("invalid number setting; using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	logging.Warnw("invalid boolean setting; using default", "key", key, "value", v, "default", def)
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	return envDuration(key, time.Millisecond, def)
}

func envSeconds(key string, def time.Duration) time.Duration {
	return envDuration(key, time.Second, def)
}

func envDuration(key string, unit, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		logging.Warnw("invalid duration setting; using default", "key", key, "value", v, "default", def.String())
		return def
	}
	return time.Duration(n) * unit
}
