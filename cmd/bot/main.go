// Command bot runs the voice assistant on Discord. A member enables it from
// a text channel; the bot joins that member's voice channel and listens for
// the wake word.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/commands"
	"github.com/discord-voice-assistant/internal/config"
	"github.com/discord-voice-assistant/internal/logging"
	"github.com/discord-voice-assistant/internal/mcp"
	"github.com/discord-voice-assistant/internal/voice"
	"github.com/discord-voice-assistant/llm"
)

func main() {
	logging.Init()
	defer func() { _ = logging.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logging.FatalExitf("config load failed", "err", err)
	}
	if cfg.DiscordToken == "" {
		logging.FatalExitf("DISCORD_BOT_TOKEN required")
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	// Tool servers are optional; play/stop/pause/resume/skip stay unbound
	// without them.
	var tools commands.ToolCaller
	manifest, err := config.LoadManifest()
	if err != nil {
		logging.Warnw("mcp manifest load failed; continuing without it", "err", err)
	}
	router := mcp.Connect(rootCtx, cfg.ServiceName, manifest, cfg.MCPServerURL)
	if len(manifest.Order) > 0 || cfg.MCPServerURL != "" {
		tools = router
	}
	var chat commands.Completer
	if cfg.LLM.BaseURL != "" {
		chat = llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.FallbackModel, cfg.LLM.MaxTokens, cfg.LLM.Timeout)
	}
	registry := commands.Default(tools, chat)
	logging.Infow("commands registered", "intents", registry.Intents())

	engines, err := voice.NewPicovoiceEngines(cfg.Picovoice)
	if err != nil {
		logging.FatalExitf("speech engines unavailable", "err", err)
	}

	var archive *voice.Archive
	if cfg.SaveAudio.Enabled {
		if err := os.MkdirAll(cfg.SaveAudio.Dir, 0o755); err != nil {
			logging.Warnw("save audio dir unavailable; archiving disabled", "dir", cfg.SaveAudio.Dir, "err", err)
		} else {
			archive = voice.NewArchive(cfg.SaveAudio.Dir)
			wg.Add(1)
			archive.StartCleaner(rootCtx, &wg, cfg.SaveAudio.Retention, cfg.SaveAudio.CleanupInterval, cfg.SaveAudio.MaxFiles)
		}
	}

	httpClient := &http.Client{}
	whisper := &voice.WhisperClient{
		URL:       cfg.Whisper.URL,
		Language:  cfg.Whisper.Language,
		Translate: cfg.Whisper.Translate,
		BeamSize:  cfg.Whisper.BeamSize,
		Timeout:   cfg.Whisper.Timeout,
		Attempts:  cfg.Whisper.Attempts,
		Client:    httpClient,
		Archive:   archive,
	}
	tts := &voice.TTSClient{
		URL:       cfg.TTS.URL,
		AuthToken: cfg.TTS.AuthToken,
		Timeout:   cfg.TTS.Timeout,
		Client:    httpClient,
	}

	asst, err := assistant.New(cfg.Assistant, assistant.Engines{
		WakeWord:    engines.WakeWord(),
		Intent:      engines.Intent(),
		Transcriber: whisper,
		Synthesizer: tts,
	}, registry)
	if err != nil {
		logging.FatalExitf("assistant init failed", "err", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logging.FatalExitf("discordgo.New failed", "err", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	// MessageContent is privileged.
	logging.Infow("using gateway intents", "intents", dg.Identify.Intents)

	b := &bot{
		prefix:    cfg.CommandPrefix,
		assistant: asst,
		resolver:  voice.NewDiscordResolver(dg),
		sender:    dg,
		join: func(guildID, channelID string) (voiceLink, error) {
			vc, err := dg.ChannelVoiceJoin(guildID, channelID, false, false)
			if err != nil {
				return voiceLink{}, err
			}
			logging.Infow("voice joined", append(logging.GuildFields(guildID, ""), "channel.id", channelID)...)
			return voiceLink{transport: voice.NewConnection(vc), leave: vc.Disconnect}, nil
		},
		voiceChannelOf: func(guildID, userID string) (string, error) {
			vs, err := dg.State.VoiceState(guildID, userID)
			if err != nil {
				return "", err
			}
			if vs.ChannelID == "" {
				return "", errNotInVoice
			}
			return vs.ChannelID, nil
		},
	}
	dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.handleMessage(rootCtx, m)
	})
	dg.AddHandler(func(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		logging.Debugw("voice state update", append(logging.UserFields(vs.UserID, ""), "guild.id", vs.GuildID, "channel.id", vs.ChannelID)...)
	})

	logging.Infow("opening discord session")
	if err := dg.Open(); err != nil {
		logging.FatalExitf("discord session open failed", "err", err)
	}
	logging.Infow("discord session opened", "prefix", cfg.CommandPrefix)

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.watch(rootCtx, 5*time.Second)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logging.Infow("shutdown signal received, closing resources")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	b.shutdown(shutdownCtx)
	cancel()
	wg.Wait()

	if err := router.Close(); err != nil {
		logging.Warnw("mcp close error", "err", err)
	}
	if err := engines.Close(); err != nil {
		logging.Warnw("engine close error", "err", err)
	}
	if err := dg.Close(); err != nil {
		logging.Warnw("discord session close error", "err", err)
	}
	logging.Infow("shutdown complete")
}
