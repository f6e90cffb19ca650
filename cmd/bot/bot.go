package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/logging"
	"github.com/discord-voice-assistant/internal/voice"
)

// controller is the part of *assistant.Assistant the chat commands drive.
type controller interface {
	Enable(ctx context.Context, t assistant.Target) error
	Disable(ctx context.Context) error
	Say(text string)
	State() assistant.State
	Err() error
}

// voiceLink is a joined voice channel.
type voiceLink struct {
	transport assistant.VoiceTransport
	leave     func() error
}

type chatCommand struct {
	Name string
	Arg  string
}

// parseChatCommand recognises "<prefix>assistant enable",
// "<prefix>assistant disable" and "<prefix>say <text>".
func parseChatCommand(prefix, content string) (chatCommand, bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return chatCommand{}, false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	name, arg, _ := strings.Cut(rest, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "assistant":
		switch sub := strings.ToLower(arg); sub {
		case "enable", "disable":
			return chatCommand{Name: sub}, true
		}
	case "say":
		return chatCommand{Name: "say", Arg: arg}, true
	}
	return chatCommand{}, false
}

type bot struct {
	prefix    string
	assistant controller
	resolver  voice.NameResolver
	sender    voice.MessageSender
	// join connects to a voice channel; voiceChannelOf finds the channel a
	// member is in.
	join           func(guildID, channelID string) (voiceLink, error)
	voiceChannelOf func(guildID, userID string) (string, error)

	mu            sync.Mutex
	link          *voiceLink
	guildID       string
	textChannelID string
}

func (b *bot) reply(channelID, text string) {
	if _, err := b.sender.ChannelMessageSend(channelID, text); err != nil {
		logging.Warnw("failed to send chat reply", "channel.id", channelID, "err", err)
	}
}

func (b *bot) channelFields(guildID, channelID string) []interface{} {
	fields := logging.GuildFields(guildID, b.resolver.GuildName(guildID))
	return append(fields, logging.ChannelFields(channelID, b.resolver.ChannelName(channelID))...)
}

func (b *bot) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	cmd, ok := parseChatCommand(b.prefix, m.Content)
	if !ok {
		return
	}
	logging.Debugw("chat command", append(logging.UserFields(m.Author.ID, m.Author.Username), "command", cmd.Name)...)
	switch cmd.Name {
	case "enable":
		b.enable(ctx, m)
	case "disable":
		b.disable(ctx, m.ChannelID)
	case "say":
		b.say(m.ChannelID, cmd.Arg)
	}
}

func (b *bot) enable(ctx context.Context, m *discordgo.MessageCreate) {
	if m.GuildID == "" {
		b.reply(m.ChannelID, "Use this command in a server.")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link != nil {
		b.reply(m.ChannelID, "The assistant is already enabled.")
		return
	}

	channelID, err := b.voiceChannelOf(m.GuildID, m.Author.ID)
	if err != nil || channelID == "" {
		b.reply(m.ChannelID, "Join a voice channel first.")
		return
	}
	link, err := b.join(m.GuildID, channelID)
	if err != nil {
		logging.Warnw("voice join failed", append(b.channelFields(m.GuildID, channelID), "err", err)...)
		b.reply(m.ChannelID, "I couldn't join your voice channel.")
		return
	}

	name := b.resolver.MemberName(m.GuildID, m.Author.ID)
	if name == "" {
		name = m.Author.Username
	}
	target := assistant.Target{
		Voice:   link.transport,
		Text:    &voice.TextChannel{Sender: b.sender, ChannelID: m.ChannelID},
		Speaker: assistant.Speaker{ID: m.Author.ID, DisplayName: name},
		GuildID: m.GuildID,
	}
	if err := b.assistant.Enable(ctx, target); err != nil {
		logging.Errorw("assistant enable failed", "err", err)
		if lerr := link.leave(); lerr != nil {
			logging.Warnw("voice disconnect error", "err", lerr)
		}
		b.reply(m.ChannelID, "I couldn't start the assistant.")
		return
	}
	b.link = &link
	b.guildID = m.GuildID
	b.textChannelID = m.ChannelID
	logging.Infow("assistant enabled from chat", append(b.channelFields(m.GuildID, channelID), "user.id", m.Author.ID, "user.name", name)...)
	b.reply(m.ChannelID, fmt.Sprintf("Assistant enabled. Listening to %s.", name))
}

func (b *bot) disable(ctx context.Context, channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == nil {
		b.reply(channelID, "The assistant is not enabled.")
		return
	}
	logging.Infow("assistant disabled from chat", b.channelFields(b.guildID, b.textChannelID)...)
	b.teardownLocked(ctx)
	b.reply(channelID, "Assistant disabled.")
}

// teardownLocked disables the assistant and leaves the voice channel.
// b.mu must be held.
func (b *bot) teardownLocked(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := b.assistant.Disable(ctx); err != nil {
		logging.Warnw("assistant disable error", "err", err)
	}
	if err := b.link.leave(); err != nil {
		logging.Warnw("voice disconnect error", "err", err)
	}
	b.link = nil
	b.guildID = ""
	b.textChannelID = ""
}

func (b *bot) say(channelID, text string) {
	if text == "" {
		b.reply(channelID, fmt.Sprintf("Usage: %ssay <text>", b.prefix))
		return
	}
	if b.assistant.State() == assistant.StateDisabled {
		b.reply(channelID, "The assistant is not enabled.")
		return
	}
	b.assistant.Say(text)
}

// checkHealth tears the session down if one of the assistant's goroutines
// has terminated. It reports whether it did.
func (b *bot) checkHealth(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link == nil {
		return false
	}
	err := b.assistant.Err()
	if err == nil {
		return false
	}
	logging.Errorw("assistant stopped; leaving voice", append(logging.GuildFields(b.guildID, ""), "err", err)...)
	channelID := b.textChannelID
	b.teardownLocked(ctx)
	b.reply(channelID, "The assistant stopped after an error. Enable it again to restart.")
	return true
}

func (b *bot) watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.checkHealth(ctx)
		}
	}
}

// shutdown disables the assistant if it is enabled.
func (b *bot) shutdown(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.link != nil {
		b.teardownLocked(ctx)
	}
}

var errNotInVoice = errors.New("member is not in a voice channel")
