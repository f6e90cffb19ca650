package voice

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/discord-voice-assistant/internal/assistant"
)

// MessageSender is the part of *discordgo.Session used to post replies.
type MessageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// TextChannel posts assistant replies to one Discord text channel.
type TextChannel struct {
	Sender    MessageSender
	ChannelID string
}

var _ assistant.TextChannel = (*TextChannel)(nil)

func (t *TextChannel) Send(ctx context.Context, text string) error {
	_, err := t.Sender.ChannelMessageSend(t.ChannelID, text, discordgo.WithContext(ctx))
	return err
}
