package commands

import (
	"context"
	"fmt"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/llm"
)

const defaultSystemPrompt = "You are a voice assistant in a Discord voice channel. " +
	"Answer in one or two short spoken sentences without markdown."

// Completer is the chat API AskCommand needs; *llm.Client implements it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
}

// AskCommand answers the captured question with a chat completion.
type AskCommand struct {
	Chat         Completer
	SystemPrompt string
}

func (c *AskCommand) Run(ctx context.Context, inv assistant.Invocation) error {
	if inv.Query == "" {
		return nil
	}
	prompt := c.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	resp, err := c.Chat.CreateChatCompletion(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: inv.Query},
		},
	})
	if err != nil {
		say(inv, "Sorry, I couldn't find an answer.")
		return fmt.Errorf("ask: %w", err)
	}
	say(inv, resp.Content)
	return nil
}
