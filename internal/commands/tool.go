package commands

import (
	"context"
	"fmt"

	"github.com/discord-voice-assistant/internal/assistant"
	"github.com/discord-voice-assistant/internal/logging"
)

// ToolCaller runs a named tool; mcp.Router implements it.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// ToolCommand runs an intent as a tool call and says the tool's answer.
type ToolCommand struct {
	Tools ToolCaller
	Tool  string
}

func (c *ToolCommand) Run(ctx context.Context, inv assistant.Invocation) error {
	args := map[string]any{
		"guild_id":     inv.Target.GuildID,
		"requested_by": speakerName(inv.Target.Speaker),
	}
	if inv.Query != "" {
		args["query"] = inv.Query
	}
	if len(inv.Slots) > 0 {
		args["slots"] = inv.Slots
	}

	logging.Debugw("running tool command", "tool", c.Tool, "correlation_id", inv.CorrelationID)
	text, err := c.Tools.CallTool(ctx, c.Tool, args)
	if err != nil {
		say(inv, fmt.Sprintf("Sorry, I couldn't %s.", c.Tool))
		return fmt.Errorf("%s: %w", c.Tool, err)
	}
	say(inv, text)
	return nil
}

func speakerName(s assistant.Speaker) string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}

func say(inv assistant.Invocation, text string) {
	if inv.Say != nil && text != "" {
		inv.Say(text)
	}
}
