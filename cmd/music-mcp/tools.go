package main

import (
	"context"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-assistant/internal/logging"
)

type playArgs struct {
	Query       string            `json:"query" jsonschema:"what to play"`
	GuildID     string            `json:"guild_id"`
	RequestedBy string            `json:"requested_by,omitempty"`
	Slots       map[string]string `json:"slots,omitempty"`
}

type controlArgs struct {
	GuildID     string            `json:"guild_id"`
	RequestedBy string            `json:"requested_by,omitempty"`
	Slots       map[string]string `json:"slots,omitempty"`
}

func textResult(text string, isErr bool) *sdk.CallToolResult {
	return &sdk.CallToolResult{
		IsError: isErr,
		Content: []sdk.Content{&sdk.TextContent{Text: text}},
	}
}

func newServer(lib *library) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "music-mcp", Version: "v0.1.0"}, nil)

	sdk.AddTool(server, &sdk.Tool{Name: "play", Description: "Queue a song or search query; starts playback if idle."},
		func(ctx context.Context, req *sdk.CallToolRequest, args playArgs) (*sdk.CallToolResult, any, error) {
			query := strings.TrimSpace(args.Query)
			if query == "" {
				return textResult("Tell me what to play.", true), nil, nil
			}
			msg := lib.player(args.GuildID).play(query, args.RequestedBy)
			logging.Infow("music play", "guild.id", args.GuildID, "query", query, "requested_by", args.RequestedBy)
			return textResult(msg, false), nil, nil
		})

	control := func(name, desc string, op func(*player) (string, error)) {
		sdk.AddTool(server, &sdk.Tool{Name: name, Description: desc},
			func(ctx context.Context, req *sdk.CallToolRequest, args controlArgs) (*sdk.CallToolResult, any, error) {
				msg, err := op(lib.player(args.GuildID))
				if err != nil {
					logging.Debugw("music control rejected", "tool", name, "guild.id", args.GuildID, "err", err)
					return textResult(err.Error(), true), nil, nil
				}
				logging.Infow("music control", "tool", name, "guild.id", args.GuildID, "requested_by", args.RequestedBy)
				return textResult(msg, false), nil, nil
			})
	}
	control("stop", "Stop playback and clear the queue.", (*player).stop)
	control("pause", "Pause the current song.", (*player).pause)
	control("resume", "Resume the paused song.", (*player).resume)
	control("skip", "Skip to the next song in the queue.", (*player).skip)
	return server
}
