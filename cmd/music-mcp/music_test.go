package main

import (
	"context"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerQueue(t *testing.T) {
	p := &player{}

	_, err := p.skip()
	require.ErrorIs(t, err, errNothingPlaying)

	assert.Equal(t, "Now playing jazz.", p.play("jazz", "Ada"))
	assert.Equal(t, "Queued blues at position 1.", p.play("blues", "Ada"))

	msg, err := p.pause()
	require.NoError(t, err)
	assert.Equal(t, "Paused jazz.", msg)
	msg, _ = p.pause()
	assert.Equal(t, "The music is already paused.", msg)

	msg, err = p.skip()
	require.NoError(t, err)
	assert.Equal(t, "Skipped jazz. Now playing blues.", msg)
	queue, paused := p.snapshot()
	assert.False(t, paused)
	require.Len(t, queue, 1)
	assert.Equal(t, "Ada", queue[0].RequestedBy)
	assert.NotEmpty(t, queue[0].ID)

	msg, _ = p.resume()
	assert.Equal(t, "The music is already playing.", msg)

	msg, err = p.stop()
	require.NoError(t, err)
	assert.Equal(t, "Stopped the music and cleared the queue.", msg)
	_, err = p.resume()
	require.ErrorIs(t, err, errNothingPlaying)
}

func TestLibraryIsPerGuild(t *testing.T) {
	lib := newLibrary()
	lib.player("g1").play("jazz", "")
	assert.Same(t, lib.player("g1"), lib.player("g1"))
	q, _ := lib.player("g2").snapshot()
	assert.Empty(t, q)
}

func connectInMemory(t *testing.T, server *sdk.Server) *sdk.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientTransport, serverTransport := sdk.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func resultText(t *testing.T, res *sdk.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*sdk.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return tc.Text
}

func TestToolsOverMCP(t *testing.T) {
	cs := connectInMemory(t, newServer(newLibrary()))
	ctx := context.Background()

	tools, err := cs.ListTools(ctx, &sdk.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"play", "stop", "pause", "resume", "skip"}, names)

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{Name: "pause", Arguments: map[string]any{"guild_id": "g1"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "nothing is playing", resultText(t, res))

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{Name: "play", Arguments: map[string]any{
		"guild_id": "g1", "query": "lofi beats", "requested_by": "Ada", "slots": map[string]string{"source": "radio"},
	}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Now playing lofi beats.", resultText(t, res))

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{Name: "skip", Arguments: map[string]any{"guild_id": "g1"}})
	require.NoError(t, err)
	assert.Equal(t, "Skipped lofi beats. The queue is empty.", resultText(t, res))
}
