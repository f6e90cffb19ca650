package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/discord-voice-assistant/internal/config"
	"github.com/discord-voice-assistant/internal/logging"
)

// ErrUnknownTool is returned when no connected server exposes a tool.
var ErrUnknownTool = errors.New("mcp: unknown tool")

// toolClient is the part of ClientWrapper the router needs.
type toolClient interface {
	ListTools(ctx context.Context) ([]string, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// Router sends each tool call to the server that exposes the tool. When
// two servers expose the same name the first one added wins.
type Router struct {
	mu      sync.RWMutex
	clients []toolClient
	tools   map[string]toolClient
}

func NewRouter() *Router {
	return &Router{tools: make(map[string]toolClient)}
}

// Add lists the client's tools and routes them to it.
func (r *Router) Add(ctx context.Context, server string, c toolClient) error {
	names, err := c.ListTools(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, c)
	for _, n := range names {
		if _, dup := r.tools[n]; dup {
			logging.Warnw("mcp tool exposed by more than one server; keeping the first", "tool", n, "server", server)
			continue
		}
		r.tools[n] = c
	}
	logging.Infow("mcp tools registered", "server", server, "tools", names)
	return nil
}

// Has reports whether some server exposes name.
func (r *Router) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

func (r *Router) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	c, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return c.CallTool(ctx, name, args)
}

func (r *Router) Close() error {
	r.mu.Lock()
	clients := r.clients
	r.clients = nil
	r.tools = make(map[string]toolClient)
	r.mu.Unlock()
	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Connect dials every enabled server in the manifest. If none connects and
// fallbackURL is set, it dials that websocket server instead. Servers that
// fail are logged and skipped.
func Connect(ctx context.Context, serviceName string, manifest config.ManifestResult, fallbackURL string) *Router {
	r := NewRouter()
	for _, name := range manifest.Order {
		server := manifest.Servers[name]
		if !server.IsEnabled() {
			logging.Debugw("skipping disabled mcp server", "server", name)
			continue
		}
		client := NewClientWrapper(serviceName, "v0.1.0")
		var err error
		switch {
		case server.IsWebSocket():
			if server.Transport.URL == "" {
				logging.Warnw("mcp server missing websocket url", "server", name)
				continue
			}
			connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.ConnectWebSocket(connectCtx, server.Transport.URL)
			cancel()
		case server.Command != "":
			connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = client.ConnectCommand(connectCtx, name, server.Command, server.Args, server.Env)
			cancel()
		default:
			logging.Warnw("mcp server missing transport configuration", "server", name)
			continue
		}
		if err != nil {
			logging.Warnw("mcp connect failed", "server", name, "err", err)
			continue
		}
		r.addOrClose(ctx, name, client)
	}

	if len(r.clients) == 0 && fallbackURL != "" {
		client := NewClientWrapper(serviceName, "v0.1.0")
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.ConnectWebSocket(connectCtx, WebSocketURL(fallbackURL))
		cancel()
		if err != nil {
			logging.Warnw("mcp websocket connect failed", "url", fallbackURL, "err", err)
		} else {
			r.addOrClose(ctx, fallbackURL, client)
		}
	}
	return r
}

func (r *Router) addOrClose(ctx context.Context, name string, client *ClientWrapper) {
	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.Add(listCtx, name, client); err != nil {
		logging.Warnw("mcp list tools failed", "server", name, "err", err)
		_ = client.Close()
	}
}
