package mcp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/discord-voice-assistant/internal/logging"
)

// ErrNotConnected is returned by calls made before a Connect succeeded.
var ErrNotConnected = errors.New("mcp: not connected")

// ClientWrapper connects to an MCP server over websocket or command
// transports and manages the client session lifecycle.
type ClientWrapper struct {
	name            string
	client          *sdk.Client
	session         *sdk.ClientSession
	keepaliveCancel context.CancelFunc
	closers         []func() error
	mu              sync.Mutex
}

// NewClientWrapper creates a new wrapper with the given name/version.
func NewClientWrapper(name, version string) *ClientWrapper {
	impl := &sdk.Implementation{Name: name, Version: version}
	return &ClientWrapper{name: name, client: sdk.NewClient(impl, nil)}
}

// WebSocketURL normalises an http(s) or bare host URL to the server's
// ws(s)://.../mcp/ws endpoint.
func WebSocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ws://"), strings.HasPrefix(raw, "wss://"):
	case strings.HasPrefix(raw, "http://"):
		raw = "ws://" + strings.TrimPrefix(raw, "http://")
	case strings.HasPrefix(raw, "https://"):
		raw = "wss://" + strings.TrimPrefix(raw, "https://")
	default:
		raw = "ws://" + raw
	}
	if !strings.HasSuffix(raw, "/mcp/ws") {
		raw = strings.TrimRight(raw, "/") + "/mcp/ws"
	}
	return raw
}

// ConnectWebSocket connects to the MCP server websocket endpoint and creates a session.
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	if err := w.connect(ctx, NewWebSocketTransport(conn)); err != nil {
		_ = conn.Close()
		return err
	}
	logging.Infow("mcp client connected", "url", rawurl)
	return nil
}

// ConnectCommand spawns a local MCP server process and connects via stdio.
func (w *ClientWrapper) ConnectCommand(ctx context.Context, serverName, command string, args []string, env map[string]string) error {
	if command == "" {
		return errors.New("command is required")
	}
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		merged := os.Environ()
		for k, v := range env {
			merged = append(merged, k+"="+v)
		}
		cmd.Env = merged
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = stdout.Close()
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		_ = stdin.Close()
		return err
	}
	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stdin.Close()
		_ = stderr.Close()
		return err
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logging.Debugw("mcp server stderr", "server", serverName, "line", scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			logging.Debugw("mcp server stderr read error", "server", serverName, "err", err)
		}
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	if err := w.connect(ctx, newCommandTransport(stdout, stdin)); err != nil {
		_ = stdout.Close()
		_ = stdin.Close()
		_ = stderr.Close()
		_ = cmd.Process.Kill()
		<-waitCh
		return err
	}
	logging.Infow("mcp command server started", "server", serverName, "command", command, "args", strings.Join(args, " "))

	w.appendCloser(func() error {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		var err error
		select {
		case err = <-waitCh:
		case <-time.After(2 * time.Second):
			_ = cmd.Process.Kill()
			err = <-waitCh
		}
		if err != nil {
			logging.Debugw("mcp command server exited with error", "server", serverName, "err", err)
		} else {
			logging.Debugw("mcp command server exited", "server", serverName)
		}
		return nil
	})
	return nil
}

func (w *ClientWrapper) appendCloser(fn func() error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closers = append(w.closers, fn)
}

func (w *ClientWrapper) connect(ctx context.Context, transport sdk.Transport) error {
	sess, err := w.client.Connect(ctx, transport, nil)
	if err != nil {
		return err
	}
	kaCtx, cancel := context.WithCancel(context.Background())
	w.mu.Lock()
	if prev := w.keepaliveCancel; prev != nil {
		prev()
	}
	w.session = sess
	w.keepaliveCancel = cancel
	w.mu.Unlock()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				if err := sess.Ping(kaCtx, nil); err != nil && kaCtx.Err() == nil {
					logging.Warnw("mcp keepalive ping failed", "client", w.name, "err", err)
				}
			}
		}
	}()
	return nil
}

func (w *ClientWrapper) currentSession() (*sdk.ClientSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return nil, ErrNotConnected
	}
	return w.session, nil
}

// ListTools returns the names of the tools the server exposes.
func (w *ClientWrapper) ListTools(ctx context.Context) ([]string, error) {
	sess, err := w.currentSession()
	if err != nil {
		return nil, err
	}
	res, err := sess.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// CallTool invokes a tool and joins its text content. A tool that reports
// an error is returned as an error carrying that text.
func (w *ClientWrapper) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	sess, err := w.currentSession()
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := sess.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}

func (w *ClientWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
		w.keepaliveCancel = nil
	}
	if w.session != nil {
		if err := w.session.Close(); err != nil {
			errs = append(errs, err)
		}
		w.session = nil
	}
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	w.closers = nil
	return errors.Join(errs...)
}
