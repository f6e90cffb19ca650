// Command music-mcp serves an in-memory, per-guild music queue as MCP tools
// (play, stop, pause, resume, skip) over a websocket at /mcp/ws.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/discord-voice-assistant/internal/logging"
	"github.com/discord-voice-assistant/internal/mcp"
)

func main() {
	logging.Init()
	defer logging.Sync()

	server := newServer(newLibrary())

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/mcp/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("ws upgrade failed", "err", err)
			return
		}
		go func() {
			session, err := server.Connect(context.Background(), mcp.NewWebSocketTransport(conn), nil)
			if err != nil {
				logging.Warnw("mcp server connect error", "err", err)
				_ = conn.Close()
				return
			}
			if err := session.Wait(); err != nil {
				logging.Debugw("mcp session ended with error", "remote", r.RemoteAddr, "err", err)
			} else {
				logging.Debugw("mcp session ended", "remote", r.RemoteAddr)
			}
		}()
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "9001"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logging.Infow("music mcp server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FatalExitf("music mcp server failed", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warnw("music mcp shutdown error", "err", err)
	}
	logging.Infow("music mcp server stopped")
}
