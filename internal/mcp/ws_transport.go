package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// wsTransport implements sdk.Transport for a single websocket.Conn. It is
// used on both sides: clients dial, servers upgrade.
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an established websocket connection.
func NewWebSocketTransport(conn *websocket.Conn) sdk.Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Connect(context.Context) (sdk.Connection, error) {
	return &wsConnection{conn: t.conn}, nil
}

type wsConnection struct {
	conn *websocket.Conn
	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

func (w *wsConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = w.conn.SetReadDeadline(dl)
		defer w.conn.SetReadDeadline(time.Time{})
	}
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return jsonrpc.DecodeMessage(data)
}

func (w *wsConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = w.conn.SetWriteDeadline(dl)
		defer w.conn.SetWriteDeadline(time.Time{})
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConnection) Close() error      { return w.conn.Close() }
func (w *wsConnection) SessionID() string { return "" }
