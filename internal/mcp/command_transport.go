package mcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// commandTransport speaks newline-delimited JSON-RPC over a child
// process's stdout/stdin.
type commandTransport struct {
	conn *pipeConnection
}

func newCommandTransport(r io.ReadCloser, w io.WriteCloser) *commandTransport {
	return &commandTransport{conn: newPipeConnection(r, w)}
}

func (t *commandTransport) Connect(context.Context) (sdk.Connection, error) {
	return t.conn, nil
}

type readResult struct {
	msg jsonrpc.Message
	err error
}

type pipeConnection struct {
	reader   io.ReadCloser
	writer   io.WriteCloser
	incoming chan readResult
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newPipeConnection(r io.ReadCloser, w io.WriteCloser) *pipeConnection {
	c := &pipeConnection{
		reader:   r,
		writer:   w,
		incoming: make(chan readResult),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *pipeConnection) readLoop() {
	br := bufio.NewReader(c.reader)
	for {
		line, err := br.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			msg, derr := jsonrpc.DecodeMessage(line)
			if !c.deliver(readResult{msg: msg, err: derr}) || derr != nil {
				return
			}
		}
		if err != nil {
			c.deliver(readResult{err: err})
			return
		}
	}
}

func (c *pipeConnection) deliver(r readResult) bool {
	select {
	case c.incoming <- r:
		return true
	case <-c.done:
		return false
	}
}

func (c *pipeConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	case res := <-c.incoming:
		if res.err != nil {
			return nil, res.err
		}
		return res.msg, nil
	}
}

func (c *pipeConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.writer.Write(data)
	return err
}

func (c *pipeConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = errors.Join(c.reader.Close(), c.writer.Close())
	})
	return c.closeErr
}

func (c *pipeConnection) SessionID() string { return "" }
