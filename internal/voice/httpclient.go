package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/discord-voice-assistant/internal/logging"
)

// Request describes one POST made by PostWithRetries.
type Request struct {
	URL           string
	Body          []byte
	ContentType   string
	AuthToken     string
	Timeout       time.Duration
	Attempts      int
	CorrelationID string
}

// PostWithRetries posts req.Body and retries transport errors and 5xx
// responses with exponential backoff. The caller must close the returned
// body. A 5xx on the last attempt is returned as a response, not an error.
func PostWithRetries(ctx context.Context, client *http.Client, req Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	attempts := req.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := time.Duration(200*(1<<(i-1))) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := postOnce(ctx, client, req, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			logging.Debugw("post attempt failed", "url", req.URL, "attempt", i+1, "err", err, "correlation_id", req.CorrelationID)
			continue
		}
		if resp.StatusCode >= 500 && i < attempts-1 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("server error status=%d", resp.StatusCode)
			logging.Warnw("post server error", "url", req.URL, "status", resp.StatusCode, "attempt", i+1, "correlation_id", req.CorrelationID)
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no response")
	}
	return nil, fmt.Errorf("post %s: %w", req.URL, lastErr)
}

func postOnce(ctx context.Context, client *http.Client, req Request, timeout time.Duration) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		cancel()
		return nil, err
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AuthToken)
	}
	if req.CorrelationID != "" {
		httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the per-attempt timeout alive until the body is read.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
