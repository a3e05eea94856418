package ledger

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// Error is a failure to read from the chain. Callers treat it as a
// connectivity problem: the read may succeed on a later cycle.
type Error struct {
	Op         string // Operation, e.g. "abci_query"
	Path       string // vstorage path, when relevant
	StatusCode int    // HTTP status, 0 when the request never completed
	Code       int64  // ABCI response code, 0 on success
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}

	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("ledger %s %s: http %d: %s", e.Op, e.Path, e.StatusCode, msg)
	case e.Code != 0:
		return fmt.Sprintf("ledger %s %s: abci code %d: %s", e.Op, e.Path, e.Code, msg)
	default:
		return fmt.Sprintf("ledger %s %s: %s", e.Op, e.Path, msg)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error should trigger a retry.
func (e *Error) IsRetryable() bool {
	if e.StatusCode != 0 {
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	if e.Code != 0 {
		return false
	}
	return e.Err != nil && !errors.Is(e.Err, context.Canceled) && !errors.Is(e.Err, context.DeadlineExceeded)
}

// doRequest performs a GET against the RPC node.
func (c *Client) doRequest(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	fullURL := c.rpcURL + endpoint
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: endpoint, Message: "do request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: endpoint, Message: "read response", Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Op:         endpoint,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	return body, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"endpoint", endpoint,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doRequest(ctx, endpoint, query)
		if err == nil {
			return body, nil
		}

		lastErr = err

		var ledgerErr *Error
		if !errors.As(err, &ledgerErr) || !ledgerErr.IsRetryable() {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// abciQuery runs a vstorage query and returns the decoded response value.
// height 0 reads the latest committed state.
func (c *Client) abciQuery(ctx context.Context, kind, path string, height int64) ([]byte, error) {
	query := url.Values{}
	query.Set("path", strconv.Quote("/custom/vstorage/"+kind+"/"+path))
	if height > 0 {
		query.Set("height", strconv.FormatInt(height, 10))
	}

	body, err := c.doWithRetry(ctx, "/abci_query", query)
	if err != nil {
		var ledgerErr *Error
		if errors.As(err, &ledgerErr) {
			ledgerErr.Path = path
		}
		return nil, err
	}

	if rpcErr := gjson.GetBytes(body, "error"); rpcErr.Exists() {
		return nil, &Error{
			Op:      "abci_query",
			Path:    path,
			Code:    -1,
			Message: rpcErr.Get("data").String() + " " + rpcErr.Get("message").String(),
		}
	}

	response := gjson.GetBytes(body, "result.response")
	if !response.Exists() {
		return nil, &Error{Op: "abci_query", Path: path, Message: "missing result.response"}
	}
	if code := response.Get("code").Int(); code != 0 {
		return nil, &Error{Op: "abci_query", Path: path, Code: code, Message: response.Get("log").String()}
	}

	value, err := base64.StdEncoding.DecodeString(response.Get("value").String())
	if err != nil {
		return nil, &Error{Op: "abci_query", Path: path, Message: "decode value", Err: err}
	}
	return value, nil
}
