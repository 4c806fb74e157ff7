// Package httpjson is the JSON-over-HTTP plumbing shared by the HTTP carrier
// adapters.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shiporch/internal/carrier"
)

const maxBody = 4 << 20

// Client calls one carrier's API under a fixed timeout.
type Client struct {
	Carrier string
	BaseURL string
	Headers map[string]string
	HTTP    *http.Client
}

func New(carrierID, baseURL string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		Carrier: carrierID,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Headers: headers,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Do sends in (if non-nil) as JSON and returns the raw response body. Non-2xx
// responses become *carrier.APIError with the body as message; errDecode, when
// set, extracts a carrier error code from that body.
func (c *Client) Do(ctx context.Context, method, path string, in any, errDecode func([]byte) (code, msg string)) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s %s: marshal: %w", c.Carrier, path, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: new request: %w", c.Carrier, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.Carrier, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", c.Carrier, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &carrier.APIError{Carrier: c.Carrier, Op: path, Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if errDecode != nil {
			if code, msg := errDecode(raw); code != "" || msg != "" {
				apiErr.Code, apiErr.Message = code, msg
			}
		}
		return nil, apiErr
	}
	return raw, nil
}

// DoJSON is Do followed by decoding into out. Decode failures wrap
// carrier.ErrAdapterData.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any, errDecode func([]byte) (string, string)) error {
	raw, err := c.Do(ctx, method, path, in, errDecode)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", carrier.ErrAdapterData, c.Carrier, path, err)
	}
	return nil
}
