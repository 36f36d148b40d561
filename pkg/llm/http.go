package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBytes = 8 << 20

// backend is the HTTP plumbing shared by the providers.
type backend struct {
	name    string
	cfg     Config
	client  *http.Client
	options Options
}

func newBackend(name, defaultModel string, opts Options) backend {
	return backend{
		name:    name,
		cfg:     opts.resolve(name, defaultModel),
		client:  opts.httpClient(),
		options: opts,
	}
}

func (b backend) baseURL(def string) string {
	if b.cfg.BaseURL == "" {
		return def
	}
	return strings.TrimRight(b.cfg.BaseURL, "/")
}

// post sends payload as JSON and returns the raw response body.
func (b backend) post(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	if b.cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", b.name, ErrNoCredentials)
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s request encode: %w", b.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("%s request build: %w", b.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range b.cfg.ExtraHeaders {
		req.Header.Set(k, v)
	}

	b.options.logger().Debug("llm request", "provider", b.name, "url", url, "bytes", len(encoded))

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request execute: %w", b.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s response read: %w", b.name, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s response status=%d body=%s", b.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
