package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebhookPublisher POSTs events to an HTTP endpoint.
type WebhookPublisher struct {
	endpoint *url.URL
	apiKey   string
	client   *http.Client
}

// NewWebhookPublisher constructs a publisher that POSTs to endpoint.
func NewWebhookPublisher(endpoint, apiKey string, timeout time.Duration) (*WebhookPublisher, error) {
	parsed, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse webhook url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("webhook url must be http or https, got %q", parsed.Scheme)
	}
	return &WebhookPublisher{
		endpoint: parsed,
		apiKey:   apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}, nil
}

// Name implements Publisher.
func (p *WebhookPublisher) Name() string { return "webhook" }

// Publish implements Publisher. Any non-2xx response is an error.
func (p *WebhookPublisher) Publish(ctx context.Context, evt RatingCommitted) error {
	body, err := encodeEvent(evt)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func encodeEvent(evt RatingCommitted) ([]byte, error) {
	if evt.CommittedAt.IsZero() {
		evt.CommittedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return payload, nil
}
