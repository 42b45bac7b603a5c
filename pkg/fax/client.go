// Package fax sends records requests to provider fax lines.
package fax

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"case-outreach-service/internal/resilience"
)

const defaultBaseURL = "https://api.fax.example.com/v1"

// Client sends faxes.
type Client interface {
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
}

// SendRequest is the request body for POST /faxes.
type SendRequest struct {
	To       string `json:"to"`
	From     string `json:"from"`
	MediaURL string `json:"media_url"`
	Subject  string `json:"subject,omitempty"`
}

// SendResponse is the response from POST /faxes.
type SendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a fax platform client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if req.To == "" {
		return nil, resilience.NewRejectionError("fax", "missing destination number", 0)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "fax: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/faxes", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "fax: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransportError(eris.Wrap(err, "fax: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransportError(eris.Wrap(err, "fax: read response"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.FromHTTPStatus("fax", resp.StatusCode, string(respBody))
	}

	var result SendResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "fax: unmarshal response")
	}
	return &result, nil
}
