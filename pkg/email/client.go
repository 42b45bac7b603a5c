// Package email sends records requests through a transactional email API.
package email

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

const defaultBaseURL = "https://api.email.example.com/v3"

// Client sends email.
type Client interface {
	Send(ctx context.Context, msg Message) (*SendResponse, error)
}

// Message is the request body for POST /mail/send.
type Message struct {
	To          string       `json:"to"`
	From        string       `json:"from"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment references a document by URL.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// SendResponse is the response from POST /mail/send.
type SendResponse struct {
	MessageID string `json:"message_id"`
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

// NewClient creates an email platform client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, msg Message) (*SendResponse, error) {
	if msg.To == "" {
		return nil, resilience.NewRejectionError("email", "missing recipient", 0)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, eris.Wrap(err, "email: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/mail/send", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "email: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransportError(eris.Wrap(err, "email: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransportError(eris.Wrap(err, "email: read response"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.FromHTTPStatus("email", resp.StatusCode, string(respBody))
	}

	var result SendResponse
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, eris.Wrap(err, "email: unmarshal response")
		}
	}
	if result.MessageID == "" {
		result.MessageID = resp.Header.Get("X-Message-Id")
	}
	return &result, nil
}
