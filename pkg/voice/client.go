// Package voice places outbound calls through the conversational voice-agent platform
// and reads back their outcome.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"case-outreach-service/internal/resilience"
)

const defaultBaseURL = "https://api.voice-agent.example.com/v1"

// Call statuses reported by GET /calls/{id}.
const (
	StatusQueued     = "queued"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Client places and inspects outbound agent calls.
type Client interface {
	PlaceCall(ctx context.Context, req CallRequest) (*CallResponse, error)
	GetCall(ctx context.Context, conversationID string) (*CallDetails, error)
}

// CallRequest is the request body for POST /calls.
type CallRequest struct {
	AgentID    string            `json:"agent_id"`
	ToNumber   string            `json:"to_number"`
	FromNumber string            `json:"from_number"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// CallResponse is the response from POST /calls.
type CallResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// CallDetails is the response from GET /calls/{id}.
type CallDetails struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	AnsweredBy     string `json:"answered_by"`
	FailureReason  string `json:"failure_reason,omitempty"`
	Transcript     string `json:"transcript,omitempty"`
	// Metadata echoes the metadata the call was placed with.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Finished reports whether the platform has stopped working on the call.
func (d *CallDetails) Finished() bool {
	return d.Status == StatusDone || d.Status == StatusFailed
}

// TalkedToHuman reports whether a person, not voicemail, answered.
func (d *CallDetails) TalkedToHuman() bool {
	return d.Status == StatusDone && d.AnsweredBy == "human"
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

// WithRateLimit caps call placements per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a voice platform client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) PlaceCall(ctx context.Context, req CallRequest) (*CallResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "voice: rate limit wait")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "voice: marshal request")
	}

	var result CallResponse
	if err := c.do(ctx, http.MethodPost, "/calls", body, &result); err != nil {
		return nil, err
	}
	if result.ConversationID == "" {
		return nil, eris.New("voice: response missing conversation_id")
	}
	return &result, nil
}

func (c *httpClient) GetCall(ctx context.Context, conversationID string) (*CallDetails, error) {
	var result CallDetails
	if err := c.do(ctx, http.MethodGet, "/calls/"+url.PathEscape(conversationID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return eris.Wrap(err, "voice: create request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return resilience.NewTransportError(eris.Wrap(err, "voice: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransportError(eris.Wrap(err, "voice: read response"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.FromHTTPStatus("voice", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "voice: unmarshal response")
	}
	return nil
}
