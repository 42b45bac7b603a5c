// Package esign creates and tracks HIPAA authorization signature requests.
package esign

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"

	"case-outreach-service/internal/resilience"
)

const defaultBaseURL = "https://api.esign.example.com/v1"

// Signature request statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusDeclined  = "declined"
	StatusExpired   = "expired"
)

// Client creates and reads signature requests.
type Client interface {
	CreateRequest(ctx context.Context, req CreateRequest) (*SignatureRequest, error)
	GetRequest(ctx context.Context, id string) (*SignatureRequest, error)
}

// Signer identifies who must sign.
type Signer struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// CreateRequest is the request body for POST /signature_requests.
type CreateRequest struct {
	TemplateID string            `json:"template_id"`
	Title      string            `json:"title"`
	Signers    []Signer          `json:"signers"`
	Fields     map[string]string `json:"fields,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// SignatureRequest is returned by both create and get.
type SignatureRequest struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	SignedAt    *time.Time `json:"signed_at,omitempty"`
	DocumentURL string     `json:"document_url,omitempty"`
}

// Signed reports whether every signer has signed.
func (r *SignatureRequest) Signed() bool { return r.Status == StatusCompleted }

// Terminal reports whether the request can no longer change.
func (r *SignatureRequest) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusDeclined, StatusExpired:
		return true
	}
	return false
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

// WithTemplateID sets the template used when a request omits one.
func WithTemplateID(id string) Option {
	return func(c *httpClient) {
		c.templateID = id
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	templateID string
	http       *http.Client
}

// NewClient creates an e-signature platform client.
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

func (c *httpClient) CreateRequest(ctx context.Context, req CreateRequest) (*SignatureRequest, error) {
	if req.TemplateID == "" {
		req.TemplateID = c.templateID
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "esign: marshal request")
	}
	var out SignatureRequest
	if err := c.do(ctx, http.MethodPost, "/signature_requests", body, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, eris.New("esign: response missing id")
	}
	return &out, nil
}

func (c *httpClient) GetRequest(ctx context.Context, id string) (*SignatureRequest, error) {
	var out SignatureRequest
	if err := c.do(ctx, http.MethodGet, "/signature_requests/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) do(ctx context.Context, method, path string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return eris.Wrap(err, "esign: create request")
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return resilience.NewTransportError(eris.Wrap(err, "esign: send request"), 0)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resilience.NewTransportError(eris.Wrap(err, "esign: read response"), resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.FromHTTPStatus("esign", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "esign: unmarshal response")
	}
	return nil
}
