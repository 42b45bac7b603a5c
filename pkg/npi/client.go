// Package npi searches the NPPES National Provider Identifier registry.
package npi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"case-outreach-service/internal/resilience"
)

const (
	defaultBaseURL = "https://npiregistry.cms.hhs.gov/api"
	apiVersion     = "2.1"
	defaultLimit   = 10
)

// Client searches the registry.
type Client interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Query narrows a registry search. At least one of the name fields must be set.
type Query struct {
	FirstName        string
	LastName         string
	OrganizationName string
	City             string
	State            string
	Limit            int
}

// Result is one registry record.
type Result struct {
	Number          string     `json:"number"`
	EnumerationType string     `json:"enumeration_type"`
	Basic           Basic      `json:"basic"`
	Addresses       []Address  `json:"addresses"`
	Taxonomies      []Taxonomy `json:"taxonomies"`
}

type Basic struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Credential       string `json:"credential"`
	OrganizationName string `json:"organization_name"`
	Name             string `json:"name"`
}

type Address struct {
	Purpose         string `json:"address_purpose"`
	Address1        string `json:"address_1"`
	City            string `json:"city"`
	State           string `json:"state"`
	PostalCode      string `json:"postal_code"`
	TelephoneNumber string `json:"telephone_number"`
	FaxNumber       string `json:"fax_number"`
}

type Taxonomy struct {
	Code    string `json:"code"`
	Desc    string `json:"desc"`
	Primary bool   `json:"primary"`
}

// DisplayName is the individual's full name or the organization name.
func (r Result) DisplayName() string {
	if r.Basic.OrganizationName != "" && r.Basic.LastName == "" {
		return r.Basic.OrganizationName
	}
	name := strings.TrimSpace(r.Basic.FirstName + " " + r.Basic.LastName)
	if name == "" {
		return r.Basic.Name
	}
	return name
}

// Location returns the practice location address, falling back to the first address.
func (r Result) Location() Address {
	for _, a := range r.Addresses {
		if a.Purpose == "LOCATION" {
			return a
		}
	}
	if len(r.Addresses) > 0 {
		return r.Addresses[0]
	}
	return Address{}
}

// PrimaryTaxonomy returns the primary specialty description.
func (r Result) PrimaryTaxonomy() string {
	for _, t := range r.Taxonomies {
		if t.Primary {
			return t.Desc
		}
	}
	if len(r.Taxonomies) > 0 {
		return r.Taxonomies[0].Desc
	}
	return ""
}

type searchResponse struct {
	ResultCount int      `json:"result_count"`
	Results     []Result `json:"results"`
	Errors      []struct {
		Description string `json:"description"`
		Field       string `json:"field"`
	} `json:"Errors"`
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

// WithLimit sets the default result limit.
func WithLimit(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.limit = n
		}
	}
}

type httpClient struct {
	baseURL string
	limit   int
	http    *http.Client
}

// NewClient creates a registry client. The registry is public and needs no key.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		limit:   defaultLimit,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, q Query) ([]Result, error) {
	if q.FirstName == "" && q.LastName == "" && q.OrganizationName == "" {
		return nil, eris.New("npi: query needs a name or organization")
	}

	params := url.Values{}
	params.Set("version", apiVersion)
	setIf(params, "first_name", q.FirstName)
	setIf(params, "last_name", q.LastName)
	setIf(params, "organization_name", q.OrganizationName)
	setIf(params, "city", q.City)
	setIf(params, "state", q.State)
	limit := q.Limit
	if limit <= 0 {
		limit = c.limit
	}
	params.Set("limit", strconv.Itoa(limit))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.baseURL, "/")+"/?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "npi: create request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, resilience.NewTransportError(eris.Wrap(err, "npi: send request"), 0)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransportError(eris.Wrap(err, "npi: read response"), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.FromHTTPStatus("npi", resp.StatusCode, string(body))
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "npi: unmarshal response")
	}
	if len(sr.Errors) > 0 {
		return nil, resilience.NewRejectionError("npi", sr.Errors[0].Description, 0)
	}
	return sr.Results, nil
}

func setIf(v url.Values, key, val string) {
	if val = strings.TrimSpace(val); val != "" {
		v.Set(key, val)
	}
}
