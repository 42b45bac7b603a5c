// Package sms sends outreach text messages through Twilio.
package sms

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"case-outreach-service/internal/resilience"
)

// Client sends one SMS.
type Client interface {
	Send(ctx context.Context, to, body string) (*SendResult, error)
}

// SendResult identifies an accepted message.
type SendResult struct {
	ID     string
	Status string
}

// messageCreator is the slice of the Twilio API service the client uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Option configures the client.
type Option func(*twilioClient)

// WithRateLimit caps outbound messages per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *twilioClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithStatusCallback sets the delivery-status webhook URL.
func WithStatusCallback(url string) Option {
	return func(c *twilioClient) {
		c.statusCallback = url
	}
}

type twilioClient struct {
	api            messageCreator
	from           string
	statusCallback string
	limiter        *rate.Limiter
}

// NewClient creates a Twilio-backed SMS client.
func NewClient(accountSID, authToken, from string, opts ...Option) Client {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newClient(rest.Api, from, opts...)
}

func newClient(api messageCreator, from string, opts ...Option) *twilioClient {
	c := &twilioClient{
		api:     api,
		from:    from,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *twilioClient) Send(ctx context.Context, to, body string) (*SendResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "sms: rate limit wait")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)
	if c.statusCallback != "" {
		params.SetStatusCallback(c.statusCallback)
	}

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		return nil, classify(err)
	}

	res := &SendResult{}
	if msg.Sid != nil {
		res.ID = *msg.Sid
	}
	if msg.Status != nil {
		res.Status = *msg.Status
	}
	return res, nil
}

// classify maps Twilio REST errors onto the rejection/transport taxonomy. A 4xx from Twilio
// (invalid number, unsubscribed recipient) is permanent.
func classify(err error) error {
	var te *twclient.TwilioRestError
	if errors.As(err, &te) {
		if te.Status >= http.StatusBadRequest && te.Status < http.StatusInternalServerError && !resilience.IsTransientHTTPStatus(te.Status) {
			return resilience.NewRejectionError("sms", te.Message, te.Status)
		}
		return resilience.NewTransportError(eris.Wrapf(err, "sms: twilio error %d", te.Code), te.Status)
	}
	return resilience.NewTransportError(eris.Wrap(err, "sms: send"), 0)
}
