package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"case-outreach-service/internal/resilience"
)

type fakeCreator struct {
	params *openapi.CreateMessageParams
	resp   *openapi.ApiV2010Message
	err    error
}

func (f *fakeCreator) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	f.params = params
	return f.resp, f.err
}

func strPtr(s string) *string { return &s }

func TestSend(t *testing.T) {
	fake := &fakeCreator{resp: &openapi.ApiV2010Message{Sid: strPtr("SM123"), Status: strPtr("queued")}}
	c := newClient(fake, "+15550001111", WithStatusCallback("https://hooks.example.com/sms/status"), WithRateLimit(100))

	res, err := c.Send(context.Background(), "+12125551234", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM123", res.ID)
	assert.Equal(t, "queued", res.Status)

	require.NotNil(t, fake.params)
	assert.Equal(t, "+12125551234", *fake.params.To)
	assert.Equal(t, "+15550001111", *fake.params.From)
	assert.Equal(t, "hello", *fake.params.Body)
	assert.Equal(t, "https://hooks.example.com/sms/status", *fake.params.StatusCallback)
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		rejection bool
	}{
		{name: "invalid number", err: &twclient.TwilioRestError{Code: 21211, Status: 400, Message: "Invalid 'To' Phone Number"}, rejection: true},
		{name: "unsubscribed", err: &twclient.TwilioRestError{Code: 21610, Status: 400, Message: "unsubscribed recipient"}, rejection: true},
		{name: "rate limited", err: &twclient.TwilioRestError{Code: 20429, Status: 429, Message: "too many requests"}, rejection: false},
		{name: "server error", err: &twclient.TwilioRestError{Code: 20500, Status: 500, Message: "internal"}, rejection: false},
		{name: "network", err: errors.New("dial tcp: i/o timeout"), rejection: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(&fakeCreator{err: tt.err}, "+15550001111")
			_, err := c.Send(context.Background(), "+12125551234", "hello")
			require.Error(t, err)
			assert.Equal(t, tt.rejection, resilience.IsRejection(err))
			assert.Equal(t, !tt.rejection, resilience.IsTransient(err))
		})
	}
}

func TestSend_ContextCanceledWhileLimited(t *testing.T) {
	c := newClient(&fakeCreator{resp: &openapi.ApiV2010Message{}}, "+15550001111", WithRateLimit(0.001))
	_, err := c.Send(context.Background(), "+12125551234", "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Send(ctx, "+12125551234", "second")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}
