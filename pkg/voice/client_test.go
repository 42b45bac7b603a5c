package voice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"case-outreach-service/internal/resilience"
)

func TestPlaceCall(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       string
		wantRejection bool
		wantTransient bool
		wantID        string
	}{
		{
			name:   "success",
			status: http.StatusCreated,
			body:   `{"conversation_id": "conv-1", "status": "queued"}`,
			wantID: "conv-1",
		},
		{
			name:          "invalid_number",
			status:        http.StatusUnprocessableEntity,
			body:          `{"error": "to_number is not dialable"}`,
			wantErr:       "rejected (422)",
			wantRejection: true,
		},
		{
			name:          "rate_limit",
			status:        http.StatusTooManyRequests,
			body:          `{"error": "slow down"}`,
			wantErr:       "unexpected status 429",
			wantTransient: true,
		},
		{
			name:          "server_error",
			status:        http.StatusBadGateway,
			body:          `upstream`,
			wantErr:       "unexpected status 502",
			wantTransient: true,
		},
		{
			name:    "missing_id",
			status:  http.StatusOK,
			body:    `{"status": "queued"}`,
			wantErr: "missing conversation_id",
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/calls", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				raw, _ := io.ReadAll(r.Body)
				var req CallRequest
				assert.NoError(t, json.Unmarshal(raw, &req))
				assert.Equal(t, "agent-1", req.AgentID)
				assert.Equal(t, "+12125551234", req.ToNumber)
				assert.Equal(t, "case-42", req.Metadata["case_id"])

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
			resp, err := c.PlaceCall(context.Background(), CallRequest{
				AgentID:    "agent-1",
				ToNumber:   "+12125551234",
				FromNumber: "+15550001111",
				Metadata:   map[string]string{"case_id": "case-42"},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantRejection, resilience.IsRejection(err))
				assert.Equal(t, tt.wantTransient, resilience.IsTransient(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, resp.ConversationID)
		})
	}
}

func TestGetCall(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		finished   bool
		human      bool
		failure    string
		transcript string
	}{
		{
			name:       "human answered",
			body:       `{"conversation_id": "conv-1", "status": "done", "answered_by": "human", "transcript": "agent: hi\nuser: hello"}`,
			finished:   true,
			human:      true,
			transcript: "agent: hi\nuser: hello",
		},
		{
			name:     "voicemail",
			body:     `{"conversation_id": "conv-1", "status": "done", "answered_by": "voicemail"}`,
			finished: true,
		},
		{
			name:     "failed",
			body:     `{"conversation_id": "conv-1", "status": "failed", "failure_reason": "busy"}`,
			finished: true,
			failure:  "busy",
		},
		{
			name: "still ringing",
			body: `{"conversation_id": "conv-1", "status": "in_progress"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/calls/conv-1", r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL))
			got, err := c.GetCall(context.Background(), "conv-1")
			require.NoError(t, err)
			assert.Equal(t, tt.finished, got.Finished())
			assert.Equal(t, tt.human, got.TalkedToHuman())
			assert.Equal(t, tt.failure, got.FailureReason)
			assert.Equal(t, tt.transcript, got.Transcript)
		})
	}
}

func TestGetCall_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such call", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := c.GetCall(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, resilience.IsRejection(err))
}
