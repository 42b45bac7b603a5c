package email

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

func TestSend(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		header        string
		body          string
		wantErr       string
		wantRejection bool
		wantID        string
	}{
		{name: "id in body", status: http.StatusOK, body: `{"message_id": "msg-1"}`, wantID: "msg-1"},
		{name: "id in header", status: http.StatusAccepted, header: "msg-2", wantID: "msg-2"},
		{name: "bounced domain", status: http.StatusForbidden, body: `recipient suppressed`, wantErr: "rejected (403)", wantRejection: true},
		{name: "server_error", status: http.StatusInternalServerError, body: `oops`, wantErr: "unexpected status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/mail/send", r.URL.Path)
				raw, _ := io.ReadAll(r.Body)
				var msg Message
				assert.NoError(t, json.Unmarshal(raw, &msg))
				assert.Equal(t, "records@clinic.example.com", msg.To)
				assert.Len(t, msg.Attachments, 1)
				if tt.header != "" {
					w.Header().Set("X-Message-Id", tt.header)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient("k", WithBaseURL(srv.URL))
			resp, err := c.Send(context.Background(), Message{
				To:          "records@clinic.example.com",
				From:        "intake@firm.example.com",
				Subject:     "Medical records request",
				Text:        "Please find the signed authorization attached.",
				Attachments: []Attachment{{Filename: "authorization.pdf", URL: "https://docs.example.com/a.pdf"}},
			})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantRejection, resilience.IsRejection(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, resp.MessageID)
		})
	}
}
