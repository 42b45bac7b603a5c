package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"case-outreach-service/pkg/anthropic"
)

type mockAI struct {
	mock.Mock
}

func (m *mockAI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*anthropic.MessageResponse)
	return resp, args.Error(1)
}

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: s}}}
}

func TestParseProviders(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int
		wantErr string
	}{
		{
			name: "two providers",
			text: `{"providers": [
				{"name": "Dr. Alice Smith", "organization": "Lakeshore Ortho", "specialty": "orthopedics", "city": "Chicago", "state": "il", "phone": "", "fax": "", "email": ""},
				{"name": "", "organization": "Northside Imaging", "specialty": "", "city": "", "state": "", "phone": "", "fax": "", "email": ""}
			]}`,
			want: 2,
		},
		{name: "fenced", text: "```json\n{\"providers\": []}\n```", want: 0},
		{name: "prose", text: `Sure! Here are the providers: Dr. Smith.`, wantErr: "not a JSON object"},
		{name: "missing key", text: `{"doctors": []}`, wantErr: "decode"},
		{name: "null providers", text: `{"providers": null}`, wantErr: `missing "providers"`},
		{name: "unnamed provider", text: `{"providers": [{"name": " ", "organization": ""}]}`, wantErr: "has no name"},
		{name: "truncated", text: `{"providers": [{"name": "Dr`, wantErr: "decode"},
		{name: "two objects", text: `{"providers": []} {"providers": []}`, wantErr: "trailing data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProviders(tt.text)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrMalformed))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestParseProviders_Normalizes(t *testing.T) {
	got, err := ParseProviders(`{"providers": [{"name": "", "organization": " Northside Imaging ", "state": " wi "}]}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Northside Imaging", got[0].Name)
	assert.Equal(t, "WI", got[0].State)
}

func TestParseAssessment(t *testing.T) {
	good := `{"summary": "Rear-ended at a light.", "incidentDate": "2026-01-04", "injuries": ["whiplash"], "treatmentStatus": "ongoing", "caseStrength": "strong", "followUps": ["police report"]}`
	a, err := ParseAssessment(good)
	require.NoError(t, err)
	assert.Equal(t, "strong", a.CaseStrength)
	assert.Equal(t, []string{"whiplash"}, a.Injuries)

	_, err = ParseAssessment(`{"summary": "x", "treatmentStatus": "maybe", "caseStrength": "strong"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown treatmentStatus")

	_, err = ParseAssessment(`{"summary": "", "treatmentStatus": "none", "caseStrength": "weak"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no summary")

	_, err = ParseAssessment(`{"summary": "x", "treatmentStatus": "none", "caseStrength": "weak", "score": 9}`)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrMalformed))
}

func TestExtractor_Providers(t *testing.T) {
	ai := &mockAI{}
	ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "test-model" && req.System == providersPrompt && len(req.Messages) == 1
	})).Return(textResponse(`{"providers": [{"name": "Dr. Lee", "organization": "", "specialty": "", "city": "", "state": "", "phone": "", "fax": "", "email": ""}]}`), nil)

	got, err := New(ai, "test-model", 0).Providers(context.Background(), "user: I saw Dr. Lee last week")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dr. Lee", got[0].Name)
	ai.AssertExpectations(t)
}

func TestExtractor_Errors(t *testing.T) {
	t.Run("empty transcript", func(t *testing.T) {
		_, err := New(&mockAI{}, "m", 0).Providers(context.Background(), "  ")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty transcript")
	})

	t.Run("api failure", func(t *testing.T) {
		ai := &mockAI{}
		ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))
		_, err := New(ai, "m", 0).Assess(context.Background(), "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "analyze_transcript request")
	})

	t.Run("empty response", func(t *testing.T) {
		ai := &mockAI{}
		ai.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(""), nil)
		_, err := New(ai, "m", 0).Providers(context.Background(), "hello")
		require.Error(t, err)
		assert.True(t, eris.Is(err, ErrMalformed))
	})
}
