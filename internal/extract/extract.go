// Package extract turns case conversations into structured data with the LLM. Output is
// validated strictly: a response that is not the expected JSON shape is an error, never a
// partial result.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"case-outreach-service/internal/modal"
	"case-outreach-service/pkg/anthropic"
)

// ErrMalformed is wrapped when the model's reply does not parse into the expected shape.
var ErrMalformed = eris.New("extract: malformed model output")

const maxTranscriptChars = 60000

const providersPrompt = `You read transcripts of intake calls and text threads between a law firm and an injured client.
List every healthcare provider the client mentions having seen for their injuries: doctors, clinics,
hospitals, physical therapists, urgent care, chiropractors, imaging centers.

Respond with ONLY valid JSON, no other text:
{"providers": [{"name": "", "organization": "", "specialty": "", "city": "", "state": "", "phone": "", "fax": "", "email": ""}]}

Use empty strings for unknown fields. "state" is a two-letter US state code. If no providers are mentioned
return {"providers": []}.`

const assessmentPrompt = `You assess personal-injury intake conversations for a law firm.

Respond with ONLY valid JSON, no other text:
{"summary": "", "incidentDate": "", "injuries": [], "treatmentStatus": "", "caseStrength": "", "followUps": []}

"treatmentStatus" is one of "none", "ongoing", "completed". "caseStrength" is one of "weak", "moderate", "strong".
"incidentDate" is YYYY-MM-DD or empty.`

// Extractor runs extraction prompts against the LLM.
type Extractor struct {
	ai        anthropic.Client
	model     string
	maxTokens int64
}

func New(ai anthropic.Client, model string, maxTokens int64) *Extractor {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Extractor{ai: ai, model: model, maxTokens: maxTokens}
}

// Providers lists the healthcare providers mentioned in transcript.
func (e *Extractor) Providers(ctx context.Context, transcript string) ([]modal.ExtractedProvider, error) {
	text, err := e.ask(ctx, providersPrompt, transcript, "extract_providers")
	if err != nil {
		return nil, err
	}
	return ParseProviders(text)
}

// Assess produces the structured case assessment for transcript.
func (e *Extractor) Assess(ctx context.Context, transcript string) (*modal.CaseAssessment, error) {
	text, err := e.ask(ctx, assessmentPrompt, transcript, "analyze_transcript")
	if err != nil {
		return nil, err
	}
	return ParseAssessment(text)
}

func (e *Extractor) ask(ctx context.Context, system, transcript, purpose string) (string, error) {
	if strings.TrimSpace(transcript) == "" {
		return "", eris.New("extract: empty transcript")
	}
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars]
	}
	temp := 0.0
	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: "Transcript:\n" + transcript}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrapf(err, "extract: %s request", purpose)
	}
	resp.Usage.Log(e.model, purpose)

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", eris.Wrapf(ErrMalformed, "%s: empty response", purpose)
	}
	return text, nil
}

type providersEnvelope struct {
	Providers *[]modal.ExtractedProvider `json:"providers"`
}

// ParseProviders decodes a providers reply. Unknown fields, a missing "providers" key or a
// provider without a name are rejected.
func ParseProviders(text string) ([]modal.ExtractedProvider, error) {
	var env providersEnvelope
	if err := decodeStrict(text, &env); err != nil {
		return nil, err
	}
	if env.Providers == nil {
		return nil, eris.Wrap(ErrMalformed, `missing "providers"`)
	}
	out := make([]modal.ExtractedProvider, 0, len(*env.Providers))
	for i, p := range *env.Providers {
		p.Name = strings.TrimSpace(p.Name)
		p.Organization = strings.TrimSpace(p.Organization)
		if p.Name == "" && p.Organization == "" {
			return nil, eris.Wrapf(ErrMalformed, "provider %d has no name", i)
		}
		if p.Name == "" {
			p.Name = p.Organization
		}
		p.State = strings.ToUpper(strings.TrimSpace(p.State))
		out = append(out, p)
	}
	return out, nil
}

var (
	treatmentStatuses = map[string]bool{"none": true, "ongoing": true, "completed": true}
	caseStrengths     = map[string]bool{"weak": true, "moderate": true, "strong": true}
)

// ParseAssessment decodes an assessment reply and checks its enumerated fields.
func ParseAssessment(text string) (*modal.CaseAssessment, error) {
	var a modal.CaseAssessment
	if err := decodeStrict(text, &a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Summary) == "" {
		return nil, eris.Wrap(ErrMalformed, "assessment has no summary")
	}
	if !treatmentStatuses[a.TreatmentStatus] {
		return nil, eris.Wrapf(ErrMalformed, "unknown treatmentStatus %q", a.TreatmentStatus)
	}
	if !caseStrengths[a.CaseStrength] {
		return nil, eris.Wrapf(ErrMalformed, "unknown caseStrength %q", a.CaseStrength)
	}
	return &a, nil
}

// decodeStrict accepts a single JSON object, optionally wrapped in a markdown code fence.
func decodeStrict(text string, v any) error {
	body := stripFence(strings.TrimSpace(text))
	if !strings.HasPrefix(body, "{") {
		return eris.Wrapf(ErrMalformed, "not a JSON object: %s", preview(body))
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return eris.Wrapf(ErrMalformed, "decode: %v", err)
	}
	if dec.More() {
		return eris.Wrap(ErrMalformed, "trailing data after JSON object")
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func preview(s string) string {
	if len(s) > 80 {
		return fmt.Sprintf("%s...", s[:80])
	}
	return s
}
