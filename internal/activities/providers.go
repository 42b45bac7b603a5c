package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"case-outreach-service/internal/extract"
	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/phone"
	"case-outreach-service/pkg/npi"
)

// loadTranscript returns the call transcript for in.ConversationID, or the SMS thread
// when there is no call.
func (a *Activities) loadTranscript(ctx context.Context, in modal.TranscriptInput) (string, error) {
	if in.ConversationID == "" {
		msgs, err := a.Store.ListMessages(ctx, in.CaseID)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, m := range msgs {
			speaker := "agent"
			if m.Direction == modal.DirectionInbound {
				speaker = "client"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, m.Body)
		}
		return b.String(), nil
	}

	rec, err := a.Store.GetCall(ctx, in.ConversationID)
	if err == nil && rec.Transcript != "" {
		return rec.Transcript, nil
	}
	details, err := a.Voice.GetCall(ctx, in.ConversationID)
	if err != nil {
		return "", rejection(err)
	}
	return details.Transcript, nil
}

func malformed(err error) error {
	if eris.Is(err, extract.ErrMalformed) {
		return temporal.NewApplicationErrorWithCause(err.Error(), ErrMalformedOutput, err)
	}
	return err
}

// ExtractProviders pulls providers out of the case conversation, enriches each from the
// registry, and opens one pending verification per provider. It returns the pending
// verification ids of the case.
//
// A rerun after a partial failure reuses providers already stored under the same name and
// opens the verifications the earlier attempt did not get to, so every pending provider
// ends up with exactly one pending verification.
func (a *Activities) ExtractProviders(ctx context.Context, in modal.TranscriptInput) ([]string, error) {
	logger := activity.GetLogger(ctx)

	stored, err := a.Store.ListProviders(ctx, in.CaseID, modal.ProviderPending)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*modal.Provider, len(stored))
	for i := range stored {
		byName[providerKey(stored[i].Name)] = &stored[i]
	}
	providers := stored
	// contacts holds what this attempt heard and looked up, per provider id.
	contacts := make(map[string][2]modal.ContactInfo)

	transcript, err := a.loadTranscript(ctx, in)
	if err != nil {
		return nil, err
	}
	var extracted []modal.ExtractedProvider
	if strings.TrimSpace(transcript) != "" {
		if extracted, err = a.Extractor.Providers(ctx, transcript); err != nil {
			return nil, malformed(err)
		}
	}

	for _, ep := range extracted {
		key := providerKey(ep.Name)
		if key == "" {
			continue
		}
		if _, ok := byName[key]; ok {
			continue
		}
		said := modal.ContactInfo{Fax: normalizeOrEmpty(ep.Fax), Email: strings.TrimSpace(ep.Email), Phone: normalizeOrEmpty(ep.Phone)}
		match := a.lookup(ctx, modal.RegistryCriteria{Name: ep.Name, Organization: ep.Organization, City: ep.City, State: ep.State})

		p := modal.Provider{
			CaseID:       in.CaseID,
			Name:         ep.Name,
			Organization: ep.Organization,
			Specialty:    ep.Specialty,
			City:         ep.City,
			State:        ep.State,
			Contact:      said,
			Verification: modal.ProviderPending,
		}
		var lookedUp modal.ContactInfo
		if match.BestMatch != nil {
			lookedUp = match.BestMatch.Contact
			p.NPI = match.BestMatch.NPI
			p.Contact = said.Merge(lookedUp)
			if p.Specialty == "" {
				p.Specialty = match.BestMatch.Specialty
			}
		}

		created, err := a.Store.CreateProvider(ctx, p)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *created)
		byName[key] = created
		contacts[created.ID] = [2]modal.ContactInfo{said, lookedUp}
	}

	pending, err := a.Store.ListPendingVerifications(ctx, in.CaseID)
	if err != nil {
		return nil, err
	}
	verified := make(map[string]string, len(pending))
	for _, v := range pending {
		verified[v.ProviderID] = v.ID
	}

	ids := make([]string, 0, len(providers))
	opened := 0
	for _, p := range providers {
		if id, ok := verified[p.ID]; ok {
			ids = append(ids, id)
			continue
		}
		c, ok := contacts[p.ID]
		if !ok {
			c[0] = p.Contact
		}
		v, err := a.Store.CreateVerification(ctx, modal.VerificationRequest{
			CaseID:     in.CaseID,
			ProviderID: p.ID,
			Extracted:  c[0],
			LookedUp:   c[1],
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, v.ID)
		opened++
	}

	logger.Info("providers extracted", "caseID", in.CaseID, "providers", len(providers), "opened", opened)
	return ids, nil
}

// providerKey identifies a provider within a case across extraction attempts.
func providerKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func normalizeOrEmpty(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	n, err := phone.Normalize(raw)
	if err != nil {
		return ""
	}
	return n
}

// LookupProviderRegistry searches the NPI registry. It is best effort: a registry failure
// yields an empty match, never an error.
func (a *Activities) LookupProviderRegistry(ctx context.Context, criteria modal.RegistryCriteria) (modal.RegistryMatch, error) {
	return a.lookup(ctx, criteria), nil
}

func (a *Activities) lookup(ctx context.Context, c modal.RegistryCriteria) modal.RegistryMatch {
	q := npi.Query{City: c.City, State: c.State}
	first, last := splitName(c.Name)
	if last != "" {
		q.FirstName, q.LastName = first, last
	} else {
		q.OrganizationName = firstNonEmpty(c.Organization, c.Name)
	}

	start := time.Now()
	results, err := a.Registry.Search(ctx, q)
	a.observe("npi", start)
	if err != nil {
		activity.GetLogger(ctx).Warn("registry lookup failed", "name", c.Name, "error", err)
		return modal.RegistryMatch{}
	}

	match := modal.RegistryMatch{Candidates: make([]modal.RegistryCandidate, 0, len(results))}
	for _, r := range results {
		loc := r.Location()
		match.Candidates = append(match.Candidates, modal.RegistryCandidate{
			NPI:          r.Number,
			Name:         r.DisplayName(),
			Organization: r.Basic.OrganizationName,
			Specialty:    r.PrimaryTaxonomy(),
			City:         loc.City,
			State:        loc.State,
			Contact: modal.ContactInfo{
				Fax:   normalizeOrEmpty(loc.FaxNumber),
				Phone: normalizeOrEmpty(loc.TelephoneNumber),
			},
		})
	}
	// A single hit is unambiguous; several need a human to pick.
	if len(match.Candidates) == 1 {
		best := match.Candidates[0]
		match.BestMatch = &best
	}
	return match
}

var honorifics = map[string]bool{"dr": true, "dr.": true, "doctor": true}

// splitName reads "Dr. Alice Smith" as Alice/Smith. Single words are treated as
// organization names.
func splitName(name string) (string, string) {
	var parts []string
	for _, f := range strings.Fields(name) {
		if honorifics[strings.ToLower(f)] {
			continue
		}
		parts = append(parts, strings.Trim(f, ","))
	}
	if len(parts) < 2 {
		return "", ""
	}
	last := parts[len(parts)-1]
	switch strings.ToUpper(strings.ReplaceAll(last, ".", "")) {
	case "MD", "DO", "DC", "PT", "DPT", "NP", "PA":
		parts = parts[:len(parts)-1]
		if len(parts) < 2 {
			return "", ""
		}
		last = parts[len(parts)-1]
	}
	return parts[0], last
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// AnalyzeTranscript stores a structured assessment of the case conversation.
func (a *Activities) AnalyzeTranscript(ctx context.Context, in modal.TranscriptInput) (*modal.CaseAssessment, error) {
	transcript, err := a.loadTranscript(ctx, in)
	if err != nil {
		return nil, err
	}
	assessment, err := a.Extractor.Assess(ctx, transcript)
	if err != nil {
		return nil, malformed(err)
	}
	if err := a.Store.SetCaseAssessment(ctx, in.CaseID, assessment); err != nil {
		return nil, err
	}
	return assessment, nil
}

// ApplyVerificationResolution resolves the request if it is still pending and promotes its
// provider to match the stored outcome. A request resolved earlier keeps its first outcome.
func (a *Activities) ApplyVerificationResolution(ctx context.Context, res modal.VerificationResolution) (modal.ResolutionOutcome, error) {
	at := res.ResolvedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	if _, err := a.Store.ResolveVerification(ctx, res.VerificationID, res.Approved, res.Actor, at); err != nil {
		return modal.ResolutionOutcome{}, err
	}

	v, err := a.Store.GetVerification(ctx, res.VerificationID)
	if err != nil {
		return modal.ResolutionOutcome{}, err
	}
	out := modal.ResolutionOutcome{
		VerificationID: v.ID,
		ProviderID:     v.ProviderID,
		Approved:       v.Status == modal.VerificationApproved,
	}

	state := modal.ProviderRejected
	var contact *modal.ContactInfo
	if out.Approved {
		state = modal.ProviderVerified
		if res.ContactInfo != nil && res.Approved {
			p, err := a.Store.GetProvider(ctx, v.ProviderID)
			if err != nil {
				return modal.ResolutionOutcome{}, err
			}
			c := *res.ContactInfo
			c.Fax = firstNonEmpty(normalizeOrEmpty(c.Fax), c.Fax)
			c.Phone = firstNonEmpty(normalizeOrEmpty(c.Phone), c.Phone)
			c = c.Merge(p.Contact)
			contact = &c
		}
	}
	if err := a.Store.SetProviderVerification(ctx, v.ProviderID, state, contact); err != nil {
		return modal.ResolutionOutcome{}, err
	}
	activity.GetLogger(ctx).Info("verification applied", "verificationID", v.ID, "providerID", v.ProviderID, "approved", out.Approved)
	return out, nil
}

// ListVerifiedProviders returns the providers records retrieval should run for.
func (a *Activities) ListVerifiedProviders(ctx context.Context, caseID string) ([]modal.Provider, error) {
	return a.Store.ListProviders(ctx, caseID, modal.ProviderVerified)
}
