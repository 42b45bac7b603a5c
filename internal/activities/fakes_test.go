package activities

import (
	"context"
	"fmt"
	"sync"

	"case-outreach-service/internal/metrics"
	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/store"
	"case-outreach-service/pkg/email"
	"case-outreach-service/pkg/esign"
	"case-outreach-service/pkg/fax"
	"case-outreach-service/pkg/npi"
	"case-outreach-service/pkg/sms"
	"case-outreach-service/pkg/voice"
)

type fakeSMS struct {
	mu   sync.Mutex
	sent []string
	to   []string
	err  error
}

func (f *fakeSMS) Send(_ context.Context, to, body string) (*sms.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, body)
	return &sms.SendResult{ID: fmt.Sprintf("SM%d", len(f.sent)), Status: "queued"}, nil
}

type fakeVoice struct {
	mu       sync.Mutex
	placed   []voice.CallRequest
	placeErr error
	details  map[string]*voice.CallDetails
	getErr   error
}

func (f *fakeVoice) PlaceCall(_ context.Context, req voice.CallRequest) (*voice.CallResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, req)
	return &voice.CallResponse{ConversationID: fmt.Sprintf("conv-%d", len(f.placed)), Status: voice.StatusQueued}, nil
}

func (f *fakeVoice) GetCall(_ context.Context, id string) (*voice.CallDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return &voice.CallDetails{ConversationID: id, Status: voice.StatusInProgress}, nil
}

type fakeESign struct {
	mu       sync.Mutex
	created  []esign.CreateRequest
	requests map[string]*esign.SignatureRequest
}

func (f *fakeESign) CreateRequest(_ context.Context, req esign.CreateRequest) (*esign.SignatureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	id := fmt.Sprintf("sig-%d", len(f.created))
	r := &esign.SignatureRequest{ID: id, Status: esign.StatusPending}
	if f.requests == nil {
		f.requests = map[string]*esign.SignatureRequest{}
	}
	f.requests[id] = r
	return r, nil
}

func (f *fakeESign) GetRequest(_ context.Context, id string) (*esign.SignatureRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("no request %s", id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeESign) set(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[id].Status = status
	f.requests[id].DocumentURL = "https://docs.example.com/" + id + ".pdf"
}

type fakeFax struct {
	sent []fax.SendRequest
	err  error
}

func (f *fakeFax) Send(_ context.Context, req fax.SendRequest) (*fax.SendResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, req)
	return &fax.SendResponse{ID: fmt.Sprintf("fax-%d", len(f.sent))}, nil
}

type fakeEmail struct {
	sent []email.Message
}

func (f *fakeEmail) Send(_ context.Context, msg email.Message) (*email.SendResponse, error) {
	f.sent = append(f.sent, msg)
	return &email.SendResponse{MessageID: fmt.Sprintf("msg-%d", len(f.sent))}, nil
}

// fakeRegistry answers by last name or organization name.
type fakeRegistry struct {
	results map[string][]npi.Result
	queries []npi.Query
	err     error
}

func (f *fakeRegistry) Search(_ context.Context, q npi.Query) ([]npi.Result, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	if q.LastName != "" {
		return f.results[q.LastName], nil
	}
	return f.results[q.OrganizationName], nil
}

type fakeExtractor struct {
	providers   []modal.ExtractedProvider
	assessment  *modal.CaseAssessment
	err         error
	transcripts []string
}

func (f *fakeExtractor) Providers(_ context.Context, transcript string) ([]modal.ExtractedProvider, error) {
	f.transcripts = append(f.transcripts, transcript)
	return f.providers, f.err
}

func (f *fakeExtractor) Assess(_ context.Context, transcript string) (*modal.CaseAssessment, error) {
	f.transcripts = append(f.transcripts, transcript)
	return f.assessment, f.err
}

// failingVerifications fails the failOn-th CreateVerification call once.
type failingVerifications struct {
	*store.MemoryStore
	mu     sync.Mutex
	calls  int
	failOn int
}

func (f *failingVerifications) CreateVerification(ctx context.Context, v modal.VerificationRequest) (*modal.VerificationRequest, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.failOn
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("store: connection lost")
	}
	return f.MemoryStore.CreateVerification(ctx, v)
}

type fixture struct {
	acts     *Activities
	store    *store.MemoryStore
	sms      *fakeSMS
	voice    *fakeVoice
	esign    *fakeESign
	fax      *fakeFax
	email    *fakeEmail
	registry *fakeRegistry
	extract  *fakeExtractor
}

func newFixture() *fixture {
	f := &fixture{
		store:    store.NewMemory(),
		sms:      &fakeSMS{},
		voice:    &fakeVoice{details: map[string]*voice.CallDetails{}},
		esign:    &fakeESign{},
		fax:      &fakeFax{},
		email:    &fakeEmail{},
		registry: &fakeRegistry{results: map[string][]npi.Result{}},
		extract:  &fakeExtractor{},
	}
	f.acts = &Activities{
		Store:     f.store,
		SMS:       f.sms,
		Voice:     f.voice,
		Fax:       f.fax,
		Email:     f.email,
		ESign:     f.esign,
		Registry:  f.registry,
		Extractor: f.extract,
		Metrics:   metrics.New(),
		Settings: Settings{
			VoiceAgentID:    "agent-intake",
			FollowUpAgentID: "agent-records",
			VoiceFrom:       "+15550001111",
			FaxFrom:         "+15550002222",
			EmailFrom:       "records@firm.example.com",
		},
	}
	return f
}
