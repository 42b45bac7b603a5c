package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"case-outreach-service/internal/modal"
)

// MemoryStore is an in-process Store for local runs and tests. It follows the same
// write-once rules as PostgresStore.
type MemoryStore struct {
	mu            sync.Mutex
	cases         map[string]modal.Case
	messages      []modal.Message
	calls         map[string]modal.CallRecord
	instances     map[string]modal.ProcessInstance
	providers     map[string]modal.Provider
	verifications map[string]modal.VerificationRequest
	records       map[string]modal.RecordsRequest
}

var _ Store = (*MemoryStore)(nil)

func NewMemory() *MemoryStore {
	return &MemoryStore{
		cases:         map[string]modal.Case{},
		calls:         map[string]modal.CallRecord{},
		instances:     map[string]modal.ProcessInstance{},
		providers:     map[string]modal.Provider{},
		verifications: map[string]modal.VerificationRequest{},
		records:       map[string]modal.RecordsRequest{},
	}
}

func missing(what, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", what, id)
}

func (m *MemoryStore) CreateCase(_ context.Context, c modal.Case) (*modal.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, ok := m.cases[c.ID]; ok {
		return nil, eris.Errorf("memory: case %s already exists", c.ID)
	}
	if c.Status == "" {
		c.Status = modal.CaseOpen
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	m.cases[c.ID] = c
	return &c, nil
}

func (m *MemoryStore) GetCase(_ context.Context, caseID string) (*modal.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return nil, missing("case", caseID)
	}
	return &c, nil
}

func (m *MemoryStore) FindOpenCaseByPhone(_ context.Context, phone string) (*modal.Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *modal.Case
	for _, c := range m.cases {
		if c.Phone != phone || (c.Status != modal.CaseOpen && c.Status != modal.CaseContacted) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			c := c
			best = &c
		}
	}
	if best == nil {
		return nil, missing("case for phone", phone)
	}
	return best, nil
}

func (m *MemoryStore) UpdateCaseStatus(_ context.Context, caseID string, status modal.CaseStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return missing("case", caseID)
	}
	c.Status, c.FailureReason, c.UpdatedAt = status, reason, time.Now().UTC()
	m.cases[caseID] = c
	return nil
}

func (m *MemoryStore) SetCaseAssessment(_ context.Context, caseID string, a *modal.CaseAssessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[caseID]
	if !ok {
		return missing("case", caseID)
	}
	c.Assessment, c.UpdatedAt = a, time.Now().UTC()
	m.cases[caseID] = c
	return nil
}

func (m *MemoryStore) AddMessage(_ context.Context, msg modal.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	for _, existing := range m.messages {
		if existing.ID == msg.ID {
			return nil
		}
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, caseID string) ([]modal.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []modal.Message
	for _, msg := range m.messages {
		if msg.CaseID == caseID {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (m *MemoryStore) CreateCall(_ context.Context, c modal.CallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[c.ConversationID]; ok {
		return nil
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.calls[c.ConversationID] = c
	return nil
}

func (m *MemoryStore) CompleteCall(_ context.Context, conversationID string, status modal.CallStatus, transcript string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[conversationID]
	if !ok {
		return missing("call", conversationID)
	}
	if c.Completed {
		return nil
	}
	now := time.Now().UTC()
	c.Completed = true
	c.TalkedToHuman, c.Failed, c.FailureReason = status.TalkedToHuman, status.Failed, status.FailureReason
	c.Transcript = transcript
	c.CompletedAt = &now
	m.calls[conversationID] = c
	return nil
}

func (m *MemoryStore) GetCall(_ context.Context, conversationID string) (*modal.CallRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[conversationID]
	if !ok {
		return nil, missing("call", conversationID)
	}
	return &c, nil
}

func (m *MemoryStore) RegisterInstance(_ context.Context, in modal.RegisterInstanceInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instances[in.ID]; ok {
		return nil
	}
	m.instances[in.ID] = modal.ProcessInstance{
		ID:            in.ID,
		ParentID:      in.ParentID,
		Name:          in.Name,
		EntityRef:     in.EntityRef,
		Status:        modal.InstanceRunning,
		StatusMessage: "registered",
		Params:        in.Params,
		StartedAt:     time.Now().UTC(),
	}
	return nil
}

func (m *MemoryStore) UpdateInstanceStatus(_ context.Context, instanceID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.instances[instanceID]
	if !ok {
		return missing("instance", instanceID)
	}
	p.StatusMessage = message
	m.instances[instanceID] = p
	return nil
}

func (m *MemoryStore) MarkInstanceTerminal(_ context.Context, instanceID string, status modal.InstanceStatus, errMsg string) error {
	if !status.Terminal() {
		return eris.Errorf("memory: %q is not a terminal status", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.instances[instanceID]
	if !ok || p.Status != modal.InstanceRunning {
		return nil
	}
	now := time.Now().UTC()
	p.Status, p.Error, p.CompletedAt = status, errMsg, &now
	p.StatusMessage = string(status)
	if errMsg != "" {
		p.StatusMessage += ": " + errMsg
	}
	m.instances[instanceID] = p
	return nil
}

func (m *MemoryStore) GetInstance(_ context.Context, instanceID string) (*modal.ProcessInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.instances[instanceID]
	if !ok {
		return nil, missing("instance", instanceID)
	}
	return &p, nil
}

func (m *MemoryStore) ListChildInstances(_ context.Context, parentID string) ([]modal.ProcessInstance, error) {
	return m.filterInstances(func(p modal.ProcessInstance) bool { return p.ParentID == parentID }), nil
}

func (m *MemoryStore) ListCaseInstances(_ context.Context, caseID string) ([]modal.ProcessInstance, error) {
	return m.filterInstances(func(p modal.ProcessInstance) bool { return p.EntityRef == caseID }), nil
}

func (m *MemoryStore) filterInstances(keep func(modal.ProcessInstance) bool) []modal.ProcessInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []modal.ProcessInstance
	for _, p := range m.instances {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (m *MemoryStore) CreateProvider(_ context.Context, p modal.Provider) (*modal.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Verification == "" {
		p.Verification = modal.ProviderUnverified
	}
	p.CreatedAt = time.Now().UTC()
	m.providers[p.ID] = p
	return &p, nil
}

func (m *MemoryStore) GetProvider(_ context.Context, providerID string) (*modal.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[providerID]
	if !ok {
		return nil, missing("provider", providerID)
	}
	return &p, nil
}

func (m *MemoryStore) ListProviders(_ context.Context, caseID string, state modal.VerificationState) ([]modal.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []modal.Provider
	for _, p := range m.providers {
		if p.CaseID == caseID && p.Verification == state {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.Compare(out[i].ID, out[j].ID) < 0 })
	return out, nil
}

func (m *MemoryStore) SetProviderVerification(_ context.Context, providerID string, state modal.VerificationState, contact *modal.ContactInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[providerID]
	if !ok {
		return missing("provider", providerID)
	}
	p.Verification = state
	if contact != nil {
		p.Contact = *contact
	}
	m.providers[providerID] = p
	return nil
}

func (m *MemoryStore) CreateVerification(_ context.Context, v modal.VerificationRequest) (*modal.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.Status = modal.VerificationPending
	v.CreatedAt = time.Now().UTC()
	m.verifications[v.ID] = v
	return &v, nil
}

func (m *MemoryStore) GetVerification(_ context.Context, verificationID string) (*modal.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[verificationID]
	if !ok {
		return nil, missing("verification", verificationID)
	}
	return &v, nil
}

func (m *MemoryStore) ListPendingVerifications(_ context.Context, caseID string) ([]modal.VerificationRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []modal.VerificationRequest
	for _, v := range m.verifications {
		if v.CaseID == caseID && v.Status == modal.VerificationPending {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ResolveVerification(_ context.Context, verificationID string, approved bool, actor string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[verificationID]
	if !ok || v.Status != modal.VerificationPending {
		return false, nil
	}
	v.Status = modal.VerificationRejected
	if approved {
		v.Status = modal.VerificationApproved
	}
	at = at.UTC()
	v.ResolvedBy, v.ResolvedAt = actor, &at
	m.verifications[verificationID] = v
	return true, nil
}

func (m *MemoryStore) CreateRecordsRequest(_ context.Context, r modal.RecordsRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; ok {
		return nil
	}
	if r.SignatureStatus == "" {
		r.SignatureStatus = modal.SignatureUnsigned
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.records[r.ID] = r
	return nil
}

func (m *MemoryStore) GetRecordsRequest(_ context.Context, requestID string) (*modal.RecordsRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[requestID]
	if !ok {
		return nil, missing("records request", requestID)
	}
	return &r, nil
}

func (m *MemoryStore) UpdateSignatureStatus(_ context.Context, requestID string, status modal.SignatureStatus, signedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[requestID]
	if !ok || r.SignatureStatus != modal.SignatureUnsigned {
		return nil
	}
	r.SignatureStatus, r.SignedAt = status, signedAt
	m.records[requestID] = r
	return nil
}

func (m *MemoryStore) MarkRecordsDispatched(_ context.Context, requestID string, channel modal.DispatchChannel, dispatchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[requestID]
	if !ok || r.SignatureStatus != modal.SignatureSigned {
		return eris.Errorf("memory: records request %s is not signed", requestID)
	}
	now := time.Now().UTC()
	r.Channel, r.DispatchID, r.DispatchedAt = channel, dispatchID, &now
	m.records[requestID] = r
	return nil
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Ping(context.Context) error    { return nil }
func (m *MemoryStore) Close() error                  { return nil }
