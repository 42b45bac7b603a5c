package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"case-outreach-service/internal/modal"
)

func TestMemoryStore_InstanceParentIsImmutable(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.RegisterInstance(ctx, modal.RegisterInstanceInput{ID: "child", Name: "records", ParentID: "case-1"}))
	require.NoError(t, m.RegisterInstance(ctx, modal.RegisterInstanceInput{ID: "child", Name: "records", ParentID: "other"}))

	got, err := m.GetInstance(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, "case-1", got.ParentID)
	assert.Equal(t, modal.InstanceRunning, got.Status)
}

func TestMemoryStore_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.RegisterInstance(ctx, modal.RegisterInstanceInput{ID: "i1", Name: "outreach"}))

	require.NoError(t, m.MarkInstanceTerminal(ctx, "i1", modal.InstanceFailed, "no contact"))
	require.NoError(t, m.MarkInstanceTerminal(ctx, "i1", modal.InstanceCompleted, ""))
	require.Error(t, m.MarkInstanceTerminal(ctx, "i1", modal.InstanceRunning, ""))

	got, err := m.GetInstance(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, modal.InstanceFailed, got.Status)
	assert.Equal(t, "failed: no contact", got.StatusMessage)
}

func TestMemoryStore_VerificationResolvesOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	v, err := m.CreateVerification(ctx, modal.VerificationRequest{CaseID: "c1", ProviderID: "p1"})
	require.NoError(t, err)

	ok, err := m.ResolveVerification(ctx, v.ID, true, "reviewer@firm", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.ResolveVerification(ctx, v.ID, false, "someone-else", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.GetVerification(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, modal.VerificationApproved, got.Status)
	assert.Equal(t, "reviewer@firm", got.ResolvedBy)

	pending, err := m.ListPendingVerifications(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMemoryStore_DispatchRequiresSignature(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateRecordsRequest(ctx, modal.RecordsRequest{ID: "r1", CaseID: "c1", ProviderID: "p1"}))

	require.Error(t, m.MarkRecordsDispatched(ctx, "r1", modal.ChannelFax, "fax-1"))

	now := time.Now()
	require.NoError(t, m.UpdateSignatureStatus(ctx, "r1", modal.SignatureSigned, &now))
	require.NoError(t, m.UpdateSignatureStatus(ctx, "r1", modal.SignatureDeclined, nil))
	require.NoError(t, m.MarkRecordsDispatched(ctx, "r1", modal.ChannelFax, "fax-1"))

	r, err := m.GetRecordsRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, modal.SignatureSigned, r.SignatureStatus)
	assert.Equal(t, "fax-1", r.DispatchID)
}

func TestMemoryStore_FindOpenCaseByPhone(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.CreateCase(ctx, modal.Case{ID: "old", Phone: "+12125551234", Status: modal.CaseFailed})
	require.NoError(t, err)
	_, err = m.CreateCase(ctx, modal.Case{ID: "open", Phone: "+12125551234"})
	require.NoError(t, err)

	c, err := m.FindOpenCaseByPhone(ctx, "+12125551234")
	require.NoError(t, err)
	assert.Equal(t, "open", c.ID)

	_, err = m.FindOpenCaseByPhone(ctx, "+13125550000")
	assert.True(t, eris.Is(err, ErrNotFound))
}
