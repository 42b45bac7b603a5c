package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"case-outreach-service/internal/config"
	"case-outreach-service/internal/metrics"
	"case-outreach-service/internal/store"
	"case-outreach-service/internal/workflows"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestOpenStore_Memory(t *testing.T) {
	st, err := OpenStore(context.Background(), config.StoreConfig{DatabaseURL: MemoryDatabaseURL})
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestOpenStore_BadURL(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StoreConfig{DatabaseURL: "://nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: parse config")
}

func TestNewActivities(t *testing.T) {
	cfg := testConfig(t)
	cfg.Voice.AgentID = "agent-1"
	cfg.Fax.From = "+13125550000"

	acts := NewActivities(cfg, store.NewMemory(), metrics.New())

	assert.NotNil(t, acts.SMS)
	assert.NotNil(t, acts.Voice)
	assert.NotNil(t, acts.Fax)
	assert.NotNil(t, acts.Email)
	assert.NotNil(t, acts.ESign)
	assert.NotNil(t, acts.Registry)
	assert.NotNil(t, acts.Extractor)
	assert.Equal(t, "agent-1", acts.Settings.VoiceAgentID)
	assert.Equal(t, "+13125550000", acts.Settings.FaxFrom)
}

func TestCaseDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Records.Mode = "production"
	cfg.Outreach.MaxAttempts = 4

	in, err := CaseDefaults(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, in.Outreach.MaxAttempts)
	assert.Equal(t, 24*time.Hour, in.Outreach.WaitBetweenAttempts)
	assert.Equal(t, config.DefaultTemplates, in.Outreach.Templates)
	assert.Equal(t, workflows.ProductionSchedule, in.Schedule)
	assert.Equal(t, 7*24*time.Hour, in.VerificationTimeout)

	cfg.Outreach.TemplatesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = CaseDefaults(cfg)
	assert.Error(t, err)
}

func TestAPIOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.SMS.AuthToken = "token"

	opts, err := APIOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "CASE_OUTREACH_TASK_QUEUE", opts.TaskQueue)
	assert.Equal(t, "token", opts.TwilioAuthToken)
	assert.Equal(t, "http://localhost:8090", opts.PublicURL)
	assert.Equal(t, workflows.DemoSchedule, opts.Schedule)
	assert.Equal(t, []string{"*"}, opts.CORSOrigins)
}
