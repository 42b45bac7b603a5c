// Package app wires configuration into the clients, store and options the binaries share.
package app

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"case-outreach-service/internal/activities"
	"case-outreach-service/internal/api"
	"case-outreach-service/internal/config"
	"case-outreach-service/internal/extract"
	"case-outreach-service/internal/logging"
	"case-outreach-service/internal/metrics"
	"case-outreach-service/internal/store"
	"case-outreach-service/internal/workflows"
	"case-outreach-service/pkg/anthropic"
	"case-outreach-service/pkg/email"
	"case-outreach-service/pkg/esign"
	"case-outreach-service/pkg/fax"
	"case-outreach-service/pkg/npi"
	"case-outreach-service/pkg/sms"
	"case-outreach-service/pkg/voice"
)

// MemoryDatabaseURL selects the in-process store. Nothing survives a restart.
const MemoryDatabaseURL = "memory"

func DialTemporal(cfg config.TemporalConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    logging.NewTemporalLogger(zap.L().Named("temporal")),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "app: dial temporal %s", cfg.HostPort)
	}
	return c, nil
}

// OpenStore connects to Postgres, or returns a memory store for MemoryDatabaseURL.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	if cfg.DatabaseURL == MemoryDatabaseURL {
		zap.L().Warn("using in-memory store")
		return store.NewMemory(), nil
	}
	st, err := store.NewPostgres(ctx, cfg.DatabaseURL, &store.PoolConfig{
		MaxConns: cfg.MaxConns,
		MinConns: cfg.MinConns,
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// NewActivities builds the activity set with a client per platform.
func NewActivities(cfg *config.Config, st store.Store, m *metrics.Metrics) *activities.Activities {
	var smsOpts []sms.Option
	if cfg.SMS.RatePerSecond > 0 {
		smsOpts = append(smsOpts, sms.WithRateLimit(cfg.SMS.RatePerSecond))
	}
	if cfg.SMS.StatusCallback != "" {
		smsOpts = append(smsOpts, sms.WithStatusCallback(cfg.SMS.StatusCallback))
	}
	voiceOpts := []voice.Option{voice.WithBaseURL(cfg.Voice.BaseURL)}
	if cfg.Voice.RatePerSecond > 0 {
		voiceOpts = append(voiceOpts, voice.WithRateLimit(cfg.Voice.RatePerSecond))
	}
	registryOpts := []npi.Option{npi.WithBaseURL(cfg.Registry.BaseURL)}
	if cfg.Registry.Limit > 0 {
		registryOpts = append(registryOpts, npi.WithLimit(cfg.Registry.Limit))
	}

	return &activities.Activities{
		Store:     st,
		SMS:       sms.NewClient(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.From, smsOpts...),
		Voice:     voice.NewClient(cfg.Voice.Key, voiceOpts...),
		Fax:       fax.NewClient(cfg.Fax.Key, fax.WithBaseURL(cfg.Fax.BaseURL)),
		Email:     email.NewClient(cfg.Email.Key, email.WithBaseURL(cfg.Email.BaseURL)),
		ESign:     esign.NewClient(cfg.ESign.Key, esign.WithBaseURL(cfg.ESign.BaseURL), esign.WithTemplateID(cfg.ESign.TemplateID)),
		Registry:  npi.NewClient(registryOpts...),
		Extractor: extract.New(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens),
		Metrics:   m,
		Settings: activities.Settings{
			VoiceAgentID:    cfg.Voice.AgentID,
			FollowUpAgentID: cfg.Voice.FollowUpAgentID,
			VoiceFrom:       cfg.Voice.FromNumber,
			FaxFrom:         cfg.Fax.From,
			EmailFrom:       cfg.Email.From,
		},
	}
}

// CaseDefaults is the CaseInput every new case starts from.
func CaseDefaults(cfg *config.Config) (workflows.CaseInput, error) {
	templates, err := config.LoadTemplates(cfg.Outreach.TemplatesFile)
	if err != nil {
		return workflows.CaseInput{}, err
	}
	return workflows.CaseInput{
		Outreach: workflows.OutreachInput{
			MaxAttempts:         cfg.Outreach.MaxAttempts,
			WaitBetweenAttempts: cfg.Outreach.WaitBetweenAttempts,
			Templates:           templates,
		},
		VerificationTimeout: cfg.Outreach.VerificationTimeout,
		Schedule:            workflows.ScheduleFor(cfg.Records.Mode),
	}, nil
}

func APIOptions(cfg *config.Config) (api.Options, error) {
	defaults, err := CaseDefaults(cfg)
	if err != nil {
		return api.Options{}, err
	}
	return api.Options{
		TaskQueue:           cfg.Temporal.TaskQueue,
		Outreach:            defaults.Outreach,
		VerificationTimeout: defaults.VerificationTimeout,
		Schedule:            defaults.Schedule,
		CORSOrigins:         cfg.Server.CORSOrigins,
		TwilioAuthToken:     cfg.SMS.AuthToken,
		PublicURL:           cfg.Server.PublicURL,
	}, nil
}

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second
