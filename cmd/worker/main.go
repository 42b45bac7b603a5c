package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"case-outreach-service/internal/app"
	"case-outreach-service/internal/config"
	"case-outreach-service/internal/metrics"
	"case-outreach-service/internal/workflows"
)

var (
	cfg         *config.Config
	metricsAddr string
	migrate     bool
)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the case outreach Temporal worker",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c
		return config.InitLogger(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9102", "address for the /metrics endpoint, empty to disable")
	rootCmd.Flags().BoolVar(&migrate, "migrate", false, "apply the store schema before starting")
}

func run(ctx context.Context) error {
	st, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()
	if migrate {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	tc, err := app.DialTemporal(cfg.Temporal)
	if err != nil {
		return err
	}
	defer tc.Close()

	m := metrics.New()
	if metricsAddr != "" {
		r := chi.NewRouter()
		r.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Error("metrics server", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	w := worker.New(tc, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.CaseWorkflow)
	w.RegisterWorkflow(workflows.OutreachWorkflow)
	w.RegisterWorkflow(workflows.VerificationWorkflow)
	w.RegisterWorkflow(workflows.RecordsWorkflow)
	w.RegisterActivity(app.NewActivities(cfg, st, m))

	zap.L().Info("worker started", zap.String("taskQueue", cfg.Temporal.TaskQueue), zap.String("records", cfg.Records.Mode))
	return w.Run(worker.InterruptCh())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
