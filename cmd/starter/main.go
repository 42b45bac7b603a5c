package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"case-outreach-service/internal/api"
	"case-outreach-service/internal/app"
	"case-outreach-service/internal/config"
	"case-outreach-service/internal/metrics"
	"case-outreach-service/internal/modal"
	"case-outreach-service/internal/store"
	"case-outreach-service/internal/workflows"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "starter",
	Short: "Operator commands for case outreach workflows",
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
}

// env holds the connections a command needs. Close releases them.
type env struct {
	store store.Store
	tc    client.Client
}

func open(ctx context.Context, withTemporal bool) (*env, error) {
	st, err := app.OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	e := &env{store: st}
	if withTemporal {
		tc, err := app.DialTemporal(cfg.Temporal)
		if err != nil {
			st.Close()
			return nil, err
		}
		e.tc = tc
	}
	return e, nil
}

func (e *env) Close() {
	if e.tc != nil {
		e.tc.Close()
	}
	_ = e.store.Close()
}

var (
	startReq    api.StartCaseRequest
	startFollow bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Create a case and start its workflow",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := open(ctx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		opts, err := app.APIOptions(cfg)
		if err != nil {
			return err
		}
		resp, err := api.New(e.tc, e.store, nil, metrics.New(), opts).StartCase(ctx, startReq)
		if err != nil {
			return err
		}
		fmt.Printf("started case %s: WorkflowID=%s RunID=%s\n", resp.CaseID, resp.WorkflowID, resp.RunID)
		if !startFollow {
			return nil
		}

		var res workflows.CaseResult
		if err := e.tc.GetWorkflow(ctx, resp.WorkflowID, resp.RunID).Get(ctx, &res); err != nil {
			return eris.Wrap(err, "case workflow")
		}
		return printJSON(res)
	},
}

var (
	signalReason  string
	signalCascade bool
)

func signalCmd(use, signal string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <workflow-id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " a workflow instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			e, err := open(ctx, true)
			if err != nil {
				return err
			}
			defer e.Close()

			var arg any = modal.PauseSignal{Reason: signalReason}
			if signal == workflows.ResumeSignal {
				arg = modal.ResumeSignal{ResumedBy: signalReason}
			}
			targets := []string{args[0]}
			if signalCascade {
				more, err := store.RunningDescendants(ctx, e.store, args[0])
				if err != nil {
					return err
				}
				targets = append(targets, more...)
			}
			for _, id := range targets {
				if err := e.tc.SignalWorkflow(ctx, id, "", signal, arg); err != nil {
					return eris.Wrapf(err, "signal %s", id)
				}
				fmt.Printf("%s: %s\n", signal, id)
			}
			return nil
		},
	}
}

var treeCmd = &cobra.Command{
	Use:   "tree <case-id>",
	Short: "Show a case's process instances",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()

		roots, err := store.InstanceTree(cmd.Context(), e.store, args[0])
		if err != nil {
			return err
		}
		if len(roots) == 0 {
			return eris.Errorf("no instances for case %s", args[0])
		}
		for _, r := range roots {
			printNode(r, 0)
		}
		return nil
	},
}

func printNode(n *store.InstanceNode, depth int) {
	line := fmt.Sprintf("%s%s [%s] %s", strings.Repeat("  ", depth), n.ID, n.Status, n.StatusMessage)
	if n.Error != "" && !strings.Contains(n.StatusMessage, n.Error) {
		line += " (" + n.Error + ")"
	}
	fmt.Println(line)
	for _, c := range n.Children {
		printNode(c, depth+1)
	}
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the store schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.store.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("schema applied")
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	startCmd.Flags().StringVar(&startReq.CaseID, "case-id", "", "case id, generated when empty")
	startCmd.Flags().StringVar(&startReq.ClientName, "client-name", "", "client's full name")
	startCmd.Flags().StringVar(&startReq.Phone, "phone", "", "client's phone number")
	startCmd.Flags().IntVar(&startReq.MaxAttempts, "max-attempts", 0, "override outreach attempts")
	startCmd.Flags().BoolVar(&startFollow, "follow", false, "wait for the case workflow and print its result")
	_ = startCmd.MarkFlagRequired("client-name")
	_ = startCmd.MarkFlagRequired("phone")

	pauseCmd := signalCmd("pause", workflows.PauseSignal)
	resumeCmd := signalCmd("resume", workflows.ResumeSignal)
	for _, c := range []*cobra.Command{pauseCmd, resumeCmd} {
		c.Flags().StringVar(&signalReason, "reason", "", "reason (pause) or operator name (resume)")
		c.Flags().BoolVar(&signalCascade, "cascade", false, "also signal running child instances")
	}

	rootCmd.AddCommand(startCmd, pauseCmd, resumeCmd, treeCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
