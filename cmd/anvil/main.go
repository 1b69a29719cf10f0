// Command anvil runs an autonomous coding agent that turns chat messages
// into working static web projects, one task at a time.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/martinemde/anvil/config"
	"github.com/martinemde/anvil/gate"
	"github.com/martinemde/anvil/lifecycle"
	"github.com/martinemde/anvil/llm"
	"github.com/martinemde/anvil/loop"
	"github.com/martinemde/anvil/reflection"
	"github.com/martinemde/anvil/shell"
	"github.com/martinemde/anvil/state"
	"github.com/martinemde/anvil/task"
	"github.com/martinemde/anvil/vcs"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "anvil:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "anvil",
		Short:         "Autonomous web-project agent",
		Long:          "anvil drives a language model through a bounded iteration loop to build and modify static web projects from plain-language requests.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to a YAML config file")
	root.AddCommand(
		newRunCmd(&cfgPath),
		newStatusCmd(&cfgPath),
		newHistoryCmd(&cfgPath),
		newGapsCmd(&cfgPath),
	)
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <message>",
		Short: "Run one task for the given request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log.Level)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			session, emitter, err := buildSession(cfg, logger)
			if err != nil {
				return err
			}
			defer emitter.Close()
			go drainEvents(emitter, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res := session.HandleMessage(ctx, strings.Join(args, " "))
			switch res.Outcome {
			case loop.OutcomeSuccess:
				fmt.Fprintf(cmd.OutOrStdout(), "done in %d iteration(s): %s\n", res.Iterations, res.Summary)
				return nil
			case loop.OutcomeAborted:
				return fmt.Errorf("aborted after %d iteration(s)", res.Iterations)
			default:
				if len(res.FailingGates) > 0 {
					return fmt.Errorf("%s (failing gates: %s)", res.Message, strings.Join(res.FailingGates, ", "))
				}
				return fmt.Errorf("%s", res.Message)
			}
		},
	}
}

func newStatusCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current task state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cfgPath)
			if err != nil {
				return err
			}
			fields := []string{
				state.FieldStatus, state.FieldIteration, state.FieldIntent,
				state.FieldSummary, state.FieldFeedback,
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", "task:", state.GetInt(store, state.FieldTaskCounter, 0))
			for _, f := range fields {
				v, err := store.Get(f)
				if err != nil {
					return err
				}
				if v == "" {
					v = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", f+":", v)
			}
			return nil
		},
	}
}

func newHistoryCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the task history log",
		Args:  cobra.NoArgs,
		RunE:  printField(cfgPath, state.FieldTaskHistory, "no tasks completed yet"),
	}
}

func newGapsCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gaps",
		Short: "Show recorded environment gaps",
		Args:  cobra.NoArgs,
		RunE:  printField(cfgPath, state.FieldGaps, "no gaps recorded"),
	}
}

func printField(cfgPath *string, field, emptyMsg string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		store, err := openStore(cfgPath)
		if err != nil {
			return err
		}
		v, err := store.Get(field)
		if err != nil {
			return err
		}
		if v == "" {
			v = emptyMsg
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	}
}

func openStore(cfgPath *string) (*state.FileStore, error) {
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return nil, err
	}
	return state.NewFileStore(filepath.Join(cfg.WorkDir, cfg.StateDir))
}

// buildSession wires the full production stack from config.
func buildSession(cfg *config.Config, logger *zap.Logger) (*loop.Session, *loop.Emitter, error) {
	store, err := state.NewFileStore(filepath.Join(cfg.WorkDir, cfg.StateDir))
	if err != nil {
		return nil, nil, err
	}

	repo, err := vcs.Open(cfg.WorkDir, vcs.Author{
		Name:  cfg.Git.AuthorName,
		Email: cfg.Git.AuthorEmail,
	})
	if err != nil {
		return nil, nil, err
	}

	gateway, err := llm.NewGollmGateway(cfg.Model.Provider,
		llm.WithModel(cfg.Model.Name),
		llm.WithAPIKey(cfg.Model.APIKey),
		llm.WithMaxTokens(cfg.Model.MaxTokens),
	)
	if err != nil {
		return nil, nil, err
	}

	emitter := loop.NewEmitter(256)
	orch := loop.NewOrchestrator(loop.Options{
		Store:     store,
		Gateway:   gateway,
		Executor:  shell.NewLocalExecutor(cfg.WorkDir, cfg.CommandTimeout()),
		Gates:     gate.NewRunner(gate.DefaultGates(), logger),
		Fsys:      osfs.New(cfg.WorkDir),
		WorkDir:   ".",
		GateCtx:   &gate.Context{},
		Check:     repo,
		Reflector: reflection.NewCapturer(gateway, store, logger),
		Emitter:   emitter,
		Config:    cfg.LoopConfig(),
		Log:       logger,
	})

	session := loop.NewSession(
		store,
		task.NewParser(gateway, logger),
		lifecycle.NewManager(store, repo, logger),
		orch,
		osfs.New(cfg.WorkDir),
		".",
		emitter,
		logger,
	)
	return session, emitter, nil
}

// drainEvents mirrors the loop's event stream into the structured log.
func drainEvents(emitter *loop.Emitter, logger *zap.Logger) {
	for ev := range emitter.Events() {
		logger.Debug("event",
			zap.String("kind", string(ev.Kind)),
			zap.Any("data", ev.Data))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
