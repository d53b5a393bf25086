package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kingrea/amplihack-recipes/internal/adapter"
	"github.com/kingrea/amplihack-recipes/internal/approval"
	"github.com/kingrea/amplihack-recipes/internal/config"
	"github.com/kingrea/amplihack-recipes/internal/executor"
	"github.com/kingrea/amplihack-recipes/internal/history"
	"github.com/kingrea/amplihack-recipes/internal/logging"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/render"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
	"github.com/kingrea/amplihack-recipes/internal/runner"
)

type runFlags struct {
	contexts    []string
	contextFile string
	adapter     string
	dryRun      bool
	resumeFrom  string
	stopAt      string
	interactive bool
	output      string
	strict      bool
	timeout     string
}

func (a *App) runCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <recipe>",
		Short: "Execute a recipe by name or file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], flags, cmd.Flags().Changed("dry-run"))
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&flags.contexts, "context", nil, "context variable as key=value (repeatable)")
	f.StringVar(&flags.contextFile, "context-file", "", "YAML/JSON mapping or a previous execution log")
	f.StringVar(&flags.adapter, "adapter", "", "agent backend: "+strings.Join(a.registry().Names(), ", ")+" or auto")
	f.BoolVar(&flags.dryRun, "dry-run", false, "resolve every step without invoking agents or commands")
	f.StringVar(&flags.resumeFrom, "resume-from", "", "skip steps before this step id")
	f.StringVar(&flags.stopAt, "stop-at", "", "stop after this step id")
	f.BoolVar(&flags.interactive, "interactive", false, "ask for approval before each step")
	f.StringVar(&flags.output, "output", "", "also write the execution log (JSON) to this path")
	f.BoolVar(&flags.strict, "strict", false, "treat validation warnings as errors")
	f.StringVar(&flags.timeout, "timeout", "", "default per-step timeout (seconds or Go duration)")
	return cmd
}

func (a *App) run(cmd *cobra.Command, arg string, flags runFlags, dryRunSet bool) error {
	ctx := cmd.Context()
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if err := config.InitStateDir(cfg.ProjectDir); err != nil {
		return fmt.Errorf("init %s: %w", config.StateDirName, err)
	}
	logger := a.logger(cfg)
	defer logger.Close()

	rec, err := resolveRecipe(cfg, arg)
	if err != nil {
		return err
	}
	agents := agentCatalog(cfg, logger)
	report := recipe.Validate(rec, validateOptions(agents, flags.strict))
	for _, warning := range report.Warnings {
		logger.Warn("recipe %s: %s", rec.Name, warning.Message)
	}
	if !report.Valid {
		if err := render.Report(a.Stderr, render.FormatText, rec.Name, report); err != nil {
			return err
		}
		return &ExitError{Code: ExitCode(report.Err())}
	}

	inputs, err := buildInputs(flags.contextFile, flags.contexts)
	if err != nil {
		return &ExitError{Code: ExitInvalid, Err: err}
	}

	dryRun := cfg.DryRun
	if dryRunSet {
		dryRun = flags.dryRun
	}
	timeout := cfg.StepTimeout
	if flags.timeout != "" {
		if timeout, err = recipe.ParseTimeout(flags.timeout); err != nil {
			return &ExitError{Code: ExitInvalid, Err: fmt.Errorf("--timeout: %w", err)}
		}
	}
	backendName := cfg.Adapter
	if flags.adapter != "" {
		backendName = flags.adapter
	}

	var backend adapter.Adapter
	adapterLabel := "none"
	if !dryRun && len(rec.Agents()) > 0 {
		backend, err = a.selectAdapter(cfg, backendName, agents, logger)
		if err != nil {
			return err
		}
		adapterLabel = backend.Name()
	}

	shell := a.Shell
	if shell == nil {
		shell = executor.ExecShell{Dir: cfg.ProjectDir}
	}
	steps := executor.New(backend, shell, executor.WithTimeout(timeout), executor.WithLogger(logger))

	runID := uuid.NewString()
	logPath := cfg.RunLogPath(runID)
	sinks := runlog.MultiSink{runlog.NewFileSink(logPath)}
	if flags.output != "" {
		sinks = append(sinks, runlog.NewFileSink(flags.output))
	}
	if cfg.HistoryEnabled() {
		store, err := history.Open(cfg.HistoryPath())
		if err != nil {
			fmt.Fprintf(a.Stderr, "warning: run history disabled: %v\n", err)
		} else {
			defer store.Close()
			sinks = append(sinks, history.Sink{Store: store, LogPath: logPath})
		}
	}

	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithSink(sinks),
		runner.WithObserver(render.NewProgress(a.Stdout)),
		runner.WithRunID(func() string { return runID }),
		runner.WithClock(a.now),
	}
	if flags.interactive {
		approver := a.Approver
		if approver == nil {
			approver = approval.New(a.Stdin, a.Stderr)
		}
		opts = append(opts, runner.WithApprover(approver))
	}
	controller, err := runner.New(steps, opts...)
	if err != nil {
		return err
	}

	log, runErr := controller.Run(ctx, rec, inputs, runner.RunOptions{
		DryRun:      dryRun,
		Interactive: flags.interactive,
		ResumeFrom:  flags.resumeFrom,
		StopAt:      flags.stopAt,
		Adapter:     adapterLabel,
	})
	if log == nil {
		return runErr
	}
	render.Summary(a.Stdout, log, logPath)
	return runErr
}

func (a *App) selectAdapter(cfg *config.Config, name string, agents adapter.AgentSet, logger *logging.Logger) (adapter.Adapter, error) {
	backend, err := a.registry().Select(name, adapter.Options{
		Agents:       agents,
		Logger:       logger,
		WorkDir:      cfg.ProjectDir,
		AgentCommand: cfg.AgentCommand,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("adapter: using %s", backend.Name())
	return backend, nil
}
