// Package cli wires configuration, discovery, the agent adapters and the
// execution controller into the amplihack-recipe command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/amplihack-recipes/internal/adapter"
	"github.com/kingrea/amplihack-recipes/internal/config"
	"github.com/kingrea/amplihack-recipes/internal/executor"
	"github.com/kingrea/amplihack-recipes/internal/logging"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runner"
)

// App holds the process-level dependencies of the command tree. Tests
// replace the streams, environment, registry and shell.
type App struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	// ProjectDir defaults to the working directory.
	ProjectDir string

	Registry *adapter.Registry
	// Shell runs bash steps; nil uses executor.ExecShell in the project dir.
	Shell executor.ShellRunner
	// Approver overrides the interactive prompt.
	Approver runner.Approver
	Now      func() time.Time

	verbose bool
}

// NewApp returns an App bound to the real process.
func NewApp() *App {
	return &App{
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Getenv:   os.Getenv,
		Registry: adapter.DefaultRegistry(),
		Now:      time.Now,
	}
}

// Run executes the command line and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	root := a.Command()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintf(a.Stderr, "Error: %s\n", msg)
	}
	return ExitCode(err)
}

// Command builds the root cobra command.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:           "amplihack-recipe",
		Short:         "Run declarative multi-step agent workflows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(a.Stdin)
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)
	root.PersistentFlags().StringVarP(&a.ProjectDir, "project", "C", a.ProjectDir, "project directory (defaults to the working directory)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "mirror the engine log to stderr")
	root.AddCommand(
		a.runCommand(),
		a.validateCommand(),
		a.listCommand(),
		a.showCommand(),
		a.historyCommand(),
	)
	return root
}

func (a *App) loadConfig() (*config.Config, error) {
	dir := a.ProjectDir
	if strings.TrimSpace(dir) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}
	cfg, err := config.Load(dir, a.Getenv)
	if err != nil {
		return nil, err
	}
	if a.verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

func (a *App) logger(cfg *config.Config) *logging.Logger {
	logger, err := logging.New(cfg.ProjectDir, cfg.Verbose)
	if err != nil {
		fmt.Fprintf(a.Stderr, "warning: %v\n", err)
		return nil
	}
	return logger
}

func (a *App) registry() *adapter.Registry {
	if a.Registry == nil {
		a.Registry = adapter.DefaultRegistry()
	}
	return a.Registry
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// resolveRecipe loads arg as a file when it names one, otherwise looks it up
// by name across the discovery sources.
func resolveRecipe(cfg *config.Config, arg string) (*recipe.Recipe, error) {
	if looksLikePath(arg) {
		path := arg
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.ProjectDir, path)
		}
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return recipe.LoadFile(path)
		}
	}
	entry, err := recipe.Find(cfg.Sources(), arg)
	if err != nil {
		var notFound *recipe.NotFoundError
		if errors.As(err, &notFound) {
			return nil, &ExitError{Code: ExitInvalid, Err: err}
		}
		return nil, err
	}
	return entry.Recipe, nil
}

func looksLikePath(arg string) bool {
	if strings.ContainsAny(arg, `/\`) {
		return true
	}
	lower := strings.ToLower(arg)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

// agentCatalog scans the configured agent directories. Malformed agent files
// are logged and skipped.
func agentCatalog(cfg *config.Config, logger *logging.Logger) adapter.AgentSet {
	catalog, err := adapter.LoadCatalog(cfg.AgentDirs()...)
	if err != nil {
		logger.Warn("agent catalog: %v", err)
		return adapter.NewAgentSet()
	}
	for _, problem := range catalog.Problems {
		logger.Warn("agent catalog: %s: %v", problem.Path, problem.Err)
	}
	return catalog.Agents
}

// validateOptions checks agents only when at least one agent definition was
// found; otherwise the validator records that agents were not checked.
func validateOptions(agents adapter.AgentSet, strict bool) recipe.ValidateOptions {
	opts := recipe.ValidateOptions{Strict: strict}
	if agents.Len() > 0 {
		opts.Agents = agents
	}
	return opts
}
