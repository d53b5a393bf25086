package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/amplihack-recipes/internal/history"
	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/render"
)

func (a *App) validateCommand() *cobra.Command {
	var strict bool
	var format string
	cmd := &cobra.Command{
		Use:   "validate <file|name>",
		Short: "Check a recipe without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := render.ParseFormat(format, render.FormatText, render.FormatJSON)
			if err != nil {
				return &ExitError{Code: ExitInvalid, Err: err}
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger := a.logger(cfg)
			defer logger.Close()

			rec, err := resolveRecipe(cfg, args[0])
			if err != nil {
				return err
			}
			report := recipe.Validate(rec, validateOptions(agentCatalog(cfg, logger), strict))
			logger.Info("validate %s: valid=%t errors=%d warnings=%d", rec.Name, report.Valid, len(report.Errors), len(report.Warnings))
			if err := render.Report(a.Stdout, outFormat, rec.Name, report); err != nil {
				return err
			}
			if !report.Valid {
				return &ExitError{Code: ExitCode(report.Err())}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat warnings as errors")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func (a *App) listCommand() *cobra.Command {
	var format string
	var long bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discoverable recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := render.ParseFormat(format, render.FormatText, render.FormatJSON, render.FormatYAML, render.FormatTable)
			if err != nil {
				return &ExitError{Code: ExitInvalid, Err: err}
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			entries, err := recipe.Discover(cfg.Sources())
			if err != nil {
				return err
			}
			return render.Recipes(a.Stdout, outFormat, entries, long)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, yaml or table")
	cmd.Flags().BoolVar(&long, "long", false, "include source paths and overrides")
	return cmd
}

func (a *App) showCommand() *cobra.Command {
	var format string
	var stepsOnly bool
	cmd := &cobra.Command{
		Use:   "show <recipe>",
		Short: "Print a recipe's context and steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := render.ParseFormat(format, render.FormatText, render.FormatJSON, render.FormatYAML, render.FormatTable)
			if err != nil {
				return &ExitError{Code: ExitInvalid, Err: err}
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			rec, err := resolveRecipe(cfg, args[0])
			if err != nil {
				return err
			}
			return render.Recipe(a.Stdout, outFormat, rec, stepsOnly)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, yaml or table")
	cmd.Flags().BoolVar(&stepsOnly, "steps-only", false, "print only the steps")
	return cmd
}

func (a *App) historyCommand() *cobra.Command {
	var format string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := render.ParseFormat(format, render.FormatText, render.FormatJSON, render.FormatTable)
			if err != nil {
				return &ExitError{Code: ExitInvalid, Err: err}
			}
			if limit < 0 {
				return &ExitError{Code: ExitInvalid, Err: fmt.Errorf("--limit must not be negative")}
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.HistoryEnabled() {
				return &ExitError{Code: ExitInvalid, Err: fmt.Errorf("run history is disabled in %s", cfg.ProjectConfigPath())}
			}
			store, err := history.Open(cfg.HistoryPath())
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := store.List(limit)
			if err != nil {
				return err
			}
			return render.History(a.Stdout, outFormat, entries, a.now())
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or table")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show (0 for all)")
	return cmd
}
