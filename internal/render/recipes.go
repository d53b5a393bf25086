package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kingrea/amplihack-recipes/internal/recipe"
)

// RecipeSummary is the machine-readable row for `list`.
type RecipeSummary struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Steps       int      `json:"steps" yaml:"steps"`
	Source      string   `json:"source" yaml:"source"`
	Path        string   `json:"path" yaml:"path"`
	Overrides   []string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func summarize(entry recipe.Entry) RecipeSummary {
	row := RecipeSummary{
		Name:      entry.Name,
		Source:    entry.Source,
		Path:      entry.Path,
		Overrides: entry.Overridden,
	}
	if entry.Recipe != nil {
		row.Description = entry.Recipe.Description
		row.Version = entry.Recipe.Version
		row.Steps = len(entry.Recipe.Steps)
	}
	if entry.Err != nil {
		row.Error = entry.Err.Error()
	}
	return row
}

// Recipes renders the output of `list`.
func Recipes(w io.Writer, format Format, entries []recipe.Entry, long bool) error {
	rows := make([]RecipeSummary, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, summarize(entry))
	}
	if ok, err := encode(w, format, rows); ok {
		return err
	}
	s := NewStyles(w)
	if format == FormatTable {
		headers := []string{"NAME", "STEPS", "SOURCE", "DESCRIPTION"}
		if long {
			headers = append(headers, "PATH")
		}
		cells := make([][]string, 0, len(rows))
		for _, row := range rows {
			desc := row.Description
			if row.Error != "" {
				desc = "error: " + row.Error
			}
			line := []string{row.Name, fmt.Sprint(row.Steps), row.Source, firstLine(desc)}
			if long {
				line = append(line, row.Path)
			}
			cells = append(cells, line)
		}
		_, err := fmt.Fprintln(w, s.table(headers, cells))
		return err
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No recipes found.")
		return err
	}
	width := 0
	for _, row := range rows {
		width = max(width, len(row.Name))
	}
	for _, row := range rows {
		desc := firstLine(row.Description)
		if row.Error != "" {
			desc = s.Fail.Render("error: " + row.Error)
		}
		fmt.Fprintf(w, "%-*s  %s\n", width, row.Name, desc)
		if long {
			fmt.Fprintf(w, "%-*s  %s\n", width, "", s.Muted.Render(fmt.Sprintf("%s · %d steps · %s", row.Source, row.Steps, row.Path)))
			for _, overridden := range row.Overrides {
				fmt.Fprintf(w, "%-*s  %s\n", width, "", s.Muted.Render("overrides "+overridden))
			}
		}
	}
	return nil
}

// Recipe renders the output of `show`.
func Recipe(w io.Writer, format Format, rec *recipe.Recipe, stepsOnly bool) error {
	var payload any = rec
	if stepsOnly {
		payload = rec.Steps
	}
	if ok, err := encode(w, format, payload); ok {
		return err
	}
	s := NewStyles(w)
	if format == FormatTable {
		cells := make([][]string, 0, len(rec.Steps))
		for i, step := range rec.Steps {
			target := step.Agent
			if step.Kind == recipe.KindBash {
				target = firstLine(step.Command)
			}
			cells = append(cells, []string{fmt.Sprint(i + 1), step.ID, string(step.Kind), target, step.Output, step.Condition})
		}
		_, err := fmt.Fprintln(w, s.table([]string{"#", "ID", "TYPE", "AGENT/COMMAND", "OUTPUT", "CONDITION"}, cells))
		return err
	}

	if !stepsOnly {
		fmt.Fprintln(w, s.Title.Render(rec.Name))
		if rec.Description != "" {
			fmt.Fprintln(w, rec.Description)
		}
		meta := []string{}
		if rec.Version != "" {
			meta = append(meta, "version "+rec.Version)
		}
		if rec.Author != "" {
			meta = append(meta, "by "+rec.Author)
		}
		if rec.Source != "" {
			meta = append(meta, rec.Source)
		}
		if len(meta) > 0 {
			fmt.Fprintln(w, s.Muted.Render(strings.Join(meta, " · ")))
		}
		if len(rec.Context) > 0 {
			fmt.Fprintln(w, "\nContext:")
			for _, v := range rec.Context {
				fmt.Fprintf(w, "  %s%s\n", v.Name, contextNote(v))
			}
		}
		fmt.Fprintln(w, "\nSteps:")
	}
	for i, step := range rec.Steps {
		fmt.Fprintf(w, "  %d. %s [%s]", i+1, step.ID, step.Kind)
		if step.Agent != "" {
			fmt.Fprintf(w, " %s", step.Agent)
		}
		fmt.Fprintln(w)
		if step.Description != "" {
			fmt.Fprintf(w, "     %s\n", step.Description)
		}
		if step.Condition != "" {
			fmt.Fprintf(w, "     when: %s\n", step.Condition)
		}
		if step.Output != "" {
			note := step.Output
			if step.ParseJSON {
				note += " (json)"
			}
			fmt.Fprintf(w, "     output: %s\n", note)
		}
		if step.Timeout > 0 {
			fmt.Fprintf(w, "     timeout: %s\n", step.Timeout.Round(time.Second))
		}
	}
	return nil
}

func contextNote(v recipe.ContextVar) string {
	parts := []string{}
	if v.Required {
		parts = append(parts, "required")
	}
	if v.HasDefault {
		parts = append(parts, fmt.Sprintf("default %v", v.Default))
	}
	if v.Description != "" {
		parts = append(parts, v.Description)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, "; ") + ")"
}

// Report renders the output of `validate`.
func Report(w io.Writer, format Format, name string, report recipe.Report) error {
	if ok, err := encode(w, format, report); ok {
		return err
	}
	s := NewStyles(w)
	if report.Valid {
		fmt.Fprintf(w, "%s %s is valid\n", s.OK.Render("✓"), name)
	} else {
		fmt.Fprintf(w, "%s %s has %d error(s)\n", s.Fail.Render("✗"), name, len(report.Errors))
	}
	for _, issue := range report.Errors {
		fmt.Fprintf(w, "  %s %s\n", s.Fail.Render("error:"), issue.Message)
	}
	for _, issue := range report.Warnings {
		fmt.Fprintf(w, "  %s %s\n", s.Warn.Render("warning:"), issue.Message)
	}
	return nil
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx] + " …"
	}
	return text
}
