package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

// Styles holds the lipgloss styles for one output stream. Colours only
// appear when the stream is a terminal.
type Styles struct {
	renderer *lipgloss.Renderer
	Title    lipgloss.Style
	Muted    lipgloss.Style
	OK       lipgloss.Style
	Warn     lipgloss.Style
	Fail     lipgloss.Style
	Header   lipgloss.Style
}

// NewStyles builds styles bound to w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		renderer: r,
		Title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")),
		Muted:    r.NewStyle().Foreground(lipgloss.Color("#888888")),
		OK:       r.NewStyle().Foreground(lipgloss.Color("#50FA7B")),
		Warn:     r.NewStyle().Foreground(lipgloss.Color("#F1FA8C")),
		Fail:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
		Header:   r.NewStyle().Bold(true).Padding(0, 1),
	}
}

func (s Styles) table(headers []string, rows [][]string) string {
	cell := s.renderer.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Muted).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			return cell
		})
	return t.String()
}

func (s Styles) status(status runlog.StepStatus) string {
	switch status {
	case runlog.StepCompleted:
		return s.OK.Render("✓")
	case runlog.StepSkipped:
		return s.Muted.Render("-")
	case runlog.StepAborted:
		return s.Warn.Render("!")
	}
	return s.Fail.Render("✗")
}

// Progress prints one line per step as a run advances. It satisfies
// runner.Observer.
type Progress struct {
	w      io.Writer
	styles Styles
	// live announces steps as they start; off a terminal only outcomes print.
	live bool
}

// NewProgress writes progress lines to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, styles: NewStyles(w), live: IsTerminal(w)}
}

// StepStarted announces a step that is about to run.
func (p *Progress) StepStarted(index, total int, step recipe.Step) {
	if !p.live {
		return
	}
	label := string(step.Kind)
	if step.Agent != "" {
		label += " " + step.Agent
	}
	fmt.Fprintf(p.w, "%s %s %s\n",
		p.styles.Muted.Render(fmt.Sprintf("[%d/%d]", index+1, total)),
		p.styles.Title.Render(step.ID),
		p.styles.Muted.Render(label))
}

// StepFinished prints the outcome of a step.
func (p *Progress) StepFinished(index, total int, result runlog.StepResult) {
	fmt.Fprintf(p.w, "%s %s %s\n",
		p.styles.Muted.Render(fmt.Sprintf("[%d/%d]", index+1, total)),
		p.styles.status(result.Status),
		stepLine(result))
}

func stepLine(result runlog.StepResult) string {
	switch result.Status {
	case runlog.StepSkipped:
		return fmt.Sprintf("%s skipped (%s)", result.StepID, result.SkipReason)
	case runlog.StepCompleted:
		line := fmt.Sprintf("%s completed in %s", result.StepID, result.Duration.Std().Round(time.Millisecond))
		if result.OutputSummary != "" {
			line += ": " + result.OutputSummary
		}
		return line
	}
	line := fmt.Sprintf("%s %s", result.StepID, result.Status)
	if result.Error != nil {
		line += ": " + result.Error.Error()
	}
	return line
}

// Summary prints the end-of-run summary. On failure it names the failing
// step, the elapsed time and the error detail.
func Summary(w io.Writer, l *runlog.Log, logPath string) {
	s := NewStyles(w)
	counts := l.Counts()
	parts := []string{}
	for _, status := range []runlog.StepStatus{runlog.StepCompleted, runlog.StepSkipped, runlog.StepFailed, runlog.StepAborted} {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	headline := fmt.Sprintf("Recipe %s %s in %s", l.Recipe, l.Status, l.Elapsed().Round(time.Millisecond))
	style := s.OK
	if l.Status != runlog.RunCompleted {
		style = s.Fail
	}
	fmt.Fprintln(w, style.Render(headline))
	if len(parts) > 0 {
		fmt.Fprintln(w, s.Muted.Render("  steps: "+strings.Join(parts, ", ")))
	}
	if failed, ok := l.Failed(); ok {
		fmt.Fprintf(w, "  failing step: %s\n", failed.StepID)
		if failed.Error != nil {
			fmt.Fprintf(w, "  error: %s\n", failed.Error.Error())
		}
		fmt.Fprintf(w, "  resume with: --resume-from %s --context-file <log>\n", failed.StepID)
	}
	if l.Options.DryRun {
		fmt.Fprintln(w, s.Muted.Render("  dry run: no agents or commands were invoked"))
	}
	if logPath != "" {
		fmt.Fprintln(w, s.Muted.Render("  log: "+logPath))
	}
}
