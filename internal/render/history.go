package render

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/kingrea/amplihack-recipes/internal/history"
	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

// History renders the output of `history`. Start times are shown relative
// to now.
func History(w io.Writer, format Format, entries []history.Entry, now time.Time) error {
	if entries == nil {
		entries = []history.Entry{}
	}
	if ok, err := encode(w, format, entries); ok {
		return err
	}
	s := NewStyles(w)
	if format == FormatTable {
		cells := make([][]string, 0, len(entries))
		for _, e := range entries {
			cells = append(cells, []string{
				e.RunID,
				e.Recipe,
				runStatus(e),
				humanize.RelTime(e.StartedAt, now, "ago", "from now"),
				e.Elapsed().Round(time.Millisecond).String(),
				e.FailedStep,
			})
		}
		_, err := fmt.Fprintln(w, s.table([]string{"RUN", "RECIPE", "STATUS", "STARTED", "ELAPSED", "FAILED STEP"}, cells))
		return err
	}

	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded yet.")
		return err
	}
	for _, e := range entries {
		style := s.OK
		switch e.Status {
		case runlog.RunFailed:
			style = s.Fail
		case runlog.RunAborted:
			style = s.Warn
		}
		fmt.Fprintf(w, "%s  %-9s %s  %s\n",
			s.Muted.Render(e.RunID),
			style.Render(runStatus(e)),
			e.Recipe,
			s.Muted.Render(fmt.Sprintf("%s, %d/%d steps completed, took %s",
				humanize.RelTime(e.StartedAt, now, "ago", "from now"),
				e.Completed, e.Steps,
				e.Elapsed().Round(time.Millisecond))))
		if e.FailedStep != "" {
			fmt.Fprintf(w, "    at step %s: %s\n", e.FailedStep, e.Error)
		}
	}
	return nil
}

func runStatus(e history.Entry) string {
	if e.DryRun {
		return string(e.Status) + " (dry-run)"
	}
	return string(e.Status)
}
