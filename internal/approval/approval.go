// Package approval asks an operator to confirm each step of an interactive
// run. On a terminal it shows a Bubble Tea prompt; otherwise it falls back to
// a plain y/N line prompt so piped input keeps working.
package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/kingrea/amplihack-recipes/internal/runner"
)

// ErrInputClosed is returned when input ends before an answer is given.
var ErrInputClosed = errors.New("approval: input closed")

// Prompt implements runner.Approver.
type Prompt struct {
	in     io.Reader
	out    io.Writer
	tty    bool
	reader *bufio.Reader
}

var _ runner.Approver = (*Prompt)(nil)

// New builds a prompt over in and out. The Bubble Tea UI is used only when
// both are terminals.
func New(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out, tty: isTerminal(in) && isTerminal(out)}
}

// NewLine builds a prompt that always uses the line reader.
func NewLine(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: in, out: out}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Approve blocks until the operator answers or ctx is cancelled.
func (p *Prompt) Approve(ctx context.Context, preview runner.Preview) (bool, error) {
	if p.tty {
		return p.approveTUI(ctx, preview)
	}
	return p.approveLine(ctx, preview)
}

func (p *Prompt) approveTUI(ctx context.Context, preview runner.Preview) (bool, error) {
	program := tea.NewProgram(newModel(preview),
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)
	final, err := program.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, fmt.Errorf("approval: %w", err)
	}
	m, ok := final.(model)
	if !ok || !m.decided {
		return false, ErrInputClosed
	}
	return m.approved, nil
}

type answer struct {
	line string
	err  error
}

func (p *Prompt) approveLine(ctx context.Context, preview runner.Preview) (bool, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.in)
	}
	fmt.Fprintf(p.out, "\nStep %d/%d: %s (%s)\n", preview.Index+1, preview.Total, preview.StepID, describe(preview))
	fmt.Fprintln(p.out, clip(preview.Resolved, previewLines))
	fmt.Fprint(p.out, "Run this step? [y/N]: ")

	// The read cannot be interrupted; a cancelled run leaves it pending.
	ch := make(chan answer, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		ch <- answer{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && strings.TrimSpace(a.line) == "" {
			if errors.Is(a.err, io.EOF) {
				return false, ErrInputClosed
			}
			return false, fmt.Errorf("approval: read answer: %w", a.err)
		}
		return parseAnswer(a.line), nil
	}
}

func parseAnswer(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
