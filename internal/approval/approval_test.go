package approval

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/runner"
)

func preview() runner.Preview {
	return runner.Preview{
		Index:       1,
		Total:       3,
		StepID:      "review",
		Kind:        recipe.KindAgent,
		Agent:       "amplihack:reviewer",
		Description: "review the diff",
		Resolved:    "please review main.go",
	}
}

func TestLinePromptAnswers(t *testing.T) {
	cases := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		"n\n":   false,
		"\n":    false,
		"y":     true,
	}
	for input, want := range cases {
		var out bytes.Buffer
		p := NewLine(strings.NewReader(input), &out)
		got, err := p.Approve(context.Background(), preview())
		if err != nil {
			t.Fatalf("%q: unexpected error %v", input, err)
		}
		if got != want {
			t.Fatalf("%q: expected %t, got %t", input, want, got)
		}
		if !strings.Contains(out.String(), "Step 2/3: review (agent · amplihack:reviewer · review the diff)") {
			t.Fatalf("preview header missing: %q", out.String())
		}
		if !strings.Contains(out.String(), "please review main.go") {
			t.Fatalf("resolved prompt missing: %q", out.String())
		}
	}
}

func TestLinePromptReusesReaderAcrossSteps(t *testing.T) {
	p := NewLine(strings.NewReader("y\nn\n"), io.Discard)
	first, err := p.Approve(context.Background(), preview())
	if err != nil || !first {
		t.Fatalf("first answer: %t %v", first, err)
	}
	second, err := p.Approve(context.Background(), preview())
	if err != nil || second {
		t.Fatalf("second answer: %t %v", second, err)
	}
}

func TestLinePromptClosedInput(t *testing.T) {
	p := NewLine(strings.NewReader(""), io.Discard)
	if _, err := p.Approve(context.Background(), preview()); !errors.Is(err, ErrInputClosed) {
		t.Fatalf("expected ErrInputClosed, got %v", err)
	}
}

func TestLinePromptHonoursCancellation(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewLine(r, io.Discard)
	if _, err := p.Approve(ctx, preview()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewUsesLinePromptOffTerminal(t *testing.T) {
	p := New(strings.NewReader("y\n"), io.Discard)
	if p.tty {
		t.Fatalf("buffers are not terminals")
	}
}

func TestModelKeys(t *testing.T) {
	m := newModel(preview())
	if !strings.Contains(m.View(), "Step 2/3") {
		t.Fatalf("view should show step position: %q", m.View())
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")})
	got := next.(model)
	if !got.decided || !got.approved || cmd == nil {
		t.Fatalf("y should approve and quit")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	got = next.(model)
	if !got.decided || got.approved {
		t.Fatalf("esc should reject")
	}

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if next.(model).decided || cmd != nil {
		t.Fatalf("unbound keys must be ignored")
	}
}

func TestClip(t *testing.T) {
	text := strings.Repeat("line\n", 20)
	clipped := clip(text, 3)
	if !strings.HasSuffix(clipped, "… 17 more lines") {
		t.Fatalf("unexpected clip %q", clipped)
	}
}
