package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func writeProjectConfig(t *testing.T, projectDir, body string) {
	t.Helper()
	dir := filepath.Join(projectDir, StateDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "recipes.yaml"), []byte(strings.TrimSpace(body)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaultsWhenProjectConfigMissing(t *testing.T) {
	projectDir := t.TempDir()
	home := t.TempDir()
	cfg, err := Load(projectDir, envMap(map[string]string{"HOME": home}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.StepTimeout != DefaultStepTimeout {
		t.Fatalf("step timeout = %s, want %s", cfg.StepTimeout, DefaultStepTimeout)
	}
	if cfg.AmplihackHome != filepath.Join(home, ".amplihack") {
		t.Fatalf("amplihack home = %s", cfg.AmplihackHome)
	}
	if !cfg.HistoryEnabled() || cfg.HistoryPath() != filepath.Join(cfg.StateDir, "history.db") {
		t.Fatalf("unexpected history settings: %v %s", cfg.HistoryEnabled(), cfg.HistoryPath())
	}
	if cfg.Verbose || cfg.DryRun || cfg.Adapter != "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadProjectConfigParsesYaml(t *testing.T) {
	projectDir := t.TempDir()
	writeProjectConfig(t, projectDir, `
version: 1
adapter: Copilot
step_timeout: 90
recipe_dirs:
  - shared/recipes
agent_dirs:
  - /opt/agents
history:
  enabled: false
`)
	cfg, err := Load(projectDir, envMap(map[string]string{"HOME": t.TempDir()}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Adapter != "copilot" {
		t.Fatalf("adapter = %q", cfg.Adapter)
	}
	if cfg.StepTimeout != 90*time.Second {
		t.Fatalf("step timeout = %s", cfg.StepTimeout)
	}
	if cfg.HistoryEnabled() {
		t.Fatalf("history should be disabled")
	}
	want := filepath.Join(cfg.ProjectDir, "shared", "recipes")
	if len(cfg.Project.RecipeDirs) != 1 || cfg.Project.RecipeDirs[0] != want {
		t.Fatalf("recipe dirs = %v, want %s", cfg.Project.RecipeDirs, want)
	}
	dirs := cfg.AgentDirs()
	if dirs[len(dirs)-2] != "/opt/agents" || dirs[len(dirs)-1] != filepath.Join(cfg.ProjectDir, ".claude", "agents") {
		t.Fatalf("agent dirs = %v", dirs)
	}
}

func TestLoadRejectsInvalidProjectConfig(t *testing.T) {
	projectDir := t.TempDir()
	writeProjectConfig(t, projectDir, `step_timeout: soon`)
	if _, err := Load(projectDir, envMap(nil)); err == nil || !strings.Contains(err.Error(), "step_timeout") {
		t.Fatalf("expected step_timeout error, got %v", err)
	}
}

func TestEnvironmentOverridesProjectConfig(t *testing.T) {
	projectDir := t.TempDir()
	writeProjectConfig(t, projectDir, `adapter: copilot`)
	cfg, err := Load(projectDir, envMap(map[string]string{
		"HOME":         t.TempDir(),
		EnvAdapter:     "CLAUDE",
		EnvVerbose:     "yes",
		EnvDryRun:      "1",
		EnvStepTimeout: "2m",
		EnvHome:        "/srv/amplihack",
		EnvRecipePath:  "one" + string(os.PathListSeparator) + "/abs/two",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Adapter != "claude" || !cfg.Verbose || !cfg.DryRun || cfg.StepTimeout != 2*time.Minute {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.AmplihackHome != "/srv/amplihack" {
		t.Fatalf("amplihack home = %s", cfg.AmplihackHome)
	}
	if len(cfg.RecipePath) != 2 || cfg.RecipePath[0] != filepath.Join(cfg.ProjectDir, "one") || cfg.RecipePath[1] != "/abs/two" {
		t.Fatalf("recipe path = %v", cfg.RecipePath)
	}
}

func TestSourcesOrderLaterOverridesEarlier(t *testing.T) {
	projectDir := t.TempDir()
	home := t.TempDir()
	cfg, err := Load(projectDir, envMap(map[string]string{"HOME": home, EnvRecipePath: "/extra"}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	var names []string
	for _, src := range cfg.Sources() {
		names = append(names, src.Name)
	}
	want := []string{"bundled", "embedded", "user", "env", "project"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("source order = %v, want %v", names, want)
	}
}

func TestInitStateDir(t *testing.T) {
	projectDir := t.TempDir()
	if err := InitStateDir(projectDir); err != nil {
		t.Fatalf("InitStateDir: %v", err)
	}
	for _, dir := range []string{"logs", "runs"} {
		if info, err := os.Stat(filepath.Join(projectDir, StateDirName, dir)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s dir: %v", dir, err)
		}
	}
}
