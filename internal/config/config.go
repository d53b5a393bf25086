// internal/config/config.go
//
// This package handles configuration and the .amplihack directory structure.
// Settings come from built-in defaults, then the optional project file
// .amplihack/recipes.yaml, then AMPLIHACK_* environment variables. Command
// line flags are applied last by the CLI.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/amplihack-recipes/internal/recipe"
	"github.com/kingrea/amplihack-recipes/internal/recipe/bundled"
)

const (
	// StateDirName is the directory we create in each project.
	StateDirName = ".amplihack"

	// DefaultStepTimeout bounds a step that declares no timeout of its own.
	DefaultStepTimeout = 300 * time.Second

	projectConfigName = "recipes.yaml"
)

// Environment variables understood by the engine.
const (
	EnvRecipePath   = "AMPLIHACK_RECIPE_PATH"
	EnvAdapter      = "AMPLIHACK_ADAPTER"
	EnvVerbose      = "AMPLIHACK_VERBOSE"
	EnvDryRun       = "AMPLIHACK_DRY_RUN"
	EnvHome         = "AMPLIHACK_HOME"
	EnvStepTimeout  = "AMPLIHACK_STEP_TIMEOUT"
	EnvAgentCommand = "AMPLIHACK_AGENT_COMMAND"
)

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// ProjectConfig models .amplihack/recipes.yaml.
type ProjectConfig struct {
	Version     int           `yaml:"version"`
	Adapter     string        `yaml:"adapter,omitempty"`
	StepTimeout string        `yaml:"step_timeout,omitempty"`
	RecipeDirs  []string      `yaml:"recipe_dirs,omitempty"`
	AgentDirs   []string      `yaml:"agent_dirs,omitempty"`
	History     HistoryConfig `yaml:"history,omitempty"`
}

// Config holds the resolved runtime configuration.
type Config struct {
	// ProjectDir is the directory the user ran the command from.
	ProjectDir string

	// HomeDir is the user's home directory.
	HomeDir string

	// AmplihackHome holds the bundled recipes and agents ($AMPLIHACK_HOME,
	// default ~/.amplihack).
	AmplihackHome string

	// StateDir is ProjectDir/.amplihack.
	StateDir string

	Adapter      string
	AgentCommand string
	StepTimeout  time.Duration
	Verbose      bool
	DryRun       bool

	// RecipePath lists AMPLIHACK_RECIPE_PATH entries in order.
	RecipePath []string

	Project ProjectConfig
}

// Load resolves configuration for projectDir. getenv is usually os.Getenv;
// tests pass a map lookup.
func Load(projectDir string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	absProject, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("config: resolve project dir: %w", err)
	}
	home := strings.TrimSpace(getenv("HOME"))
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	cfg := &Config{
		ProjectDir:  absProject,
		HomeDir:     home,
		StateDir:    filepath.Join(absProject, StateDirName),
		StepTimeout: DefaultStepTimeout,
		Project:     defaultProjectConfig(),
	}
	cfg.AmplihackHome = filepath.Join(home, StateDirName)

	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyProject(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitStateDir creates the .amplihack directory structure.
//
// .amplihack/
// ├── logs/   <- recipes.log
// └── runs/   <- one execution log per run
func InitStateDir(projectDir string) error {
	stateDir := filepath.Join(projectDir, StateDirName)
	for _, dir := range []string{
		filepath.Join(stateDir, "logs"),
		filepath.Join(stateDir, "runs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// RunsDir returns the directory holding per-run execution logs
func (c *Config) RunsDir() string {
	return filepath.Join(c.StateDir, "runs")
}

// RunLogPath returns where the execution log for runID is written.
func (c *Config) RunLogPath(runID string) string {
	return filepath.Join(c.RunsDir(), runID+".json")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.StateDir, projectConfigName)
}

// HistoryEnabled reports whether runs are recorded in the history database.
func (c *Config) HistoryEnabled() bool {
	if c.Project.History.Enabled == nil {
		return true
	}
	return *c.Project.History.Enabled
}

// HistoryPath returns the SQLite database path.
func (c *Config) HistoryPath() string {
	if c.Project.History.Path != "" {
		return c.Project.History.Path
	}
	return filepath.Join(c.StateDir, "history.db")
}

// Sources returns the ordered recipe search path. Later sources override
// earlier ones: bundled, embedded, user, AMPLIHACK_RECIPE_PATH, configured
// recipe_dirs, then the project.
func (c *Config) Sources() []recipe.Source {
	sources := []recipe.Source{
		recipe.DirSource("bundled", filepath.Join(c.AmplihackHome, "recipes")),
		{Name: "embedded", Root: "embedded", FS: bundled.FS},
	}
	if c.HomeDir != "" {
		sources = append(sources, recipe.DirSource("user", filepath.Join(c.HomeDir, StateDirName, ".claude", "recipes")))
	}
	for _, dir := range c.RecipePath {
		sources = append(sources, recipe.DirSource("env", dir))
	}
	for _, dir := range c.Project.RecipeDirs {
		sources = append(sources, recipe.DirSource("config", dir))
	}
	sources = append(sources, recipe.DirSource("project", filepath.Join(c.ProjectDir, ".claude", "recipes")))
	return dedupeSources(sources)
}

// AgentDirs returns the ordered agent definition roots; later roots win.
func (c *Config) AgentDirs() []string {
	dirs := []string{filepath.Join(c.AmplihackHome, ".claude", "agents")}
	if c.HomeDir != "" {
		dirs = append(dirs, filepath.Join(c.HomeDir, StateDirName, ".claude", "agents"))
	}
	dirs = append(dirs, c.Project.AgentDirs...)
	dirs = append(dirs, filepath.Join(c.ProjectDir, ".claude", "agents"))
	return dedupeStrings(dirs)
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize(c.ProjectDir)
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyProject() error {
	if c.Project.Adapter != "" {
		c.Adapter = c.Project.Adapter
	}
	if c.Project.StepTimeout != "" {
		timeout, err := recipe.ParseTimeout(c.Project.StepTimeout)
		if err != nil {
			return fmt.Errorf("config: step_timeout: %w", err)
		}
		c.StepTimeout = timeout
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if home := strings.TrimSpace(getenv(EnvHome)); home != "" {
		c.AmplihackHome = resolvePath(c.ProjectDir, home)
	}
	if adapter := strings.TrimSpace(getenv(EnvAdapter)); adapter != "" {
		c.Adapter = strings.ToLower(adapter)
	}
	if command := strings.TrimSpace(getenv(EnvAgentCommand)); command != "" {
		c.AgentCommand = command
	}
	if raw := strings.TrimSpace(getenv(EnvStepTimeout)); raw != "" {
		timeout, err := recipe.ParseTimeout(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvStepTimeout, err)
		}
		c.StepTimeout = timeout
	}
	c.Verbose = truthy(getenv(EnvVerbose))
	c.DryRun = truthy(getenv(EnvDryRun))
	for _, entry := range filepath.SplitList(getenv(EnvRecipePath)) {
		if entry = strings.TrimSpace(entry); entry != "" {
			c.RecipePath = append(c.RecipePath, resolvePath(c.ProjectDir, entry))
		}
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	return ProjectConfig{Version: 1}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
}

func (pc *ProjectConfig) normalize(base string) {
	pc.Adapter = strings.ToLower(strings.TrimSpace(pc.Adapter))
	pc.StepTimeout = strings.TrimSpace(pc.StepTimeout)
	for i := range pc.RecipeDirs {
		pc.RecipeDirs[i] = resolvePath(base, pc.RecipeDirs[i])
	}
	for i := range pc.AgentDirs {
		pc.AgentDirs[i] = resolvePath(base, pc.AgentDirs[i])
	}
	pc.History.Path = resolvePath(base, pc.History.Path)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.StepTimeout != "" {
		if _, err := recipe.ParseTimeout(pc.StepTimeout); err != nil {
			return fmt.Errorf("step_timeout: %w", err)
		}
	}
	for i, dir := range pc.RecipeDirs {
		if dir == "" {
			return fmt.Errorf("recipe_dirs[%d]: path is required", i)
		}
	}
	for i, dir := range pc.AgentDirs {
		if dir == "" {
			return fmt.Errorf("agent_dirs[%d]: path is required", i)
		}
	}
	return nil
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

// dedupeSources drops repeated directories, keeping the last occurrence so
// its priority is preserved.
func dedupeSources(sources []recipe.Source) []recipe.Source {
	seen := map[string]struct{}{}
	var out []recipe.Source
	for i := len(sources) - 1; i >= 0; i-- {
		src := sources[i]
		key := src.Root
		if src.FS != nil {
			key = "fs:" + src.Name
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append([]recipe.Source{src}, out...)
	}
	return out
}

func dedupeStrings(values []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for i := len(values) - 1; i >= 0; i-- {
		v := values[i]
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		out = append([]string{v}, out...)
	}
	return out
}
