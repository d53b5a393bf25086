package recipe

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/kingrea/amplihack-recipes/internal/recipe/bundled"
)

func writeRecipe(t *testing.T, dir, file, name, command string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	payload := "name: " + name + "\nsteps:\n  - id: only\n    command: " + command + "\n"
	if err := os.WriteFile(filepath.Join(dir, file), []byte(payload), 0o644); err != nil {
		t.Fatalf("write recipe: %v", err)
	}
}

func TestDiscoverLaterSourcesOverride(t *testing.T) {
	root := t.TempDir()
	user := filepath.Join(root, "user")
	project := filepath.Join(root, "project")
	writeRecipe(t, user, "deploy.yaml", "deploy", "echo user")
	writeRecipe(t, user, "lint.yml", "lint", "echo lint")
	writeRecipe(t, project, "deploy.yaml", "deploy", "echo project")
	embedded := fstest.MapFS{
		"deploy.yaml": {Data: []byte("name: deploy\nsteps:\n  - id: only\n    command: echo embedded\n")},
		"notes.txt":   {Data: []byte("ignored")},
	}
	sources := []Source{
		{Name: "embedded", Root: "embedded", FS: embedded},
		DirSource("user", user),
		DirSource("env", filepath.Join(root, "missing")),
		DirSource("project", project),
	}
	entries, err := Discover(sources)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	names := []string{}
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	if !reflect.DeepEqual(names, []string{"deploy", "lint"}) {
		t.Fatalf("names = %v", names)
	}
	deploy := entries[0]
	if deploy.Source != "project" || deploy.Recipe.Steps[0].Command != "echo project" {
		t.Fatalf("project recipe should win, got %+v", deploy)
	}
	if len(deploy.Overridden) != 2 || deploy.Overridden[0] != "embedded:deploy.yaml" {
		t.Fatalf("overridden chain = %v", deploy.Overridden)
	}
}

func TestDiscoverKeepsBrokenEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("name: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := Discover([]Source{DirSource("project", dir)})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(entries) != 1 || entries[0].Err == nil || entries[0].Name != "bad" {
		t.Fatalf("expected broken entry named by stem, got %+v", entries)
	}
}

func TestFindMatchesStemAndSuggests(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "release-flow.yaml", "release", "echo release")
	sources := []Source{DirSource("project", dir)}

	entry, err := Find(sources, "release-flow")
	if err != nil || entry.Name != "release" {
		t.Fatalf("find by stem: %+v %v", entry, err)
	}
	_, err = Find(sources, "relase")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if !strings.Contains(err.Error(), `did you mean "release"`) {
		t.Fatalf("expected suggestion, got %q", err.Error())
	}
}

func TestBundledRecipesValidate(t *testing.T) {
	entries, err := Discover([]Source{{Name: "embedded", Root: "embedded", FS: bundled.FS}})
	if err != nil {
		t.Fatalf("discover bundled: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected bundled recipes, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Err != nil {
			t.Fatalf("bundled %s: %v", entry.Path, entry.Err)
		}
		report := Validate(entry.Recipe, ValidateOptions{Agents: newAgentSet("amplihack:reviewer")})
		if !report.Valid {
			t.Fatalf("bundled %s invalid: %+v", entry.Name, report.Errors)
		}
	}
}

func TestPlaceholders(t *testing.T) {
	refs, err := Placeholders("run {{ target }} with {{cfg.mode}} and {{target}}")
	if err != nil {
		t.Fatalf("placeholders: %v", err)
	}
	if len(refs) != 3 || refs[1].Root() != "cfg" || !reflect.DeepEqual(refs[1].Path, []string{"cfg", "mode"}) {
		t.Fatalf("unexpected refs: %+v", refs)
	}
	names, _ := PlaceholderNames("run {{ target }} with {{cfg.mode}} and {{target}}")
	if !reflect.DeepEqual(names, []string{"target", "cfg"}) {
		t.Fatalf("names = %v", names)
	}
	for _, bad := range []string{"echo {{", "echo {{1abc}}", "{{a b}}"} {
		var malformed *MalformedPlaceholderError
		if _, err := Placeholders(bad); !errors.As(err, &malformed) {
			t.Fatalf("%q: expected malformed error, got %v", bad, err)
		}
	}
}

func TestConditionIdentifiers(t *testing.T) {
	names, err := ConditionIdentifiers(`status == "ok" && len(items) > limit && "{{mode}}" != "off"`)
	if err != nil {
		t.Fatalf("identifiers: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"items", "limit", "status"}) {
		t.Fatalf("names = %v", names)
	}
}

func TestRewriteConditionLiftsPlaceholders(t *testing.T) {
	source, params, err := RewriteCondition(`"v{{x}}" == 'v1' && {{n.count}} > 2 && "\"{{x}}" != ""`)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	want := `("v" + __placeholder0 + "") == 'v1' && __placeholder1 > 2 && ("\"" + __placeholder2 + "") != ""`
	if source != want {
		t.Fatalf("source = %s\nwant     %s", source, want)
	}
	if len(params) != 3 {
		t.Fatalf("params = %+v", params)
	}
	if !params[0].InString || params[1].InString || !params[2].InString {
		t.Fatalf("InString flags wrong: %+v", params)
	}
	if !reflect.DeepEqual(params[1].Placeholder.Path, []string{"n", "count"}) {
		t.Fatalf("path = %v", params[1].Placeholder.Path)
	}

	names, err := ConditionIdentifiers(`"{{x}}" == status`)
	if err != nil {
		t.Fatalf("identifiers: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"status"}) {
		t.Fatalf("names = %v", names)
	}
}
