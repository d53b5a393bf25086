package recipe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Source is one directory (or embedded filesystem) searched for recipes.
type Source struct {
	// Name labels the tier: bundled, embedded, user, env or project.
	Name string
	// Root is the on-disk directory, or a display label for embedded sources.
	Root string
	// FS overrides Root for non-disk sources.
	FS fs.FS
}

// DirSource returns a disk-backed source.
func DirSource(name, dir string) Source {
	return Source{Name: name, Root: filepath.Clean(dir)}
}

func (s Source) filesystem() fs.FS {
	if s.FS != nil {
		return s.FS
	}
	return os.DirFS(s.Root)
}

func (s Source) location(file string) string {
	if s.FS != nil {
		return s.Name + ":" + file
	}
	return filepath.Join(s.Root, file)
}

// Entry is a discovered recipe. Err is set when the file exists but cannot
// be parsed; such entries are still listed so users can see the problem.
type Entry struct {
	Name       string
	Path       string
	Source     string
	Recipe     *Recipe
	Err        error
	Overridden []string
}

// NotFoundError is returned by Find when no source provides the recipe.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("recipe %q not found", e.Name)
	if len(e.Suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(quoteAll(e.Suggestions), ", "))
	}
	return msg
}

// Discover scans every source in order. A recipe in a later source replaces
// one with the same name from an earlier source. Entries are sorted by name.
func Discover(sources []Source) ([]Entry, error) {
	byName := map[string]Entry{}
	for _, src := range sources {
		entries, err := scanSource(src)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if prev, ok := byName[entry.Name]; ok {
				entry.Overridden = append(append([]string{}, prev.Overridden...), prev.Path)
			}
			byName[entry.Name] = entry
		}
	}
	out := make([]Entry, 0, len(byName))
	for _, entry := range byName {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Find returns the highest-priority recipe called name. Names match either
// the recipe's declared name or its file stem.
func Find(sources []Source, name string) (Entry, error) {
	entries, err := Discover(sources)
	if err != nil {
		return Entry{}, err
	}
	var byStem *Entry
	names := make([]string, 0, len(entries))
	for i := range entries {
		entry := entries[i]
		names = append(names, entry.Name)
		if entry.Name == name {
			if entry.Err != nil {
				return entry, entry.Err
			}
			return entry, nil
		}
		if byStem == nil && fileStem(entry.Path) == name {
			byStem = &entries[i]
		}
	}
	if byStem != nil {
		if byStem.Err != nil {
			return *byStem, byStem.Err
		}
		return *byStem, nil
	}
	return Entry{}, &NotFoundError{Name: name, Suggestions: suggest(name, names, 3)}
}

func scanSource(src Source) ([]Entry, error) {
	if src.FS == nil && strings.TrimSpace(src.Root) == "" {
		return nil, nil
	}
	fsys := src.filesystem()
	files, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("recipe: read %s: %w", src.Root, err)
	}
	var entries []Entry
	for _, file := range files {
		if file.IsDir() || !isYAMLFile(file.Name()) {
			continue
		}
		entry := Entry{
			Name:   fileStem(file.Name()),
			Path:   src.location(file.Name()),
			Source: src.Name,
		}
		data, err := fs.ReadFile(fsys, file.Name())
		if err != nil {
			entry.Err = fmt.Errorf("recipe: read %s: %w", entry.Path, err)
			entries = append(entries, entry)
			continue
		}
		parsed, err := Parse(data)
		if err != nil {
			entry.Err = fmt.Errorf("recipe: %s: %w", entry.Path, err)
			entries = append(entries, entry)
			continue
		}
		parsed.Source = entry.Path
		if parsed.Name != "" {
			entry.Name = parsed.Name
		}
		entry.Recipe = parsed
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func isYAMLFile(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

func fileStem(p string) string {
	if idx := strings.LastIndex(p, ":"); idx >= 0 && !strings.ContainsAny(p[idx:], `/\`) {
		p = p[idx+1:]
	}
	base := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(base, path.Ext(base))
}
