package adapter

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedFrontMatter indicates an agent file opens a YAML block that
// cannot be parsed.
var ErrMalformedFrontMatter = errors.New("adapter: malformed frontmatter")

// AgentMeta is the optional frontmatter of an agent definition.
type AgentMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// ParseFrontMatter splits an agent document into its metadata and body.
// Documents without a leading `---` fence have empty metadata.
func ParseFrontMatter(content []byte) (AgentMeta, []byte, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return AgentMeta{}, normalized, nil
	}
	rest := normalized[4:]
	var metaBytes, body []byte
	if bytes.HasPrefix(rest, []byte("---\n")) {
		body = rest[4:]
	} else {
		parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
		if len(parts) < 2 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return AgentMeta{}, nil, ErrMalformedFrontMatter
			}
			parts = [][]byte{bytes.TrimSuffix(rest, []byte("\n---")), nil}
		}
		metaBytes, body = parts[0], parts[1]
	}
	var meta AgentMeta
	if err := yaml.Unmarshal(metaBytes, &meta); err != nil {
		return AgentMeta{}, nil, fmt.Errorf("%w: %v", ErrMalformedFrontMatter, err)
	}
	meta.Name = strings.TrimSpace(meta.Name)
	meta.Description = strings.TrimSpace(meta.Description)
	return meta, bytes.TrimLeft(body, "\n"), nil
}

// CatalogProblem records an agent file that could not be loaded.
type CatalogProblem struct {
	Path string
	Err  error
}

// Catalog is the result of scanning agent directories.
type Catalog struct {
	Agents   AgentSet
	Problems []CatalogProblem
}

// LoadCatalog scans each root for `*.md` agent definitions. An agent's ref is
// `namespace:stem` where namespace is the first directory below the root, so
// amplihack/core/architect.md becomes amplihack:architect. Files directly in
// a root are addressed by stem alone. Later roots override earlier ones.
// Missing roots are ignored.
func LoadCatalog(roots ...string) (*Catalog, error) {
	var agents []Agent
	var problems []CatalogProblem
	for _, root := range roots {
		if strings.TrimSpace(root) == "" {
			continue
		}
		found, bad, err := scanAgentRoot(os.DirFS(root), root)
		if err != nil {
			return nil, err
		}
		agents = append(agents, found...)
		problems = append(problems, bad...)
	}
	return &Catalog{Agents: NewAgentSet(agents...), Problems: problems}, nil
}

func scanAgentRoot(fsys fs.FS, root string) ([]Agent, []CatalogProblem, error) {
	var agents []Agent
	var problems []CatalogProblem
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." && errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(path.Ext(p), ".md") || strings.EqualFold(d.Name(), "README.md") {
			return nil
		}
		full := filepath.Join(root, filepath.FromSlash(p))
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			problems = append(problems, CatalogProblem{Path: full, Err: err})
			return nil
		}
		meta, body, err := ParseFrontMatter(data)
		if err != nil {
			problems = append(problems, CatalogProblem{Path: full, Err: err})
			return nil
		}
		stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
		name := meta.Name
		if name == "" {
			name = stem
		}
		agents = append(agents, Agent{
			Ref:         agentRef(p, stem),
			Name:        name,
			Description: meta.Description,
			Path:        full,
			Body:        strings.TrimSpace(string(body)),
		})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("adapter: scan agents in %s: %w", root, err)
	}
	return agents, problems, nil
}

func agentRef(rel, stem string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return stem
	}
	namespace := strings.SplitN(dir, "/", 2)[0]
	return namespace + ":" + stem
}
