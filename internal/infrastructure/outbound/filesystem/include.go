package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// IncludeResolver expands !include tags in configuration files. YAML targets
// are spliced in as nodes; any other file (an exclusion rule, for instance)
// becomes a string scalar with surrounding whitespace trimmed.
//
// References are relative to the including file, or to the config root with
// an @root/ prefix. Absolute paths and paths escaping the root are rejected.
type IncludeResolver struct {
	rootDir string
}

// NewIncludeResolver creates a resolver confined to rootDir.
func NewIncludeResolver(rootDir string) *IncludeResolver {
	return &IncludeResolver{rootDir: rootDir}
}

// ResolveIncludes expands node in place.
func (r *IncludeResolver) ResolveIncludes(node *yaml.Node, currentDir string) error {
	return r.walk(node, currentDir, 0)
}

func (r *IncludeResolver) walk(node *yaml.Node, currentDir string, depth int) error {
	if node == nil {
		return nil
	}
	if depth > maxIncludeDepth {
		return fmt.Errorf("!include nesting deeper than %d", maxIncludeDepth)
	}
	if node.Tag == "!include" {
		return r.expand(node, currentDir, depth)
	}
	for _, child := range node.Content {
		if err := r.walk(child, currentDir, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *IncludeResolver) expand(node *yaml.Node, currentDir string, depth int) error {
	ref := strings.TrimSpace(node.Value)
	if ref == "" {
		return fmt.Errorf("!include without a path")
	}

	target, err := r.resolvePath(ref, currentDir)
	if err != nil {
		return fmt.Errorf("failed to resolve !include %q: %w", ref, err)
	}
	if err := r.validatePath(target); err != nil {
		return fmt.Errorf("!include %q rejected: %w", ref, err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("failed to read included file %q: %w", target, err)
	}

	switch strings.ToLower(filepath.Ext(target)) {
	case ".yaml", ".yml":
		var included yaml.Node
		if err := yaml.Unmarshal(data, &included); err != nil {
			return fmt.Errorf("failed to parse included YAML %q: %w", target, err)
		}
		if err := r.walk(&included, filepath.Dir(target), depth+1); err != nil {
			return err
		}
		if included.Kind == yaml.DocumentNode && len(included.Content) > 0 {
			*node = *included.Content[0]
		}
	default:
		*node = yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Value: strings.TrimSpace(string(data)),
		}
	}
	return nil
}

func (r *IncludeResolver) resolvePath(ref, currentDir string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "@root/"):
		return filepath.Join(r.rootDir, strings.TrimPrefix(ref, "@root/")), nil
	case filepath.IsAbs(ref):
		return "", fmt.Errorf("absolute paths are not allowed")
	default:
		return filepath.Join(currentDir, ref), nil
	}
}

func (r *IncludeResolver) validatePath(target string) error {
	realPath, err := filepath.EvalSymlinks(target)
	if err != nil {
		realPath = target
	}
	realRoot, err := filepath.EvalSymlinks(r.rootDir)
	if err != nil {
		realRoot = r.rootDir
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path escapes config directory")
	}
	return nil
}
