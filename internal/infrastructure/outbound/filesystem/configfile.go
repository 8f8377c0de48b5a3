package filesystem

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadConfigFile reads a YAML configuration file, expanding !include tags
// relative to the file's directory. Unknown keys are rejected.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	absDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	if err := NewIncludeResolver(absDir).ResolveIncludes(&root, absDir); err != nil {
		return nil, fmt.Errorf("failed to resolve includes in %s: %w", path, err)
	}

	cfg := &ConfigFile{}
	if root.Kind == 0 {
		return cfg, nil
	}

	// Re-encode the expanded tree so the strict decoder sees one document.
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(&root); err != nil {
		return nil, fmt.Errorf("failed to re-encode config file %s: %w", path, err)
	}
	_ = enc.Close()

	dec := yaml.NewDecoder(&buf)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return cfg, nil
}
