package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
)

// DefaultRule excludes translated exports and partial downloads.
const DefaultRule = `lower(name) contains "translated" || ext in [".tmp", ".part", ".bak"]`

// fileEnv is the environment an exclusion rule is evaluated against.
type fileEnv struct {
	Name    string  `expr:"name"`
	Ext     string  `expr:"ext"`
	Path    string  `expr:"path"`
	Size    int64   `expr:"size"`
	Type    string  `expr:"type"`
	Vehicle string  `expr:"vehicle"`
	AgeDays float64 `expr:"ageDays"`
}

// Rule decides whether a discovered file is a derivative artifact that must
// never reach the catalog. The zero value and a nil *Rule exclude nothing.
type Rule struct {
	source  string
	program *vm.Program
}

// Compile parses an exclusion expression. An empty source yields a rule that
// excludes nothing.
func Compile(source string) (*Rule, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return &Rule{}, nil
	}
	program, err := expr.Compile(source, expr.Env(fileEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile exclusion rule %q: %w", source, err)
	}
	return &Rule{source: source, program: program}, nil
}

// String returns the rule source.
func (r *Rule) String() string {
	if r == nil {
		return ""
	}
	return r.source
}

// Excluded reports whether f matches the rule. ageDays is the file's age
// relative to the batch start, in days.
func (r *Rule) Excluded(f telemetry.SourceFile, ageDays float64) (bool, error) {
	if r == nil || r.program == nil {
		return false, nil
	}
	name := filepath.Base(f.Identifier)
	env := fileEnv{
		Name:    name,
		Ext:     strings.ToLower(filepath.Ext(name)),
		Path:    filepath.ToSlash(f.Identifier),
		Size:    f.Size,
		Type:    f.StreamType.String(),
		Vehicle: f.VehicleID,
		AgeDays: ageDays,
	}
	out, err := expr.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate exclusion rule on %s: %w", f.Identifier, err)
	}
	excluded, _ := out.(bool)
	return excluded, nil
}
