package template

import (
	"embed"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/sophialabs/tripmatch/internal/infrastructure/services"
)

//go:embed templates/report.html templates/report.txt
var builtin embed.FS

var builtinFiles = map[services.Format]string{
	services.FormatHTML: "templates/report.html",
	services.FormatText: "templates/report.txt",
}

var _ services.ReportRenderer = (*Registry)(nil)

// Registry holds the compiled report template per output format.
type Registry struct {
	mu        sync.RWMutex
	templates map[services.Format]*pongo2.Template
}

// NewRegistry compiles the built-in html and text report templates.
func NewRegistry() (*Registry, error) {
	r := &Registry{templates: make(map[services.Format]*pongo2.Template, len(builtinFiles))}
	for format, name := range builtinFiles {
		src, err := builtin.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read built-in template %s: %w", name, err)
		}
		if err := r.Register(format, string(src)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register compiles source and makes it the template for format.
func (r *Registry) Register(format services.Format, source string) error {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return fmt.Errorf("failed to compile %s report template: %w", format, err)
	}
	r.mu.Lock()
	r.templates[format] = tpl
	r.mu.Unlock()
	return nil
}

// RegisterFile compiles the template stored at path for format.
func (r *Registry) RegisterFile(format services.Format, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read report template: %w", err)
	}
	return r.Register(format, string(src))
}

// Render implements services.ReportRenderer.
func (r *Registry) Render(w io.Writer, format services.Format, report *services.Report) error {
	r.mu.RLock()
	tpl, ok := r.templates[format]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no %s report template registered (supported: html, text)", format)
	}
	if err := tpl.ExecuteWriter(buildContext(report), w); err != nil {
		return fmt.Errorf("failed to render %s report: %w", format, err)
	}
	return nil
}
