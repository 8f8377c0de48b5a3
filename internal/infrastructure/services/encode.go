package services

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ReportRenderer renders a report through a template engine.
type ReportRenderer interface {
	Render(w io.Writer, format Format, r *Report) error
}

// EncodeReport writes r in the given format. renderer is required only for
// html and text.
func EncodeReport(w io.Writer, format Format, r *Report, renderer ReportRenderer) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report as json: %w", err)
		}
		return nil
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to encode report as yaml: %w", err)
		}
		return enc.Close()
	case FormatHTML, FormatText:
		if renderer == nil {
			return fmt.Errorf("no renderer configured for %s reports", format)
		}
		return renderer.Render(w, format, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
