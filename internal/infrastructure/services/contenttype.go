package services

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is a report output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// ParseFormat resolves a format name. "yml" and "txt" are accepted aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "html", "htm":
		return FormatHTML, nil
	case "text", "txt":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (supported: yaml, json, html, text)", s)
	}
}

// InferFormat determines the format from an explicit name or the output file extension.
func InferFormat(explicit, outputPath string) (Format, error) {
	if explicit != "" {
		return ParseFormat(explicit)
	}
	if ext := strings.TrimPrefix(filepath.Ext(outputPath), "."); ext != "" {
		if f, err := ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return FormatYAML, nil
}

// ContentType returns the HTTP content type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/yaml"
	}
}
