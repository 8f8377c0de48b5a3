package template

import (
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/sophialabs/tripmatch/internal/domain/telemetry"
	"github.com/sophialabs/tripmatch/internal/infrastructure/services"
)

func buildContext(r *services.Report) pongo2.Context {
	return pongo2.Context{
		"report":         r,
		"streamTypes":    typeNames(telemetry.StreamTypes()),
		"candidateTypes": typeNames(telemetry.CandidateTypes()),
		"percent":        percent,
	}
}

func typeNames(types []telemetry.StreamType) []string {
	out := make([]string, len(types))
	for i, st := range types {
		out[i] = st.String()
	}
	return out
}

func percent(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}
