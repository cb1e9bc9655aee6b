package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"hdbdash/internal/core"
	"hdbdash/internal/services"
)

var templateFuncs = template.FuncMap{
	"price":    formatPrice,
	"percent":  services.FormatPercent,
	"contains": slices.Contains[[]string, string],
	"join":     strings.Join,
	"latest":   latest,
}

// latest returns the most recent point of a month-ordered series.
func latest(points []core.MonthlyAggregate) core.MonthlyAggregate {
	if len(points) == 0 {
		return core.MonthlyAggregate{}
	}
	return points[len(points)-1]
}

// formatPrice renders a value with thousands separators and no decimals,
// e.g. 512300 -> "512,300".
func formatPrice(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatFloat(v, 'f', 0, 64)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
