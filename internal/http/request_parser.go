// Package http provides HTTP server and handler implementations.
//
// This file turns dashboard query parameters into a core.Selection.
// Controls submit repeated keys:
//
//	?town=ANG+MO+KIO&town=BEDOK&flat_type=5+ROOM&metric=price_per_sqm&trend=on
//
// A request with no parameters at all gets the default selection.
package http

import (
	"fmt"
	"net/url"
	"strings"

	"hdbdash/internal/core"
)

// Query parameter names.
const (
	ParamTown     = "town"
	ParamFlatType = "flat_type"
	ParamMetric   = "metric"
	ParamTrend    = "trend"
)

// ParseSelection extracts and validates the dashboard controls.
func ParseSelection(q url.Values) (core.Selection, error) {
	if len(q) == 0 {
		return core.DefaultSelection(), nil
	}

	sel := core.Selection{
		Towns:     parseList(q[ParamTown]),
		FlatTypes: parseList(q[ParamFlatType]),
		Metric:    core.MetricRawPrice,
	}

	if m := sanitizeInput(q.Get(ParamMetric)); m != "" {
		sel.Metric = core.Metric(m)
	}

	trend, err := parseToggle(q.Get(ParamTrend))
	if err != nil {
		return core.Selection{}, err
	}
	sel.Trend = trend

	if err := sel.Validate(); err != nil {
		return core.Selection{}, err
	}
	return sel, nil
}

// Query renders a selection back into query parameters.
func Query(sel core.Selection) url.Values {
	q := url.Values{}
	for _, t := range sel.Towns {
		q.Add(ParamTown, t)
	}
	for _, ft := range sel.FlatTypes {
		q.Add(ParamFlatType, ft)
	}
	q.Set(ParamMetric, string(sel.Metric))
	if sel.Trend {
		q.Set(ParamTrend, "on")
	}
	return q
}

// parseList trims, upper-cases and de-duplicates values, keeping first
// occurrence order.
func parseList(values []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	for _, v := range values {
		v = strings.ToUpper(sanitizeInput(v))
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func parseToggle(v string) (bool, error) {
	switch strings.ToLower(sanitizeInput(v)) {
	case "", "0", "false", "off":
		return false, nil
	case "1", "true", "on":
		return true, nil
	default:
		return false, fmt.Errorf("%w: trend must be on or off, got %q", core.ErrInvalidSelection, v)
	}
}
