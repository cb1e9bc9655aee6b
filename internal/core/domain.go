package core

import (
	"fmt"
	"slices"
)

const (
	MetricRawPrice     Metric = "resale_price"
	MetricPricePerArea Metric = "price_per_sqm"
)

const (
	MaxSelectedTowns     = 5
	MaxSelectedFlatTypes = 2
)

type (
	Metric string

	// Filter scopes a single upstream request. Empty fields are omitted.
	Filter struct {
		Town     string
		FlatType string
	}

	// Record is one resale transaction as published upstream. Numeric
	// fields stay string-encoded; conversion happens during aggregation.
	Record struct {
		ID                int64  `json:"_id,omitempty"`
		Month             string `json:"month"`
		Town              string `json:"town"`
		FlatType          string `json:"flat_type"`
		Block             string `json:"block,omitempty"`
		StreetName        string `json:"street_name,omitempty"`
		StoreyRange       string `json:"storey_range,omitempty"`
		FloorAreaSqm      string `json:"floor_area_sqm"`
		FlatModel         string `json:"flat_model,omitempty"`
		LeaseCommenceDate string `json:"lease_commence_date,omitempty"`
		RemainingLease    string `json:"remaining_lease,omitempty"`
		ResalePrice       string `json:"resale_price"`
	}

	// Dataset is the result of one fetch, tagged with the combination
	// that produced it.
	Dataset struct {
		Town     string
		FlatType string
		Records  []Record
	}

	// MonthlyAggregate is the rounded mean of a metric for one
	// (month, town, flat type) bucket.
	MonthlyAggregate struct {
		Month    string  `json:"month"`
		Town     string  `json:"town"`
		FlatType string  `json:"flat_type"`
		Value    float64 `json:"value"`
	}

	// AxisBounds is the y-range suggested for charting the aggregates.
	AxisBounds struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}

	AggregateResult struct {
		Metric     Metric             `json:"metric"`
		Aggregates []MonthlyAggregate `json:"aggregates"`
		Bounds     AxisBounds         `json:"bounds"`
	}

	// GrowthRate is the compound growth of one series. Err is set instead
	// of Rate when the series could not produce a rate.
	GrowthRate struct {
		Town     string  `json:"town"`
		FlatType string  `json:"flat_type"`
		Rate     float64 `json:"rate"`
		Points   int     `json:"points"`
		Err      string  `json:"error,omitempty"`
	}

	// Selection is everything the presentation layer lets a user choose.
	Selection struct {
		Towns     []string `json:"towns"`
		FlatTypes []string `json:"flat_types"`
		Metric    Metric   `json:"metric"`
		Trend     bool     `json:"trend"`
	}
)

// Key returns the memo key for a fetch with the given row limit.
func (f Filter) Key(limit int) string {
	return fmt.Sprintf("%q|%q|%d", f.Town, f.FlatType, limit)
}

// Params returns the upstream filter object. Empty fields are left out
// entirely rather than sent as empty strings.
func (f Filter) Params() map[string]string {
	out := map[string]string{}
	if f.Town != "" {
		out["town"] = f.Town
	}
	if f.FlatType != "" {
		out["flat_type"] = f.FlatType
	}
	return out
}

// Tagged returns a copy of the dataset whose records carry the dataset's
// town and flat type.
func (d Dataset) Tagged() Dataset {
	out := Dataset{Town: d.Town, FlatType: d.FlatType, Records: make([]Record, len(d.Records))}
	for i, r := range d.Records {
		if d.Town != "" {
			r.Town = d.Town
		}
		if d.FlatType != "" {
			r.FlatType = d.FlatType
		}
		out.Records[i] = r
	}
	return out
}

// Clone returns a deep copy so callers cannot mutate shared records.
func (d Dataset) Clone() Dataset {
	return Dataset{Town: d.Town, FlatType: d.FlatType, Records: slices.Clone(d.Records)}
}

func (d Dataset) Empty() bool {
	return len(d.Records) == 0
}

func (m Metric) IsValid() bool {
	switch m {
	case MetricRawPrice, MetricPricePerArea:
		return true
	default:
		return false
	}
}

// Label is the axis title used by the dashboard.
func (m Metric) Label() string {
	if m == MetricPricePerArea {
		return "Avg Price per sqm"
	}
	return "Avg Resale Price"
}

// Series returns the aggregates of one (town, flat type) in month order.
func (r AggregateResult) Series(town, flatType string) []MonthlyAggregate {
	var out []MonthlyAggregate
	for _, a := range r.Aggregates {
		if a.Town == town && a.FlatType == flatType {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b MonthlyAggregate) int {
		switch {
		case a.Month < b.Month:
			return -1
		case a.Month > b.Month:
			return 1
		}
		return 0
	})
	return out
}

// DefaultSelection mirrors the initial state of the dashboard controls.
func DefaultSelection() Selection {
	return Selection{
		Towns:     []string{"ANG MO KIO"},
		FlatTypes: []string{"5 ROOM"},
		Metric:    MetricRawPrice,
		Trend:     true,
	}
}

func (s Selection) Validate() error {
	if len(s.Towns) > MaxSelectedTowns {
		return fmt.Errorf("%w: at most %d towns, got %d", ErrInvalidSelection, MaxSelectedTowns, len(s.Towns))
	}
	if len(s.FlatTypes) > MaxSelectedFlatTypes {
		return fmt.Errorf("%w: at most %d flat types, got %d", ErrInvalidSelection, MaxSelectedFlatTypes, len(s.FlatTypes))
	}
	for _, t := range s.Towns {
		if !IsTown(t) {
			return fmt.Errorf("%w: unknown town %q", ErrInvalidSelection, t)
		}
	}
	for _, ft := range s.FlatTypes {
		if !IsFlatType(ft) {
			return fmt.Errorf("%w: unknown flat type %q", ErrInvalidSelection, ft)
		}
	}
	if !s.Metric.IsValid() {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidSelection, s.Metric)
	}
	return nil
}

// Combinations lists the filters for the selection, towns outer and flat
// types inner.
func (s Selection) Combinations() []Filter {
	out := make([]Filter, 0, len(s.Towns)*len(s.FlatTypes))
	for _, t := range s.Towns {
		for _, ft := range s.FlatTypes {
			out = append(out, Filter{Town: t, FlatType: ft})
		}
	}
	return out
}
