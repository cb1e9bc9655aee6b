package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hdbdash/internal/core"
	"hdbdash/internal/log"
	"hdbdash/internal/observability"
	"hdbdash/internal/source"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds the parallel per-combination fetches.
	DefaultConcurrency = 4

	xAxisPadding = 180 * 24 * time.Hour
	monthLayout  = "2006-01"
	dateLayout   = "2006-01-02"
)

// DashboardService runs the fetch, aggregate and growth pipeline for a
// selection. It holds no per-request state.
type DashboardService struct {
	fetcher     source.Fetcher
	limit       int
	concurrency int
	logger      *log.Logger
	metrics     *observability.Metrics
}

type DashboardOption func(*DashboardService)

// WithFetchLimit sets the row limit passed to the fetcher. Zero leaves the
// choice to the fetcher.
func WithFetchLimit(n int) DashboardOption {
	return func(s *DashboardService) {
		s.limit = n
	}
}

// WithConcurrency bounds parallel fetches; 1 fetches sequentially.
func WithConcurrency(n int) DashboardOption {
	return func(s *DashboardService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithDashboardLogger(l *log.Logger) DashboardOption {
	return func(s *DashboardService) {
		s.logger = l.WithComponent(log.ComponentDashboard)
	}
}

func WithDashboardMetrics(m *observability.Metrics) DashboardOption {
	return func(s *DashboardService) {
		s.metrics = m
	}
}

func NewDashboardService(fetcher source.Fetcher, opts ...DashboardOption) *DashboardService {
	s := &DashboardService{
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
		logger:      log.Default(log.ComponentDashboard),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Build produces the dashboard for a selection.
//
// A selection that matches nothing is not an error: the view comes back
// with Empty set and the no-data warning. Fetch and aggregation failures
// are returned as errors; growth failures are reported per series.
func (s *DashboardService) Build(ctx context.Context, sel core.Selection) (core.DashboardView, error) {
	start := time.Now()
	view, err := s.build(ctx, sel)

	outcome := observability.OutcomeOK
	switch {
	case err == nil && view.Empty:
		outcome = observability.OutcomeEmpty
	case errors.Is(err, core.ErrInvalidSelection):
		outcome = observability.OutcomeInvalid
	case errors.Is(err, core.ErrNetwork):
		outcome = observability.OutcomeNetwork
	case errors.Is(err, core.ErrMalformedResponse):
		outcome = observability.OutcomeMalformed
	case err != nil:
		outcome = observability.OutcomeError
	}
	s.metrics.ObserveRender(outcome, time.Since(start))
	return view, err
}

func (s *DashboardService) build(ctx context.Context, sel core.Selection) (core.DashboardView, error) {
	if err := sel.Validate(); err != nil {
		return core.DashboardView{}, err
	}

	view := core.DashboardView{
		Selection:   sel,
		MetricLabel: sel.Metric.Label(),
		Series:      []core.ChartSeries{},
		Growth:      []core.GrowthCard{},
		Map:         core.DefaultMapMarker(),
	}

	filters := sel.Combinations()
	datasets, err := s.fetchAll(ctx, filters)
	if err != nil {
		return core.DashboardView{}, err
	}
	for _, ds := range datasets {
		view.Records += len(ds.Records)
	}

	result, err := Aggregate(datasets, sel.Metric)
	if errors.Is(err, core.ErrEmptyResult) {
		s.logger.WarnContext(ctx, "Selection matched no records",
			log.FieldTown, sel.Towns,
			log.FieldFlatType, sel.FlatTypes)
		view.Empty = true
		view.Warning = core.NoDataWarning
		return view, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Aggregation failed",
			log.FieldOperation, log.OpAggregate,
			log.FieldMetric, string(sel.Metric),
			log.FieldError, err)
		return core.DashboardView{}, fmt.Errorf("aggregate: %w", err)
	}
	view.Bounds = result.Bounds

	for _, f := range filters {
		points := result.Series(f.Town, f.FlatType)
		if len(points) == 0 {
			continue
		}
		cs := core.ChartSeries{
			Name:     core.SeriesName(f.Town, f.FlatType),
			Town:     f.Town,
			FlatType: f.FlatType,
			Points:   points,
		}
		if sel.Trend {
			cs.Trend, err = trendline(points)
			if err != nil {
				s.logger.WarnContext(ctx, "Trendline skipped",
					log.FieldOperation, log.OpTrend,
					log.FieldSeries, cs.Name,
					log.FieldError, err)
			}
		}
		view.Series = append(view.Series, cs)
	}

	for _, g := range GrowthRates(result, filters) {
		card := core.GrowthCard{Label: core.SeriesName(g.Town, g.FlatType), Rate: g}
		if g.Err == "" {
			card.Value = FormatPercent(g.Rate)
		} else {
			s.logger.DebugContext(ctx, "Growth rate unavailable",
				log.FieldOperation, log.OpGrowth,
				log.FieldSeries, card.Label,
				log.FieldError, g.Err)
		}
		view.Growth = append(view.Growth, card)
	}

	view.XRange, err = paddedRange(result.Aggregates)
	if err != nil {
		return core.DashboardView{}, err
	}

	s.logger.DebugContext(ctx, "Dashboard built",
		log.FieldMetric, string(sel.Metric),
		log.FieldRecords, view.Records,
		log.FieldAggregates, len(result.Aggregates),
		log.FieldSeries, len(view.Series))
	return view, nil
}

// fetchAll fetches one dataset per filter, keeping filter order. The first
// failure cancels the remaining fetches.
func (s *DashboardService) fetchAll(ctx context.Context, filters []core.Filter) ([]core.Dataset, error) {
	out := make([]core.Dataset, len(filters))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, f := range filters {
		g.Go(func() error {
			ds, err := s.fetcher.Fetch(gctx, f, s.limit)
			if err != nil {
				s.logger.ErrorContext(ctx, "Fetch failed",
					log.FieldOperation, log.OpFetch,
					log.FieldTown, f.Town,
					log.FieldFlatType, f.FlatType,
					log.FieldError, err)
				return fmt.Errorf("fetch %s: %w", core.SeriesName(f.Town, f.FlatType), err)
			}
			ds.Town, ds.FlatType = f.Town, f.FlatType
			out[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func trendline(points []core.MonthlyAggregate) ([]core.TrendPoint, error) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		t, err := time.Parse(monthLayout, p.Month)
		if err != nil {
			return nil, fmt.Errorf("month %q: %w", p.Month, err)
		}
		xs[i] = float64(t.Unix()) / 86400
		ys[i] = p.Value
	}

	fitted, err := Lowess(xs, ys, TrendFraction, TrendIterations)
	if err != nil {
		return nil, err
	}
	out := make([]core.TrendPoint, len(points))
	for i, p := range points {
		out[i] = core.TrendPoint{Month: p.Month, Value: fitted[i]}
	}
	return out, nil
}

// paddedRange spans the aggregated months plus 180 days either side.
func paddedRange(aggs []core.MonthlyAggregate) (core.DateRange, error) {
	var lo, hi time.Time
	for i, a := range aggs {
		t, err := time.Parse(monthLayout, a.Month)
		if err != nil {
			return core.DateRange{}, fmt.Errorf("%w: month %q", core.ErrInvalidNumber, a.Month)
		}
		if i == 0 || t.Before(lo) {
			lo = t
		}
		if i == 0 || t.After(hi) {
			hi = t
		}
	}
	return core.DateRange{
		From: lo.Add(-xAxisPadding).Format(dateLayout),
		To:   hi.Add(xAxisPadding).Format(dateLayout),
	}, nil
}
