package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hdbdash/internal/core"
	"hdbdash/internal/log"
	"hdbdash/internal/observability"
	"hdbdash/internal/source"
	"hdbdash/internal/source/memory"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureStore() *memory.Store {
	return memory.New([]core.Record{
		{Month: "2017-01", Town: "ANG MO KIO", FlatType: "5 ROOM", FloorAreaSqm: "110", ResalePrice: "500000"},
		{Month: "2017-01", Town: "ANG MO KIO", FlatType: "5 ROOM", FloorAreaSqm: "120", ResalePrice: "520000"},
		{Month: "2017-02", Town: "ANG MO KIO", FlatType: "5 ROOM", FloorAreaSqm: "110", ResalePrice: "530000"},
		{Month: "2017-03", Town: "ANG MO KIO", FlatType: "5 ROOM", FloorAreaSqm: "110", ResalePrice: "561000"},
		{Month: "2017-01", Town: "BEDOK", FlatType: "5 ROOM", FloorAreaSqm: "100", ResalePrice: "400000"},
		{Month: "2017-03", Town: "BEDOK", FlatType: "5 ROOM", FloorAreaSqm: "100", ResalePrice: "440000"},
	})
}

func newTestService(f source.Fetcher, opts ...DashboardOption) *DashboardService {
	return NewDashboardService(f, append([]DashboardOption{WithDashboardLogger(log.Discard())}, opts...)...)
}

func TestDashboardService_Build(t *testing.T) {
	svc := newTestService(fixtureStore())

	view, err := svc.Build(context.Background(), core.DefaultSelection())
	require.NoError(t, err)

	assert.False(t, view.Empty)
	assert.Empty(t, view.Warning)
	assert.Equal(t, "Avg Resale Price", view.MetricLabel)
	assert.Equal(t, 4, view.Records)
	assert.Equal(t, core.DefaultMapMarker(), view.Map)

	require.Len(t, view.Series, 1)
	s := view.Series[0]
	assert.Equal(t, "ANG MO KIO - 5 ROOM", s.Name)
	require.Len(t, s.Points, 3)
	assert.Equal(t, 510000.0, s.Points[0].Value)
	assert.Len(t, s.Trend, 3)

	assert.Equal(t, core.AxisBounds{Min: 484500, Max: 589050}, view.Bounds)
	assert.Equal(t, core.DateRange{From: "2016-07-05", To: "2017-08-28"}, view.XRange)

	require.Len(t, view.Growth, 1)
	g := view.Growth[0]
	assert.Equal(t, "ANG MO KIO - 5 ROOM", g.Label)
	assert.Equal(t, 3, g.Rate.Points)
	assert.Equal(t, FormatPercent(g.Rate.Rate), g.Value)
	assert.Empty(t, g.Rate.Err)
}

func TestDashboardService_BuildTrendOff(t *testing.T) {
	svc := newTestService(fixtureStore())
	sel := core.DefaultSelection()
	sel.Trend = false

	view, err := svc.Build(context.Background(), sel)
	require.NoError(t, err)
	require.Len(t, view.Series, 1)
	assert.Nil(t, view.Series[0].Trend)
}

func TestDashboardService_BuildPricePerArea(t *testing.T) {
	svc := newTestService(fixtureStore())
	sel := core.Selection{Towns: []string{"BEDOK"}, FlatTypes: []string{"5 ROOM"}, Metric: core.MetricPricePerArea}

	view, err := svc.Build(context.Background(), sel)
	require.NoError(t, err)
	require.Len(t, view.Series, 1)
	assert.Equal(t, 4000.0, view.Series[0].Points[0].Value)
	assert.Equal(t, "Avg Price per sqm", view.MetricLabel)
}

func TestDashboardService_BuildEmpty(t *testing.T) {
	tests := []struct {
		name string
		sel  core.Selection
	}{
		{"no towns", core.Selection{FlatTypes: []string{"5 ROOM"}, Metric: core.MetricRawPrice}},
		{"no flat types", core.Selection{Towns: []string{"BEDOK"}, Metric: core.MetricRawPrice}},
		{"no matching records", core.Selection{Towns: []string{"YISHUN"}, FlatTypes: []string{"2 ROOM"}, Metric: core.MetricRawPrice}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := observability.NewMetrics("test")
			svc := newTestService(fixtureStore(), WithDashboardMetrics(m))

			view, err := svc.Build(context.Background(), tt.sel)
			require.NoError(t, err)
			assert.True(t, view.Empty)
			assert.Equal(t, core.NoDataWarning, view.Warning)
			assert.Empty(t, view.Series)
			assert.Empty(t, view.Growth)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.DashboardRenders.WithLabelValues(observability.OutcomeEmpty)))
		})
	}
}

func TestDashboardService_BuildPartialGrowth(t *testing.T) {
	svc := newTestService(fixtureStore())
	sel := core.Selection{
		Towns:     []string{"ANG MO KIO", "BEDOK"},
		FlatTypes: []string{"5 ROOM", "4 ROOM"},
		Metric:    core.MetricRawPrice,
		Trend:     true,
	}

	view, err := svc.Build(context.Background(), sel)
	require.NoError(t, err)

	require.Len(t, view.Series, 2)
	assert.Equal(t, "ANG MO KIO - 5 ROOM", view.Series[0].Name)
	assert.Equal(t, "BEDOK - 5 ROOM", view.Series[1].Name)

	require.Len(t, view.Growth, 4)
	labels := make([]string, len(view.Growth))
	for i, g := range view.Growth {
		labels[i] = g.Label
	}
	assert.Equal(t, []string{
		"ANG MO KIO - 5 ROOM", "ANG MO KIO - 4 ROOM", "BEDOK - 5 ROOM", "BEDOK - 4 ROOM",
	}, labels)
	assert.NotEmpty(t, view.Growth[0].Value)
	assert.Contains(t, view.Growth[1].Rate.Err, core.ErrInsufficientData.Error())
	assert.Empty(t, view.Growth[1].Value)
	assert.InDelta(t, 0.771561, view.Growth[2].Rate.Rate, 1e-9)
}

func TestDashboardService_BuildInvalidSelection(t *testing.T) {
	m := observability.NewMetrics("test")
	svc := newTestService(fixtureStore(), WithDashboardMetrics(m))

	_, err := svc.Build(context.Background(), core.Selection{Towns: []string{"ATLANTIS"}, Metric: core.MetricRawPrice})
	assert.ErrorIs(t, err, core.ErrInvalidSelection)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DashboardRenders.WithLabelValues(observability.OutcomeInvalid)))
}

func TestDashboardService_BuildAggregationError(t *testing.T) {
	store := memory.New([]core.Record{
		{Month: "2017-01", Town: "BEDOK", FlatType: "5 ROOM", FloorAreaSqm: "0", ResalePrice: "400000"},
	})
	svc := newTestService(store)
	sel := core.Selection{Towns: []string{"BEDOK"}, FlatTypes: []string{"5 ROOM"}, Metric: core.MetricPricePerArea}

	_, err := svc.Build(context.Background(), sel)
	assert.ErrorIs(t, err, core.ErrDivision)
}

type stubFetcher struct {
	mu     sync.Mutex
	calls  []core.Filter
	delay  func(core.Filter) time.Duration
	failOn string
}

func (s *stubFetcher) Fetch(ctx context.Context, f core.Filter, limit int) (core.Dataset, error) {
	s.mu.Lock()
	s.calls = append(s.calls, f)
	s.mu.Unlock()

	if s.delay != nil {
		select {
		case <-time.After(s.delay(f)):
		case <-ctx.Done():
			return core.Dataset{}, ctx.Err()
		}
	}
	if f.Town == s.failOn {
		return core.Dataset{}, fmt.Errorf("%w: connection refused", core.ErrNetwork)
	}
	return core.Dataset{Town: f.Town, FlatType: f.FlatType, Records: []core.Record{
		{Month: "2017-01", FloorAreaSqm: "100", ResalePrice: "400000"},
	}}, nil
}

func TestDashboardService_FetchOrderIsSelectionOrder(t *testing.T) {
	towns := []string{"ANG MO KIO", "BEDOK", "CLEMENTI", "HOUGANG", "YISHUN"}
	// Later towns answer first.
	f := &stubFetcher{delay: func(f core.Filter) time.Duration {
		for i, t := range towns {
			if t == f.Town {
				return time.Duration(len(towns)-i) * 5 * time.Millisecond
			}
		}
		return 0
	}}
	svc := newTestService(f, WithConcurrency(5))
	sel := core.Selection{Towns: towns, FlatTypes: []string{"5 ROOM"}, Metric: core.MetricRawPrice}

	view, err := svc.Build(context.Background(), sel)
	require.NoError(t, err)
	require.Len(t, view.Series, len(towns))
	for i, town := range towns {
		assert.Equal(t, town, view.Series[i].Town)
	}
}

func TestDashboardService_FetchError(t *testing.T) {
	m := observability.NewMetrics("test")
	f := &stubFetcher{failOn: "BEDOK"}
	svc := newTestService(f, WithConcurrency(1), WithDashboardMetrics(m))
	sel := core.Selection{Towns: []string{"ANG MO KIO", "BEDOK", "CLEMENTI"}, FlatTypes: []string{"5 ROOM"}, Metric: core.MetricRawPrice}

	_, err := svc.Build(context.Background(), sel)
	require.ErrorIs(t, err, core.ErrNetwork)
	assert.Contains(t, err.Error(), "BEDOK - 5 ROOM")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DashboardRenders.WithLabelValues(observability.OutcomeNetwork)))
}

func TestDashboardService_PassesFetchLimit(t *testing.T) {
	var got int
	f := fetchFunc(func(_ context.Context, _ core.Filter, limit int) (core.Dataset, error) {
		got = limit
		return core.Dataset{}, nil
	})
	svc := newTestService(f, WithFetchLimit(123))

	_, err := svc.Build(context.Background(), core.DefaultSelection())
	require.NoError(t, err)
	assert.Equal(t, 123, got)
}

type fetchFunc func(context.Context, core.Filter, int) (core.Dataset, error)

func (f fetchFunc) Fetch(ctx context.Context, filter core.Filter, limit int) (core.Dataset, error) {
	return f(ctx, filter, limit)
}
