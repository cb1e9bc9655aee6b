package core

// Fixed map marker shown beside the chart.
const (
	MapLatitude  = 1.3521
	MapLongitude = 103.8198
	MapZoom      = 10
)

// NoDataWarning is shown when a selection matches no transactions.
const NoDataWarning = "No data found."

type (
	// TrendPoint is one fitted value of a series trendline.
	TrendPoint struct {
		Month string  `json:"month"`
		Value float64 `json:"value"`
	}

	// ChartSeries is one (town, flat type) line on the chart.
	ChartSeries struct {
		Name     string             `json:"name"`
		Town     string             `json:"town"`
		FlatType string             `json:"flat_type"`
		Points   []MonthlyAggregate `json:"points"`
		Trend    []TrendPoint       `json:"trend,omitempty"`
	}

	// GrowthCard is a growth rate ready for display.
	GrowthCard struct {
		Label string     `json:"label"`
		Value string     `json:"value,omitempty"`
		Rate  GrowthRate `json:"rate"`
	}

	MapMarker struct {
		Lat  float64 `json:"lat"`
		Lon  float64 `json:"lon"`
		Zoom int     `json:"zoom"`
	}

	// DateRange is the padded x-axis range, as YYYY-MM-DD dates.
	DateRange struct {
		From string `json:"from"`
		To   string `json:"to"`
	}

	// DashboardView is everything one dashboard render needs.
	DashboardView struct {
		Selection   Selection     `json:"selection"`
		MetricLabel string        `json:"metric_label"`
		Empty       bool          `json:"empty"`
		Warning     string        `json:"warning,omitempty"`
		Series      []ChartSeries `json:"series"`
		Bounds      AxisBounds    `json:"bounds"`
		XRange      DateRange     `json:"x_range"`
		Growth      []GrowthCard  `json:"growth"`
		Map         MapMarker     `json:"map"`
		Records     int           `json:"records"`
	}
)

// SeriesName labels a (town, flat type) combination.
func SeriesName(town, flatType string) string {
	return town + " - " + flatType
}

func DefaultMapMarker() MapMarker {
	return MapMarker{Lat: MapLatitude, Lon: MapLongitude, Zoom: MapZoom}
}
