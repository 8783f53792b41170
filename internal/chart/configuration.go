package chart

// ChartType selects how series are drawn.
type ChartType string

const (
	ChartTypeSpline ChartType = "spline"
	ChartTypeBar    ChartType = "bar"
)

// AxisType selects how an axis interprets its values.
type AxisType string

const (
	AxisTypeDatetime AxisType = "datetime"
	AxisTypeCategory AxisType = "category"
	AxisTypeLinear   AxisType = "linear"
)

// Stacking controls how series in the same category are combined.
type Stacking string

const (
	StackingNone   Stacking = ""
	StackingNormal Stacking = "normal"
)

// Axis describes one chart axis.
type Axis struct {
	Type              AxisType `json:"type"`
	Title             string   `json:"title,omitempty"`
	Min               *float64 `json:"min,omitempty"`
	TickPixelInterval int      `json:"tick_pixel_interval,omitempty"`
	Categories        []string `json:"categories,omitempty"`
}

// Legend describes the chart legend.
type Legend struct {
	Enabled         bool   `json:"enabled"`
	BackgroundColor string `json:"background_color,omitempty"`
	Reversed        bool   `json:"reversed,omitempty"`
}

// Configuration is everything the browser needs to draw an empty chart.
type Configuration struct {
	ID       string    `json:"id"`
	Type     ChartType `json:"type"`
	Title    string    `json:"title"`
	XAxis    Axis      `json:"x_axis"`
	YAxis    Axis      `json:"y_axis"`
	Tooltip  bool      `json:"tooltip"`
	Legend   Legend    `json:"legend"`
	Stacking Stacking  `json:"stacking,omitempty"`
	Series   []string  `json:"series"`
}

// Min returns a pointer to v for use as an axis bound.
func Min(v float64) *float64 {
	return &v
}
