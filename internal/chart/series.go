// Package chart holds chart state and configuration objects rendered by the dashboard UI.
package chart

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultWindow is the number of points a DataSeries keeps by default.
const DefaultWindow = 20

// ErrPointOutOfRange is returned when updating a point that does not exist.
var ErrPointOutOfRange = errors.New("point index out of range")

// Point is a single (time, value) sample.
type Point struct {
	X int64           `json:"x"`
	Y decimal.Decimal `json:"y"`
}

// NewPoint creates a point at the given time.
func NewPoint(ts time.Time, value decimal.Decimal) Point {
	return Point{X: ts.UnixMilli(), Y: value}
}

// DataSeries is a named time series with a rolling window.
type DataSeries struct {
	Name   string
	window int
	points []Point
}

// NewDataSeries creates a series that retains at most window points.
func NewDataSeries(name string, window int) *DataSeries {
	if window < 1 {
		window = DefaultWindow
	}
	return &DataSeries{
		Name:   name,
		window: window,
		points: make([]Point, 0, window),
	}
}

// Add appends p and reports whether the oldest point was shifted out.
func (s *DataSeries) Add(p Point) (shifted bool) {
	if len(s.points) >= s.window {
		copy(s.points, s.points[1:])
		s.points = s.points[:len(s.points)-1]
		shifted = true
	}
	s.points = append(s.points, p)
	return shifted
}

// Last returns the newest point, if any.
func (s *DataSeries) Last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// Len returns the number of retained points.
func (s *DataSeries) Len() int {
	return len(s.points)
}

// Window returns the maximum number of retained points.
func (s *DataSeries) Window() int {
	return s.window
}

// Points returns a copy of the retained points, oldest first.
func (s *DataSeries) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Values returns the y values of the retained points, oldest first.
func (s *DataSeries) Values() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.points))
	for i, p := range s.points {
		out[i] = p.Y
	}
	return out
}

// ListSeries is a named series of values indexed by category position.
type ListSeries struct {
	Name string
	data []decimal.Decimal
}

// NewListSeries creates an empty category series.
func NewListSeries(name string) *ListSeries {
	return &ListSeries{Name: name}
}

// SetData replaces all values.
func (s *ListSeries) SetData(values ...decimal.Decimal) {
	s.data = make([]decimal.Decimal, len(values))
	copy(s.data, values)
}

// UpdatePoint replaces the value at index.
func (s *ListSeries) UpdatePoint(index int, value decimal.Decimal) error {
	if index < 0 || index >= len(s.data) {
		return errors.Wrapf(ErrPointOutOfRange, "series %s: index %d, len %d", s.Name, index, len(s.data))
	}
	s.data[index] = value
	return nil
}

// Len returns the number of values.
func (s *ListSeries) Len() int {
	return len(s.data)
}

// Data returns a copy of the values.
func (s *ListSeries) Data() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.data))
	copy(out, s.data)
	return out
}
