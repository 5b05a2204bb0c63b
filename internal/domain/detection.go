package domain

import (
	"math"
	"time"
)

// Detection — одна детекция трекера в кадре, координаты нормализованы в [0,1].
type Detection struct {
	TrackID    *int64     `json:"track_id" msgpack:"track_id"` // nil, если трекер не выдал ID
	BBox       [4]float64 `json:"bbox" msgpack:"bbox"`         // x1, y1, x2, y2
	Confidence float64    `json:"confidence" msgpack:"confidence"`
	Class      string     `json:"class" msgpack:"class"`
}

// Frame — пачка детекций одного кадра.
type Frame struct {
	Seq        uint64
	At         time.Time
	Detections []Detection
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect — осевой прямоугольник в нормализованных координатах.
type Rect struct {
	XMin float64 `mapstructure:"xmin" json:"xmin"`
	YMin float64 `mapstructure:"ymin" json:"ymin"`
	XMax float64 `mapstructure:"xmax" json:"xmax"`
	YMax float64 `mapstructure:"ymax" json:"ymax"`
}

// Contains использует замкнутые границы по обеим осям.
func (r Rect) Contains(p Point) bool {
	return r.XMin <= p.X && p.X <= r.XMax && r.YMin <= p.Y && p.Y <= r.YMax
}

// SanitizedBBox приводит рамку к допустимому виду: NaN -> 0, выход за [0,1]
// обрезается, перепутанные углы меняются местами.
func (d Detection) SanitizedBBox() [4]float64 {
	var b [4]float64
	for i, v := range d.BBox {
		b[i] = Clamp01(v)
	}
	if b[0] > b[2] {
		b[0], b[2] = b[2], b[0]
	}
	if b[1] > b[3] {
		b[1], b[3] = b[3], b[1]
	}
	return b
}

// Center — центр рамки после нормализации.
func (d Detection) Center() Point {
	b := d.SanitizedBBox()
	return Point{X: (b[0] + b[2]) / 2, Y: (b[1] + b[3]) / 2}
}

// Area вырожденной рамки равна нулю, не ошибке.
func (d Detection) Area() float64 {
	b := d.SanitizedBBox()
	return math.Max(0, (b[2]-b[0])*(b[3]-b[1]))
}

func (d Detection) SafeConfidence() float64 {
	return Clamp01(d.Confidence)
}

func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
