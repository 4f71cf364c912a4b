package coord

import "math"

// Bounds is an axis aligned bounding box on the XY plane.
//
// The zero value covers only the origin, which is where a job starts.
type Bounds struct {
	Min, Max Point
}

// Extend grows b so that it contains p.
func (b *Bounds) Extend(p Point) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
}

func (b Bounds) Width() float64  { return b.Max.X - b.Min.X }
func (b Bounds) Height() float64 { return b.Max.Y - b.Min.Y }
