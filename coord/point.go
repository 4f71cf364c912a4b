package coord

import (
	"math"
)

type Point struct{ X, Y, Z float64 }

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

// EqualXY ignores the Z axis.
func (p Point) EqualXY(b Point) bool {
	return p.X == b.X && p.Y == b.Y
}

// NearXY reports whether b is within tol of p on both the X and Y axis.
func (p Point) NearXY(b Point, tol float64) bool {
	return math.Abs(p.X-b.X) <= tol && math.Abs(p.Y-b.Y) <= tol
}

func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// DistanceXY will return the 2D distance to p from (x,y).
func (p Point) DistanceXY(x, y float64) float64 {
	return math.Sqrt(math.Pow(x-p.X, 2) + math.Pow(y-p.Y, 2))
}

// AngleXY returns the angle of target as seen from p, normalized to [0, 2π).
func (p Point) AngleXY(target Point) float64 {
	a := math.Atan2(target.Y-p.Y, target.X-p.X)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// Polar returns the point at radius and angle around p on the XY plane.
func (p Point) Polar(radius, angle float64) Point {
	return Point{
		X: p.X + radius*math.Cos(angle),
		Y: p.Y + radius*math.Sin(angle),
		Z: p.Z,
	}
}
