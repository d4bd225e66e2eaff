// Package geom holds the small amount of 3D math the sync layer needs:
// positions, rotations and the blends between them.
package geom

import "math"

// Vec3 is a position in scene units.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Len returns the euclidean length of v.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y + v.Z*v.Z)))
}

// Lerp blends a toward b by t. t is not clamped.
func Lerp(a, b Vec3, t float32) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// Quat is a rotation quaternion stored x,y,z,w to match the wire layout.
type Quat struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

// Identity is the no-op rotation.
func Identity() Quat {
	return Quat{W: 1}
}

// Dot returns the 4D dot product.
func (q Quat) Dot(o Quat) float32 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Normalize returns q scaled to unit length. A zero quaternion becomes Identity.
func (q Quat) Normalize() Quat {
	n := float32(math.Sqrt(float64(q.Dot(q))))
	if n == 0 {
		return Identity()
	}
	return Quat{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Angle returns the rotation angle in radians between q and o.
func (q Quat) Angle(o Quat) float64 {
	d := math.Abs(float64(q.Normalize().Dot(o.Normalize())))
	if d > 1 {
		d = 1
	}
	return 2 * math.Acos(d)
}

// Euler builds a rotation from degrees, applied Z then X then Y.
func Euler(xDeg, yDeg, zDeg float64) Quat {
	hx := xDeg * math.Pi / 360
	hy := yDeg * math.Pi / 360
	hz := zDeg * math.Pi / 360
	sx, cx := math.Sincos(hx)
	sy, cy := math.Sincos(hy)
	sz, cz := math.Sincos(hz)
	return Quat{
		X: float32(cy*sx*cz + sy*cx*sz),
		Y: float32(sy*cx*cz - cy*sx*sz),
		Z: float32(cy*cx*sz - sy*sx*cz),
		W: float32(cy*cx*cz + sy*sx*sz),
	}
}

// Slerp interpolates along the shortest arc from a to b by t in [0,1].
func Slerp(a, b Quat, t float32) Quat {
	a = a.Normalize()
	b = b.Normalize()
	d := a.Dot(b)
	if d < 0 {
		b = Quat{X: -b.X, Y: -b.Y, Z: -b.Z, W: -b.W}
		d = -d
	}
	// nearly parallel: fall back to nlerp to avoid dividing by sin(~0)
	if d > 0.9995 {
		return Quat{
			X: a.X + (b.X-a.X)*t,
			Y: a.Y + (b.Y-a.Y)*t,
			Z: a.Z + (b.Z-a.Z)*t,
			W: a.W + (b.W-a.W)*t,
		}.Normalize()
	}
	theta := math.Acos(float64(d))
	sinTheta := math.Sin(theta)
	wa := float32(math.Sin((1-float64(t))*theta) / sinTheta)
	wb := float32(math.Sin(float64(t)*theta) / sinTheta)
	return Quat{
		X: a.X*wa + b.X*wb,
		Y: a.Y*wa + b.Y*wb,
		Z: a.Z*wa + b.Z*wb,
		W: a.W*wa + b.W*wb,
	}
}

// Clamp01 bounds t to [0,1].
func Clamp01(t float32) float32 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
