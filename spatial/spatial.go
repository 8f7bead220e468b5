// Package spatial holds the small value types the session works with:
// positions, rotations and poses in the AR engine's left-handed, Y-up frame
// (+Z is forward).
package spatial

import (
	"fmt"
	"math"
	"strconv"
)

// Vec3 is a 3D position or direction.
type Vec3 struct {
	X, Y, Z float64
}

var (
	Zero    = Vec3{}
	Forward = Vec3{Z: 1}
	Up      = Vec3{Y: 1}
	Right   = Vec3{X: 1}
)

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(f float64) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

func (v Vec3) Distance(o Vec3) float64 { return v.Sub(o).Length() }

// Normalized returns v scaled to unit length, or Zero for a zero vector.
func (v Vec3) Normalized() Vec3 {
	l := v.Length()
	if l == 0 {
		return Zero
	}
	return v.Scale(1 / l)
}

// IsFinite reports whether no component is NaN or infinite.
func (v Vec3) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// ApproxEqual compares component-wise with absolute tolerance eps.
func (v Vec3) ApproxEqual(o Vec3, eps float64) bool {
	return math.Abs(v.X-o.X) <= eps && math.Abs(v.Y-o.Y) <= eps && math.Abs(v.Z-o.Z) <= eps
}

// String renders the default vector form "(x, y, z)" with a period decimal
// separator regardless of process locale.
func (v Vec3) String() string {
	return fmt.Sprintf("(%s, %s, %s)", formatComponent(v.X), formatComponent(v.Y), formatComponent(v.Z))
}

func formatComponent(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float64
}

// Identity is the no-rotation quaternion.
var Identity = Quat{W: 1}

// AxisAngle returns the rotation of angle radians around axis.
func AxisAngle(axis Vec3, angle float64) Quat {
	a := axis.Normalized()
	s := math.Sin(angle / 2)
	return Quat{X: a.X * s, Y: a.Y * s, Z: a.Z * s, W: math.Cos(angle / 2)}
}

// Euler builds a rotation from yaw (around Y), pitch (around X) and roll
// (around Z), in radians, applied roll, pitch, then yaw.
func Euler(yaw, pitch, roll float64) Quat {
	return AxisAngle(Up, yaw).Mul(AxisAngle(Right, pitch)).Mul(AxisAngle(Forward, roll))
}

func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

func (q Quat) Conjugate() Quat { return Quat{-q.X, -q.Y, -q.Z, q.W} }

// Normalize returns q at unit length; a zero quaternion becomes Identity.
func (q Quat) Normalize() Quat {
	l := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if l == 0 {
		return Identity
	}
	return Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// Rotate applies the rotation to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Pose is a position plus orientation.
type Pose struct {
	Position Vec3
	Rotation Quat
}

// Forward is the unit direction the pose faces.
func (p Pose) Forward() Vec3 {
	return p.rotation().Rotate(Forward)
}

// PointAhead returns the point distance units along Forward.
func (p Pose) PointAhead(distance float64) Vec3 {
	return p.Position.Add(p.Forward().Scale(distance))
}

// TransformPoint maps a point local to p into the parent frame.
func (p Pose) TransformPoint(local Vec3) Vec3 {
	return p.rotation().Rotate(local).Add(p.Position)
}

// InverseTransformPoint maps a parent-frame point into p's local frame.
func (p Pose) InverseTransformPoint(world Vec3) Vec3 {
	return p.rotation().Conjugate().Rotate(world.Sub(p.Position))
}

func (p Pose) rotation() Quat {
	if p.Rotation == (Quat{}) {
		return Identity
	}
	return p.Rotation.Normalize()
}
