// Package geom holds the 2D geometry shared by the object model, the
// spatial layer and placement: ground-plane vectors, polygons, segments and
// oriented footprints. Vectors are mathgl's mgl64 types.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Epsilon is the tolerance used by every comparison in this package.
const Epsilon = 1e-9

type Vec2 = mgl64.Vec2

// V is shorthand for building a Vec2.
func V(x, y float64) Vec2 { return Vec2{x, y} }

// Ground projects a 3D position onto the ground plane (x, z).
func Ground(v mgl64.Vec3) Vec2 { return Vec2{v.X(), v.Z()} }

// Lift places a ground point back into 3D space at height y.
func Lift(v Vec2, y float64) mgl64.Vec3 { return mgl64.Vec3{v.X(), y, v.Y()} }

func PerpDot(a, b Vec2) float64 { return a.X()*b.Y() - a.Y()*b.X() }

// Perp rotates v by +90 degrees.
func Perp(v Vec2) Vec2 { return Vec2{-v.Y(), v.X()} }

func Rotate(v Vec2, angle float64) Vec2 { return mgl64.Rotate2D(angle).Mul2x1(v) }

// AngleBetween returns the signed angle that rotates a onto b.
func AngleBetween(a, b Vec2) float64 { return math.Atan2(PerpDot(a, b), a.Dot(b)) }

func Distance(a, b Vec2) float64 { return b.Sub(a).Len() }

func NearlyEqual(a, b float64) bool { return math.Abs(a-b) <= 1e-6 }

// NormalizeAngle maps angle into (-pi, pi].
func NormalizeAngle(angle float64) float64 {
	angle = math.Mod(angle, 2*math.Pi)
	if angle <= -math.Pi {
		angle += 2 * math.Pi
	} else if angle > math.Pi {
		angle -= 2 * math.Pi
	}
	return angle
}

// YawQuat converts a rotation around the vertical axis into a quaternion
// for consumers that want full 3D rotations.
func YawQuat(yaw float64) mgl64.Quat {
	return mgl64.QuatRotate(yaw, mgl64.Vec3{0, 1, 0})
}
