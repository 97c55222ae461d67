package pose

import (
	"fmt"
	"math"
)

// Frame is the fixed reference frame every stored pose is expressed in.
const Frame = "map"

// Markers are lifted slightly off the floor so they stay visible.
const defaultMarkerHeight = 0.05

type Point struct {
	X float64 `json:"x" yaml:"x" toml:"x"`
	Y float64 `json:"y" yaml:"y" toml:"y"`
	Z float64 `json:"z" yaml:"z" toml:"z"`
}

type Quaternion struct {
	X float64 `json:"x" yaml:"x" toml:"x"`
	Y float64 `json:"y" yaml:"y" toml:"y"`
	Z float64 `json:"z" yaml:"z" toml:"z"`
	W float64 `json:"w" yaml:"w" toml:"w"`
}

// Pose is a position and orientation in Frame. It is a value: callers replace
// a stored pose wholesale, never field by field.
type Pose struct {
	Position    Point      `json:"position" yaml:"position" toml:"position"`
	Orientation Quaternion `json:"orientation" yaml:"orientation" toml:"orientation"`
}

type NamedPose struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	Pose Pose   `json:"pose" yaml:"pose" toml:"pose"`
}

// Default is the pose a freshly created marker starts at.
func Default() Pose {
	return Pose{
		Position:    Point{Z: defaultMarkerHeight},
		Orientation: Quaternion{W: 1},
	}
}

// FromXYYaw builds a planar pose at marker height facing yaw radians.
func FromXYYaw(x, y, yaw float64) Pose {
	return Pose{
		Position: Point{X: x, Y: y, Z: defaultMarkerHeight},
		Orientation: Quaternion{
			Z: math.Sin(yaw / 2),
			W: math.Cos(yaw / 2),
		},
	}
}

// Yaw returns the heading around the Z axis in radians.
func (p Pose) Yaw() float64 {
	q := p.Orientation
	siny := 2 * (q.W*q.Z + q.X*q.Y)
	cosy := 1 - 2*(q.Y*q.Y+q.Z*q.Z)
	return math.Atan2(siny, cosy)
}

// PlanarDistance is the straight-line XY distance between two poses.
func (p Pose) PlanarDistance(o Pose) float64 {
	return math.Hypot(o.Position.X-p.Position.X, o.Position.Y-p.Position.Y)
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f) yaw=%.1f°",
		p.Position.X, p.Position.Y, p.Position.Z, p.Yaw()*180/math.Pi)
}
