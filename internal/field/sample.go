package field

import (
	"math"
	"time"
)

// Vec3 is a 3-vector of magnetic field readings in µT, sensor axes.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sample is a single timestamped magnetometer reading.
type Sample struct {
	Vec3
	Time time.Time `json:"time"`
}

// Source is anything that can provide magnetometer samples over time:
// a live sensor, an MQTT subscription, or a mock for tests.
type Source interface {
	Next() (Sample, error)
}

func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

func (v Vec3) Sub(w Vec3) Vec3 {
	return Vec3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: k * v.X, Y: k * v.Y, Z: k * v.Z}
}

func (v Vec3) Dot(w Vec3) float64 {
	return v.X*w.X + v.Y*w.Y + v.Z*w.Z
}
