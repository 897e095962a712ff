// Package model contains domain models passed between layers.
package model

import "math"

// Point is a screen coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt returns a pointer to a new Point. Optional coordinates are carried as
// *Point so that "not observed" is distinguishable from the origin.
func Pt(x, y float64) *Point {
	return &Point{X: x, Y: y}
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Vec3 is a world-space vector (position or Euler rotation).
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// V3 returns a pointer to a new Vec3.
func V3(x, y, z float64) *Vec3 {
	return &Vec3{X: x, Y: y, Z: z}
}

// Viewport is the screen area the calibration targets are laid out on.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of the viewport.
func (v Viewport) Center() Point {
	return Point{X: v.Width / 2, Y: v.Height / 2}
}

// Valid reports whether both dimensions are positive.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0
}
