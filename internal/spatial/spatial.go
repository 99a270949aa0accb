// Package spatial maps participant positions to audio parameters: the
// screen/world coordinate transforms and the distance gain law. Everything
// here is pure so it stays unit-testable away from any rendering surface.
package spatial

import (
	"math"

	"github.com/nearfield/nearfield/internal/domain"
)

const (
	// WorldRadius scales the normalized [-1,1] screen square to world units.
	WorldRadius = 10.0

	BaseVolume        = 0.5
	AttenuationFactor = 0.1
	// GainFloor keeps far participants faintly audible; GainCeil prevents
	// boost above unity.
	GainFloor = 0.1
	GainCeil  = 1.0
)

// ScreenToWorld converts a 2D pointer position to a world position on the
// horizontal plane: horizontal axis to X, vertical axis to Z, Y held at 0.
func ScreenToWorld(px, py, screenW, screenH float64) domain.Position {
	nx := 2*px/screenW - 1
	nz := 2*py/screenH - 1
	return domain.Position{
		X: nx * WorldRadius,
		Y: 0,
		Z: nz * WorldRadius,
	}
}

// WorldToScreen is the exact inverse of ScreenToWorld for the X and Z axes.
func WorldToScreen(pos domain.Position, screenW, screenH float64) (px, py float64) {
	px = (pos.X/WorldRadius + 1) / 2 * screenW
	py = (pos.Z/WorldRadius + 1) / 2 * screenH
	return px, py
}

// GainFor computes the playback gain for a source at the given distance from
// the listener. Monotonically non-increasing in distance, equal to
// BaseVolume at distance zero, and never below GainFloor.
func GainFor(distance float64) float64 {
	if math.IsNaN(distance) || distance < 0 {
		distance = 0
	}
	g := BaseVolume / (1 + distance*AttenuationFactor)
	return clamp(g, GainFloor, GainCeil)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
