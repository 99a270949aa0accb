package domain

import "math"

// Position is a point in world coordinates. Interaction stays on the
// horizontal plane, so Y is normally zero, but the full triple is kept
// because the audio renderer takes all three axes.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Origin is the default position of a participant that has not reported one.
var Origin = Position{}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Length is the euclidean norm of p.
func (p Position) Length() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

func (p Position) IsOrigin() bool {
	return p.X == 0 && p.Y == 0 && p.Z == 0
}
