package spatial

import (
	"math"
	"sync"

	"github.com/nearfield/nearfield/internal/domain"
)

// Panner is the single positioning interface of the audio renderer.
// Renderer capability (HRTF-style 3D vs plain stereo) hides behind it;
// callers only ever set positions.
type Panner interface {
	SetPosition(x, y, z float64)
	SetListenerOrientation(fx, fy, fz float64)
}

// StereoPanner renders position as distance gain plus equal-power left/right
// weights derived from the source azimuth in the listener's frame. It is the
// fallback capability when no HRTF renderer is available.
type StereoPanner struct {
	mu      sync.Mutex
	forward float64 // listener forward azimuth, radians
	gain    float64
	left    float64
	right   float64
}

func NewStereoPanner() *StereoPanner {
	p := &StereoPanner{}
	p.SetPosition(0, 0, 0)
	return p
}

func (p *StereoPanner) SetPosition(x, y, z float64) {
	gain := GainFor(domain.Position{X: x, Y: y, Z: z}.Length())

	p.mu.Lock()
	defer p.mu.Unlock()

	// Azimuth 0 is straight ahead (-Z); positive is to the right.
	az := math.Atan2(x, -z) - p.forward
	pan := math.Sin(az) // [-1, 1]
	theta := (pan + 1) * math.Pi / 4
	p.gain = gain
	p.left = math.Cos(theta)
	p.right = math.Sin(theta)
}

func (p *StereoPanner) SetListenerOrientation(fx, fy, fz float64) {
	p.mu.Lock()
	p.forward = math.Atan2(fx, -fz)
	p.mu.Unlock()
}

// Gains returns the effective per-channel weights (distance gain applied).
func (p *StereoPanner) Gains() (left, right float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gain * p.left, p.gain * p.right
}

// Gain returns the distance gain alone.
func (p *StereoPanner) Gain() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gain
}
