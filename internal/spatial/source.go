package spatial

import (
	"sync"

	"github.com/nearfield/nearfield/internal/core"
	"github.com/nearfield/nearfield/internal/domain"
)

// Source is one remote participant's audio in the local render graph. It
// remembers its real world position even while spatial mode is off.
type Source struct {
	panner Panner
	real   domain.Position
}

// SourceSet owns every active source and the spatial on/off toggle. Turning
// spatial off collapses all sources to the origin (equal-gain playback)
// without destroying them; turning it back on restores the last real
// position of each.
type SourceSet struct {
	mu        sync.Mutex
	spatial   bool
	sources   map[core.ConnID]*Source
	newPanner func() Panner
}

func NewSourceSet(newPanner func() Panner) *SourceSet {
	return &SourceSet{
		spatial:   true,
		sources:   make(map[core.ConnID]*Source),
		newPanner: newPanner,
	}
}

// Add creates the source for a remote participant at its last known
// position. Adding an existing id replaces the old source.
func (s *SourceSet) Add(cid core.ConnID, pos domain.Position) *Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := &Source{panner: s.newPanner(), real: pos}
	src.apply(s.spatial)
	s.sources[cid] = src
	return src
}

func (s *SourceSet) Remove(cid core.ConnID) {
	s.mu.Lock()
	delete(s.sources, cid)
	s.mu.Unlock()
}

// SetPosition records the source's new real position; it takes effect
// immediately only while spatial mode is on.
func (s *SourceSet) SetPosition(cid core.ConnID, pos domain.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[cid]
	if !ok {
		return false
	}
	src.real = pos
	src.apply(s.spatial)
	return true
}

func (s *SourceSet) SetSpatial(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spatial == on {
		return
	}
	s.spatial = on
	for _, src := range s.sources {
		src.apply(on)
	}
}

func (s *SourceSet) Spatial() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spatial
}

func (s *SourceSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Panner exposes the source's panner, mainly for render wiring and tests.
func (s *SourceSet) Panner(cid core.ConnID) (Panner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[cid]
	if !ok {
		return nil, false
	}
	return src.panner, true
}

func (src *Source) apply(spatial bool) {
	if spatial {
		src.panner.SetPosition(src.real.X, src.real.Y, src.real.Z)
	} else {
		src.panner.SetPosition(0, 0, 0)
	}
}
