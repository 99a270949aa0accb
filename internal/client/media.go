package client

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// MediaSource provides the local audio track attached to every peer link.
// The capture device is opened once and shared read-only across links;
// microphone acquisition itself lives outside this package.
type MediaSource interface {
	Track() webrtc.TrackLocal
	Stop()
}

// silenceSource feeds Opus silence frames at 20ms cadence. It stands in for
// real capture so the media path negotiates and flows end to end.
type silenceSource struct {
	track *webrtc.TrackLocalStaticSample
	stop  chan struct{}
	once  sync.Once
}

// Opus frame encoding comfort noise only.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func NewSilenceSource() (MediaSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "nearfield",
	)
	if err != nil {
		return nil, err
	}
	s := &silenceSource{track: track, stop: make(chan struct{})}
	go s.loop()
	return s, nil
}

func (s *silenceSource) loop() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			_ = s.track.WriteSample(media.Sample{Data: opusSilence, Duration: 20 * time.Millisecond})
		}
	}
}

func (s *silenceSource) Track() webrtc.TrackLocal { return s.track }

func (s *silenceSource) Stop() {
	s.once.Do(func() { close(s.stop) })
}
