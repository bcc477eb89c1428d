package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// MediaStream is the single artifact a negotiator exposes: the set of
// remote tracks for one session. Shared by reference with the caller and
// released on teardown.
type MediaStream struct {
	mu     sync.RWMutex
	id     string
	tracks []*webrtc.TrackRemote
}

func newMediaStream(id string) *MediaStream {
	return &MediaStream{id: id}
}

func (s *MediaStream) ID() string { return s.id }

func (s *MediaStream) addTrack(t *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, t)
}

func (s *MediaStream) Tracks() []*webrtc.TrackRemote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*webrtc.TrackRemote, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *MediaStream) HasVideo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tracks {
		if t.Kind() == webrtc.RTPCodecTypeVideo {
			return true
		}
	}
	return false
}
