package media

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
)

// LocalStream bundles locally created tracks under one stream id.
type LocalStream struct {
	id     string
	tracks []webrtc.TrackLocal

	mu      sync.Mutex
	stopped bool
	onStop  []func()
}

func (s *LocalStream) ID() string { return s.id }

// Tracks returns the pion tracks backing this stream.
func (s *LocalStream) Tracks() []webrtc.TrackLocal { return s.tracks }

// Stop releases capture sources. Stopping twice is harmless.
func (s *LocalStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	hooks := s.onStop
	s.onStop = nil
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

// remoteStream adapts one inbound track to ports.MediaStream.
type remoteStream struct {
	id string
}

func newRemoteStream(track *webrtc.TrackRemote) ports.MediaStream {
	id := track.StreamID()
	if id == "" {
		id = track.ID()
	}
	return &remoteStream{id: id}
}

func (s *remoteStream) ID() string { return s.id }
func (s *remoteStream) Stop()      {}

// Capture creates local sample tracks for the requested constraints. It
// implements ports.MediaCapture; feeding the tracks with actual device frames
// is the embedding application's job via track writers.
type Capture struct {
	logger *zap.SugaredLogger
}

func NewCapture(logger *zap.SugaredLogger) *Capture {
	return &Capture{logger: logger}
}

// GetUserMedia builds one stream holding a track per requested kind.
func (c *Capture) GetUserMedia(constraints domain.MediaConstraints) (ports.MediaStream, error) {
	streamID := constraints.StreamID
	if streamID == "" {
		streamID = "stream-" + uuid.NewString()
	}
	stream := &LocalStream{id: streamID}

	if constraints.Audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("create audio track: %w", err)
		}
		stream.tracks = append(stream.tracks, track)
	}

	if constraints.Video || constraints.Screen {
		label := "video"
		if constraints.Screen {
			label = "screen"
		}
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			label, streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("create %s track: %w", label, err)
		}
		stream.tracks = append(stream.tracks, track)
	}

	if len(stream.tracks) == 0 {
		return nil, fmt.Errorf("no capture kinds requested")
	}

	c.logger.Debugw("local media captured", "stream_id", streamID, "tracks", len(stream.tracks))
	return stream, nil
}
