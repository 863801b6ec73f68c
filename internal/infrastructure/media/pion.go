package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
)

// Engine creates pion-backed media sessions. It implements
// ports.MediaEngine.
type Engine struct {
	logger *zap.SugaredLogger
}

func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// CreateSession builds one peer connection with the given ICE servers.
func (e *Engine) CreateSession(cfg ports.SessionConfig) (ports.MediaSession, error) {
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	session := &Session{pc: pc, logger: e.logger}
	session.wire()
	return session, nil
}

// Session wraps one webrtc.PeerConnection behind the ports.MediaSession
// interface.
type Session struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger

	mu       sync.Mutex
	observer ports.RTCEventHandler
	streams  map[string]ports.MediaStream
}

func (s *Session) wire() {
	s.streams = make(map[string]ports.MediaStream)

	s.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			s.emit(ports.RTCEvent{Kind: ports.EventEndOfCandidates})
			return
		}
		init := candidate.ToJSON()
		ice := &domain.ICECandidate{Candidate: init.Candidate}
		if init.SDPMid != nil {
			ice.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			ice.SDPMLineIndex = *init.SDPMLineIndex
		}
		s.emit(ports.RTCEvent{Kind: ports.EventICECandidate, Candidate: ice})
	})

	s.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		stream := newRemoteStream(track)
		s.mu.Lock()
		s.streams[stream.ID()] = stream
		s.mu.Unlock()
		s.emit(ports.RTCEvent{Kind: ports.EventAddStream, Stream: stream})
	})

	s.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.emit(ports.RTCEvent{Kind: ports.EventDataChannel, Channel: wrapDataChannel(dc)})
	})

	s.pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		s.emit(ports.RTCEvent{Kind: ports.EventSignalingStateChange, State: state.String()})
	})

	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.emit(ports.RTCEvent{Kind: ports.EventICEConnectionStateChange, State: state.String()})
	})

	s.pc.OnNegotiationNeeded(func() {
		s.emit(ports.RTCEvent{Kind: ports.EventNegotiationNeeded})
	})
}

func (s *Session) emit(event ports.RTCEvent) {
	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		observer(event)
	}
}

func (s *Session) Observe(handler ports.RTCEventHandler) {
	s.mu.Lock()
	s.observer = handler
	s.mu.Unlock()
}

func (s *Session) CreateOffer(_ context.Context) (domain.SessionDescription, error) {
	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return fromPion(offer), nil
}

func (s *Session) CreateAnswer(_ context.Context) (domain.SessionDescription, error) {
	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return fromPion(answer), nil
}

func (s *Session) SetLocalDescription(desc domain.SessionDescription) error {
	return s.pc.SetLocalDescription(toPion(desc))
}

func (s *Session) SetRemoteDescription(desc domain.SessionDescription) error {
	return s.pc.SetRemoteDescription(toPion(desc))
}

func (s *Session) LocalDescription() domain.SessionDescription {
	local := s.pc.LocalDescription()
	if local == nil {
		return domain.SessionDescription{}
	}
	return fromPion(*local)
}

func (s *Session) AddICECandidate(candidate domain.ICECandidate) error {
	mid := candidate.SDPMid
	index := candidate.SDPMLineIndex
	return s.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &index,
	})
}

// AddStream attaches a locally captured stream's tracks to the connection.
func (s *Session) AddStream(stream ports.MediaStream) error {
	local, ok := stream.(*LocalStream)
	if !ok {
		return fmt.Errorf("unsupported stream implementation %T", stream)
	}
	for _, track := range local.Tracks() {
		if _, err := s.pc.AddTrack(track); err != nil {
			return fmt.Errorf("add track: %w", err)
		}
	}
	s.mu.Lock()
	s.streams[stream.ID()] = stream
	s.mu.Unlock()
	return nil
}

func (s *Session) StreamByID(id string) (ports.MediaStream, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, ok := s.streams[id]
	return stream, ok
}

func (s *Session) CreateDataChannel(label string) (ports.DataChannel, error) {
	dc, err := s.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	return wrapDataChannel(dc), nil
}

func (s *Session) Close() error {
	return s.pc.Close()
}

func toPion(desc domain.SessionDescription) webrtc.SessionDescription {
	sdpType := webrtc.SDPTypeOffer
	if desc.Type == "answer" {
		sdpType = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}
}

func fromPion(desc webrtc.SessionDescription) domain.SessionDescription {
	return domain.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

// dataChannel adapts webrtc.DataChannel to ports.DataChannel.
type dataChannel struct {
	dc *webrtc.DataChannel

	mu   sync.Mutex
	open bool
}

func wrapDataChannel(dc *webrtc.DataChannel) *dataChannel {
	c := &dataChannel{dc: dc, open: dc.ReadyState() == webrtc.DataChannelStateOpen}
	return c
}

func (c *dataChannel) Label() string { return c.dc.Label() }

func (c *dataChannel) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open || c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *dataChannel) Send(payload []byte) error {
	return c.dc.Send(payload)
}

func (c *dataChannel) OnMessage(receive func(payload []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		receive(msg.Data)
	})
}

func (c *dataChannel) OnOpen(fn func()) {
	c.dc.OnOpen(func() {
		c.mu.Lock()
		c.open = true
		c.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}

func (c *dataChannel) Close() error {
	return c.dc.Close()
}
