package ports

import (
	"context"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
)

// RTCEventKind is the closed set of media-engine events surfaced to the
// application.
type RTCEventKind string

const (
	EventICECandidate             RTCEventKind = "onicecandidate"
	EventEndOfCandidates          RTCEventKind = "onendofcandidates"
	EventAddStream                RTCEventKind = "onaddstream"
	EventAddLocalStream           RTCEventKind = "onaddlocalstream"
	EventRemoveStream             RTCEventKind = "onremovestream"
	EventDataChannel              RTCEventKind = "ondatachannel"
	EventSignalingStateChange     RTCEventKind = "onsignalingstatechange"
	EventICEConnectionStateChange RTCEventKind = "oniceconnectionstatechange"
	EventNegotiationNeeded        RTCEventKind = "onnegotiationneeded"
	EventResourceAdded            RTCEventKind = "onresourceadded"
)

// RTCEvent is one media-engine notification. Only the fields relevant to the
// Kind are set.
type RTCEvent struct {
	Kind      RTCEventKind
	Candidate *domain.ICECandidate
	Stream    MediaStream
	Channel   DataChannel
	State     string

	// CodecID is set for EventResourceAdded.
	CodecID string
}

// RTCEventHandler receives media events from Participants and Conversations.
type RTCEventHandler func(event RTCEvent)

// MessageHandler receives every signaling message for application
// visibility, regardless of internal handling.
type MessageHandler func(msg *domain.Message)

// ICEServer configures one STUN/TURN server for session establishment.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// SessionConfig parameterizes media session creation.
type SessionConfig struct {
	ICEServers []ICEServer
}

// MediaEngine creates sessions. Implemented outside the core.
type MediaEngine interface {
	CreateSession(cfg SessionConfig) (MediaSession, error)
}

// MediaSession is one peer connection owned by a Participant.
type MediaSession interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	LocalDescription() domain.SessionDescription
	AddICECandidate(candidate domain.ICECandidate) error

	AddStream(stream MediaStream) error
	StreamByID(id string) (MediaStream, bool)
	CreateDataChannel(label string) (DataChannel, error)

	// Observe installs the event callback. At most one observer is active;
	// installing a new one replaces the previous.
	Observe(handler RTCEventHandler)

	Close() error
}

// MediaStream is an opaque captured or received stream handle.
type MediaStream interface {
	ID() string
	Stop()
}

// MediaCapture is the local capture API (camera, microphone, screen).
type MediaCapture interface {
	GetUserMedia(constraints domain.MediaConstraints) (MediaStream, error)
}

// DataChannel is one physical channel multiplexing codec traffic.
type DataChannel interface {
	Label() string
	Open() bool
	Send(payload []byte) error
	OnMessage(receive func(payload []byte))
	OnOpen(fn func())
	Close() error
}
