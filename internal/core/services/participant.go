package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
	apperrors "github.com/hftl-ims-research/wonder/pkg/errors"
)

// Participant is one peer's view inside one conversation. The local peer has
// a Participant too (it owns the captured streams); remote participants own
// the media session towards their peer.
type Participant struct {
	conv     *Conversation
	identity *domain.Identity
	local    bool
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	status    domain.ParticipantStatus
	session   ports.MediaSession
	resources []*Resource

	// connected tracks peers confirmed up, maintained only when the local
	// peer hosts. Each new entry triggers one hosting announcement.
	connected []string

	// lastSignal is the most recent inbound message usable as a reply
	// anchor.
	lastSignal *domain.Message
}

func newParticipant(conv *Conversation, identity *domain.Identity, local bool) *Participant {
	return &Participant{
		conv:     conv,
		identity: identity,
		local:    local,
		logger:   conv.logger,
		status:   domain.ParticipantCreated,
	}
}

// Identity returns the identity this participant stands for.
func (p *Participant) Identity() *domain.Identity { return p.identity }

// Status returns the current lifecycle state.
func (p *Participant) Status() domain.ParticipantStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Resources returns a snapshot of the participant's resources.
func (p *Participant) Resources() []*Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Resource, len(p.resources))
	copy(out, p.resources)
	return out
}

func (p *Participant) setStatus(to domain.ParticipantStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setStatusLocked(to)
}

func (p *Participant) setStatusLocked(to domain.ParticipantStatus) error {
	if !p.status.CanTransition(to) {
		return apperrors.NewIllegalTransition(string(p.status), string(to))
	}
	p.logger.Debugw("participant status",
		"rtc_identity", p.identity.RtcIdentity, "from", p.status, "to", to)
	p.status = to
	return nil
}

func (p *Participant) addResource(r *Resource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := findResource(p.resources, r.Constraint.ID); ok {
		existing.Merge(r)
		return
	}
	// a mic-only and a cam-only resource collapse into one audioVideo
	// resource once the missing half arrives
	for _, existing := range p.resources {
		if complementaryMedia(existing.Constraint.Type, r.Constraint.Type) {
			existing.Constraint.Type = domain.ResourceAudioVideo
			if existing.Constraint.Constraints != nil {
				existing.Constraint.Constraints.Audio = true
				existing.Constraint.Constraints.Video = true
			}
			if existing.Stream == nil {
				existing.Stream = r.Stream
			}
			return
		}
	}
	p.resources = append(p.resources, r)
}

func complementaryMedia(a, b domain.ResourceType) bool {
	return (a == domain.ResourceAudioMic && b == domain.ResourceVideoCam) ||
		(a == domain.ResourceVideoCam && b == domain.ResourceAudioMic)
}

// attachSession binds the media session and installs the event observer that
// turns engine events into signaling traffic.
func (p *Participant) attachSession(session ports.MediaSession) {
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()

	session.Observe(func(event ports.RTCEvent) {
		p.onRTCEvent(event)
	})
}

func (p *Participant) onRTCEvent(event ports.RTCEvent) {
	switch event.Kind {
	case ports.EventICECandidate:
		if event.Candidate == nil {
			return
		}
		body := &domain.CandidateBody{
			Label:                event.Candidate.SDPMLineIndex,
			ID:                   event.Candidate.SDPMid,
			CandidateDescription: event.Candidate.Candidate,
		}
		if err := p.sendSignal(context.Background(), body, domain.MessageConnectivityCandidate); err != nil {
			p.logger.Warnw("candidate signal failed",
				"rtc_identity", p.identity.RtcIdentity, "error", err)
		}
	case ports.EventEndOfCandidates:
		p.mu.Lock()
		session := p.session
		p.mu.Unlock()
		body := &domain.CandidateBody{LastCandidate: true}
		if session != nil {
			body.ConnectionDescription = session.LocalDescription()
		}
		if err := p.sendSignal(context.Background(), body, domain.MessageConnectivityCandidate); err != nil {
			p.logger.Warnw("end-of-candidates signal failed",
				"rtc_identity", p.identity.RtcIdentity, "error", err)
		}
	case ports.EventAddStream:
		if event.Stream != nil {
			p.bindStream(event.Stream)
		}
	case ports.EventDataChannel:
		if event.Channel != nil {
			p.conv.broker.AddChannel(p.identity.RtcIdentity, event.Channel)
		}
	}
	p.conv.emitRTC(event)
}

// bindStream matches an inbound stream to a pending media resource, falling
// back to the first unbound media constraint when ids do not line up.
func (p *Participant) bindStream(stream ports.MediaStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.resources {
		if !r.Constraint.Type.IsMedia() || r.Stream != nil {
			continue
		}
		if r.Constraint.Constraints != nil && r.Constraint.Constraints.StreamID != "" &&
			r.Constraint.Constraints.StreamID != stream.ID() {
			continue
		}
		r.Stream = stream
		return
	}
	for _, r := range p.resources {
		if r.Constraint.Type.IsMedia() && r.Stream == nil {
			r.Stream = stream
			return
		}
	}
}

// SendSignal builds the session description required by the message type,
// applies the status transition, and transmits.
func (p *Participant) SendSignal(ctx context.Context, body domain.Body, t domain.MessageType) error {
	switch b := body.(type) {
	case *domain.InvitationBody:
		if err := p.setStatus(domain.ParticipantPending); err != nil {
			return err
		}
		offer, err := p.createOffer(ctx)
		if err != nil {
			p.fail()
			return err
		}
		b.ConnectionDescription = offer
		b.Constraints = domain.WireConstraints(b.Constraints)

	case *domain.AcceptedBody:
		if p.conv.hostedByMe() && b.ConnectionDescription.Empty() {
			// hosting connectivity announcement, no negotiation
			b.Hosting = p.conv.hostingIdentity()
		} else {
			if p.Status() == domain.ParticipantPending {
				if err := p.setStatus(domain.ParticipantAccepted); err != nil {
					return err
				}
			}
			answer, err := p.createAnswer(ctx)
			if err != nil {
				p.fail()
				return err
			}
			b.ConnectionDescription = answer
		}

	case *domain.UpdateBody:
		offer, err := p.createOffer(ctx)
		if err != nil {
			return err
		}
		b.NewConnectionDescription = offer
		b.NewConstraints = domain.WireConstraints(b.NewConstraints)

	case *domain.UpdatedBody:
		if len(b.UpdatedIdentities) == 0 {
			answer, err := p.createAnswer(ctx)
			if err != nil {
				return err
			}
			b.NewConnectionDescription = answer
		}

	case *domain.ByeBody:
		// transition applied by Leave
	}

	return p.sendSignal(ctx, body, t)
}

func (p *Participant) sendSignal(_ context.Context, body domain.Body, t domain.MessageType) error {
	p.mu.Lock()
	previous := p.lastSignal
	p.mu.Unlock()

	var msg *domain.Message
	if previous != nil && isReplyType(t) {
		msg = domain.NewReply(body, previous, t, p.conv.myIdentity.RtcIdentity)
	} else {
		msg = domain.NewMessage(p.conv.myIdentity.RtcIdentity,
			[]string{p.identity.RtcIdentity}, body, t, p.conv.id)
	}
	return p.conv.send(p, msg)
}

func isReplyType(t domain.MessageType) bool {
	switch t {
	case domain.MessageAccepted, domain.MessageNotAccepted, domain.MessageUpdated:
		return true
	}
	return false
}

func (p *Participant) createOffer(ctx context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return domain.SessionDescription{}, apperrors.NewNegotiation("offer", domain.ErrNegotiation)
	}
	offer, err := session.CreateOffer(ctx)
	if err != nil {
		return domain.SessionDescription{}, apperrors.NewNegotiation("offer", err)
	}
	if err := session.SetLocalDescription(offer); err != nil {
		return domain.SessionDescription{}, apperrors.NewNegotiation("set-local", err)
	}
	return offer, nil
}

func (p *Participant) createAnswer(ctx context.Context) (domain.SessionDescription, error) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return domain.SessionDescription{}, apperrors.NewNegotiation("answer", domain.ErrNegotiation)
	}
	answer, err := session.CreateAnswer(ctx)
	if err != nil {
		return domain.SessionDescription{}, apperrors.NewNegotiation("answer", err)
	}
	if err := session.SetLocalDescription(answer); err != nil {
		return domain.SessionDescription{}, apperrors.NewNegotiation("set-local", err)
	}
	return answer, nil
}

// OnMessage handles one inbound signaling message from this participant and
// forwards every message to the application handler afterwards.
func (p *Participant) OnMessage(msg *domain.Message) {
	p.mu.Lock()
	p.lastSignal = msg
	p.mu.Unlock()

	switch body := msg.Body.(type) {
	case *domain.AcceptedBody:
		p.onAccepted(msg, body)
	case *domain.CandidateBody:
		p.onCandidate(body)
	case *domain.NotAcceptedBody:
		if p.Status() == domain.ParticipantPending {
			_ = p.setStatus(domain.ParticipantMissed)
		} else {
			_ = p.setStatus(domain.ParticipantFailed)
		}
		p.Leave(false)
	case *domain.ByeBody:
		_ = p.setStatus(domain.ParticipantParticipated)
		p.Leave(false)
		p.conv.participantLeft(p)
	case *domain.UpdateBody:
		p.onUpdate(msg, body)
	case *domain.UpdatedBody:
		p.onUpdated(body)
	}

	p.conv.emitMessage(msg)
}

func (p *Participant) onAccepted(msg *domain.Message, body *domain.AcceptedBody) {
	if !body.ConnectionDescription.Empty() {
		p.mu.Lock()
		session := p.session
		p.mu.Unlock()
		if session != nil {
			if err := session.SetRemoteDescription(body.ConnectionDescription); err != nil {
				p.logger.Errorw("failed to apply remote answer",
					"rtc_identity", p.identity.RtcIdentity, "error", err)
				p.fail()
				return
			}
		}
		for _, c := range body.Constraints {
			p.addResource(NewResource(c, msg.From))
		}

		if p.conv.hostedByMe() {
			p.markConnected(msg.From)
		}
		if p.Status() == domain.ParticipantPending {
			_ = p.setStatus(domain.ParticipantAccepted)
		}
		_ = p.setStatus(domain.ParticipantParticipating)
		return
	}

	// Connectivity announcement from the host: peers listed as connected
	// that we do not know yet must be invited.
	p.conv.onConnectedAnnouncement(body.Connected)
}

// markConnected records a confirmed peer and announces the updated connected
// list exactly once per change.
func (p *Participant) markConnected(rtcIdentity string) {
	p.mu.Lock()
	for _, c := range p.connected {
		if c == rtcIdentity {
			p.mu.Unlock()
			return
		}
	}
	p.connected = append(p.connected, rtcIdentity)
	connected := make([]string, len(p.connected))
	copy(connected, p.connected)
	p.mu.Unlock()

	announcement := &domain.AcceptedBody{
		Connected: connected,
		From:      p.conv.myIdentity.RtcIdentity,
	}
	if err := p.SendSignal(context.Background(), announcement, domain.MessageAccepted); err != nil {
		p.logger.Warnw("connected announcement failed",
			"rtc_identity", p.identity.RtcIdentity, "error", err)
	}
}

func (p *Participant) onCandidate(body *domain.CandidateBody) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return
	}
	if body.LastCandidate {
		return
	}
	candidate := domain.ICECandidate{
		Candidate:     body.CandidateDescription,
		SDPMid:        body.ID,
		SDPMLineIndex: body.Label,
	}
	if err := session.AddICECandidate(candidate); err != nil {
		p.logger.Warnw("candidate rejected",
			"rtc_identity", p.identity.RtcIdentity, "error", err)
	}
}

func (p *Participant) onUpdate(msg *domain.Message, body *domain.UpdateBody) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil || body.NewConnectionDescription.Empty() {
		return
	}
	if err := session.SetRemoteDescription(body.NewConnectionDescription); err != nil {
		p.logger.Errorw("failed to apply update offer",
			"rtc_identity", p.identity.RtcIdentity, "error", err)
		return
	}
	for _, c := range body.NewConstraints {
		p.addResource(NewResource(c, msg.From))
	}
	reply := &domain.UpdatedBody{
		NewConstraints: domain.WireConstraints(body.NewConstraints),
		From:           p.conv.myIdentity.RtcIdentity,
	}
	if err := p.SendSignal(context.Background(), reply, domain.MessageUpdated); err != nil {
		p.logger.Warnw("update reply failed",
			"rtc_identity", p.identity.RtcIdentity, "error", err)
	}
}

func (p *Participant) onUpdated(body *domain.UpdatedBody) {
	if body.NewConnectionDescription.Empty() {
		return
	}
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return
	}
	if err := session.SetRemoteDescription(body.NewConnectionDescription); err != nil {
		p.logger.Errorw("failed to apply update answer",
			"rtc_identity", p.identity.RtcIdentity, "error", err)
	}
}

func (p *Participant) fail() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.CanTransition(domain.ParticipantFailed) {
		_ = p.setStatusLocked(domain.ParticipantFailed)
	}
}

// Leave tears the participant down: terminal status, listener removal, local
// stream release for the local peer, an optional BYE, and session close.
func (p *Participant) Leave(sendBye bool) {
	p.mu.Lock()
	if p.status.CanTransition(domain.ParticipantParticipated) {
		_ = p.setStatusLocked(domain.ParticipantParticipated)
	}
	session := p.session
	p.session = nil
	var resources []*Resource
	if p.local {
		resources = append(resources, p.resources...)
	}
	p.mu.Unlock()

	p.conv.removeListeners(p)

	for _, r := range resources {
		r.Stop()
	}

	if sendBye && !p.local {
		if err := p.sendSignal(context.Background(), &domain.ByeBody{}, domain.MessageBye); err != nil {
			p.logger.Debugw("bye not delivered",
				"rtc_identity", p.identity.RtcIdentity, "error", err)
		}
	}

	if session != nil {
		_ = session.Close()
	}
}
