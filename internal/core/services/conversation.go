package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
	apperrors "github.com/hftl-ims-research/wonder/pkg/errors"
)

// ConversationDeps bundles the collaborators a conversation needs.
type ConversationDeps struct {
	Idp        *IdentityProvider
	Engine     ports.MediaEngine
	Capture    ports.MediaCapture
	SessionCfg ports.SessionConfig
	Logger     *zap.SugaredLogger

	// OnMessage receives every signaling message seen by the conversation.
	OnMessage ports.MessageHandler
	// OnRTCEvent receives every media-engine event.
	OnRTCEvent ports.RTCEventHandler
}

// Conversation is the aggregate root of one multi-party session. It owns the
// local participant, one Participant per remote peer, and the data broker
// multiplexing their channels.
type Conversation struct {
	deps   ConversationDeps
	logger *zap.SugaredLogger

	myIdentity    *domain.Identity
	myParticipant *Participant
	broker        *DataBroker

	mu           sync.Mutex
	id           string
	subject      string
	hosting      string
	owner        *Participant
	status       domain.ConversationStatus
	participants []*Participant
}

// NewConversation builds an idle conversation for the local identity.
func NewConversation(myIdentity *domain.Identity, deps ConversationDeps) *Conversation {
	c := &Conversation{
		deps:       deps,
		logger:     deps.Logger,
		myIdentity: myIdentity,
		broker:     NewDataBroker(deps.Logger),
		status:     domain.ConversationCreated,
	}
	c.myParticipant = newParticipant(c, myIdentity, true)
	return c
}

// ID returns the conversation context id, empty until opened or accepted.
func (c *Conversation) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Status returns the aggregate state.
func (c *Conversation) Status() domain.ConversationStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// MyParticipant returns the local peer's participant.
func (c *Conversation) MyParticipant() *Participant { return c.myParticipant }

// Participants returns a snapshot of the remote participants.
func (c *Conversation) Participants() []*Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Participant, len(c.participants))
	copy(out, c.participants)
	return out
}

// Broker exposes the conversation's data broker.
func (c *Conversation) Broker() *DataBroker { return c.broker }

func (c *Conversation) setStatus(to domain.ConversationStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setStatusLocked(to)
}

func (c *Conversation) setStatusLocked(to domain.ConversationStatus) error {
	if !c.status.CanTransition(to) {
		return apperrors.NewIllegalTransition(string(c.status), string(to))
	}
	c.logger.Debugw("conversation status", "conversation_id", c.id, "from", c.status, "to", to)
	c.status = to
	return nil
}

func (c *Conversation) hostedByMe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hosting == c.myIdentity.RtcIdentity
}

func (c *Conversation) hostingIdentity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hosting
}

// Open starts a conversation towards the given peers: local capture, identity
// resolution, per-peer session setup and the invitation round.
func (c *Conversation) Open(ctx context.Context, peers []string, subject string, constraints []domain.ResourceConstraint) error {
	if len(peers) == 0 {
		apperrors.AmbiguousUsage("Open requires at least one peer")
	}

	c.mu.Lock()
	if err := c.setStatusLocked(domain.ConversationOpened); err != nil {
		c.mu.Unlock()
		return err
	}
	c.id = "context-" + uuid.NewString()
	c.subject = subject
	if c.hosting == "" {
		c.hosting = c.myIdentity.RtcIdentity
	}
	c.owner = c.myParticipant
	c.mu.Unlock()

	if err := c.createMyself(constraints); err != nil {
		return err
	}

	identities, err := c.deps.Idp.CreateIdentities(ctx, peers)
	if err != nil {
		return err
	}

	for _, identity := range identities {
		if err := c.invite(ctx, identity, peers, subject, constraints); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conversation) invite(ctx context.Context, identity *domain.Identity, peers []string, subject string, constraints []domain.ResourceConstraint) error {
	participant := newParticipant(c, identity, false)
	if err := c.createRemotePeer(participant, constraints); err != nil {
		return err
	}

	if c.hostedByMe() {
		// all signaling for hosted peers flows through the host's stub
		myStub, err := c.deps.Idp.StubFor(c.myIdentity)
		if err == nil {
			c.deps.Idp.BindStub(identity, myStub)
		}
	}

	stub, err := c.deps.Idp.StubFor(identity)
	if err != nil {
		return err
	}
	stub.AddListener(participant, identity.RtcIdentity, c.ID())
	if err := stub.Connect(ctx, c.myIdentity.RtcIdentity, c.myIdentity.Credentials); err != nil {
		return err
	}

	c.mu.Lock()
	c.participants = append(c.participants, participant)
	hosting := c.hosting
	c.mu.Unlock()

	invitation := &domain.InvitationBody{
		Subject:     subject,
		Hosting:     hosting,
		Peers:       withoutIdentity(peers, identity.RtcIdentity),
		Constraints: constraints,
	}
	return participant.SendSignal(ctx, invitation, domain.MessageInvitation)
}

// AcceptInvitation joins a conversation from a received invitation. Only the
// literal sender gets the negotiation exchange; other listed peers become
// placeholder participants that will invite us themselves.
func (c *Conversation) AcceptInvitation(ctx context.Context, invitation *domain.Message, constraints []domain.ResourceConstraint) error {
	body, ok := invitation.Body.(*domain.InvitationBody)
	if !ok {
		apperrors.AmbiguousUsage("AcceptInvitation requires an invitation message")
	}

	c.mu.Lock()
	if err := c.setStatusLocked(domain.ConversationOpened); err != nil {
		c.mu.Unlock()
		return err
	}
	c.id = invitation.ContextID
	c.subject = body.Subject
	c.hosting = body.Hosting
	if c.hosting == "" {
		c.hosting = invitation.From
	}
	c.mu.Unlock()

	if constraints == nil {
		constraints = domain.MirrorConstraints(body.Constraints)
	}
	// data codec ids come from the inviter so frames multiplex correctly
	constraints = adoptDataIDs(constraints, body.Constraints)

	if err := c.createMyself(constraints); err != nil {
		return err
	}

	inviter, err := c.deps.Idp.CreateIdentity(ctx, invitation.From)
	if err != nil {
		return err
	}
	sender := newParticipant(c, inviter, false)
	_ = sender.setStatus(domain.ParticipantWaiting)
	if err := c.createRemotePeer(sender, constraints); err != nil {
		return err
	}
	sender.mu.Lock()
	sender.lastSignal = invitation
	session := sender.session
	sender.mu.Unlock()
	if session != nil && !body.ConnectionDescription.Empty() {
		if err := session.SetRemoteDescription(body.ConnectionDescription); err != nil {
			return apperrors.NewNegotiation("set-remote", err)
		}
	}

	stub, err := c.deps.Idp.StubFor(inviter)
	if err != nil {
		return err
	}
	stub.AddListener(sender, inviter.RtcIdentity, c.ID())
	if err := stub.Connect(ctx, c.myIdentity.RtcIdentity, c.myIdentity.Credentials); err != nil {
		return err
	}

	c.mu.Lock()
	c.owner = sender
	c.participants = append(c.participants, sender)
	hosting := c.hosting
	c.mu.Unlock()

	// peers beyond the sender join through their own invitations
	for _, peer := range body.Peers {
		if peer == c.myIdentity.RtcIdentity || peer == invitation.From {
			continue
		}
		identity, err := c.deps.Idp.CreateIdentity(ctx, peer)
		if err != nil {
			c.logger.Warnw("listed peer unresolvable", "rtc_identity", peer, "error", err)
			continue
		}
		if hosting == inviter.RtcIdentity {
			c.deps.Idp.BindStub(identity, stub)
		}
		placeholder := newParticipant(c, identity, false)
		stubForPeer, err := c.deps.Idp.StubFor(identity)
		if err == nil {
			stubForPeer.AddListener(placeholder, identity.RtcIdentity, c.ID())
		}
		c.mu.Lock()
		c.participants = append(c.participants, placeholder)
		c.mu.Unlock()
	}

	accepted := &domain.AcceptedBody{
		Constraints: domain.WireConstraints(constraints),
		From:        c.myIdentity.RtcIdentity,
	}
	if err := sender.SendSignal(ctx, accepted, domain.MessageAccepted); err != nil {
		return err
	}
	_ = sender.setStatus(domain.ParticipantParticipating)
	return c.setStatus(domain.ConversationActive)
}

// Reject declines an invitation without building any session state.
func (c *Conversation) Reject(ctx context.Context, invitation *domain.Message, reason domain.NotAcceptedReason) error {
	inviter, err := c.deps.Idp.CreateIdentity(ctx, invitation.From)
	if err != nil {
		return err
	}
	stub, err := c.deps.Idp.StubFor(inviter)
	if err != nil {
		return err
	}
	if err := stub.Connect(ctx, c.myIdentity.RtcIdentity, c.myIdentity.Credentials); err != nil {
		return err
	}
	reply := domain.NewReply(&domain.NotAcceptedBody{Reason: reason}, invitation,
		domain.MessageNotAccepted, c.myIdentity.RtcIdentity)
	return stub.SendMessage(reply)
}

// createMyself captures local media and creates codecs for the local
// participant's constraints. Audio and video requests collapse into a single
// capture call.
func (c *Conversation) createMyself(constraints []domain.ResourceConstraint) error {
	var mediaWants domain.MediaConstraints
	needCapture := false

	for i := range constraints {
		constraint := &constraints[i]
		if constraint.ID == "" {
			constraint.ID = uuid.NewString()
		}

		switch {
		case constraint.Type.IsMedia():
			if constraint.Direction == domain.DirectionIn {
				continue
			}
			needCapture = true
			switch constraint.Type {
			case domain.ResourceAudioVideo:
				mediaWants.Audio = true
				mediaWants.Video = true
			case domain.ResourceAudioMic:
				mediaWants.Audio = true
			case domain.ResourceVideoCam:
				mediaWants.Video = true
			case domain.ResourceScreen:
				mediaWants.Screen = true
			}

		case constraint.Type.IsData():
			codec := newCodecWithID(constraint.ID, constraint.Type, c.broker)
			c.broker.AddCodec(codec)
			resource := NewResource(*constraint, c.myIdentity.RtcIdentity)
			resource.Codec = codec
			c.myParticipant.addResource(resource)
		}
	}

	if !needCapture {
		return nil
	}
	if c.deps.Capture == nil {
		return apperrors.NewNegotiation("capture", domain.ErrNegotiation)
	}
	stream, err := c.deps.Capture.GetUserMedia(mediaWants)
	if err != nil {
		return apperrors.NewNegotiation("capture", err)
	}

	for _, constraint := range constraints {
		if !constraint.Type.IsMedia() || constraint.Direction == domain.DirectionIn {
			continue
		}
		resource := NewResource(constraint, c.myIdentity.RtcIdentity)
		resource.Stream = stream
		c.myParticipant.addResource(resource)
	}
	return nil
}

// createRemotePeer builds the media session towards one peer, reusing the
// locally captured streams and sharing a single data channel across data
// codecs.
func (c *Conversation) createRemotePeer(participant *Participant, constraints []domain.ResourceConstraint) error {
	session, err := c.deps.Engine.CreateSession(c.deps.SessionCfg)
	if err != nil {
		return apperrors.NewNegotiation("create-session", err)
	}
	participant.attachSession(session)

	dataChannelCreated := false
	for _, constraint := range constraints {
		switch {
		case constraint.Type.IsMedia():
			if constraint.Direction != domain.DirectionIn {
				if local, ok := c.localStreamFor(constraint); ok {
					if err := session.AddStream(local); err != nil {
						return apperrors.NewNegotiation("add-stream", err)
					}
				}
			}
			if constraint.Direction != domain.DirectionOut {
				participant.addResource(NewResource(constraint, participant.identity.RtcIdentity))
			}

		case constraint.Type.IsData():
			if !dataChannelCreated {
				channel, err := session.CreateDataChannel("wonder-data")
				if err != nil {
					return apperrors.NewNegotiation("data-channel", err)
				}
				c.broker.AddChannel(participant.identity.RtcIdentity, channel)
				dataChannelCreated = true
			}
			if constraint.Direction != domain.DirectionOut {
				participant.addResource(NewResource(constraint, participant.identity.RtcIdentity))
			}
		}
	}
	return nil
}

func (c *Conversation) localStreamFor(constraint domain.ResourceConstraint) (ports.MediaStream, bool) {
	for _, r := range c.myParticipant.Resources() {
		if r.Constraint.ID == constraint.ID && r.Stream != nil {
			return r.Stream, true
		}
	}
	for _, r := range c.myParticipant.Resources() {
		if r.Constraint.Type == constraint.Type && r.Stream != nil {
			return r.Stream, true
		}
	}
	return nil, false
}

// SendMessage delivers an application-level message. When a host is set and
// it is not us, the message goes out exactly once through the host; otherwise
// it fans out to the targeted participants.
func (c *Conversation) SendMessage(ctx context.Context, body domain.Body, t domain.MessageType, to []string) error {
	c.mu.Lock()
	hosting := c.hosting
	participants := make([]*Participant, len(c.participants))
	copy(participants, c.participants)
	c.mu.Unlock()

	if hosting != "" && hosting != c.myIdentity.RtcIdentity {
		host, ok := c.participantFor(hosting)
		if !ok {
			return apperrors.NewNotFound("hosting participant")
		}
		msg := domain.NewMessage(c.myIdentity.RtcIdentity, to, body, t, c.ID())
		return c.send(host, msg)
	}

	for _, p := range participants {
		if len(to) > 0 && !containsIdentity(to, p.identity.RtcIdentity) {
			continue
		}
		msg := domain.NewMessage(c.myIdentity.RtcIdentity,
			[]string{p.identity.RtcIdentity}, body, t, c.ID())
		if err := c.send(p, msg); err != nil {
			return err
		}
	}
	return nil
}

// AddResource negotiates a new resource into the running conversation. With
// no triggering message the change cascades sequentially to every
// participant; with one, only the sender is renegotiated.
func (c *Conversation) AddResource(ctx context.Context, constraint domain.ResourceConstraint, msg *domain.Message) error {
	if constraint.ID == "" {
		constraint.ID = uuid.NewString()
	}
	if err := c.createMyself([]domain.ResourceConstraint{constraint}); err != nil {
		return err
	}

	update := &domain.UpdateBody{
		NewConstraints: []domain.ResourceConstraint{constraint},
		Hosting:        c.hostingIdentity(),
	}

	if msg != nil {
		sender, ok := c.participantFor(msg.From)
		if !ok {
			return apperrors.NewNotFound("participant")
		}
		return sender.SendSignal(ctx, update, domain.MessageUpdate)
	}

	// one peer at a time: each UPDATE must finish before the next starts
	for _, p := range c.Participants() {
		if p.Status() != domain.ParticipantParticipating {
			continue
		}
		u := &domain.UpdateBody{
			NewConstraints: []domain.ResourceConstraint{constraint},
			Hosting:        c.hostingIdentity(),
		}
		if err := p.SendSignal(ctx, u, domain.MessageUpdate); err != nil {
			return err
		}
	}
	return nil
}

// RemoveResource withdraws a previously negotiated resource and announces the
// removal.
func (c *Conversation) RemoveResource(ctx context.Context, constraintID string) error {
	resource, ok := findResource(c.myParticipant.Resources(), constraintID)
	if !ok {
		return apperrors.NewNotFound("resource")
	}
	resource.Stop()

	removed := &domain.ResourceRemovedBody{
		Constraints: []domain.ResourceConstraint{resource.Constraint},
	}
	return c.SendMessage(ctx, removed, domain.MessageResourceRemoved, nil)
}

// Close ends the conversation. Only the owner may close; a non-owner call
// reports false and leaves all state untouched.
func (c *Conversation) Close() bool {
	c.mu.Lock()
	if c.owner != c.myParticipant {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	for _, p := range c.Participants() {
		p.Leave(true)
	}
	c.teardown()
	return true
}

// Bye leaves the conversation regardless of ownership.
func (c *Conversation) Bye() {
	for _, p := range c.Participants() {
		p.Leave(true)
	}
	c.teardown()
}

func (c *Conversation) teardown() {
	c.myParticipant.Leave(false)
	c.mu.Lock()
	c.participants = nil
	if c.status.CanTransition(domain.ConversationClosed) {
		_ = c.setStatusLocked(domain.ConversationClosed)
	}
	c.mu.Unlock()
}

// participantLeft prunes a departed participant. A BYE from the host tears
// the whole conversation down; otherwise the conversation closes itself once
// the last peer is gone.
func (c *Conversation) participantLeft(p *Participant) {
	c.mu.Lock()
	hosting := c.hosting
	c.mu.Unlock()

	if p.identity.RtcIdentity == hosting && hosting != c.myIdentity.RtcIdentity {
		for _, other := range c.Participants() {
			if other != p {
				other.Leave(false)
			}
		}
		c.teardown()
		return
	}

	c.mu.Lock()
	kept := c.participants[:0]
	for _, other := range c.participants {
		if other == p {
			continue
		}
		kept = append(kept, other)
	}
	c.participants = kept
	empty := len(c.participants) == 0
	c.mu.Unlock()

	if empty {
		c.teardown()
	}
}

// onConnectedAnnouncement invites peers the host reports as connected that we
// have no participant for yet.
func (c *Conversation) onConnectedAnnouncement(connected []string) {
	for _, peer := range connected {
		if peer == c.myIdentity.RtcIdentity {
			continue
		}
		if _, ok := c.participantFor(peer); ok {
			continue
		}
		ctx := context.Background()
		identity, err := c.deps.Idp.CreateIdentity(ctx, peer)
		if err != nil {
			c.logger.Warnw("connected peer unresolvable", "rtc_identity", peer, "error", err)
			continue
		}
		if err := c.invite(ctx, identity, connected, c.subject, c.myConstraints()); err != nil {
			c.logger.Warnw("late invitation failed", "rtc_identity", peer, "error", err)
		}
	}
}

func (c *Conversation) myConstraints() []domain.ResourceConstraint {
	resources := c.myParticipant.Resources()
	out := make([]domain.ResourceConstraint, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.Constraint)
	}
	return out
}

func (c *Conversation) participantFor(rtcIdentity string) (*Participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.participants {
		if p.identity.RtcIdentity == rtcIdentity {
			return p, true
		}
	}
	return nil, false
}

func (c *Conversation) send(p *Participant, msg *domain.Message) error {
	stub, err := c.deps.Idp.StubFor(p.identity)
	if err != nil {
		return err
	}
	return stub.SendMessage(msg)
}

func (c *Conversation) removeListeners(p *Participant) {
	stub, err := c.deps.Idp.StubFor(p.identity)
	if err != nil {
		return
	}
	stub.RemoveListener(nil, p.identity.RtcIdentity, "")
}

func (c *Conversation) emitMessage(msg *domain.Message) {
	if c.deps.OnMessage != nil {
		c.deps.OnMessage(msg)
	}
}

func (c *Conversation) emitRTC(event ports.RTCEvent) {
	if c.deps.OnRTCEvent != nil {
		c.deps.OnRTCEvent(event)
	}
}

func withoutIdentity(peers []string, exclude string) []string {
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != exclude {
			out = append(out, p)
		}
	}
	return out
}

func containsIdentity(peers []string, identity string) bool {
	for _, p := range peers {
		if p == identity {
			return true
		}
	}
	return false
}

// adoptDataIDs copies the inviter's ids onto our data constraints so both
// sides multiplex with the same codec ids.
func adoptDataIDs(mine, theirs []domain.ResourceConstraint) []domain.ResourceConstraint {
	for i := range mine {
		if !mine[i].Type.IsData() || mine[i].ID != "" {
			continue
		}
		for _, t := range theirs {
			if t.Type == mine[i].Type {
				mine[i].ID = t.ID
				break
			}
		}
	}
	return mine
}
