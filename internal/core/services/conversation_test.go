package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
)

type convFixture struct {
	directory *fakeDirectory
	factory   *fakeFactory
	idp       *IdentityProvider
	engine    *fakeEngine
	capture   *fakeCapture
	me        *domain.Identity
	conv      *Conversation
}

// newConvFixture resolves "me" and registers every peer on its own selector.
func newConvFixture(t *testing.T, me string, peers map[string]string) *convFixture {
	t.Helper()

	directory := newFakeDirectory()
	factory := newFakeFactory()
	directory.put(me, "relay-me")
	factory.add("relay-me")
	for peer, selector := range peers {
		directory.put(peer, selector)
		factory.add(selector)
	}

	logger := zaptest.NewLogger(t).Sugar()
	idp := NewIdentityProvider(directory, factory, logger, IdentityProviderOptions{
		ResolveAttempts: 3,
		ResolveInterval: 5 * time.Millisecond,
	})

	myIdentity, err := idp.CreateIdentity(context.Background(), me)
	require.NoError(t, err)

	engine := &fakeEngine{}
	capture := &fakeCapture{}
	conv := NewConversation(myIdentity, ConversationDeps{
		Idp:     idp,
		Engine:  engine,
		Capture: capture,
		Logger:  logger,
	})

	return &convFixture{
		directory: directory,
		factory:   factory,
		idp:       idp,
		engine:    engine,
		capture:   capture,
		me:        myIdentity,
		conv:      conv,
	}
}

func defaultConstraints() []domain.ResourceConstraint {
	return []domain.ResourceConstraint{
		{Type: domain.ResourceAudioVideo, Direction: domain.DirectionInOut,
			Constraints: &domain.MediaConstraints{Audio: true, Video: true}},
		{Type: domain.ResourceChat, Direction: domain.DirectionInOut},
	}
}

func messagesOfType(msgs []*domain.Message, t domain.MessageType) []*domain.Message {
	var out []*domain.Message
	for _, m := range msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func TestOpenSendsInvitationsWithOffer(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example": "relay-b",
	})

	err := f.conv.Open(context.Background(), []string{"bob@b.example"}, "standup", defaultConstraints())
	require.NoError(t, err)

	assert.Contains(t, f.conv.ID(), "context-")
	assert.Equal(t, domain.ConversationOpened, f.conv.Status())

	// as host, alice routes bob's signaling through her own stub
	sent := f.factory.transport("relay-me").sentMessages()
	invitations := messagesOfType(sent, domain.MessageInvitation)
	require.Len(t, invitations, 1)

	body, ok := invitations[0].Body.(*domain.InvitationBody)
	require.True(t, ok)
	assert.Equal(t, "standup", body.Subject)
	assert.Equal(t, "alice@a.example", body.Hosting)
	assert.Equal(t, "v=0 offer", body.ConnectionDescription.SDP)
	for _, c := range body.Constraints {
		assert.Nil(t, c.Constraints, "capture constraints never go on the wire")
	}

	require.Len(t, f.conv.Participants(), 1)
	assert.Equal(t, domain.ParticipantPending, f.conv.Participants()[0].Status())

	// one capture call covers audio and video together
	assert.Equal(t, 1, f.capture.callCount())

	// the offer is the local description of bob's session
	session := f.engine.session(0)
	require.NotNil(t, session)
	assert.Equal(t, "v=0 offer", session.LocalDescription().SDP)
	assert.NotNil(t, session.channel, "chat constraint creates a data channel")
}

func TestOpenInvitesResolvablePeers(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example": "relay-b",
	})

	// ghost never resolves; bob must still be invited
	err := f.conv.Open(context.Background(),
		[]string{"ghost@g.example", "bob@b.example"}, "standup", defaultConstraints())
	require.NoError(t, err)

	sent := f.factory.transport("relay-me").sentMessages()
	invitations := messagesOfType(sent, domain.MessageInvitation)
	require.Len(t, invitations, 1)
	assert.Equal(t, []string{"bob@b.example"}, invitations[0].To)

	require.Len(t, f.conv.Participants(), 1)
	assert.Equal(t, "bob@b.example", f.conv.Participants()[0].Identity().RtcIdentity)
}

func TestAcceptInvitationAnswersSender(t *testing.T) {
	f := newConvFixture(t, "bob@b.example", map[string]string{
		"alice@a.example": "relay-a",
	})

	invitation := domain.NewMessage("alice@a.example", []string{"bob@b.example"},
		&domain.InvitationBody{
			Subject: "standup",
			Hosting: "alice@a.example",
			Constraints: []domain.ResourceConstraint{
				{ID: "m1", Type: domain.ResourceAudioVideo, Direction: domain.DirectionInOut},
				{ID: "c1", Type: domain.ResourceChat, Direction: domain.DirectionInOut},
			},
			ConnectionDescription: domain.SessionDescription{Type: "offer", SDP: "v=0 offer"},
		},
		domain.MessageInvitation, "context-42")

	err := f.conv.AcceptInvitation(context.Background(), invitation, nil)
	require.NoError(t, err)

	assert.Equal(t, "context-42", f.conv.ID())
	assert.Equal(t, domain.ConversationActive, f.conv.Status())

	session := f.engine.session(0)
	require.NotNil(t, session)
	assert.Equal(t, "v=0 offer", session.remoteDescription().SDP)

	sent := f.factory.transport("relay-a").sentMessages()
	accepted := messagesOfType(sent, domain.MessageAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, []string{"alice@a.example"}, accepted[0].To)
	assert.Equal(t, "context-42", accepted[0].ContextID)

	body, ok := accepted[0].Body.(*domain.AcceptedBody)
	require.True(t, ok)
	assert.Equal(t, "v=0 answer", body.ConnectionDescription.SDP)

	// the inviter's codec id is adopted for our chat codec
	_, ok = f.conv.Broker().Codec("c1")
	assert.True(t, ok)

	require.Len(t, f.conv.Participants(), 1)
	assert.Equal(t, domain.ParticipantParticipating, f.conv.Participants()[0].Status())
}

func TestHostAnnouncesConnectedPeers(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example": "relay-b",
	})
	require.NoError(t, f.conv.Open(context.Background(),
		[]string{"bob@b.example"}, "", defaultConstraints()))

	bob := f.conv.Participants()[0]
	answer := domain.NewMessage("bob@b.example", []string{"alice@a.example"},
		&domain.AcceptedBody{
			ConnectionDescription: domain.SessionDescription{Type: "answer", SDP: "v=0 answer"},
		},
		domain.MessageAccepted, f.conv.ID())
	bob.OnMessage(answer)

	assert.Equal(t, domain.ParticipantParticipating, bob.Status())
	assert.Equal(t, "v=0 answer", f.engine.session(0).remoteDescription().SDP)

	sent := f.factory.transport("relay-me").sentMessages()
	announcements := messagesOfType(sent, domain.MessageAccepted)
	require.Len(t, announcements, 1)
	body, ok := announcements[0].Body.(*domain.AcceptedBody)
	require.True(t, ok)
	assert.True(t, body.ConnectionDescription.Empty(), "announcement carries no SDP")
	assert.Equal(t, []string{"bob@b.example"}, body.Connected)

	// a duplicate answer does not re-announce
	bob.OnMessage(answer)
	sent = f.factory.transport("relay-me").sentMessages()
	assert.Len(t, messagesOfType(sent, domain.MessageAccepted), 1)
}

func TestConnectedAnnouncementTriggersInvitations(t *testing.T) {
	f := newConvFixture(t, "bob@b.example", map[string]string{
		"alice@a.example": "relay-a",
		"carol@c.example": "relay-c",
	})

	invitation := domain.NewMessage("alice@a.example", []string{"bob@b.example"},
		&domain.InvitationBody{
			Hosting: "alice@a.example",
			Constraints: []domain.ResourceConstraint{
				{ID: "c1", Type: domain.ResourceChat, Direction: domain.DirectionInOut},
			},
			ConnectionDescription: domain.SessionDescription{Type: "offer", SDP: "v=0 offer"},
		},
		domain.MessageInvitation, "context-7")
	require.NoError(t, f.conv.AcceptInvitation(context.Background(), invitation, nil))

	alice := f.conv.Participants()[0]
	alice.OnMessage(domain.NewMessage("alice@a.example", []string{"bob@b.example"},
		&domain.AcceptedBody{Connected: []string{"bob@b.example", "carol@c.example"}},
		domain.MessageAccepted, "context-7"))

	// carol is connected at the host but unknown here: bob invites her
	_, ok := f.conv.participantFor("carol@c.example")
	require.True(t, ok)
	sent := f.factory.transport("relay-c").sentMessages()
	require.Len(t, messagesOfType(sent, domain.MessageInvitation), 1)
}

func TestCloseIsOwnerOnly(t *testing.T) {
	f := newConvFixture(t, "bob@b.example", map[string]string{
		"alice@a.example": "relay-a",
	})
	invitation := domain.NewMessage("alice@a.example", []string{"bob@b.example"},
		&domain.InvitationBody{
			Constraints: []domain.ResourceConstraint{
				{ID: "c1", Type: domain.ResourceChat, Direction: domain.DirectionInOut},
			},
			ConnectionDescription: domain.SessionDescription{Type: "offer", SDP: "v=0 offer"},
		},
		domain.MessageInvitation, "context-9")
	require.NoError(t, f.conv.AcceptInvitation(context.Background(), invitation, nil))

	assert.False(t, f.conv.Close(), "only the owner may close")
	assert.Equal(t, domain.ConversationActive, f.conv.Status())
	assert.Len(t, f.conv.Participants(), 1, "state untouched after refused close")
}

func TestOwnerCloseSendsByes(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example": "relay-b",
	})
	require.NoError(t, f.conv.Open(context.Background(),
		[]string{"bob@b.example"}, "", defaultConstraints()))

	assert.True(t, f.conv.Close())
	assert.Equal(t, domain.ConversationClosed, f.conv.Status())
	assert.Empty(t, f.conv.Participants())

	sent := f.factory.transport("relay-me").sentMessages()
	assert.Len(t, messagesOfType(sent, domain.MessageBye), 1)
	assert.True(t, f.engine.session(0).closed)
}

func TestByeFromHostTearsDown(t *testing.T) {
	f := newConvFixture(t, "bob@b.example", map[string]string{
		"alice@a.example": "relay-a",
	})
	invitation := domain.NewMessage("alice@a.example", []string{"bob@b.example"},
		&domain.InvitationBody{
			Hosting: "alice@a.example",
			Constraints: []domain.ResourceConstraint{
				{ID: "c1", Type: domain.ResourceChat, Direction: domain.DirectionInOut},
			},
			ConnectionDescription: domain.SessionDescription{Type: "offer", SDP: "v=0 offer"},
		},
		domain.MessageInvitation, "context-11")
	require.NoError(t, f.conv.AcceptInvitation(context.Background(), invitation, nil))

	alice := f.conv.Participants()[0]
	alice.OnMessage(domain.NewMessage("alice@a.example", []string{"bob@b.example"},
		&domain.ByeBody{}, domain.MessageBye, "context-11"))

	assert.Equal(t, domain.ConversationClosed, f.conv.Status())
	assert.Empty(t, f.conv.Participants())
	assert.Equal(t, domain.ParticipantParticipated, alice.Status())
}

func TestAddResourceCascadesToEveryParticipant(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example":   "relay-b",
		"carol@c.example": "relay-c",
	})
	require.NoError(t, f.conv.Open(context.Background(),
		[]string{"bob@b.example", "carol@c.example"}, "", defaultConstraints()))

	for i, p := range f.conv.Participants() {
		p.OnMessage(domain.NewMessage(p.Identity().RtcIdentity, []string{"alice@a.example"},
			&domain.AcceptedBody{
				ConnectionDescription: domain.SessionDescription{Type: "answer", SDP: "v=0 answer"},
			},
			domain.MessageAccepted, f.conv.ID()))
		require.Equal(t, domain.ParticipantParticipating, p.Status(), "participant %d", i)
	}

	err := f.conv.AddResource(context.Background(),
		domain.ResourceConstraint{Type: domain.ResourceFile, Direction: domain.DirectionInOut}, nil)
	require.NoError(t, err)

	sent := f.factory.transport("relay-me").sentMessages()
	updates := messagesOfType(sent, domain.MessageUpdate)
	require.Len(t, updates, 2, "one update per participating peer")
	for _, u := range updates {
		body, ok := u.Body.(*domain.UpdateBody)
		require.True(t, ok)
		assert.Equal(t, "v=0 offer", body.NewConnectionDescription.SDP)
		require.Len(t, body.NewConstraints, 1)
		assert.Equal(t, domain.ResourceFile, body.NewConstraints[0].Type)
	}
}

func TestCandidateHandling(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example": "relay-b",
	})
	require.NoError(t, f.conv.Open(context.Background(),
		[]string{"bob@b.example"}, "", defaultConstraints()))

	bob := f.conv.Participants()[0]
	bob.OnMessage(domain.NewMessage("bob@b.example", []string{"alice@a.example"},
		&domain.CandidateBody{Label: 0, ID: "0", CandidateDescription: "candidate:1 udp"},
		domain.MessageConnectivityCandidate, f.conv.ID()))

	session := f.engine.session(0)
	require.Len(t, session.candidates, 1)
	assert.Equal(t, "candidate:1 udp", session.candidates[0].Candidate)

	// the last-candidate marker is not a candidate
	bob.OnMessage(domain.NewMessage("bob@b.example", []string{"alice@a.example"},
		&domain.CandidateBody{LastCandidate: true},
		domain.MessageConnectivityCandidate, f.conv.ID()))
	assert.Len(t, session.candidates, 1)
}

func TestLocalCandidatesAreSignaled(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example": "relay-b",
	})
	require.NoError(t, f.conv.Open(context.Background(),
		[]string{"bob@b.example"}, "", defaultConstraints()))

	session := f.engine.session(0)
	session.emit(ports.RTCEvent{
		Kind:      ports.EventICECandidate,
		Candidate: &domain.ICECandidate{Candidate: "candidate:9 udp", SDPMid: "0"},
	})

	sent := f.factory.transport("relay-me").sentMessages()
	candidates := messagesOfType(sent, domain.MessageConnectivityCandidate)
	require.Len(t, candidates, 1)
	body, ok := candidates[0].Body.(*domain.CandidateBody)
	require.True(t, ok)
	assert.Equal(t, "candidate:9 udp", body.CandidateDescription)

	session.emit(ports.RTCEvent{Kind: ports.EventEndOfCandidates})
	sent = f.factory.transport("relay-me").sentMessages()
	candidates = messagesOfType(sent, domain.MessageConnectivityCandidate)
	require.Len(t, candidates, 2)
	last := candidates[1].Body.(*domain.CandidateBody)
	assert.True(t, last.LastCandidate)
	assert.Equal(t, "v=0 offer", last.ConnectionDescription.SDP)
}

func TestNotAcceptedEndsParticipant(t *testing.T) {
	f := newConvFixture(t, "alice@a.example", map[string]string{
		"bob@b.example": "relay-b",
	})
	require.NoError(t, f.conv.Open(context.Background(),
		[]string{"bob@b.example"}, "", defaultConstraints()))

	bob := f.conv.Participants()[0]
	bob.OnMessage(domain.NewMessage("bob@b.example", []string{"alice@a.example"},
		&domain.NotAcceptedBody{Reason: domain.NotAcceptedBusy},
		domain.MessageNotAccepted, f.conv.ID()))

	// a declined invitation ends in MISSED, the terminal state reachable
	// from PENDING
	assert.Equal(t, domain.ParticipantMissed, bob.Status())
	assert.True(t, f.engine.session(0).closed)
}

func TestRejectSendsNotAccepted(t *testing.T) {
	f := newConvFixture(t, "bob@b.example", map[string]string{
		"alice@a.example": "relay-a",
	})

	invitation := domain.NewMessage("alice@a.example", []string{"bob@b.example"},
		&domain.InvitationBody{Subject: "spam"},
		domain.MessageInvitation, "context-13")

	require.NoError(t, f.conv.Reject(context.Background(), invitation, domain.NotAcceptedRejected))

	sent := f.factory.transport("relay-a").sentMessages()
	rejections := messagesOfType(sent, domain.MessageNotAccepted)
	require.Len(t, rejections, 1)
	assert.Equal(t, []string{"alice@a.example"}, rejections[0].To)
	body := rejections[0].Body.(*domain.NotAcceptedBody)
	assert.Equal(t, domain.NotAcceptedRejected, body.Reason)
}
