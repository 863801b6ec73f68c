package services

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
)

// PresenceService publishes the local identity's presence and tracks the
// presence of subscribed peers via CONTEXT / SUBSCRIBE signaling.
type PresenceService struct {
	idp        *IdentityProvider
	myIdentity *domain.Identity
	logger     *zap.SugaredLogger

	mu          sync.Mutex
	subscribers []string
	watched     map[string]domain.IdentityStatus
	handlers    []func(rtcIdentity string, status domain.IdentityStatus)
}

// NewPresenceService builds a presence service for the local identity.
func NewPresenceService(idp *IdentityProvider, myIdentity *domain.Identity, logger *zap.SugaredLogger) *PresenceService {
	return &PresenceService{
		idp:        idp,
		myIdentity: myIdentity,
		logger:     logger,
		watched:    make(map[string]domain.IdentityStatus),
	}
}

// OnPresence registers a callback fired on every tracked presence change.
func (s *PresenceService) OnPresence(fn func(rtcIdentity string, status domain.IdentityStatus)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

// Announce publishes the local presence to every subscriber. The login flag
// marks the first announcement of a session.
func (s *PresenceService) Announce(ctx context.Context, status domain.IdentityStatus, login bool) error {
	s.myIdentity.Presence = status

	s.mu.Lock()
	subscribers := make([]string, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	body := &domain.ContextBody{Presence: status, Login: login}
	for _, subscriber := range subscribers {
		identity, err := s.idp.CreateIdentity(ctx, subscriber)
		if err != nil {
			s.logger.Warnw("presence target unresolvable", "rtc_identity", subscriber, "error", err)
			continue
		}
		stub, err := s.idp.StubFor(identity)
		if err != nil {
			continue
		}
		if err := stub.Connect(ctx, s.myIdentity.RtcIdentity, s.myIdentity.Credentials); err != nil {
			continue
		}
		msg := domain.NewMessage(s.myIdentity.RtcIdentity,
			[]string{subscriber}, body, domain.MessageContext, identity.SubscriptionContext)
		if err := stub.SendMessage(msg); err != nil {
			s.logger.Warnw("presence announcement failed", "rtc_identity", subscriber, "error", err)
		}
	}
	return nil
}

// Subscribe asks a peer to report its presence to us. The peer's identity is
// tagged with a fresh subscription context so its CONTEXT traffic routes to
// this service.
func (s *PresenceService) Subscribe(ctx context.Context, rtcIdentity string, kind domain.SubscriptionType) error {
	identity, err := s.idp.CreateIdentity(ctx, rtcIdentity)
	if err != nil {
		return err
	}
	if identity.SubscriptionContext == "" {
		identity.SubscriptionContext = "presence-" + uuid.NewString()
	}

	stub, err := s.idp.StubFor(identity)
	if err != nil {
		return err
	}
	stub.AddListener(MessageListenerFunc(s.onMessage), rtcIdentity, identity.SubscriptionContext)
	if err := stub.Connect(ctx, s.myIdentity.RtcIdentity, s.myIdentity.Credentials); err != nil {
		return err
	}

	msg := domain.NewMessage(s.myIdentity.RtcIdentity, []string{rtcIdentity},
		&domain.SubscribeBody{Subscription: kind}, domain.MessageSubscribe,
		identity.SubscriptionContext)
	return stub.SendMessage(msg)
}

// HandleSubscribe registers an inbound subscriber so future announcements
// reach it.
func (s *PresenceService) HandleSubscribe(msg *domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subscribers {
		if existing == msg.From {
			return
		}
	}
	s.subscribers = append(s.subscribers, msg.From)
	s.logger.Infow("presence subscriber added", "rtc_identity", msg.From)
}

// Watched returns the last known presence of a subscribed peer.
func (s *PresenceService) Watched(rtcIdentity string) (domain.IdentityStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.watched[rtcIdentity]
	return status, ok
}

func (s *PresenceService) onMessage(msg *domain.Message) {
	switch body := msg.Body.(type) {
	case *domain.ContextBody:
		s.mu.Lock()
		s.watched[msg.From] = body.Presence
		handlers := make([]func(string, domain.IdentityStatus), len(s.handlers))
		copy(handlers, s.handlers)
		s.mu.Unlock()

		if identity, ok := s.idp.Identity(msg.From); ok {
			identity.Presence = body.Presence
		}
		for _, fn := range handlers {
			fn(msg.From, body.Presence)
		}
	case *domain.SubscribeBody:
		s.HandleSubscribe(msg)
	}
}
