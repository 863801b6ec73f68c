package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
	apperrors "github.com/hftl-ims-research/wonder/pkg/errors"
)

// MessageListener consumes signaling messages dispatched by a MessagingStub.
// Listeners are compared by identity when deduplicating registrations.
type MessageListener interface {
	OnMessage(msg *domain.Message)
}

// MessageListenerFunc adapts a function to the MessageListener interface.
// Two distinct MessageListenerFunc values never compare equal even when they
// wrap the same function, so callers that need dedup must keep the adapter.
type MessageListenerFunc func(msg *domain.Message)

func (f MessageListenerFunc) OnMessage(msg *domain.Message) { f(msg) }

type listenerRegistration struct {
	listener    MessageListener
	rtcIdentity string
	contextID   string
}

const stubBufferSize = 256

// MessagingStub fronts one transport connection and routes inbound messages
// to registered listeners. Identities sharing a transport selector share one
// stub; a stub outlives the conversations that use it.
type MessagingStub struct {
	selector string
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	transport ports.Transport
	connected bool
	listeners []listenerRegistration
	buffer    []*domain.Message
}

// NewMessagingStub builds a stub for the given selector. The transport may be
// attached later via SetTransport; until then Connect and Send fail with
// TRANSPORT_NOT_READY.
func NewMessagingStub(selector string, transport ports.Transport, logger *zap.SugaredLogger) *MessagingStub {
	s := &MessagingStub{
		selector:  selector,
		transport: transport,
		logger:    logger,
	}
	if transport != nil {
		transport.SetReceiver(s.dispatch)
	}
	return s
}

// Selector returns the transport selector this stub serves.
func (s *MessagingStub) Selector() string { return s.selector }

// SetTransport attaches the transport implementation once it has been
// materialized by the factory.
func (s *MessagingStub) SetTransport(transport ports.Transport) {
	s.mu.Lock()
	s.transport = transport
	s.mu.Unlock()
	if transport != nil {
		transport.SetReceiver(s.dispatch)
	}
}

// Connect opens the underlying transport on behalf of ownIdentity. Repeated
// calls after a successful connect are no-ops.
func (s *MessagingStub) Connect(ctx context.Context, ownIdentity string, credentials domain.Credentials) error {
	s.mu.Lock()
	transport := s.transport
	if transport == nil {
		s.mu.Unlock()
		return apperrors.NewTransportNotReady(s.selector)
	}
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := transport.Connect(ctx, ownIdentity, credentials); err != nil {
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.logger.Infow("messaging stub connected", "selector", s.selector, "identity", ownIdentity)
	return nil
}

// SendMessage transmits one message over the transport.
func (s *MessagingStub) SendMessage(msg *domain.Message) error {
	s.mu.Lock()
	transport := s.transport
	s.mu.Unlock()
	if transport == nil {
		return apperrors.NewTransportNotReady(s.selector)
	}
	return transport.Send(msg)
}

// Disconnect closes the transport. Listeners stay registered so the stub can
// be reconnected.
func (s *MessagingStub) Disconnect() error {
	s.mu.Lock()
	transport := s.transport
	s.connected = false
	s.mu.Unlock()
	if transport == nil {
		return nil
	}
	return transport.Disconnect()
}

// AddListener registers a listener scoped by rtcIdentity and/or contextID.
// Both may be empty, making the listener a default sink. Registering an
// identical triple twice is a no-op. Buffered messages matching the new
// listener are replayed to it immediately and removed from the buffer.
func (s *MessagingStub) AddListener(listener MessageListener, rtcIdentity, contextID string) {
	if listener == nil {
		apperrors.AmbiguousUsage("AddListener requires a listener")
	}

	s.mu.Lock()
	for _, reg := range s.listeners {
		if reg.listener == listener && reg.rtcIdentity == rtcIdentity && reg.contextID == contextID {
			s.mu.Unlock()
			return
		}
	}
	reg := listenerRegistration{listener: listener, rtcIdentity: rtcIdentity, contextID: contextID}
	s.listeners = append(s.listeners, reg)

	var replay []*domain.Message
	remaining := s.buffer[:0]
	for _, msg := range s.buffer {
		if registrationMatches(reg, msg) {
			replay = append(replay, msg)
		} else {
			remaining = append(remaining, msg)
		}
	}
	s.buffer = remaining
	s.mu.Unlock()

	for _, msg := range replay {
		listener.OnMessage(msg)
	}
}

// RemoveListener drops registrations. With a listener and both scopes it
// removes the exact triple; with only an rtcIdentity it removes every
// registration bound to that identity.
func (s *MessagingStub) RemoveListener(listener MessageListener, rtcIdentity, contextID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.listeners[:0]
	for _, reg := range s.listeners {
		if listener == nil {
			if rtcIdentity != "" && reg.rtcIdentity == rtcIdentity {
				continue
			}
		} else if reg.listener == listener && reg.rtcIdentity == rtcIdentity && reg.contextID == contextID {
			continue
		}
		kept = append(kept, reg)
	}
	s.listeners = kept
}

// dispatch routes one inbound message: first to listeners bound to the
// sender's identity, then listeners bound to the message's context, then the
// default listener for conversation-opening types. Unroutable messages are
// buffered until a matching listener registers.
func (s *MessagingStub) dispatch(msg *domain.Message) {
	s.mu.Lock()
	var targets []MessageListener
	for _, reg := range s.listeners {
		if reg.rtcIdentity != "" && reg.rtcIdentity == msg.From {
			targets = append(targets, reg.listener)
		}
	}
	if len(targets) == 0 && msg.ContextID != "" {
		for _, reg := range s.listeners {
			if reg.contextID != "" && reg.contextID == msg.ContextID {
				targets = append(targets, reg.listener)
			}
		}
	}
	if len(targets) == 0 && defaultRoutable(msg) {
		for _, reg := range s.listeners {
			if reg.rtcIdentity == "" && reg.contextID == "" {
				targets = append(targets, reg.listener)
				break
			}
		}
	}
	if len(targets) == 0 {
		if len(s.buffer) >= stubBufferSize {
			dropped := s.buffer[0]
			s.buffer = s.buffer[1:]
			s.logger.Warnw("stub buffer full, dropping oldest message",
				"selector", s.selector, "dropped_type", dropped.Type, "dropped_from", dropped.From)
		}
		s.buffer = append(s.buffer, msg)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	for _, l := range targets {
		l.OnMessage(msg)
	}
}

// registrationMatches decides buffer replay for a newly added listener.
// Unlike live dispatch, which falls through identity, context and default
// routing in turn, replay demands every scope the registration carries: a
// listener bound to (identity, context) must not receive the identity's
// buffered traffic from other conversations.
func registrationMatches(reg listenerRegistration, msg *domain.Message) bool {
	if reg.rtcIdentity == "" && reg.contextID == "" {
		return defaultRoutable(msg)
	}
	if reg.rtcIdentity != "" && reg.rtcIdentity != msg.From {
		return false
	}
	if reg.contextID != "" && reg.contextID != msg.ContextID {
		return false
	}
	return true
}

// defaultRoutable reports whether a message with no scoped listener may go to
// the default listener. Invitations and presence traffic open new state, so
// they must reach the application rather than sit in the buffer.
func defaultRoutable(msg *domain.Message) bool {
	switch msg.Type {
	case domain.MessageInvitation, domain.MessageContext, domain.MessageSubscribe, domain.MessageBye:
		return true
	}
	return msg.ContextID == ""
}
