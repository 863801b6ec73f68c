package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType enumerates every signaling interaction between domains.
type MessageType string

const (
	MessageInvitation            MessageType = "invitation"
	MessageAccepted              MessageType = "accepted"
	MessageNotAccepted           MessageType = "notAccepted"
	MessageConnectivityCandidate MessageType = "connectivityCandidate"
	MessageUpdate                MessageType = "update"
	MessageUpdated               MessageType = "updated"
	MessageBye                   MessageType = "bye"
	MessageContext               MessageType = "context"
	MessageSubscribe             MessageType = "subscribe"
	MessageOfferRole             MessageType = "offerRole"
	MessageRedirect              MessageType = "redirect"
	MessageShareResource         MessageType = "shareResource"
	MessageResourceRemoved       MessageType = "resourceRemoved"
	MessageCancel                MessageType = "cancel"
	MessageChat                  MessageType = "messageChat"
	MessageCRUDOperation         MessageType = "crud_operation"
)

// Message is the envelope exchanged between identity domains. It is a value
// object: once constructed it is never mutated, replies are built from it
// with NewReply.
type Message struct {
	ID        string      `json:"id"`
	From      string      `json:"from"`
	To        []string    `json:"to,omitempty"`
	Type      MessageType `json:"type"`
	ContextID string      `json:"contextId,omitempty"`
	Body      Body        `json:"body,omitempty"`

	// ReplyTo carries the identity a reply should address; set by NewReply.
	ReplyTo string `json:"reply_to_uri,omitempty"`
}

// NewMessage builds an envelope with a fresh globally unique id.
func NewMessage(from string, to []string, body Body, t MessageType, contextID string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		From:      from,
		To:        to,
		Body:      body,
		Type:      t,
		ContextID: contextID,
	}
}

// NewReply builds a reply from a previous message: the recipient list is the
// previous recipients minus the replier, plus the original sender. A nil
// previous message is a programmer error.
func NewReply(body Body, previous *Message, t MessageType, me string) *Message {
	if previous == nil {
		panic("domain: NewReply called without a previous message")
	}
	to := make([]string, 0, len(previous.To)+1)
	for _, r := range previous.To {
		if r != me {
			to = append(to, r)
		}
	}
	to = append(to, previous.From)

	m := NewMessage(me, to, body, t, previous.ContextID)
	m.ReplyTo = me
	return m
}

type messageEnvelope struct {
	ID        string          `json:"id"`
	From      string          `json:"from"`
	To        []string        `json:"to,omitempty"`
	Type      MessageType     `json:"type"`
	ContextID string          `json:"contextId,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	ReplyTo   string          `json:"reply_to_uri,omitempty"`
}

// MarshalJSON flattens the typed body into the envelope.
func (m *Message) MarshalJSON() ([]byte, error) {
	env := messageEnvelope{
		ID:        m.ID,
		From:      m.From,
		To:        m.To,
		Type:      m.Type,
		ContextID: m.ContextID,
		ReplyTo:   m.ReplyTo,
	}
	if m.Body != nil {
		raw, err := json.Marshal(m.Body)
		if err != nil {
			return nil, err
		}
		env.Body = raw
	}
	return json.Marshal(env)
}

// UnmarshalJSON decodes the body into the variant matching the message type.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	m.ID = env.ID
	m.From = env.From
	m.To = env.To
	m.Type = env.Type
	m.ContextID = env.ContextID
	m.ReplyTo = env.ReplyTo
	m.Body = nil

	if len(env.Body) == 0 {
		return nil
	}
	body, err := newBody(env.Type)
	if err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	if err := json.Unmarshal(env.Body, body); err != nil {
		return fmt.Errorf("decode %s body: %w", env.Type, err)
	}
	m.Body = body
	return nil
}
