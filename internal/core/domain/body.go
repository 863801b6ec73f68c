package domain

import "fmt"

// Body is the closed set of per-type message payloads. Every variant lives in
// this file so the envelope codec in message.go stays exhaustive.
type Body interface {
	isBody()
}

// SessionDescription is the offer/answer artifact produced by the media
// engine. It is opaque to the core beyond presence checks.
type SessionDescription struct {
	Type string `json:"type,omitempty"`
	SDP  string `json:"sdp,omitempty"`
}

// Empty reports whether no description is carried.
func (d SessionDescription) Empty() bool {
	return d.SDP == ""
}

// ICECandidate is a single trickled connectivity candidate.
type ICECandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// NotAcceptedReason enumerates why an invitation was declined.
type NotAcceptedReason string

const (
	NotAcceptedBusy     NotAcceptedReason = "busy"
	NotAcceptedNotFound NotAcceptedReason = "notFound"
	NotAcceptedRejected NotAcceptedReason = "rejected"
	NotAcceptedTimeout  NotAcceptedReason = "timeout"
)

// SubscriptionType enumerates presence subscription flavors.
type SubscriptionType string

const (
	StatusSubscription  SubscriptionType = "statusSubscription"
	ContextSubscription SubscriptionType = "contextSubscription"
)

// InvitationBody opens a conversation with a peer. ConnectionDescription is
// filled by the sending Participant right before transmission.
type InvitationBody struct {
	ConversationURL       string               `json:"conversationURL,omitempty"`
	Subject               string               `json:"subject,omitempty"`
	Hosting               string               `json:"hosting,omitempty"`
	Agenda                []string             `json:"agenda,omitempty"`
	Peers                 []string             `json:"peers,omitempty"`
	Constraints           []ResourceConstraint `json:"constraints"`
	ConnectionDescription SessionDescription   `json:"connectionDescription"`
}

// AcceptedBody answers an invitation. When ConnectionDescription is empty the
// message is a connectivity announcement carrying only the Connected list.
type AcceptedBody struct {
	Hosting               string               `json:"hosting,omitempty"`
	Connected             []string             `json:"connected,omitempty"`
	Constraints           []ResourceConstraint `json:"constraints,omitempty"`
	ConnectionDescription SessionDescription   `json:"connectionDescription"`
	From                  string               `json:"from,omitempty"`
}

// NotAcceptedBody declines an invitation.
type NotAcceptedBody struct {
	Reason NotAcceptedReason `json:"reason,omitempty"`
}

// CandidateBody carries one trickled ICE candidate. When LastCandidate is
// set, CandidateDescription is empty and ConnectionDescription holds the full
// local session description for peers that do not support trickling.
type CandidateBody struct {
	Label                 uint16             `json:"label"`
	ID                    string             `json:"id,omitempty"`
	CandidateDescription  string             `json:"candidateDescription,omitempty"`
	ConnectionDescription SessionDescription `json:"connectionDescription,omitempty"`
	LastCandidate         bool               `json:"lastCandidate"`
}

// UpdateBody requests a resource addition/change.
type UpdateBody struct {
	NewConstraints           []ResourceConstraint `json:"newConstraints"`
	Hosting                  string               `json:"hosting,omitempty"`
	NewConnectionDescription SessionDescription   `json:"newConnectionDescription"`
}

// UpdatedBody answers an UPDATE.
type UpdatedBody struct {
	NewConstraints           []ResourceConstraint `json:"newConstraints,omitempty"`
	UpdatedIdentities        []string             `json:"updatedIdentities,omitempty"`
	Hosting                  string               `json:"hosting,omitempty"`
	NewConnectionDescription SessionDescription   `json:"newConnectionDescription"`
	From                     string               `json:"from,omitempty"`
}

// ByeBody terminates participation. It carries no data.
type ByeBody struct{}

// ContextBody publishes identity presence.
type ContextBody struct {
	Presence IdentityStatus `json:"presence"`
	Login    bool           `json:"login,omitempty"`
}

// SubscribeBody subscribes to presence updates of an identity.
type SubscribeBody struct {
	Subscription SubscriptionType `json:"subscription"`
}

// OfferRoleBody offers the moderator role to another participant.
type OfferRoleBody struct {
	Role string `json:"role,omitempty"`
}

// RedirectBody asks the peer to continue the session elsewhere.
type RedirectBody struct {
	Target string `json:"target,omitempty"`
}

// ShareResourceBody announces a shared resource to the conversation.
type ShareResourceBody struct {
	Constraints []ResourceConstraint `json:"constraints,omitempty"`
}

// ResourceRemovedBody announces removal of previously negotiated resources.
type ResourceRemovedBody struct {
	Constraints []ResourceConstraint `json:"constraints"`
}

// CancelBody withdraws a pending invitation.
type CancelBody struct{}

// ChatBody is an application chat line routed through signaling.
type ChatBody struct {
	Text string `json:"text"`
}

// CRUDBody wraps a create/read/update/delete operation for an external store.
type CRUDBody struct {
	Operation string `json:"operation"`
	Resource  string `json:"resource"`
	Doc       any    `json:"doc,omitempty"`
}

func (InvitationBody) isBody()      {}
func (AcceptedBody) isBody()        {}
func (NotAcceptedBody) isBody()     {}
func (CandidateBody) isBody()       {}
func (UpdateBody) isBody()          {}
func (UpdatedBody) isBody()         {}
func (ByeBody) isBody()             {}
func (ContextBody) isBody()         {}
func (SubscribeBody) isBody()       {}
func (OfferRoleBody) isBody()       {}
func (RedirectBody) isBody()        {}
func (ShareResourceBody) isBody()   {}
func (ResourceRemovedBody) isBody() {}
func (CancelBody) isBody()          {}
func (ChatBody) isBody()            {}
func (CRUDBody) isBody()            {}

// newBody returns a zero payload for the given type, or an error for unknown
// types so malformed traffic is rejected at the envelope boundary.
func newBody(t MessageType) (Body, error) {
	switch t {
	case MessageInvitation:
		return &InvitationBody{}, nil
	case MessageAccepted:
		return &AcceptedBody{}, nil
	case MessageNotAccepted:
		return &NotAcceptedBody{}, nil
	case MessageConnectivityCandidate:
		return &CandidateBody{}, nil
	case MessageUpdate:
		return &UpdateBody{}, nil
	case MessageUpdated:
		return &UpdatedBody{}, nil
	case MessageBye:
		return &ByeBody{}, nil
	case MessageContext:
		return &ContextBody{}, nil
	case MessageSubscribe:
		return &SubscribeBody{}, nil
	case MessageOfferRole:
		return &OfferRoleBody{}, nil
	case MessageRedirect:
		return &RedirectBody{}, nil
	case MessageShareResource:
		return &ShareResourceBody{}, nil
	case MessageResourceRemoved:
		return &ResourceRemovedBody{}, nil
	case MessageCancel:
		return &CancelBody{}, nil
	case MessageChat:
		return &ChatBody{}, nil
	case MessageCRUDOperation:
		return &CRUDBody{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
}
