package domain

// IdentityStatus is the presence state of an identity.
type IdentityStatus string

const (
	IdentityIdle           IdentityStatus = "idle"
	IdentityUnavailable    IdentityStatus = "unavailable"
	IdentityBusy           IdentityStatus = "busy"
	IdentityAvailable      IdentityStatus = "available"
	IdentityOnConversation IdentityStatus = "onConversation"
)

// Credentials are the transport-specific secrets required to connect to an
// identity's messaging domain. Opaque to the core.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Identity is a directory-resolved peer reference. Identities are created
// only by the IdentityProvider, exactly once per distinct RtcIdentity, and
// are immutable except for presence.
type Identity struct {
	// RtcIdentity is the domain-qualified handle, e.g. "alice@a.example".
	RtcIdentity string

	// TransportSelector names the transport implementation serving this
	// identity's domain. Identities sharing a selector share one stub.
	TransportSelector string

	// MessagingAddress is the address the transport connects to.
	MessagingAddress string

	Credentials Credentials
	Presence    IdentityStatus

	// SubscriptionContext scopes presence CONTEXT messages for this
	// identity, set when a subscription is opened.
	SubscriptionContext string
}

// DirectoryRecord is one row returned by an identity directory lookup.
type DirectoryRecord struct {
	RtcIdentity string `json:"rtcIdentity"`
	// TransportSelector is the domain's general transport selector.
	TransportSelector string `json:"transportSelector"`
	// LocalTransportSelector, when present, names a selector usable only
	// inside the directory owner's own domain.
	LocalTransportSelector string `json:"localTransportSelector,omitempty"`
	MessagingAddress       string `json:"messagingAddress,omitempty"`
	Password               string `json:"password,omitempty"`
}
