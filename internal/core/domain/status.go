package domain

// ParticipantStatus is the lifecycle state of one peer in one conversation.
type ParticipantStatus string

const (
	ParticipantCreated          ParticipantStatus = "created"
	ParticipantWaiting          ParticipantStatus = "waiting"
	ParticipantPending          ParticipantStatus = "pending"
	ParticipantAccepted         ParticipantStatus = "accepted"
	ParticipantParticipating    ParticipantStatus = "participating"
	ParticipantParticipated     ParticipantStatus = "participated"
	ParticipantNotParticipating ParticipantStatus = "not_participating"
	ParticipantMissed           ParticipantStatus = "missed"
	ParticipantFailed           ParticipantStatus = "failed"
)

// participantTransitions is the complete allowed-transition table. States
// absent as keys are terminal: reopening requires a new Participant.
var participantTransitions = map[ParticipantStatus][]ParticipantStatus{
	ParticipantCreated:       {ParticipantWaiting, ParticipantPending},
	ParticipantPending:       {ParticipantAccepted, ParticipantMissed},
	ParticipantAccepted:      {ParticipantParticipating, ParticipantFailed},
	ParticipantWaiting:       {ParticipantParticipating, ParticipantFailed},
	ParticipantParticipating: {ParticipantParticipated, ParticipantNotParticipating},
}

// CanTransition reports whether from -> to is allowed.
func (from ParticipantStatus) CanTransition(to ParticipantStatus) bool {
	for _, next := range participantTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ConversationStatus is the aggregate state of a conversation.
type ConversationStatus string

const (
	ConversationCreated   ConversationStatus = "created"
	ConversationOpened    ConversationStatus = "opened"
	ConversationActive    ConversationStatus = "active"
	ConversationInactive  ConversationStatus = "inactive"
	ConversationFailed    ConversationStatus = "failed"
	ConversationClosed    ConversationStatus = "closed"
	ConversationRecording ConversationStatus = "recording"
	ConversationPlaying   ConversationStatus = "playing"
	ConversationPaused    ConversationStatus = "paused"
	ConversationStopped   ConversationStatus = "stopped"
)

// conversationTransitions mirrors participantTransitions for the aggregate
// state machine. CLOSED, FAILED and STOPPED are terminal.
var conversationTransitions = map[ConversationStatus][]ConversationStatus{
	ConversationCreated: {ConversationOpened},
	ConversationOpened: {
		ConversationActive, ConversationInactive, ConversationFailed,
		ConversationPlaying, ConversationClosed,
	},
	ConversationActive: {
		ConversationInactive, ConversationClosed, ConversationFailed,
		ConversationRecording, ConversationPlaying,
	},
	ConversationInactive: {ConversationActive},
	ConversationRecording: {
		ConversationFailed, ConversationInactive, ConversationClosed,
		ConversationPlaying,
	},
	ConversationPlaying: {
		ConversationPaused, ConversationStopped, ConversationInactive,
		ConversationActive,
	},
	ConversationPaused: {
		ConversationPlaying, ConversationStopped, ConversationInactive,
		ConversationActive,
	},
}

// CanTransition reports whether from -> to is allowed. The zero value may
// move to any state, matching a freshly constructed conversation.
func (from ConversationStatus) CanTransition(to ConversationStatus) bool {
	if from == "" {
		return true
	}
	for _, next := range conversationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
