package domain

// ResourceType enumerates the kinds of assets that can be negotiated into a
// conversation.
type ResourceType string

const (
	ResourceAudioVideo ResourceType = "audioVideo"
	ResourceAudioMic   ResourceType = "audioMic"
	ResourceVideoCam   ResourceType = "videoCam"
	ResourceChat       ResourceType = "chat"
	ResourceFile       ResourceType = "file"
	ResourceScreen     ResourceType = "screen"
	ResourcePhoto      ResourceType = "photo"
	ResourceVideo      ResourceType = "video"
	ResourceMusic      ResourceType = "music"
	ResourceOther      ResourceType = "other"
)

// IsMedia reports whether the type is captured via the media engine rather
// than carried over a data channel.
func (t ResourceType) IsMedia() bool {
	switch t {
	case ResourceAudioVideo, ResourceAudioMic, ResourceVideoCam, ResourceScreen:
		return true
	}
	return false
}

// IsData reports whether the type is multiplexed over a data channel.
func (t ResourceType) IsData() bool {
	return t == ResourceChat || t == ResourceFile
}

// Direction of a resource relative to the local peer.
type Direction string

const (
	DirectionIn    Direction = "in"
	DirectionOut   Direction = "out"
	DirectionInOut Direction = "in_out"
)

// Reverse mirrors the direction, used when accepting an invitation.
func (d Direction) Reverse() Direction {
	switch d {
	case DirectionIn:
		return DirectionOut
	case DirectionOut:
		return DirectionIn
	default:
		return DirectionInOut
	}
}

// MediaConstraints are the transport-specific capture constraints nested in a
// resource constraint.
type MediaConstraints struct {
	Audio    bool   `json:"audio,omitempty"`
	Video    bool   `json:"video,omitempty"`
	Screen   bool   `json:"screen,omitempty"`
	StreamID string `json:"id,omitempty"`
}

// ResourceConstraint describes one requested resource. The ID correlates
// local and remote Resource objects across the invitation exchange.
type ResourceConstraint struct {
	ID          string            `json:"id,omitempty"`
	Type        ResourceType      `json:"type"`
	Direction   Direction         `json:"direction"`
	Constraints *MediaConstraints `json:"constraints,omitempty"`
}

// WireConstraints strips everything but id/type/direction: the nested
// capture constraints never leave the process.
func WireConstraints(constraints []ResourceConstraint) []ResourceConstraint {
	out := make([]ResourceConstraint, 0, len(constraints))
	for _, c := range constraints {
		out = append(out, ResourceConstraint{ID: c.ID, Type: c.Type, Direction: c.Direction})
	}
	return out
}

// MirrorConstraints reverses every direction, producing the answering side's
// view of an invitation's constraints.
func MirrorConstraints(constraints []ResourceConstraint) []ResourceConstraint {
	out := make([]ResourceConstraint, 0, len(constraints))
	for _, c := range constraints {
		c.Direction = c.Direction.Reverse()
		out = append(out, c)
	}
	return out
}
