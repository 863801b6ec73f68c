package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageAssignsUniqueIDs(t *testing.T) {
	a := NewMessage("alice@a.example", []string{"bob@b.example"}, nil, MessageBye, "ctx-1")
	b := NewMessage("alice@a.example", []string{"bob@b.example"}, nil, MessageBye, "ctx-1")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewReplyRecipients(t *testing.T) {
	invitation := NewMessage(
		"alice@a.example",
		[]string{"bob@b.example", "carol@c.example"},
		&InvitationBody{Subject: "standup"},
		MessageInvitation,
		"ctx-1",
	)

	reply := NewReply(&AcceptedBody{}, invitation, MessageAccepted, "bob@b.example")

	// the replier drops out, the original sender joins
	assert.ElementsMatch(t, []string{"carol@c.example", "alice@a.example"}, reply.To)
	assert.Equal(t, "bob@b.example", reply.From)
	assert.Equal(t, "ctx-1", reply.ContextID)
	assert.Equal(t, MessageAccepted, reply.Type)
	assert.NotEqual(t, invitation.ID, reply.ID)
}

func TestNewReplyPanicsWithoutPrevious(t *testing.T) {
	assert.Panics(t, func() {
		NewReply(&AcceptedBody{}, nil, MessageAccepted, "bob@b.example")
	})
}

func TestMessageBodyDecodedByType(t *testing.T) {
	original := NewMessage(
		"alice@a.example",
		[]string{"bob@b.example"},
		&InvitationBody{
			Subject: "standup",
			Hosting: "alice@a.example",
			Constraints: []ResourceConstraint{
				{ID: "c1", Type: ResourceChat, Direction: DirectionInOut},
			},
			ConnectionDescription: SessionDescription{Type: "offer", SDP: "v=0..."},
		},
		MessageInvitation,
		"ctx-1",
	)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))

	body, ok := decoded.Body.(*InvitationBody)
	require.True(t, ok, "body should decode to *InvitationBody, got %T", decoded.Body)
	assert.Equal(t, "standup", body.Subject)
	assert.Equal(t, "alice@a.example", body.Hosting)
	require.Len(t, body.Constraints, 1)
	assert.Equal(t, ResourceChat, body.Constraints[0].Type)
	assert.Equal(t, "v=0...", body.ConnectionDescription.SDP)
}

func TestMessageUnknownTypeRejected(t *testing.T) {
	raw := `{"id":"1","from":"x","type":"mystery","body":{"a":1}}`
	var msg Message
	assert.Error(t, json.Unmarshal([]byte(raw), &msg))
}

func TestWireConstraintsStripCapture(t *testing.T) {
	constraints := []ResourceConstraint{
		{
			ID:          "c1",
			Type:        ResourceAudioVideo,
			Direction:   DirectionInOut,
			Constraints: &MediaConstraints{Audio: true, Video: true, StreamID: "local"},
		},
	}

	wire := WireConstraints(constraints)
	require.Len(t, wire, 1)
	assert.Nil(t, wire[0].Constraints)
	assert.Equal(t, "c1", wire[0].ID)
}

func TestMirrorConstraints(t *testing.T) {
	constraints := []ResourceConstraint{
		{ID: "a", Type: ResourceVideoCam, Direction: DirectionOut},
		{ID: "b", Type: ResourceChat, Direction: DirectionInOut},
		{ID: "c", Type: ResourceAudioMic, Direction: DirectionIn},
	}

	mirrored := MirrorConstraints(constraints)
	assert.Equal(t, DirectionIn, mirrored[0].Direction)
	assert.Equal(t, DirectionInOut, mirrored[1].Direction)
	assert.Equal(t, DirectionOut, mirrored[2].Direction)
	// originals untouched
	assert.Equal(t, DirectionOut, constraints[0].Direction)
}
