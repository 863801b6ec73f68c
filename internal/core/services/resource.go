package services

import (
	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
)

// Resource is one negotiated asset of a participant. Media resources carry a
// stream; data resources carry a codec and the channel it rides on. A
// Resource may start as a constraint-only placeholder and be upgraded once
// the stream or channel materializes.
type Resource struct {
	Constraint domain.ResourceConstraint

	// Stream is set for media resources once captured or received.
	Stream ports.MediaStream

	// Codec and Channel are set for data resources.
	Codec   *Codec
	Channel ports.DataChannel

	// Owner is the rtcIdentity that contributed the resource.
	Owner string
}

// NewResource builds a placeholder for a constraint.
func NewResource(constraint domain.ResourceConstraint, owner string) *Resource {
	return &Resource{Constraint: constraint, Owner: owner}
}

// Merge upgrades a placeholder in place from a materialized resource of the
// same constraint id, keeping the placeholder's identity so references held
// by the application stay valid.
func (r *Resource) Merge(other *Resource) {
	if other == nil || other.Constraint.ID != r.Constraint.ID {
		return
	}
	if other.Stream != nil {
		r.Stream = other.Stream
	}
	if other.Codec != nil {
		r.Codec = other.Codec
	}
	if other.Channel != nil {
		r.Channel = other.Channel
	}
	if r.Constraint.Constraints == nil {
		r.Constraint.Constraints = other.Constraint.Constraints
	}
}

// Live reports whether the resource has been materialized.
func (r *Resource) Live() bool {
	return r.Stream != nil || r.Codec != nil
}

// Stop releases the underlying stream or channel.
func (r *Resource) Stop() {
	if r.Stream != nil {
		r.Stream.Stop()
	}
	if r.Channel != nil {
		_ = r.Channel.Close()
	}
}

// findResource returns the resource with the given constraint id.
func findResource(resources []*Resource, constraintID string) (*Resource, bool) {
	for _, r := range resources {
		if r.Constraint.ID == constraintID {
			return r, true
		}
	}
	return nil, false
}
