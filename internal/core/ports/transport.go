package ports

import (
	"context"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
)

// Transport is the network implementation behind a MessagingStub. One
// instance serves every identity sharing the same transport selector.
type Transport interface {
	// Connect opens the connection on behalf of ownIdentity. It must be
	// called before Send.
	Connect(ctx context.Context, ownIdentity string, credentials domain.Credentials) error

	// Send transmits one signaling message. Sends are never retried by the
	// caller; a returned error is the sole failure channel.
	Send(msg *domain.Message) error

	// SetReceiver installs the inbound delivery callback. The transport
	// invokes it once per received message, in arrival order.
	SetReceiver(receive func(*domain.Message))

	Disconnect() error
}

// TransportFactory materializes transports by selector. Materialization may
// be asynchronous: Get returns false until the selector's implementation is
// available.
type TransportFactory interface {
	Get(selector string) (Transport, bool)

	// Request asks the factory to begin materializing the selector's
	// implementation, if it has not already.
	Request(selector string)
}

// DirectoryLookup resolves an identity handle to directory rows. An empty
// row set is not an error at this layer.
type DirectoryLookup interface {
	Lookup(ctx context.Context, rtcIdentity string) ([]domain.DirectoryRecord, error)
}

// DirectoryRepository is the server-side store behind a directory service.
type DirectoryRepository interface {
	DirectoryLookup

	Register(ctx context.Context, record domain.DirectoryRecord) error
	Remove(ctx context.Context, rtcIdentity string) error
}
