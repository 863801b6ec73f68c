package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
	"github.com/hftl-ims-research/wonder/internal/core/ports"
	apperrors "github.com/hftl-ims-research/wonder/pkg/errors"
)

// IdentityProvider resolves rtc identities against the directory and hands
// out Identity objects and the MessagingStubs serving them. There is exactly
// one Identity object per distinct handle and one stub per transport
// selector, both for the lifetime of the provider.
type IdentityProvider struct {
	directory ports.DirectoryLookup
	factory   ports.TransportFactory
	logger    *zap.SugaredLogger

	// resolveAttempts bounds polling for an asynchronously materialized
	// transport; resolveInterval is the pause between polls.
	resolveAttempts int
	resolveInterval time.Duration

	// localSelector, when non-empty, marks directory rows carrying this
	// local selector as reachable intra-domain.
	localSelector string

	mu         sync.Mutex
	identities map[string]*domain.Identity
	pending    map[string]*pendingIdentity
	stubs      map[string]*MessagingStub

	// stubByIdentity records stub overrides set by BindStub (host-relay
	// routing). Identities without an override use the selector stub.
	stubByIdentity map[string]*MessagingStub
}

type pendingIdentity struct {
	identity *domain.Identity
	done     chan struct{}
	err      error
}

// IdentityProviderOptions tunes resolution behavior.
type IdentityProviderOptions struct {
	ResolveAttempts int
	ResolveInterval time.Duration
	LocalSelector   string
}

// NewIdentityProvider builds a provider over a directory and a transport
// factory.
func NewIdentityProvider(directory ports.DirectoryLookup, factory ports.TransportFactory, logger *zap.SugaredLogger, opts IdentityProviderOptions) *IdentityProvider {
	if opts.ResolveAttempts <= 0 {
		opts.ResolveAttempts = 20
	}
	if opts.ResolveInterval <= 0 {
		opts.ResolveInterval = 500 * time.Millisecond
	}
	return &IdentityProvider{
		directory:       directory,
		factory:         factory,
		logger:          logger,
		resolveAttempts: opts.ResolveAttempts,
		resolveInterval: opts.ResolveInterval,
		localSelector:   opts.LocalSelector,
		identities:      make(map[string]*domain.Identity),
		pending:         make(map[string]*pendingIdentity),
		stubs:           make(map[string]*MessagingStub),
		stubByIdentity:  make(map[string]*MessagingStub),
	}
}

// CreateIdentity resolves one handle to an Identity. Calls for the same
// handle always yield the same object: concurrent first resolutions collapse
// onto a single in-flight lookup, and later calls return the cached identity
// without touching the directory.
func (p *IdentityProvider) CreateIdentity(ctx context.Context, rtcIdentity string) (*domain.Identity, error) {
	if rtcIdentity == "" {
		apperrors.AmbiguousUsage("CreateIdentity requires an rtcIdentity")
	}

	p.mu.Lock()
	if identity, ok := p.identities[rtcIdentity]; ok {
		p.mu.Unlock()
		return identity, nil
	}
	if pend, ok := p.pending[rtcIdentity]; ok {
		p.mu.Unlock()
		select {
		case <-pend.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if pend.err != nil {
			return nil, pend.err
		}
		return pend.identity, nil
	}

	pend := &pendingIdentity{
		identity: &domain.Identity{RtcIdentity: rtcIdentity, Presence: domain.IdentityIdle},
		done:     make(chan struct{}),
	}
	p.pending[rtcIdentity] = pend
	p.mu.Unlock()

	err := p.resolve(ctx, pend.identity)

	p.mu.Lock()
	delete(p.pending, rtcIdentity)
	if err == nil {
		p.identities[rtcIdentity] = pend.identity
	} else {
		pend.err = err
	}
	p.mu.Unlock()
	close(pend.done)

	if err != nil {
		return nil, err
	}
	return pend.identity, nil
}

// CreateIdentities resolves handles in order. A handle that fails to resolve
// is logged and skipped; the remaining handles are still attempted. An error
// is returned only when not a single handle resolved.
func (p *IdentityProvider) CreateIdentities(ctx context.Context, rtcIdentities []string) ([]*domain.Identity, error) {
	resolved := make([]*domain.Identity, 0, len(rtcIdentities))
	var firstErr error
	for _, handle := range rtcIdentities {
		identity, err := p.CreateIdentity(ctx, handle)
		if err != nil {
			p.logger.Warnw("identity resolution failed, skipping",
				"rtc_identity", handle, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		resolved = append(resolved, identity)
	}
	if len(resolved) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return resolved, nil
}

// Identity returns an already-resolved identity without consulting the
// directory.
func (p *IdentityProvider) Identity(rtcIdentity string) (*domain.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	identity, ok := p.identities[rtcIdentity]
	return identity, ok
}

// resolve fills the placeholder in place so every caller holding the pointer
// observes the resolved fields.
func (p *IdentityProvider) resolve(ctx context.Context, identity *domain.Identity) error {
	records, err := p.directory.Lookup(ctx, identity.RtcIdentity)
	if err != nil {
		return apperrors.NewResolutionFailed(identity.RtcIdentity, err)
	}
	if len(records) == 0 {
		return apperrors.NewResolutionFailed(identity.RtcIdentity, domain.ErrIdentityNotFound)
	}

	record := p.pickRecord(records)
	identity.TransportSelector = record.TransportSelector
	if p.localSelector != "" && record.LocalTransportSelector == p.localSelector {
		identity.TransportSelector = record.LocalTransportSelector
	}
	identity.MessagingAddress = record.MessagingAddress
	identity.Credentials = domain.Credentials{
		Username: record.RtcIdentity,
		Password: record.Password,
	}

	if _, err := p.ensureStub(ctx, identity.TransportSelector); err != nil {
		return err
	}
	p.logger.Infow("identity resolved",
		"rtc_identity", identity.RtcIdentity, "selector", identity.TransportSelector)
	return nil
}

// pickRecord prefers a row whose local selector matches ours; otherwise the
// first row wins.
func (p *IdentityProvider) pickRecord(records []domain.DirectoryRecord) domain.DirectoryRecord {
	if p.localSelector != "" {
		for _, r := range records {
			if r.LocalTransportSelector == p.localSelector {
				return r
			}
		}
	}
	return records[0]
}

// ensureStub returns the stub for a selector, creating it on first use and
// polling the factory until the transport implementation is available.
func (p *IdentityProvider) ensureStub(ctx context.Context, selector string) (*MessagingStub, error) {
	p.mu.Lock()
	if stub, ok := p.stubs[selector]; ok {
		p.mu.Unlock()
		return stub, nil
	}
	stub := NewMessagingStub(selector, nil, p.logger)
	p.stubs[selector] = stub
	p.mu.Unlock()

	p.factory.Request(selector)
	for attempt := 0; attempt < p.resolveAttempts; attempt++ {
		if transport, ok := p.factory.Get(selector); ok {
			stub.SetTransport(transport)
			return stub, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.resolveInterval):
		}
	}
	p.logger.Errorw("transport never materialized", "selector", selector, "attempts", p.resolveAttempts)
	return nil, apperrors.NewTransportNotReady(selector)
}

// StubFor returns the messaging stub serving an identity: a BindStub
// override when present, otherwise the stub shared by the identity's
// transport selector.
func (p *IdentityProvider) StubFor(identity *domain.Identity) (*MessagingStub, error) {
	p.mu.Lock()
	if stub, ok := p.stubByIdentity[identity.RtcIdentity]; ok {
		p.mu.Unlock()
		return stub, nil
	}
	stub, ok := p.stubs[identity.TransportSelector]
	p.mu.Unlock()
	if !ok {
		return nil, apperrors.NewTransportNotReady(identity.TransportSelector)
	}
	return stub, nil
}

// BindStub overrides the stub used for an identity. Host-relayed
// conversations bind remote peers to the host's stub so all signaling flows
// through one connection.
func (p *IdentityProvider) BindStub(identity *domain.Identity, stub *MessagingStub) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stubByIdentity[identity.RtcIdentity] = stub
}
