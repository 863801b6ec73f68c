package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
)

// DirectoryRepository is the in-memory identity directory used for tests and
// single-node deployments.
type DirectoryRepository struct {
	mu      sync.RWMutex
	records map[string][]domain.DirectoryRecord
}

func NewDirectoryRepository() *DirectoryRepository {
	return &DirectoryRepository{
		records: make(map[string][]domain.DirectoryRecord),
	}
}

// Register stores or replaces the record for an identity. Multiple records
// per identity are kept when their selectors differ.
func (r *DirectoryRepository) Register(_ context.Context, record domain.DirectoryRecord) error {
	if record.RtcIdentity == "" {
		return domain.ErrIdentityNotFound
	}
	key := normalize(record.RtcIdentity)

	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.records[key]
	for i, e := range existing {
		if e.TransportSelector == record.TransportSelector {
			existing[i] = record
			return nil
		}
	}
	r.records[key] = append(existing, record)
	return nil
}

func (r *DirectoryRepository) Lookup(_ context.Context, rtcIdentity string) ([]domain.DirectoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := r.records[normalize(rtcIdentity)]
	out := make([]domain.DirectoryRecord, len(records))
	copy(out, records)
	return out, nil
}

func (r *DirectoryRepository) Remove(_ context.Context, rtcIdentity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(rtcIdentity)
	if _, ok := r.records[key]; !ok {
		return domain.ErrIdentityNotFound
	}
	delete(r.records, key)
	return nil
}

// Count returns the number of registered identities.
func (r *DirectoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func normalize(rtcIdentity string) string {
	return strings.ToLower(strings.TrimSpace(rtcIdentity))
}
