package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
)

// DirectoryRepository stores identity directory records in Redis. Records for
// one identity live in a hash keyed by transport selector so multi-homed
// identities keep one row per selector.
type DirectoryRepository struct {
	client *redis.Client
	prefix string
}

func NewDirectoryRepository(client *redis.Client) *DirectoryRepository {
	return &DirectoryRepository{
		client: client,
		prefix: "wonder:directory:",
	}
}

func (r *DirectoryRepository) key(rtcIdentity string) string {
	return r.prefix + strings.ToLower(strings.TrimSpace(rtcIdentity))
}

func (r *DirectoryRepository) Register(ctx context.Context, record domain.DirectoryRecord) error {
	if record.RtcIdentity == "" {
		return domain.ErrIdentityNotFound
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal directory record: %w", err)
	}
	if err := r.client.HSet(ctx, r.key(record.RtcIdentity), record.TransportSelector, data).Err(); err != nil {
		return fmt.Errorf("failed to store directory record: %w", err)
	}
	return nil
}

func (r *DirectoryRepository) Lookup(ctx context.Context, rtcIdentity string) ([]domain.DirectoryRecord, error) {
	rows, err := r.client.HGetAll(ctx, r.key(rtcIdentity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read directory records: %w", err)
	}

	records := make([]domain.DirectoryRecord, 0, len(rows))
	for _, raw := range rows {
		var record domain.DirectoryRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal directory record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *DirectoryRepository) Remove(ctx context.Context, rtcIdentity string) error {
	removed, err := r.client.Del(ctx, r.key(rtcIdentity)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove directory records: %w", err)
	}
	if removed == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}
