package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hftl-ims-research/wonder/internal/core/domain"
)

func TestRegisterAndLookup(t *testing.T) {
	repo := NewDirectoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, domain.DirectoryRecord{
		RtcIdentity:       "alice@a.example",
		TransportSelector: "websocket",
		MessagingAddress:  "ws://relay-a:8081/ws",
	}))

	records, err := repo.Lookup(ctx, "alice@a.example")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ws://relay-a:8081/ws", records[0].MessagingAddress)
}

func TestLookupNormalizesIdentity(t *testing.T) {
	repo := NewDirectoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, domain.DirectoryRecord{
		RtcIdentity:       "Alice@A.Example",
		TransportSelector: "websocket",
	}))

	records, err := repo.Lookup(ctx, "  alice@a.example ")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRegisterReplacesSameSelector(t *testing.T) {
	repo := NewDirectoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, domain.DirectoryRecord{
		RtcIdentity:       "alice@a.example",
		TransportSelector: "websocket",
		MessagingAddress:  "ws://old:8081/ws",
	}))
	require.NoError(t, repo.Register(ctx, domain.DirectoryRecord{
		RtcIdentity:       "alice@a.example",
		TransportSelector: "websocket",
		MessagingAddress:  "ws://new:8081/ws",
	}))
	require.NoError(t, repo.Register(ctx, domain.DirectoryRecord{
		RtcIdentity:       "alice@a.example",
		TransportSelector: "datachannel",
	}))

	records, err := repo.Lookup(ctx, "alice@a.example")
	require.NoError(t, err)
	require.Len(t, records, 2)

	bysel := make(map[string]string)
	for _, r := range records {
		bysel[r.TransportSelector] = r.MessagingAddress
	}
	assert.Equal(t, "ws://new:8081/ws", bysel["websocket"])
}

func TestRegisterRejectsEmptyIdentity(t *testing.T) {
	repo := NewDirectoryRepository()
	err := repo.Register(context.Background(), domain.DirectoryRecord{TransportSelector: "websocket"})
	assert.ErrorIs(t, err, domain.ErrIdentityNotFound)
}

func TestRemove(t *testing.T) {
	repo := NewDirectoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Register(ctx, domain.DirectoryRecord{
		RtcIdentity:       "alice@a.example",
		TransportSelector: "websocket",
	}))
	assert.Equal(t, 1, repo.Count())

	require.NoError(t, repo.Remove(ctx, "alice@a.example"))
	assert.Equal(t, 0, repo.Count())

	records, err := repo.Lookup(ctx, "alice@a.example")
	require.NoError(t, err)
	assert.Empty(t, records)

	assert.ErrorIs(t, repo.Remove(ctx, "alice@a.example"), domain.ErrIdentityNotFound)
}
