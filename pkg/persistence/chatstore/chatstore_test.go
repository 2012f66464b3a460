package chatstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/chat"
)

func TestFingerprintNormalization(t *testing.T) {
	base := Fingerprint("What is 5G?")
	require.Len(t, base, 64)
	require.Equal(t, base, Fingerprint("what is 5g?"))
	require.Equal(t, base, Fingerprint("  What   is\t5G?  "))
	require.Equal(t, base, Fingerprint("WHAT\nIS\n5G?"))
	require.NotEqual(t, base, Fingerprint("What is 6G?"))
}

func TestFingerprintStable(t *testing.T) {
	// The hash is persisted; it must never drift between runs.
	require.Equal(t,
		"b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9",
		Fingerprint("hello world"))
}

func TestMemoryQueryCacheRoundTrip(t *testing.T) {
	cache := NewMemoryQueryCache()
	ctx := context.Background()

	entry, err := cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	require.Nil(t, entry)

	require.NoError(t, cache.Insert(ctx, chat.CacheEntry{
		ID: "e1", ConversationID: "c", UserID: "u",
		QuestionHash: "h", Question: "q", Answer: "a stored answer",
	}))

	entry, err = cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "a stored answer", entry.Answer)
	require.Equal(t, 1, entry.HitCount)
}

func TestMemoryQueryCacheFirstWriterWins(t *testing.T) {
	cache := NewMemoryQueryCache()
	ctx := context.Background()

	require.NoError(t, cache.Insert(ctx, chat.CacheEntry{
		ID: "e1", QuestionHash: "h", UserID: "u", ConversationID: "c", Answer: "first",
	}))
	require.NoError(t, cache.Insert(ctx, chat.CacheEntry{
		ID: "e2", QuestionHash: "h", UserID: "u", ConversationID: "c", Answer: "second",
	}))

	entry, err := cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	require.Equal(t, "first", entry.Answer)
}

func TestMemoryQueryCacheExpiry(t *testing.T) {
	cache := NewMemoryQueryCache()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.SetNowFunc(func() time.Time { return base })

	require.NoError(t, cache.Insert(ctx, chat.CacheEntry{
		ID: "e1", QuestionHash: "h", UserID: "u", ConversationID: "c",
		Answer: "a", ExpiresAt: base.Add(24 * time.Hour),
	}))

	entry, err := cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	require.NotNil(t, entry)

	cache.SetNowFunc(func() time.Time { return base.Add(24*time.Hour + time.Second) })
	entry, err = cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestMemoryQueryCacheRecordHit(t *testing.T) {
	cache := NewMemoryQueryCache()
	ctx := context.Background()

	require.NoError(t, cache.RecordHit(ctx, "h", "u", "c"), "hit on absent entry is a no-op")

	require.NoError(t, cache.Insert(ctx, chat.CacheEntry{
		ID: "e1", QuestionHash: "h", UserID: "u", ConversationID: "c", Answer: "a",
	}))
	require.NoError(t, cache.RecordHit(ctx, "h", "u", "c"))
	require.NoError(t, cache.RecordHit(ctx, "h", "u", "c"))

	entry, err := cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	require.Equal(t, 3, entry.HitCount)
}

func TestMemoryQueryCacheLookupReturnsCopy(t *testing.T) {
	cache := NewMemoryQueryCache()
	ctx := context.Background()

	require.NoError(t, cache.Insert(ctx, chat.CacheEntry{
		ID: "e1", QuestionHash: "h", UserID: "u", ConversationID: "c", Answer: "a",
	}))

	entry, err := cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	entry.Answer = "mutated"

	entry, err = cache.Lookup(ctx, "h", "u", "c")
	require.NoError(t, err)
	require.Equal(t, "a", entry.Answer)
}
