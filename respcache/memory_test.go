package respcache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFingerprintNormalizesCaseAndWhitespace(t *testing.T) {
	a := Fingerprint("What is Article 80?", "case facts")
	b := Fingerprint("  what is article 80?", "CASE FACTS  ")
	assert.Equal(t, a, b)

	// Different case context means a different key for the same query.
	c := Fingerprint("What is Article 80?", "other facts")
	assert.NotEqual(t, a, c)
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(30*time.Minute, 100, 20, zap.NewNop())
	ctx := context.Background()

	key := Fingerprint("q", "ctx")

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, "cached answer")

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "cached answer", got)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache(30*time.Minute, 100, 20, zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }
	c.Set(ctx, "k", "v")

	// Just inside the TTL.
	c.now = func() time.Time { return base.Add(29 * time.Minute) }
	_, ok := c.Get(ctx, "k")
	assert.True(t, ok)

	// Age exactly equal to the TTL is already stale.
	c.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryCacheBulkEviction(t *testing.T) {
	c := NewMemoryCache(time.Hour, 100, 20, zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 100; i++ {
		c.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		c.Set(ctx, fmt.Sprintf("key-%03d", i), "v")
	}
	require.Equal(t, 100, c.Len())

	// The 101st insert evicts the 20 oldest in one batch.
	c.Set(ctx, "key-new", "v")
	assert.Equal(t, 81, c.Len())

	for i := 0; i < 20; i++ {
		_, ok := c.Get(ctx, fmt.Sprintf("key-%03d", i))
		assert.False(t, ok, "key-%03d should have been evicted", i)
	}
	_, ok := c.Get(ctx, "key-020")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "key-new")
	assert.True(t, ok)
}

func TestMemoryCacheOverwriteDoesNotEvict(t *testing.T) {
	c := NewMemoryCache(time.Hour, 2, 1, zap.NewNop())
	ctx := context.Background()

	c.Set(ctx, "a", "1")
	c.Set(ctx, "b", "2")
	c.Set(ctx, "a", "3") // existing key, no eviction

	assert.Equal(t, 2, c.Len())
	got, ok := c.Get(ctx, "b")
	require.True(t, ok)
	assert.Equal(t, "2", got)
}
