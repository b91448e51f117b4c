package evict

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oppie-vault/tidecache/pkg/tidecache/entry"
)

func mkEntry(key string, accessCount uint64, expire *int64) *entry.Entry {
	e := entry.New(key, []byte("v"), nil, expire, 1000)
	e.AccessCount = accessCount
	return e
}

func TestLRUSelectsOldestFirst(t *testing.T) {
	l := NewLRU()
	l.OnInsert("a", mkEntry("a", 1, nil))
	l.OnInsert("b", mkEntry("b", 1, nil))
	l.OnInsert("c", mkEntry("c", 1, nil))

	require.Equal(t, []string{"a", "b"}, l.SelectVictims(2))

	l.OnAccess("a", mkEntry("a", 1, nil))
	require.Equal(t, []string{"b", "c"}, l.SelectVictims(2))
}

func TestLRURemoveDropsKey(t *testing.T) {
	l := NewLRU()
	l.OnInsert("a", mkEntry("a", 1, nil))
	l.OnInsert("b", mkEntry("b", 1, nil))
	l.OnRemove("a")
	require.Equal(t, []string{"b"}, l.SelectVictims(5))
}

func TestLFUSelectsLeastFrequentFirst(t *testing.T) {
	f := NewLFU()
	f.OnInsert("a", mkEntry("a", 5, nil))
	f.OnInsert("b", mkEntry("b", 1, nil))
	f.OnInsert("c", mkEntry("c", 3, nil))

	require.Equal(t, []string{"b", "c"}, f.SelectVictims(2))
}

func TestLFURebucketsOnAccess(t *testing.T) {
	f := NewLFU()
	f.OnInsert("a", mkEntry("a", 1, nil))
	f.OnInsert("b", mkEntry("b", 2, nil))
	f.OnAccess("a", mkEntry("a", 10, nil))

	require.Equal(t, []string{"b"}, f.SelectVictims(1))
}

func TestTTLSelectsOnlyExpired(t *testing.T) {
	tt := NewTTL()
	tt.now = func() int64 { return 1000 }

	past := int64(900)
	future := int64(2000)
	tt.OnInsert("expired", mkEntry("expired", 1, &past))
	tt.OnInsert("alive", mkEntry("alive", 1, &future))

	require.Equal(t, []string{"expired"}, tt.ExpiredKeys())
	require.Equal(t, []string{"expired"}, tt.SelectVictims(5))
}

func TestTTLIgnoresEntriesWithoutExpiry(t *testing.T) {
	tt := NewTTL()
	tt.OnInsert("no-expiry", mkEntry("no-expiry", 1, nil))
	require.Empty(t, tt.ExpiredKeys())
}

func TestCompositeLRUTTLDrainsExpiredFirst(t *testing.T) {
	c := NewComposite(StrategyLRUTTL)
	c.ttl.now = func() int64 { return 1000 }

	past := int64(900)
	c.OnInsert("expired", mkEntry("expired", 1, &past))
	c.OnInsert("a", mkEntry("a", 1, nil))
	c.OnInsert("b", mkEntry("b", 1, nil))

	victims := c.SelectVictims(2)
	require.Equal(t, []string{"expired", "a"}, victims)
}

func TestCompositeLFUTTLFallsThroughToLFU(t *testing.T) {
	c := NewComposite(StrategyLFUTTL)
	c.ttl.now = func() int64 { return 1000 }

	c.OnInsert("rare", mkEntry("rare", 1, nil))
	c.OnInsert("common", mkEntry("common", 9, nil))

	require.Equal(t, []string{"rare"}, c.SelectVictims(1))
}

func TestCompositePlainLRUIgnoresExpiry(t *testing.T) {
	c := NewComposite(StrategyLRU)
	past := int64(-1)
	c.OnInsert("a", mkEntry("a", 1, &past))
	c.OnInsert("b", mkEntry("b", 1, nil))

	// Plain LRU never populates the TTL index, so "a" is evicted only
	// because it was inserted first, not because it is expired.
	require.Equal(t, []string{"a"}, c.SelectVictims(1))
}

func TestCompositeClearResetsAllSubPolicies(t *testing.T) {
	c := NewComposite(StrategyLRUTTL)
	c.OnInsert("a", mkEntry("a", 1, nil))
	c.Clear()
	require.Empty(t, c.SelectVictims(5))
}
