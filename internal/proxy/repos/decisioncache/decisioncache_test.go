package decisioncache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/phishguard/internal/proxy/common/clock"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newCache(t *testing.T, size int) (*decisionCache, *clock.MockClock) {
	t.Helper()
	clk := clock.NewMockClock(epoch)
	c, err := New(size, DefaultTTL, clk)
	require.NoError(t, err)
	return c, clk
}

func TestInvalidCacheSize(t *testing.T) {
	_, err := New(-1, DefaultTTL, nil)
	assert.Error(t, err)
}

func TestDecisionCache_PutGet(t *testing.T) {
	c, _ := newCache(t, 4)
	c.Put("Example.COM", 0.3, []string{"suspicious TLD: xyz"})

	score, reasons, ok := c.Get("example.com")
	require.True(t, ok)
	assert.InDelta(t, 0.3, score, 1e-9)
	assert.Equal(t, []string{"suspicious TLD: xyz"}, reasons)
}

func TestDecisionCache_Expiry(t *testing.T) {
	c, clk := newCache(t, 4)
	c.Put("a.example", 0.1, nil)

	clk.Advance(DefaultTTL - time.Second)
	_, _, ok := c.Get("a.example")
	assert.True(t, ok, "entry should live until the TTL elapses")

	clk.Advance(time.Second)
	_, _, ok = c.Get("a.example")
	assert.False(t, ok, "entry expires exactly at TTL")
	assert.Equal(t, 0, c.Len(), "expired entry removed on read")
}

func TestDecisionCache_ExpiryFromCreationNotAccess(t *testing.T) {
	c, clk := newCache(t, 4)
	c.Put("a.example", 0.1, nil)
	for i := 0; i < 5; i++ {
		clk.Advance(100 * time.Second)
		_, _, ok := c.Get("a.example")
		require.True(t, ok)
	}
	clk.Advance(100 * time.Second)
	_, _, ok := c.Get("a.example")
	assert.False(t, ok, "reads must not extend the lifetime")
}

func TestDecisionCache_PutResetsCreation(t *testing.T) {
	c, clk := newCache(t, 4)
	c.Put("a.example", 0.1, nil)
	clk.Advance(500 * time.Second)
	c.Put("a.example", 0.2, nil)
	clk.Advance(500 * time.Second)
	score, _, ok := c.Get("a.example")
	require.True(t, ok)
	assert.InDelta(t, 0.2, score, 1e-9)
}

func TestDecisionCache_ReasonsAreCopied(t *testing.T) {
	c, _ := newCache(t, 4)
	in := []string{"excessive hyphens: 4"}
	c.Put("a.example", 0.2, in)
	in[0] = "mutated"

	_, got, ok := c.Get("a.example")
	require.True(t, ok)
	assert.Equal(t, "excessive hyphens: 4", got[0])

	got[0] = "mutated again"
	_, again, _ := c.Get("a.example")
	assert.Equal(t, "excessive hyphens: 4", again[0])
}

func TestDecisionCache_LRUBound(t *testing.T) {
	c, _ := newCache(t, 2)
	c.Put("a.example", 0, nil)
	c.Put("b.example", 0, nil)
	c.Put("c.example", 0, nil)
	assert.Equal(t, 2, c.Len())
	_, _, ok := c.Get("a.example")
	assert.False(t, ok)

	c.Delete("b.example")
	assert.Equal(t, 1, c.Len())
	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestDecisionCache_Concurrent(t *testing.T) {
	c, _ := newCache(t, 64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Put("x.example", 0.1, []string{"r"})
				c.Get("x.example")
			}
		}()
	}
	wg.Wait()
	_, _, ok := c.Get("x.example")
	assert.True(t, ok)
}
