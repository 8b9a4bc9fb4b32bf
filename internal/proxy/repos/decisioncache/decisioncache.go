package decisioncache

import (
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/phishguard/internal/proxy/common/clock"
	"github.com/haukened/phishguard/internal/proxy/metrics"
)

// DefaultTTL is how long a heuristic verdict is reused.
const DefaultTTL = 600 * time.Second

// DefaultSize bounds the number of cached domains.
const DefaultSize = 10000

type entry struct {
	score   float64
	reasons []string
	created time.Time
}

// decisionCache memoizes heuristic scores per domain. Expiry is measured from
// the moment an entry was stored and is checked when it is read.
type decisionCache struct {
	lru   *lru.Cache[string, entry]
	clock clock.Clock
	ttl   time.Duration
}

// New returns a decisionCache holding at most size domains.
func New(size int, ttl time.Duration, clk clock.Clock) (*decisionCache, error) {
	cache, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = &clock.RealClock{}
	}
	return &decisionCache{lru: cache, clock: clk, ttl: ttl}, nil
}

// Get returns the cached score and reasons for name. Expired entries are
// removed and reported as absent.
func (c *decisionCache) Get(name string) (float64, []string, bool) {
	key := strings.ToLower(name)
	e, found := c.lru.Get(key)
	if !found {
		metrics.RecordCacheLookup(false)
		return 0, nil, false
	}
	if c.clock.Now().Sub(e.created) >= c.ttl {
		c.lru.Remove(key)
		metrics.RecordCacheLookup(false)
		return 0, nil, false
	}
	metrics.RecordCacheLookup(true)
	return e.score, copyReasons(e.reasons), true
}

// Put stores a verdict for name, replacing any previous one.
func (c *decisionCache) Put(name string, score float64, reasons []string) {
	c.lru.Add(strings.ToLower(name), entry{
		score:   score,
		reasons: copyReasons(reasons),
		created: c.clock.Now(),
	})
}

// Delete drops name from the cache.
func (c *decisionCache) Delete(name string) {
	c.lru.Remove(strings.ToLower(name))
}

// Len returns the number of entries, including ones that expired but were not read since.
func (c *decisionCache) Len() int {
	return c.lru.Len()
}

// Purge removes every entry.
func (c *decisionCache) Purge() {
	c.lru.Purge()
}

func copyReasons(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
