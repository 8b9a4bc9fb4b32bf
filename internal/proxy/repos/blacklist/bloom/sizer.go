package bloom

import (
	"math"

	"github.com/haukened/phishguard/internal/proxy/repos/blacklist"
)

const (
	// DefaultFPRate applies when the configured rate is outside (0, 1).
	DefaultFPRate = 0.01

	// MinKeys is the capacity floor. Deny lists are often empty or tiny right
	// after startup; a filter sized for them would be a handful of bits.
	MinKeys = 64

	// MaxHashes caps k. Very small FP targets would otherwise overflow uint8
	// and make every lookup hash dozens of times.
	MaxHashes = 16
)

// sizer derives filter parameters from a snapshot's domain count:
//
//	m = - (n * ln p) / (ln 2)^2
//	k = (m / n) * ln 2
//
// n is floored at minKeys and k is clamped to [1, maxHashes].
type sizer struct {
	minKeys   uint64
	maxHashes uint8
}

// NewSizer returns the sizer used for blacklist snapshots.
func NewSizer() blacklist.BloomSizer {
	return sizer{minKeys: MinKeys, maxHashes: MaxHashes}
}

func (s sizer) Size(domains uint64, fpRate float64) (uint64, uint8) {
	n := max(domains, s.minKeys, 1)
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = DefaultFPRate
	}
	m := uint64(math.Ceil(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
	k := math.Round(float64(m) / float64(n) * math.Ln2)
	k = math.Min(math.Max(k, 1), float64(max(s.maxHashes, 1)))
	return max(m, 1), uint8(k)
}
