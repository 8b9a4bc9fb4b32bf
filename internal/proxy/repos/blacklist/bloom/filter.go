package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/phishguard/internal/proxy/repos/blacklist"
)

// filter wraps a bits-and-blooms BloomFilter that is fully populated before it
// is handed out, so concurrent MightContain calls need no locking.
type filter struct {
	bf *bitsbloom.BloomFilter
}

func (f *filter) MightContain(key string) bool {
	return f.bf.TestString(key)
}

// factory implements blacklist.BloomFactory using the sizer formulas.
type factory struct {
	sizer blacklist.BloomSizer
}

// NewFactory returns a BloomFactory that sizes filters from key count and FP rate.
func NewFactory() blacklist.BloomFactory { return factory{sizer: NewSizer()} }

// Build constructs a filter containing every key.
func (f factory) Build(keys []string, fpRate float64) blacklist.BloomFilter {
	m, k := f.sizer.Size(uint64(len(keys)), fpRate)
	bf := bitsbloom.New(uint(m), uint(k))
	for _, key := range keys {
		bf.AddString(key)
	}
	return &filter{bf: bf}
}

var _ blacklist.BloomFilter = (*filter)(nil)
