package blacklist

import "context"

// Source provides the active deny lists. It is queried only during refresh.
// Implementations return raw entries; canonicalization and CIDR parsing happen
// in the cache so every backend behaves the same.
type Source interface {
	FetchActiveDomains(ctx context.Context) ([]string, error)
	FetchActiveCidrs(ctx context.Context) ([]string, error)
}

// BloomFilter is the minimal read-side interface the cache needs from a Bloom filter.
// Filters are built once per snapshot and never mutated after publication.
type BloomFilter interface {
	MightContain(key string) bool
}

// BloomFactory builds a filter over keys sized for the target false-positive rate.
type BloomFactory interface {
	Build(keys []string, fpRate float64) BloomFilter
}

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}
