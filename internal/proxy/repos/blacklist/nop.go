package blacklist

import "context"

// NopSource is a Source with empty deny lists, used when no backend is configured.
type NopSource struct{}

func (NopSource) FetchActiveDomains(context.Context) ([]string, error) { return nil, nil }

func (NopSource) FetchActiveCidrs(context.Context) ([]string, error) { return nil, nil }

var _ Source = NopSource{}
