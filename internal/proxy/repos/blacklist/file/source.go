// Package file serves the blacklist from a plain-text deny list on disk.
package file

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist"
	"github.com/haukened/phishguard/internal/proxy/repos/blacklist/parsers"
)

// Source re-reads its file on every fetch, so edits are picked up on the next refresh.
type Source struct {
	path   string
	logger log.Logger
}

// New returns a Source for the list at path.
func New(path string, logger log.Logger) *Source {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Source{path: path, logger: logger}
}

// Load parses the list once. Hosts-format files are recognized by name or
// by their first entry; everything else is read as a plain list.
func (s *Source) Load() (parsers.Entries, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return parsers.Entries{}, fmt.Errorf("open deny list: %w", err)
	}
	format := parsers.DetectFormat(s.path, data)
	entries, err := parsers.Parse(bytes.NewReader(data), format, s.path, s.logger)
	if err != nil {
		return parsers.Entries{}, fmt.Errorf("parse deny list %s: %w", s.path, err)
	}
	s.logger.Debug(map[string]any{
		"path":    s.path,
		"format":  format.String(),
		"domains": len(entries.Domains),
		"cidrs":   len(entries.Cidrs),
	}, "deny list loaded")
	return entries, nil
}

func (s *Source) FetchActiveDomains(context.Context) ([]string, error) {
	e, err := s.Load()
	if err != nil {
		return nil, err
	}
	return e.Domains, nil
}

func (s *Source) FetchActiveCidrs(context.Context) ([]string, error) {
	e, err := s.Load()
	if err != nil {
		return nil, err
	}
	return e.Cidrs, nil
}

var _ blacklist.Source = (*Source)(nil)
