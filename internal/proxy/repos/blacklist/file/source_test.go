package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Fetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deny.list")
	require.NoError(t, os.WriteFile(path, []byte("evil.com\n# note\n10.0.0.0/8\nphish.example\n"), 0o600))

	s := New(path, nil)
	ctx := context.Background()

	domains, err := s.FetchActiveDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"evil.com", "phish.example"}, domains)

	cidrs, err := s.FetchActiveCidrs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8"}, cidrs)

	require.NoError(t, os.WriteFile(path, []byte("other.example\n"), 0o600))
	domains, err = s.FetchActiveDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"other.example"}, domains, "file is re-read on each fetch")
}

func TestSource_MissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent"), nil)
	_, err := s.FetchActiveDomains(context.Background())
	assert.ErrorContains(t, err, "open deny list")
	_, err = s.FetchActiveCidrs(context.Background())
	assert.Error(t, err)
}

func TestSource_HostsFormat(t *testing.T) {
	dir := t.TempDir()
	content := []byte("# hosts list\n0.0.0.0 evil.example\n127.0.0.1 bad.example other.example\n")

	for _, name := range []string{"hosts", "deny.txt"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, content, 0o600))

			s := New(path, nil)
			domains, err := s.FetchActiveDomains(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"evil.example", "bad.example", "other.example"}, domains)

			cidrs, err := s.FetchActiveCidrs(context.Background())
			require.NoError(t, err)
			assert.Empty(t, cidrs)
		})
	}
}
