package threatintel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_Disabled(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	c := New(Options{URL: srv.URL})
	assert.False(t, c.Enabled())
	m, err := c.Lookup(context.Background(), "evil.example")
	require.NoError(t, err)
	assert.False(t, m.Found())
	assert.Zero(t, hits)
}

func TestLookup_RequestShapeAndMatches(t *testing.T) {
	var got findRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"matches":[
			{"threatType":"SOCIAL_ENGINEERING","threat":{"url":"evil.example"}},
			{"threatType":"MALWARE"}
		]}`))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "secret", URL: srv.URL})
	m, err := c.Lookup(context.Background(), "evil.example")
	require.NoError(t, err)
	require.True(t, m.Found())
	assert.Equal(t, "SOCIAL_ENGINEERING (evil.example); MALWARE ()", m.Info())

	assert.Equal(t, ThreatTypes, got.ThreatInfo.ThreatTypes)
	assert.Equal(t, []string{"ANY_PLATFORM"}, got.ThreatInfo.PlatformTypes)
	assert.Equal(t, []string{"URL"}, got.ThreatInfo.ThreatEntryTypes)
	require.Len(t, got.ThreatInfo.ThreatEntries, 1)
	assert.Equal(t, "evil.example", got.ThreatInfo.ThreatEntries[0].URL)
}

func TestLookup_NoMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	m, err := New(Options{APIKey: "k", URL: srv.URL}).Lookup(context.Background(), "good.example")
	require.NoError(t, err)
	assert.False(t, m.Found())
	assert.Equal(t, "", m.Info())
}

func TestLookup_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "bad" {
			http.Error(w, "denied", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := New(Options{APIKey: "bad", URL: srv.URL}).Lookup(context.Background(), "x.example")
	assert.ErrorIs(t, err, ErrStatus)

	_, err = New(Options{APIKey: "k", URL: srv.URL}).Lookup(context.Background(), "x.example")
	assert.ErrorContains(t, err, "decode response")

	srv.Close()
	_, err = New(Options{APIKey: "k", URL: srv.URL}).Lookup(context.Background(), "x.example")
	assert.Error(t, err)
}
