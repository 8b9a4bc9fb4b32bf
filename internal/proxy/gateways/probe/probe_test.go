package probe

import (
	"context"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/phishguard/internal/proxy/domain"
)

func trusting(srv *httptest.Server) *Client {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return New(Options{RootCAs: pool})
}

func hostOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "https://")
}

func TestProbe_DowngradeRedirect(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "HTTP://plain.example/login", http.StatusFound)
	}))
	defer srv.Close()

	res, err := trusting(srv).Probe(context.Background(), hostOf(srv))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, res.Status)
	assert.True(t, res.Downgrade())
}

func TestProbe_SecureRedirectAndOK(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "https://secure.example/", http.StatusMovedPermanently)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := trusting(srv).Probe(context.Background(), hostOf(srv))
	require.NoError(t, err)
	assert.True(t, res.IsRedirect())
	assert.False(t, res.Downgrade(), "redirect is not followed and stays on https")
}

func TestProbe_CertificateFailure(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := New(Options{}).Probe(context.Background(), hostOf(srv))
	assert.ErrorIs(t, err, domain.ErrCertificate)
}

func TestProbe_ProtocolFailureIsNotCertificate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	_, err := New(Options{}).Probe(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCertificate)
}
