// Package probe checks whether an HTTPS origin redirects clients to plain HTTP.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haukened/phishguard/internal/proxy/domain"
)

const DefaultTimeout = 5 * time.Second

type Options struct {
	Timeout time.Duration
	// RootCAs overrides the system pool; nil uses the host's trust store.
	RootCAs *x509.CertPool
}

// Client issues probe requests. Certificates are always verified.
type Client struct {
	http *http.Client
}

func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:               nil,
		TLSClientConfig:     &tls.Config{RootCAs: opts.RootCAs, MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout: opts.Timeout,
		DisableKeepAlives:   true,
	}
	return &Client{http: &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

// Probe requests https://host/ and reports the status and Location header.
// Certificate failures wrap domain.ErrCertificate.
func (c *Client) Probe(ctx context.Context, host string) (domain.ProbeResult, error) {
	if strings.Count(host, ":") > 1 && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host, nil)
	if err != nil {
		return domain.ProbeResult{}, fmt.Errorf("probe request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if isCertificateError(err) {
			return domain.ProbeResult{}, fmt.Errorf("%w: %v", domain.ErrCertificate, err)
		}
		return domain.ProbeResult{}, fmt.Errorf("probe %s: %w", host, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return domain.ProbeResult{Status: resp.StatusCode, Location: resp.Header.Get("Location")}, nil
}

func isCertificateError(err error) bool {
	var verr *tls.CertificateVerificationError
	var unknown x509.UnknownAuthorityError
	var hostname x509.HostnameError
	var invalid x509.CertificateInvalidError
	return errors.As(err, &verr) ||
		errors.As(err, &unknown) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}
