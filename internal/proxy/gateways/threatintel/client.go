// Package threatintel queries a Safe Browsing v4 compatible endpoint for
// known-bad URLs.
package threatintel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/haukened/phishguard/internal/proxy/common/log"
	"github.com/haukened/phishguard/internal/proxy/domain"
)

const (
	DefaultURL     = "https://safebrowsing.googleapis.com/v4/threatMatches:find"
	DefaultTimeout = 5 * time.Second

	clientID      = "phishguard"
	clientVersion = "1.0.0"
)

// ThreatTypes are the categories requested on every lookup.
var ThreatTypes = []string{
	"MALWARE",
	"SOCIAL_ENGINEERING",
	"UNWANTED_SOFTWARE",
	"POTENTIALLY_HARMFUL_APPLICATION",
}

// ErrStatus is wrapped when the endpoint answers with a non-2xx status.
var ErrStatus = errors.New("threat intel: unexpected status")

type Options struct {
	APIKey     string
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     log.Logger
}

// Client performs lookups. Without an API key it is disabled and every lookup
// returns an empty match.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
	logger   log.Logger
}

func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Client{
		apiKey:   opts.APIKey,
		endpoint: opts.URL,
		http:     opts.HTTPClient,
		logger:   opts.Logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

type findRequest struct {
	Client     clientInfo `json:"client"`
	ThreatInfo threatInfo `json:"threatInfo"`
}

type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type threatInfo struct {
	ThreatTypes      []string      `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []threatEntry `json:"threatEntries"`
}

type threatEntry struct {
	URL string `json:"url"`
}

type findResponse struct {
	Matches []struct {
		ThreatType string       `json:"threatType"`
		Threat     *threatEntry `json:"threat"`
	} `json:"matches"`
}

// Lookup asks whether host is a known threat.
func (c *Client) Lookup(ctx context.Context, host string) (domain.ThreatMatch, error) {
	if !c.Enabled() {
		return domain.ThreatMatch{}, nil
	}

	body, err := json.Marshal(findRequest{
		Client: clientInfo{ClientID: clientID, ClientVersion: clientVersion},
		ThreatInfo: threatInfo{
			ThreatTypes:      ThreatTypes,
			PlatformTypes:    []string{"ANY_PLATFORM"},
			ThreatEntryTypes: []string{"URL"},
			ThreatEntries:    []threatEntry{{URL: host}},
		},
	})
	if err != nil {
		return domain.ThreatMatch{}, fmt.Errorf("encode request: %w", err)
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return domain.ThreatMatch{}, fmt.Errorf("threat intel url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return domain.ThreatMatch{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ThreatMatch{}, fmt.Errorf("threat intel request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.ThreatMatch{}, fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	var out findResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ThreatMatch{}, fmt.Errorf("decode response: %w", err)
	}

	m := domain.ThreatMatch{}
	for _, raw := range out.Matches {
		t := domain.Threat{Type: raw.ThreatType}
		if t.Type == "" {
			t.Type = "UNKNOWN_THREAT"
		}
		if raw.Threat != nil {
			t.URL = raw.Threat.URL
		}
		m.Threats = append(m.Threats, t)
	}
	if m.Found() {
		c.logger.Debug(map[string]any{"host": host, "threats": m.Info()}, "threat intel match")
	}
	return m, nil
}
