package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when invites are requested too quickly.
var ErrRateLimited = errors.New("invite rate limit exceeded")

// AliasInfo is what the room's web surface knows about an alias.
type AliasInfo struct {
	Alias              string `json:"alias"`
	RoomID             string `json:"roomId"`
	UserID             string `json:"userId"`
	Signature          string `json:"signature"`
	MultiserverAddress string `json:"multiserverAddress"`
}

// WebClientConfig configures a WebClient.
type WebClientConfig struct {
	BaseURL       string
	HTTPClient    *http.Client // 10s timeout when nil
	AliasCacheLen int          // 256 when zero
	InvitesPerMin float64      // 0 disables the limit
}

// WebClient talks to the room's HTTP surface: aliases, invites, notices.
type WebClient struct {
	base    string
	http    *http.Client
	aliases *lru.Cache
	invites *rate.Limiter
}

// NewWebClient creates a client for the room at cfg.BaseURL.
func NewWebClient(cfg WebClientConfig) (*WebClient, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("invalid room url %q", cfg.BaseURL)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.AliasCacheLen <= 0 {
		cfg.AliasCacheLen = 256
	}
	cache, err := lru.New(cfg.AliasCacheLen)
	if err != nil {
		return nil, err
	}

	c := &WebClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		aliases: cache,
	}
	if cfg.InvitesPerMin > 0 {
		c.invites = rate.NewLimiter(rate.Limit(cfg.InvitesPerMin/60), 1)
	}
	return c, nil
}

// URL returns the room's base url.
func (c *WebClient) URL() string {
	return c.base
}

// Alias looks up an alias. Returns nil when the room doesn't know it.
func (c *WebClient) Alias(ctx context.Context, alias string) (*AliasInfo, error) {
	if cached, ok := c.aliases.Get(alias); ok {
		return cached.(*AliasInfo), nil
	}

	var resp struct {
		AliasInfo
		Error string `json:"error"`
	}
	endpoint := c.base + "/alias/" + url.PathEscape(alias) + "?encoding=json"
	if err := c.do(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("alias %s: %w", alias, err)
	}
	if resp.Error != "" {
		return nil, nil
	}

	info := resp.AliasInfo
	c.aliases.Add(alias, &info)
	return &info, nil
}

// PurgeAliases drops cached alias lookups. Called after each room refresh so
// revoked aliases disappear.
func (c *WebClient) PurgeAliases(*State) {
	c.aliases.Purge()
}

// CreateInvite asks the room for a fresh invite link. Returns "" when the
// room refuses.
func (c *WebClient) CreateInvite(ctx context.Context) (string, error) {
	if c.invites != nil && !c.invites.Allow() {
		return "", ErrRateLimited
	}

	var resp struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, c.base+"/create-invite", &resp); err != nil {
		return "", fmt.Errorf("create invite: %w", err)
	}
	if resp.Error != "" {
		logrus.Infof("🎟️ room refused invite: %s", resp.Error)
		return "", nil
	}
	return resp.URL, nil
}

// Notices fetches the room's notice list.
func (c *WebClient) Notices(ctx context.Context) (Notices, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, c.base+"/notice/list?encoding=json", &raw); err != nil {
		return nil, fmt.Errorf("notices: %w", err)
	}

	var failed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &failed) == nil && failed.Error != "" {
		return nil, fmt.Errorf("notices: room says %s", failed.Error)
	}

	var notices Notices
	if err := json.Unmarshal(raw, &notices); err != nil {
		return nil, fmt.Errorf("decode notices: %w", err)
	}
	return notices, nil
}

func (c *WebClient) do(ctx context.Context, method, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	// the room answers errors as JSON too, with 4xx codes
	if resp.StatusCode >= 500 {
		return fmt.Errorf("room returned %s", resp.Status)
	}
	return json.Unmarshal(body, out)
}
