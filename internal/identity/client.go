// Package identity verifies dashboard sessions against the Supabase auth
// endpoint and resolves them to a caller identity.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"comunicacion/chat-gateway/internal/domain"
	"comunicacion/chat-gateway/internal/service/ports"
)

const (
	identityCacheTTL = 60 * time.Second
	accessCookieName = "sb-access-token"
)

type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	cache      *gocache.Cache
}

func NewClient(baseURL, anonKey string) *Client {
	return NewClientWithHTTPClient(baseURL, anonKey, &http.Client{Timeout: 10 * time.Second})
}

func NewClientWithHTTPClient(baseURL, anonKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		anonKey:    strings.TrimSpace(anonKey),
		httpClient: httpClient,
		cache:      gocache.New(identityCacheTTL, 2*identityCacheTTL),
	}
}

// CurrentUser resolves an access token to the authenticated identity.
// A missing or rejected token yields ports.ErrNoSession; transport and
// unexpected upstream failures are hard errors.
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (domain.Identity, error) {
	token := strings.TrimSpace(accessToken)
	if token == "" {
		return domain.Identity{}, ports.ErrNoSession
	}
	if cached, ok := c.cache.Get(token); ok {
		if identity, ok := cached.(domain.Identity); ok {
			return identity, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("create auth request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Identity{}, ports.ErrNoSession
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return domain.Identity{}, fmt.Errorf("auth service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var identity domain.Identity
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024*1024)).Decode(&identity); err != nil {
		return domain.Identity{}, fmt.Errorf("decode auth response: %w", err)
	}
	if strings.TrimSpace(identity.ID) == "" {
		return domain.Identity{}, ports.ErrNoSession
	}
	c.cache.Set(token, identity, gocache.DefaultExpiration)
	return identity, nil
}

// TokenFromRequest extracts the session token from the Authorization header
// or, failing that, the auth cookie set by the dashboard.
func TokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(accessCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}
