package oauth

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
)

// Canonical underscore-form config keys. Readers must check the canonical
// key first, then fall back through a fixed alias list (dot form, legacy
// bundle object, environment) in that order.
const (
	keyAccessToken  = "oauth_vendor_access_token"
	keyRefreshToken = "oauth_vendor_refresh_token"
	keyExpiresAt    = "oauth_vendor_expires_at"
	keyLegacyBundle = "oauth_vendor_bundle"

	dotAccessToken  = "oauth.vendor.access_token"
	dotRefreshToken = "oauth.vendor.refresh_token"
	dotExpiresAt    = "oauth.vendor.expires_at"

	envAccessToken  = "VENDOR_OAUTH_ACCESS_TOKEN"
	envRefreshToken = "VENDOR_OAUTH_REFRESH_TOKEN"
)

type legacyBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
}

func (m *manager) readCached(ctx context.Context) (token string, expiresAt int64, err error) {
	token, found, err := m.store.Get(ctx, keyAccessToken)
	if err != nil {
		return "", 0, err
	}
	if !found || token == "" {
		if v, ok, dotErr := m.store.Get(ctx, dotAccessToken); dotErr == nil && ok && v != "" {
			token = v
		}
	}
	if token == "" {
		if bundle, ok := m.readBundle(ctx); ok && bundle.AccessToken != "" {
			return bundle.AccessToken, bundle.ExpiresAt, nil
		}
	}
	if token == "" {
		token = os.Getenv(envAccessToken)
	}
	if token == "" {
		return "", 0, nil
	}

	expiresAt = m.readExpiresAt(ctx)
	return token, expiresAt, nil
}

func (m *manager) readExpiresAt(ctx context.Context) int64 {
	if v, ok, err := m.store.Get(ctx, keyExpiresAt); err == nil && ok && v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			return n
		}
	}
	if v, ok, err := m.store.Get(ctx, dotExpiresAt); err == nil && ok && v != "" {
		if n, perr := strconv.ParseInt(v, 10, 64); perr == nil {
			return n
		}
	}
	if bundle, ok := m.readBundle(ctx); ok {
		return bundle.ExpiresAt
	}
	return 0
}

func (m *manager) readRefreshToken(ctx context.Context) (string, bool, error) {
	v, found, err := m.store.Get(ctx, keyRefreshToken)
	if err != nil {
		return "", false, err
	}
	if found && v != "" {
		return v, true, nil
	}
	if v, ok, dotErr := m.store.Get(ctx, dotRefreshToken); dotErr == nil && ok && v != "" {
		return v, true, nil
	}
	if bundle, ok := m.readBundle(ctx); ok && bundle.RefreshToken != "" {
		return bundle.RefreshToken, true, nil
	}
	if v := os.Getenv(envRefreshToken); v != "" {
		return v, true, nil
	}
	return "", false, nil
}

func (m *manager) readBundle(ctx context.Context) (legacyBundle, bool) {
	raw, found, err := m.store.Get(ctx, keyLegacyBundle)
	if err != nil || !found || raw == "" {
		return legacyBundle{}, false
	}
	var bundle legacyBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return legacyBundle{}, false
	}
	return bundle, true
}
