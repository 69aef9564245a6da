// Package oauth is the vendor OAuth token manager: EnsureValid/Refresh/
// Exchange with per-process and cross-process single-flight collapsing of
// concurrent refreshes.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// LockRunner is the subset of the work-item repository's advisory-lock
// contract the token manager needs: run fn while holding name, with a
// bounded timeout, tolerating lock unavailability (the protected section
// still runs, unprotected, if the lock can't be had).
type LockRunner interface {
	WithLock(ctx context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error
}

// expiryGraceSeconds is EnsureValid's "> now + 120 seconds" margin.
const expiryGraceSeconds = 120

const refreshLockName = "oauth_refresh"

// Manager is the public OAuth token manager contract.
type Manager interface {
	EnsureValid(ctx context.Context) (string, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Exchange(ctx context.Context, authCode string) (string, error)
	// ForceRefresh bypasses the cached-expiry check: the vendor's own 401
	// is stronger evidence of invalidity than our bookkeeping, so the
	// vendor HTTP client's one-shot reauth-and-retry calls this instead of
	// EnsureValid.
	ForceRefresh(ctx context.Context) (string, error)
}

type manager struct {
	store      config.Store
	locker     LockRunner
	httpClient *http.Client
	log        *logger.Logger

	tokenURL     string
	clientID     string
	clientSecret string

	sf singleflight.Group
}

func New(store config.Store, locker LockRunner, httpClient *http.Client, tokenURL, clientID, clientSecret string, log *logger.Logger) Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &manager{
		store:        store,
		locker:       locker,
		httpClient:   httpClient,
		log:          log.With("component", "oauth"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// EnsureValid returns a non-empty token whose expiry is more than 120
// seconds away. Expiry 0 means unknown and is never proactively refreshed.
func (m *manager) EnsureValid(ctx context.Context) (string, error) {
	token, expiresAt, err := m.readCached(ctx)
	if err != nil {
		return "", err
	}
	if token != "" && (expiresAt == 0 || time.Now().Unix() < expiresAt-expiryGraceSeconds) {
		return token, nil
	}

	// Per-process collapse: concurrent EnsureValid calls in this worker
	// share one refresh.
	v, err, _ := m.sf.Do("ensure_valid", func() (interface{}, error) {
		return m.refreshUnderLock(ctx, false)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// ForceRefresh always hits the vendor (or whichever worker's in-flight
// refresh wins the advisory lock), ignoring the cached expiry entirely.
func (m *manager) ForceRefresh(ctx context.Context) (string, error) {
	v, err, _ := m.sf.Do("force_refresh", func() (interface{}, error) {
		return m.refreshUnderLock(ctx, true)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refreshUnderLock acquires the cross-process advisory lock, double-checks
// the cached token under the lock (another worker may have just refreshed
// it), and only calls the vendor if still necessary. force skips the
// freshness double-check, since the caller already has external evidence
// (a 401) that the cached token is no good regardless of its expiry.
func (m *manager) refreshUnderLock(ctx context.Context, force bool) (string, error) {
	var result string
	var runErr error
	err := m.locker.WithLock(ctx, refreshLockName, 10*time.Second, func(lockCtx context.Context) error {
		token, expiresAt, err := m.readCached(lockCtx)
		if err != nil {
			runErr = err
			return err
		}
		if !force && token != "" && (expiresAt == 0 || time.Now().Unix() < expiresAt-expiryGraceSeconds) {
			result = token
			return nil
		}

		refreshToken, _, err := m.readRefreshToken(lockCtx)
		if err != nil {
			runErr = err
			return err
		}
		if refreshToken == "" {
			runErr = fmt.Errorf("oauth: no refresh token available to refresh access token")
			return runErr
		}
		newToken, refreshErr := m.doExchange(lockCtx, url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
		})
		if refreshErr != nil {
			runErr = refreshErr
			return refreshErr
		}
		result = newToken
		return nil
	})
	// WithLock wraps a lock-acquisition failure in *jobrepo.LockUnavailableError
	// even though fn ran successfully; only treat it as fatal if fn itself
	// recorded an error.
	if runErr != nil {
		return "", runErr
	}
	if err != nil && result == "" {
		return "", err
	}
	return result, nil
}

func (m *manager) Refresh(ctx context.Context, refreshToken string) (string, error) {
	return m.doExchange(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
}

func (m *manager) Exchange(ctx context.Context, authCode string) (string, error) {
	return m.doExchange(ctx, url.Values{
		"grant_type": {"authorization_code"},
		"code":       {authCode},
	})
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (m *manager) doExchange(ctx context.Context, form url.Values) (string, error) {
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("oauth: decode token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || payload.AccessToken == "" {
		return "", fmt.Errorf("oauth: token endpoint returned status %d", resp.StatusCode)
	}

	expiresAt := int64(0)
	if payload.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + payload.ExpiresIn
	} else if claimed := expiryFromJWT(payload.AccessToken); claimed > 0 {
		expiresAt = claimed
	}

	if err := m.persist(ctx, payload.AccessToken, payload.RefreshToken, expiresAt); err != nil {
		m.log.Warn("failed to persist refreshed oauth token", "error", err)
	}
	return payload.AccessToken, nil
}

// expiryFromJWT best-effort decodes an unverified JWT to read its exp claim,
// used when the vendor issues a JWT access token without an explicit
// expires_in in the token response.
func expiryFromJWT(token string) int64 {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return 0
	}
	exp, ok := claims["exp"]
	if !ok {
		return 0
	}
	switch v := exp.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		i, _ := v.Int64()
		return i
	default:
		return 0
	}
}

func (m *manager) persist(ctx context.Context, accessToken, refreshToken string, expiresAt int64) error {
	if err := m.store.Set(ctx, keyAccessToken, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := m.store.Set(ctx, keyRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	if expiresAt > 0 {
		if err := m.store.Set(ctx, keyExpiresAt, strconv.FormatInt(expiresAt, 10)); err != nil {
			return err
		}
	}
	return m.writeBundleAlias(ctx, accessToken, refreshToken, expiresAt)
}

func (m *manager) writeBundleAlias(ctx context.Context, accessToken, refreshToken string, expiresAt int64) error {
	bundle := map[string]interface{}{
		"access_token": accessToken,
		"expires_at":   expiresAt,
	}
	if refreshToken != "" {
		bundle["refresh_token"] = refreshToken
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, keyLegacyBundle, string(raw))
}
