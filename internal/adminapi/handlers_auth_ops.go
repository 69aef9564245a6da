package adminapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleTokenRefresh forces
// the OAuth manager to exchange the stored refresh token immediately,
// bypassing the expiry-based lazy refresh EnsureValid does on every vendor
// call.
func (s *Server) handleTokenRefresh(c *gin.Context) {
	if s.oauthMgr == nil {
		s.respondError(c, http.StatusNotImplemented, "not_configured", "no OAuth manager is configured", nil)
		return
	}
	token, err := s.oauthMgr.ForceRefresh(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusBadGateway, "refresh_failed", "token refresh failed", err)
		return
	}
	// The token itself never appears in the response; only enough of it to
	// confirm the store now holds a non-empty credential.
	s.respondOK(c, http.StatusOK, gin.H{"refreshed": true, "token_length": len(token)})
}

type keyRotateRequest struct {
	Target          string `json:"target"` // "admin_bearer" or "webhook_secret"
	OverlapMinutes  int    `json:"overlap_minutes"`
	NewSecret       string `json:"new_secret,omitempty"`
}

// handleKeyRotate rotates an admin credential (target in
// {admin_bearer, webhook_secret}, overlap_minutes ∈ [1..1440], optional
// explicit new secret)": the current value moves to the "previous" slot
// with an expiry overlap_minutes out, and a new value (generated if not
// supplied) becomes current. internal/webhook's signature verification and
// this package's own bearer check already read the "previous" slot while
// its expiry is in the future, so no restart is required for the overlap
// to take effect.
func (s *Server) handleKeyRotate(c *gin.Context) {
	var req keyRotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid_body", "could not parse request body", err)
		return
	}
	if req.OverlapMinutes < 1 || req.OverlapMinutes > 1440 {
		s.respondError(c, http.StatusBadRequest, "invalid_overlap", "overlap_minutes must be within [1..1440]", nil)
		return
	}

	var currentKey, previousKey, previousExpiresKey string
	switch req.Target {
	case "admin_bearer":
		currentKey, previousKey, previousExpiresKey = keyBearerCurrent, keyBearerPrevious, keyBearerPrevExpires
	case "webhook_secret":
		currentKey, previousKey, previousExpiresKey = "webhook.secret.current", "webhook.secret.previous", "webhook.secret.previous_expires_at"
	default:
		s.respondError(c, http.StatusBadRequest, "invalid_target", "target must be \"admin_bearer\" or \"webhook_secret\"", nil)
		return
	}

	ctx := c.Request.Context()
	oldValue, _, err := s.cfg.Get(ctx, currentKey)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "config_read_failed", "failed to read current key", err)
		return
	}

	newValue := req.NewSecret
	if newValue == "" {
		newValue, err = randomSecret()
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "keygen_failed", "failed to generate a new secret", err)
			return
		}
	}

	expiresAt := time.Now().Add(time.Duration(req.OverlapMinutes) * time.Minute).UTC().Format(time.RFC3339)

	if oldValue != "" {
		if err := s.cfg.Set(ctx, previousKey, oldValue); err != nil {
			s.respondError(c, http.StatusInternalServerError, "config_write_failed", "failed to stage previous key", err)
			return
		}
		if err := s.cfg.Set(ctx, previousExpiresKey, expiresAt); err != nil {
			s.respondError(c, http.StatusInternalServerError, "config_write_failed", "failed to stage previous key expiry", err)
			return
		}
	}
	if err := s.cfg.Set(ctx, currentKey, newValue); err != nil {
		s.respondError(c, http.StatusInternalServerError, "config_write_failed", "failed to write new key", err)
		return
	}

	s.log.Info("key rotated", "target", req.Target, "overlap_minutes", req.OverlapMinutes, "overlap_expires_at", expiresAt)
	s.respondOK(c, http.StatusOK, gin.H{"target": req.Target, "overlap_expires_at": expiresAt})
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// handleWebhookReplay exposes internal/webhook's Replay for the admin
// caller: admin sets a set of event ids to status replayed, stamping
// replayed_from and a reason, idempotent across calls.
func (s *Server) handleWebhookReplay(c *gin.Context) {
	var req struct {
		EventIDs []string `json:"event_ids"`
		Reason   string   `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid_body", "could not parse request body", err)
		return
	}
	if len(req.EventIDs) == 0 {
		s.respondError(c, http.StatusBadRequest, "invalid_event_ids", "event_ids must be non-empty", nil)
		return
	}
	n, err := s.webhooks.Replay(c.Request.Context(), req.EventIDs, req.Reason)
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "replay_failed", "failed to replay webhook events", err)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"replayed": n})
}
