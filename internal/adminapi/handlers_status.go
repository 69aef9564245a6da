package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

type typeStatus struct {
	Type    string `json:"type"`
	Pending int64  `json:"pending"`
	Working int64  `json:"working"`
	Paused  bool   `json:"paused"`
	Cap     string `json:"cap"`
}

// handleStatus reports per-type pending/working
// counts plus the pause flag and concurrency cap currently in effect, the
// same inputs the dispatcher's own type-selection pass reads.
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	dbc := dbctx.Context{Ctx: ctx}
	out := make([]typeStatus, 0, len(model.AllJobTypes))
	for _, t := range model.AllJobTypes {
		pending, err := s.repo.CountByStatusAndType(dbc, []model.JobStatus{model.JobPending}, t)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "status_failed", "failed to read queue status", err)
			return
		}
		working, err := s.repo.CountByStatusAndType(dbc, []model.JobStatus{model.JobWorking}, t)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "status_failed", "failed to read queue status", err)
			return
		}
		paused := readBool(ctx, s.cfg, pauseKeyPrefix+t, false)
		capVal, _, _ := s.cfg.Get(ctx, capKeyPrefix+t)
		if capVal == "" {
			capVal = "1"
		}
		out = append(out, typeStatus{Type: t, Pending: pending, Working: working, Paused: paused, Cap: capVal})
	}
	s.respondOK(c, http.StatusOK, gin.H{
		"types":       out,
		"kill_switch": readBool(ctx, s.cfg, "dispatcher.kill_switch", false),
	})
}

// handleHealth reports the vendor circuit
// breaker's current state plus whether the OAuth manager is wired, a
// coarse liveness signal read from the same breaker record the watchdog
// reads directly.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	health := gin.H{"ok": true}
	if s.breaker != nil {
		state, err := s.breaker.State(ctx)
		if err == nil {
			health["circuit_breaker"] = gin.H{
				"tripped":            state.Tripped,
				"failures_in_window": state.FailuresInWindow,
				"cooldown_until":     state.CooldownUntil,
			}
			if state.Tripped {
				health["ok"] = false
			}
		}
	}
	health["oauth_configured"] = s.oauthMgr != nil
	s.respondOK(c, http.StatusOK, health)
}
