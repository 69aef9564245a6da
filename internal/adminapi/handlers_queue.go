package adminapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vendorqueue/internal/model"
)

// pauseKeyPrefix and capKeyPrefix must stay in agreement with the same
// unexported constants in internal/dispatcher: this package has no way to
// import them without exporting dispatcher internals, so the literal
// strings are duplicated here (the same tradeoff the webhook fan-out
// routing table makes against internal/handlers).
const (
	pauseKeyPrefix = "queue_pause."
	capKeyPrefix   = "queue.max_concurrency."
	maxConcurrencyCap = 50
)

type pauseRequest struct {
	Type string `json:"type,omitempty"` // empty means all types
}

// handlePause pauses or resumes the queue, globally or per job type.
func (s *Server) handlePause(c *gin.Context) {
	s.setPause(c, true)
}

func (s *Server) handleResume(c *gin.Context) {
	s.setPause(c, false)
}

func (s *Server) setPause(c *gin.Context, paused bool) {
	var req pauseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
			s.respondError(c, http.StatusBadRequest, "invalid_body", "could not parse request body", err)
			return
		}
	}
	ctx := c.Request.Context()
	types := model.AllJobTypes
	if req.Type != "" {
		if !validJobType[req.Type] {
			s.respondError(c, http.StatusBadRequest, "invalid_type", "unrecognized job type: "+req.Type, nil)
			return
		}
		types = []string{req.Type}
	}
	value := "false"
	if paused {
		value = "true"
	}
	for _, t := range types {
		if err := s.cfg.Set(ctx, pauseKeyPrefix+t, value); err != nil {
			s.respondError(c, http.StatusInternalServerError, "config_write_failed", "failed to write pause flag", err)
			return
		}
	}
	s.respondOK(c, http.StatusOK, gin.H{"paused": paused, "types": types})
}

type concurrencyRequest struct {
	Type string `json:"type"`
	Cap  int    `json:"cap"`
}

// handleSetConcurrency updates a job type's concurrency cap (0..50).
func (s *Server) handleSetConcurrency(c *gin.Context) {
	var req concurrencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid_body", "could not parse request body", err)
		return
	}
	if !validJobType[req.Type] {
		s.respondError(c, http.StatusBadRequest, "invalid_type", "unrecognized job type: "+req.Type, nil)
		return
	}
	if req.Cap < 0 || req.Cap > maxConcurrencyCap {
		s.respondError(c, http.StatusBadRequest, "invalid_cap", fmt.Sprintf("cap must be within [0..%d]", maxConcurrencyCap), nil)
		return
	}
	if err := s.cfg.Set(c.Request.Context(), capKeyPrefix+req.Type, fmt.Sprintf("%d", req.Cap)); err != nil {
		s.respondError(c, http.StatusInternalServerError, "config_write_failed", "failed to write concurrency cap", err)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"type": req.Type, "cap": req.Cap})
}
