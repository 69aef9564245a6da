package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

type enqueueRequest struct {
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	Priority       int             `json:"priority,omitempty"`
}

var validJobType = func() map[string]bool {
	m := make(map[string]bool, len(model.AllJobTypes))
	for _, t := range model.AllJobTypes {
		m[t] = true
	}
	return m
}()

// handleEnqueue validates the job
// type against the closed set and delegates idempotency-key dedup to the
// repository's own advisory-lock-serialized insert.
func (s *Server) handleEnqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid_body", "could not parse request body", err)
		return
	}
	if !validJobType[req.Type] {
		s.respondError(c, http.StatusBadRequest, "invalid_type", "unrecognized job type: "+req.Type, nil)
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage("{}")
	}

	id, err := s.repo.Enqueue(dbctx.Context{Ctx: c.Request.Context()}, req.Type, req.Payload, req.IdempotencyKey, model.ClampPriority(req.Priority))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "enqueue_failed", "failed to enqueue job", err)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"id": id})
}
