package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

const maxRedriveLimit = 500

type redriveRequest struct {
	Mode  string  `json:"mode"` // "ids" or "oldest"
	IDs   []int64 `json:"ids,omitempty"`
	Limit int     `json:"limit,omitempty"`
}

// handleRedrive redrives dead-lettered jobs by id or the oldest N
// (limit <=500): each redriven job's attempts is floored-decremented and
// next_run_at pushed a minute out by Repository.RedriveDeadLetter itself.
func (s *Server) handleRedrive(c *gin.Context) {
	var req redriveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, "invalid_body", "could not parse request body", err)
		return
	}
	dbc := dbctx.Context{Ctx: c.Request.Context()}

	var ids []int64
	switch req.Mode {
	case "ids":
		if len(req.IDs) == 0 {
			s.respondError(c, http.StatusBadRequest, "invalid_ids", "ids mode requires a non-empty ids list", nil)
			return
		}
		if len(req.IDs) > maxRedriveLimit {
			s.respondError(c, http.StatusBadRequest, "limit_exceeded", "ids list exceeds 500 entries", nil)
			return
		}
		ids = req.IDs
	case "oldest":
		limit := req.Limit
		if limit <= 0 || limit > maxRedriveLimit {
			limit = maxRedriveLimit
		}
		entries, err := s.repo.ListDeadLetter(dbc, limit)
		if err != nil {
			s.respondError(c, http.StatusInternalServerError, "list_failed", "failed to list dead letter entries", err)
			return
		}
		for _, e := range entries {
			ids = append(ids, e.JobID)
		}
	default:
		s.respondError(c, http.StatusBadRequest, "invalid_mode", "mode must be \"ids\" or \"oldest\"", nil)
		return
	}

	redriven := make([]int64, 0, len(ids))
	var firstErr error
	for _, id := range ids {
		if err := s.repo.RedriveDeadLetter(dbc, id); err != nil {
			s.log.Warn("redrive failed for job", "job_id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		redriven = append(redriven, id)
	}
	if firstErr != nil && len(redriven) == 0 {
		s.respondError(c, http.StatusInternalServerError, "redrive_failed", "no jobs were redriven", firstErr)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"redriven": redriven, "requested": len(ids)})
}
