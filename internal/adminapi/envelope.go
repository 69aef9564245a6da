// Package adminapi is the admin HTTP surface: enqueue,
// pause/resume, concurrency caps, DLQ redrive, status, health, metrics,
// manual token refresh, and key rotation, behind bearer auth and a
// per-IP rate limiter.
package adminapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/vendorqueue/internal/pkg/ctxutil"
)

// requestIDMiddleware stashes a request id (from the inbound header, or a
// freshly generated one) into the request's context, so downstream handlers
// and their logging can read it via ctxutil.RequestID without threading it
// through every function signature.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestID(c.Request.Context(), id))
		c.Writer.Header().Set("X-Request-Id", id)
		c.Next()
	}
}

// errorBody is the envelope's error sub-object.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// envelope is the JSON shape every admin endpoint responds with
// {ok, data, error:{code,message,details}, request_id, system, dev_flags}.
type envelope struct {
	OK        bool                   `json:"ok"`
	Data      interface{}            `json:"data,omitempty"`
	Error     *errorBody             `json:"error,omitempty"`
	RequestID string                 `json:"request_id"`
	System    systemInfo             `json:"system"`
	DevFlags  map[string]interface{} `json:"dev_flags,omitempty"`
}

// systemInfo is a small process fingerprint attached to every response so
// an operator can tell which build and uptime answered a given request.
type systemInfo struct {
	GoVersion string  `json:"go_version"`
	UptimeSec float64 `json:"uptime_sec"`
}

var processStart = time.Now()

func requestID(c *gin.Context) string {
	if id := ctxutil.RequestID(c.Request.Context()); id != "" {
		return id
	}
	if id := c.GetHeader("X-Request-Id"); id != "" {
		return id
	}
	return uuid.New().String()
}

func (s *Server) envelopeBase(c *gin.Context) envelope {
	return envelope{
		RequestID: requestID(c),
		System:    systemInfo{GoVersion: runtime.Version(), UptimeSec: time.Since(processStart).Seconds()},
		DevFlags:  s.devFlags(c.Request.Context()),
	}
}

func (s *Server) respondOK(c *gin.Context, status int, data interface{}) {
	env := s.envelopeBase(c)
	env.OK = true
	env.Data = data
	c.JSON(status, env)
}

func (s *Server) respondError(c *gin.Context, status int, code, message string, cause error) {
	env := s.envelopeBase(c)
	env.OK = false
	body := &errorBody{Code: code, Message: message}
	if cause != nil {
		body.Details = cause.Error()
	}
	env.Error = body
	c.AbortWithStatusJSON(status, env)
}

func badRequest(c *gin.Context, s *Server, code, message string) {
	s.respondError(c, http.StatusBadRequest, code, message, nil)
}
