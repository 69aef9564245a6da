package adminapi

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/metrics"
	"github.com/yungbote/vendorqueue/internal/oauth"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
	"github.com/yungbote/vendorqueue/internal/vendorhttp"
	"github.com/yungbote/vendorqueue/internal/webhook"
)

// Server wires the admin HTTP surface's handlers to their collaborators:
// the work-item repository, config store, metrics sink, OAuth manager,
// vendor breaker, and webhook
// receiver (for replay and key-rotation writes).
type Server struct {
	repo     jobrepo.Repository
	cfg      config.Store
	sink     metrics.Sink
	oauthMgr oauth.Manager
	breaker  *vendorhttp.Breaker
	webhooks *webhook.Receiver
	limiters *rateLimiterSet
	log      *logger.Logger
}

// Options configures the rate limiter; zero values fall back to sane
// defaults (5 req/s, burst 10, per caller IP).
type Options struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
}

func NewServer(repo jobrepo.Repository, cfg config.Store, sink metrics.Sink, oauthMgr oauth.Manager, breaker *vendorhttp.Breaker, webhooks *webhook.Receiver, opts Options, log *logger.Logger) *Server {
	if sink == nil {
		sink = metrics.Noop{}
	}
	rps := opts.RateLimitPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}
	return &Server{
		repo:     repo,
		cfg:      cfg,
		sink:     sink,
		oauthMgr: oauthMgr,
		breaker:  breaker,
		webhooks: webhooks,
		limiters: newRateLimiterSet(rps, burst),
		log:      log.With("component", "adminapi"),
	}
}

// Router builds the gin engine: /healthz at the root and the authenticated
// endpoints in an /admin group created here.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())
	r.Use(requestIDMiddleware())

	r.GET("/healthz", s.handleHealth)

	admin := r.Group("/admin")
	admin.Use(s.RateLimit())
	admin.Use(s.RequireAuth())
	{
		admin.POST("/jobs", s.handleEnqueue)
		admin.POST("/queue/pause", s.handlePause)
		admin.POST("/queue/resume", s.handleResume)
		admin.POST("/queue/concurrency", s.handleSetConcurrency)
		admin.POST("/deadletter/redrive", s.handleRedrive)
		admin.GET("/status", s.handleStatus)
		admin.GET("/health", s.handleHealth)
		admin.GET("/metrics", s.handleMetrics)
		admin.POST("/oauth/refresh", s.handleTokenRefresh)
		admin.POST("/keys/rotate", s.handleKeyRotate)
		if s.webhooks != nil {
			admin.POST("/webhooks/replay", s.handleWebhookReplay)
		}
	}
	return r
}

// devFlags surfaces the operationally interesting config toggles on every
// response envelope, so an operator never has to separately query each
// flag while debugging a stuck job or a rejected webhook.
func (s *Server) devFlags(ctx context.Context) map[string]interface{} {
	flags := map[string]interface{}{}
	for _, key := range []string{
		"dispatcher.kill_switch",
		"webhook.disabled",
		"webhook.open_mode",
		"webhook.signature_policy",
		keyAlwaysAllow,
	} {
		if v, found, _ := s.cfg.Get(ctx, key); found {
			flags[key] = v
		}
	}
	return flags
}
