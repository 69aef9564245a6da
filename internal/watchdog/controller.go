// Package watchdog is the periodic health/degrade controller: every 60
// seconds in continuous mode it reads queue activity, webhook freshness,
// and circuit-breaker state, and flips safeguard flags
// when something looks stuck.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
	"github.com/yungbote/vendorqueue/internal/vendorhttp"
	"github.com/yungbote/vendorqueue/internal/webhook"
)

const (
	keyLastAnomalyAt       = "watchdog.last_anomaly_at"
	keyAutoFixEnabled       = "watchdog.auto_fix_enabled"
	keyHealthyWindowMinutes = "watchdog.healthy_window_minutes"
	keyRunnerEnabled        = "watchdog.safeguard.runner_enabled"
	keyContinuousEnabled    = "watchdog.safeguard.continuous_enabled"
	keyHighRiskDisabled     = "watchdog.safeguard.high_risk_disabled"
	keyBannerLevel          = "watchdog.banner.level"
	keyBannerMessage        = "watchdog.banner.message"

	// The anomaly signals are well-defined but their numeric thresholds are
	// not, so each one is a config.Store key with the constant below as its
	// default, so an operator can tighten or loosen detection without a
	// redeploy.
	defaultStaleActivitySeconds   = 300
	defaultWebhookStaleSeconds    = 900
	defaultDegradePendingCount    = 500
	defaultHealthyWindowMinutes   = 10
)

// Controller evaluates the anomaly triggers and applies or reverses
// safeguards. Evaluate satisfies dispatcher.WatchdogFunc.
type Controller struct {
	repo    jobrepo.Repository
	cfg     config.Store
	breaker *vendorhttp.Breaker
	hooks   *webhook.Store // optional; nil disables the webhook freshness trigger
	log     *logger.Logger
}

func New(repo jobrepo.Repository, cfg config.Store, breaker *vendorhttp.Breaker, hooks *webhook.Store, log *logger.Logger) *Controller {
	return &Controller{repo: repo, cfg: cfg, breaker: breaker, hooks: hooks, log: log.With("component", "watchdog")}
}

// Evaluate runs one tick of the degrade controller.
func (c *Controller) Evaluate(ctx context.Context) {
	anomalies, err := c.detectAnomalies(ctx)
	if err != nil {
		c.log.Warn("watchdog failed to read activity snapshot, skipping tick", "error", err)
		return
	}

	if len(anomalies) > 0 {
		c.log.Warn("watchdog detected anomalies", "reasons", anomalies)
		if err := c.cfg.Set(ctx, keyLastAnomalyAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
			c.log.Warn("failed to record anomaly timestamp", "error", err)
		}
		if readBool(ctx, c.cfg, keyAutoFixEnabled, true) {
			c.applySafeguards(ctx, anomalies)
		}
		return
	}

	c.maybeReverseSafeguards(ctx)
}

func (c *Controller) detectAnomalies(ctx context.Context) ([]string, error) {
	dbc := dbctx.Context{Ctx: ctx}
	var reasons []string

	activity, err := c.repo.ActivitySnapshot(dbc)
	if err != nil {
		return nil, fmt.Errorf("read activity snapshot: %w", err)
	}
	pending, err := c.repo.CountByStatusAndType(dbc, []model.JobStatus{model.JobPending}, "")
	if err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}

	staleSeconds := time.Duration(readInt(ctx, c.cfg, "watchdog.stale_activity_seconds", defaultStaleActivitySeconds)) * time.Second
	if pending > 0 && activity.CompletedLastMinute == 0 && isStaleOrAbsent(activity.LastStartedAt, staleSeconds) {
		reasons = append(reasons, "no_completions_and_no_recent_start")
	}

	if c.hooks != nil {
		lastReceived, lastProcessed, err := c.hooks.RecentActivity(ctx)
		if err != nil {
			c.log.Warn("failed to read webhook activity, skipping webhook trigger", "error", err)
		} else if lastReceived != nil && time.Since(*lastReceived) < 24*time.Hour {
			webhookStale := time.Duration(readInt(ctx, c.cfg, "watchdog.webhook_stale_seconds", defaultWebhookStaleSeconds)) * time.Second
			if isStaleOrAbsent(lastProcessed, webhookStale) {
				reasons = append(reasons, "webhook_received_but_not_processed")
			}
		}
	}

	degradeThreshold := int64(readInt(ctx, c.cfg, "watchdog.degrade_pending_count", defaultDegradePendingCount))
	breakerOpen := false
	if c.breaker != nil {
		if state, err := c.breaker.State(ctx); err == nil {
			breakerOpen = state.Tripped
		}
	}
	if pending >= degradeThreshold || breakerOpen {
		reasons = append(reasons, "pending_over_threshold_or_breaker_open")
	}

	return reasons, nil
}

func isStaleOrAbsent(t *time.Time, threshold time.Duration) bool {
	if t == nil {
		return true
	}
	return time.Since(*t) > threshold
}

// applySafeguards reacts to a detected anomaly by flipping the
// runner/continuous-enabled flags, disabling high-risk UI features, and
// setting a banner. There is no separate worker process to spawn here:
// this service's dispatcher already is the runner, so the only action is
// to ensure continuous mode's own enablement flag is set.
func (c *Controller) applySafeguards(ctx context.Context, reasons []string) {
	level := "warning"
	for _, r := range reasons {
		if r == "pending_over_threshold_or_breaker_open" {
			level = "danger"
		}
	}
	writes := map[string]string{
		keyRunnerEnabled:     "true",
		keyContinuousEnabled: "true",
		keyHighRiskDisabled:  "true",
		keyBannerLevel:       level,
		keyBannerMessage:     fmt.Sprintf("watchdog safeguards active: %v", reasons),
	}
	for k, v := range writes {
		if err := c.cfg.Set(ctx, k, v); err != nil {
			c.log.Warn("failed to write safeguard flag", "key", k, "error", err)
		}
	}
}

// maybeReverseSafeguards reverses the safeguards once the queue has gone
// a configurable number of minutes without a fresh anomaly.
func (c *Controller) maybeReverseSafeguards(ctx context.Context) {
	lastAnomalyRaw, found, _ := c.cfg.Get(ctx, keyLastAnomalyAt)
	if !found || lastAnomalyRaw == "" {
		return
	}
	lastAnomaly, err := time.Parse(time.RFC3339, lastAnomalyRaw)
	if err != nil {
		return
	}
	windowMinutes := readInt(ctx, c.cfg, keyHealthyWindowMinutes, defaultHealthyWindowMinutes)
	if time.Since(lastAnomaly) < time.Duration(windowMinutes)*time.Minute {
		return
	}
	if !readBool(ctx, c.cfg, keyRunnerEnabled, false) && !readBool(ctx, c.cfg, keyHighRiskDisabled, false) {
		return // safeguards already clear, nothing to reverse
	}
	c.log.Info("watchdog sustained healthy window elapsed, reversing safeguards", "window_minutes", windowMinutes)
	writes := map[string]string{
		keyRunnerEnabled:    "false",
		keyHighRiskDisabled: "false",
		keyBannerLevel:      "info",
		keyBannerMessage:    "",
	}
	for k, v := range writes {
		if err := c.cfg.Set(ctx, k, v); err != nil {
			c.log.Warn("failed to clear safeguard flag", "key", k, "error", err)
		}
	}
	_ = c.cfg.Delete(ctx, keyLastAnomalyAt)
}

func readBool(ctx context.Context, store config.Store, key string, def bool) bool {
	v, found, _ := store.Get(ctx, key)
	if !found {
		return def
	}
	return v == "true"
}

func readInt(ctx context.Context, store config.Store, key string, def int) int {
	v, found, _ := store.Get(ctx, key)
	if !found || v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
