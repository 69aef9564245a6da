package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/vendorqueue/internal/config"
	"github.com/yungbote/vendorqueue/internal/metrics"
	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
)

// Receiver implements the inbound webhook intake algorithm.
type Receiver struct {
	store   *Store
	repo    jobrepo.Repository
	cfg     config.Store
	sink    metrics.Sink
	limiter RateLimiter
	log     *logger.Logger
}

func NewReceiver(store *Store, repo jobrepo.Repository, cfg config.Store, sink metrics.Sink, log *logger.Logger) *Receiver {
	if sink == nil {
		sink = metrics.Noop{}
	}
	return &Receiver{store: store, repo: repo, cfg: cfg, sink: sink, log: log.With("component", "webhook_receiver")}
}

// WithRateLimiter installs the per-IP intake limiter (a redis-cached
// counter in front of the durable bucket table). A Receiver with no
// limiter installed never throttles.
func (r *Receiver) WithRateLimiter(limiter RateLimiter) *Receiver {
	r.limiter = limiter
	return r
}

// Intake is the gin.HandlerFunc registered for the vendor webhook endpoint.
// It must ACK within 5 seconds; every step below is a single bounded DB
// write or none at all, so no explicit timeout budget is needed
// beyond the request context's own deadline.
func (r *Receiver) Intake(c *gin.Context) {
	ctx := c.Request.Context()

	if readBool(ctx, r.cfg, keyDisabled, false) {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": gin.H{"code": "disabled"}})
		return
	}

	if r.limiter != nil {
		limit := readInt(ctx, r.cfg, keyRateLimitPerMinute, defaultRateLimitPerMinute)
		allowed, err := r.limiter.Allow(ctx, c.ClientIP(), int64(limit))
		if err != nil {
			r.log.Warn("rate limiter check failed, allowing request through", "error", err)
		} else if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": gin.H{"code": "rate_limited"}})
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 5<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": gin.H{"code": "read_failed"}})
		return
	}

	timestampHeader := c.GetHeader("X-Webhook-Timestamp")
	signatureHeader := c.GetHeader("X-Webhook-Signature")

	if !isOpenMode(ctx, r.cfg) {
		result := verifySignature(readSecrets(ctx, r.cfg), timestampHeader, signatureHeader, body)
		if !result.Valid {
			r.sink.Incr("webhook.signature_failure", map[string]string{"reason": strings.Join(result.Reasons, ",")}, 1)
			for _, reason := range result.Reasons {
				if err := r.store.RecordHealthEvent(ctx, "", reason, "intake signature verification"); err != nil {
					r.log.Warn("failed to record webhook health event", "reason", reason, "error", err)
				}
			}
			if isStrictPolicy(ctx, r.cfg) {
				c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": gin.H{"code": "invalid_signature"}})
				return
			}
			r.log.Warn("webhook signature verification failed, continuing under lenient policy", "reasons", result.Reasons)
		}
	}

	payload, eventType := parseBody(body, c.GetHeader("X-Webhook-Topic"))
	eventID := resolveEventID(c.GetHeader("X-Webhook-Event-Id"), payload, body)

	headersJSON, _ := json.Marshal(flattenHeaders(c.Request.Header))
	payloadJSON, _ := json.Marshal(payload)

	ev := &model.WebhookEvent{
		EventID:    eventID,
		Topic:      eventType,
		Status:     model.WebhookReceived,
		RawBody:    body,
		Payload:    payloadJSON,
		Headers:    headersJSON,
		Signature:  signatureHeader,
		SourceIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		ReceivedAt: time.Now().UTC(),
	}
	fresh, err := r.store.Create(ctx, ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": gin.H{"code": "persist_failed"}})
		return
	}
	if !fresh {
		// Already seen this provider event id: ack without reprocessing so
		// provider-side retries stay idempotent.
		c.JSON(http.StatusOK, gin.H{"ok": true, "event_id": eventID, "duplicate": true})
		return
	}

	r.sink.Incr("webhook.received_count", map[string]string{"topic": eventType}, 1)
	if err := r.store.BumpSubscriptionCounters(ctx, eventType); err != nil {
		r.log.Warn("failed to bump subscription counters", "topic", eventType, "error", err)
	}

	if readBool(ctx, r.cfg, keyQueueHandoff, false) {
		idemKey := fmt.Sprintf("webhook:%s", eventID)
		jobPayload, _ := json.Marshal(map[string]string{"event_id": eventID, "event_type": eventType, "entity_id": extractEntityID(payload)})
		jobID, err := r.repo.Enqueue(dbctx.Context{Ctx: ctx}, model.TypeWebhookEvent, jobPayload, &idemKey, model.DefaultPriority)
		if err != nil {
			r.log.Warn("failed to hand off webhook event to queue", "event_id", eventID, "error", err)
		} else if err := r.store.MarkProcessing(ctx, eventID, jobID); err != nil {
			r.log.Warn("failed to mark webhook event processing", "event_id", eventID, "error", err)
		}
	}

	if readBool(ctx, r.cfg, keyInlineProcessing, true) {
		start := time.Now()
		entityID := extractEntityID(payload)
		childType, routed, err := fanOut(ctx, r.repo, eventType, eventID, entityID)
		if err != nil {
			r.log.Warn("inline fan-out failed", "event_id", eventID, "topic", eventType, "error", err)
		} else {
			if err := r.store.MarkCompleted(ctx, eventID); err != nil {
				r.log.Warn("failed to mark webhook event completed", "event_id", eventID, "error", err)
			}
			r.sink.Incr("webhook.processed_count", map[string]string{"topic": eventType}, 1)
			r.sink.Observe("webhook.processing_time_ms", map[string]string{"topic": eventType}, float64(time.Since(start).Milliseconds()))
			if routed {
				r.log.Debug("webhook fan-out enqueued child job", "event_id", eventID, "child_type", childType)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "event_id": eventID})
}

// parseBody accepts JSON bodies and form-encoded payload=<json> bodies
// extracting event type from the body or the
// topic header fallback.
func parseBody(body []byte, topicHeader string) (payload map[string]interface{}, eventType string) {
	payload = map[string]interface{}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		payload = map[string]interface{}{}
		if form, ferr := parseFormPayload(body); ferr == nil {
			payload = form
		}
	}
	if t, ok := payload["type"].(string); ok && t != "" {
		return payload, t
	}
	if t, ok := payload["event_type"].(string); ok && t != "" {
		return payload, t
	}
	if topicHeader != "" {
		return payload, topicHeader
	}
	return payload, "unknown"
}

func parseFormPayload(body []byte) (map[string]interface{}, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, err
	}
	raw := values.Get("payload")
	if raw == "" {
		return nil, fmt.Errorf("no payload field")
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func resolveEventID(header string, payload map[string]interface{}, body []byte) string {
	if header != "" {
		return header
	}
	if id, ok := payload["event_id"].(string); ok && id != "" {
		return id
	}
	if id, ok := payload["id"].(string); ok && id != "" {
		return id
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
