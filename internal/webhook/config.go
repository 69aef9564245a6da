package webhook

import (
	"context"
	"strconv"
	"time"

	"github.com/yungbote/vendorqueue/internal/config"
)

const (
	keyDisabled          = "webhook.disabled"
	keyOpenMode          = "webhook.open_mode"
	keyOpenModeUntil     = "webhook.open_mode_until"
	keySecretCurrent     = "webhook.secret.current"
	keySecretPrevious    = "webhook.secret.previous"
	keySecretPrevExpires = "webhook.secret.previous_expires_at"
	keyQueueHandoff      = "webhook.queue_handoff_enabled"
	keyInlineProcessing  = "webhook.inline_processing_enabled"
	// keySignaturePolicy governs the §9 open question: "strict" drops
	// requests that fail verification, "lenient" reproduces the original
	// soft-fail-but-continue behavior. Strict is the default per the
	// specification's own recommendation.
	keySignaturePolicy = "webhook.signature_policy"

	keyRateLimitPerMinute     = "webhook.rate_limit.per_minute"
	defaultRateLimitPerMinute = 120
)

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
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func readSecrets(ctx context.Context, store config.Store) secretSet {
	current, _, _ := store.Get(ctx, keySecretCurrent)
	previous, found, _ := store.Get(ctx, keySecretPrevious)
	if !found || previous == "" {
		return secretSet{current: current}
	}
	expiresRaw, hasExpiry, _ := store.Get(ctx, keySecretPrevExpires)
	if !hasExpiry || expiresRaw == "" {
		return secretSet{current: current, previous: previous, hasPrev: true}
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresRaw)
	if err != nil || time.Now().Before(expiresAt) {
		return secretSet{current: current, previous: previous, hasPrev: true}
	}
	return secretSet{current: current}
}

func isOpenMode(ctx context.Context, store config.Store) bool {
	if !readBool(ctx, store, keyOpenMode, false) {
		return false
	}
	untilRaw, found, _ := store.Get(ctx, keyOpenModeUntil)
	if !found || untilRaw == "" {
		return true
	}
	until, err := time.Parse(time.RFC3339, untilRaw)
	if err != nil {
		return true
	}
	return time.Now().Before(until)
}

func isStrictPolicy(ctx context.Context, store config.Store) bool {
	v, found, _ := store.Get(ctx, keySignaturePolicy)
	if !found || v == "" {
		return true
	}
	return v != "lenient"
}
