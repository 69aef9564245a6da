// Package webhook is the HMAC webhook receiver and fan-out: signature
// verification, idempotent event persistence, inline processing, and
// enqueueing typed child jobs off the closed routing table.
package webhook

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/vendorqueue/internal/model"
)

// Store is the webhook receiver's exclusive owner of webhook_event and
// webhook_subscription rows: no other
// component writes these tables.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) FindByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, bool, error) {
	var ev model.WebhookEvent
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&ev).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &ev, true, nil
}

// Create inserts a new received row, or is a no-op if the event id was
// already seen (idempotent intake on provider retries).
func (s *Store) Create(ctx context.Context, ev *model.WebhookEvent) (bool, error) {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkProcessing(ctx context.Context, eventID string, jobID int64) error {
	return s.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{"status": model.WebhookProcessing, "queue_job_id": jobID}).Error
}

func (s *Store) MarkCompleted(ctx context.Context, eventID string) error {
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{"status": model.WebhookCompleted, "processed_at": &now}).Error
}

func (s *Store) MarkFailed(ctx context.Context, eventID string) error {
	return s.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("status", model.WebhookFailed).Error
}

// Replay stamps the given event ids as replayed, idempotent across repeated
// calls: an event already replayed is left alone.
func (s *Store) Replay(ctx context.Context, eventIDs []string, reason string) (int, error) {
	res := s.db.WithContext(ctx).Model(&model.WebhookEvent{}).
		Where("event_id IN ? AND status <> ?", eventIDs, model.WebhookReplayed).
		Updates(map[string]interface{}{
			"status":          model.WebhookReplayed,
			"replayed_from":   gorm.Expr("event_id"),
			"replayed_reason": reason,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

// BumpSubscriptionCounters upserts the topic's subscription row and
// increments its rolling counters.
func (s *Store) BumpSubscriptionCounters(ctx context.Context, topic string) error {
	now := time.Now().UTC()
	sub := model.WebhookSubscription{Topic: topic, Active: true, TodayCount: 1, TotalCount: 1, LastReceived: &now}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "topic"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"today_count":   gorm.Expr("webhook_subscription.today_count + 1"),
			"total_count":   gorm.Expr("webhook_subscription.total_count + 1"),
			"last_received": now,
		}),
	}).Create(&sub).Error
}

// RecentActivity reports the most recent received_at and processed_at
// timestamps across all events, the signal the watchdog compares against
// its staleness thresholds.
func (s *Store) RecentActivity(ctx context.Context) (lastReceivedAt, lastProcessedAt *time.Time, err error) {
	var ev model.WebhookEvent
	if err := s.db.WithContext(ctx).Order("received_at DESC").Limit(1).First(&ev).Error; err == nil {
		t := ev.ReceivedAt
		lastReceivedAt = &t
	} else if err != gorm.ErrRecordNotFound {
		return nil, nil, err
	}

	var processed model.WebhookEvent
	err2 := s.db.WithContext(ctx).Where("processed_at IS NOT NULL").Order("processed_at DESC").Limit(1).First(&processed).Error
	if err2 == nil {
		lastProcessedAt = processed.ProcessedAt
	} else if err2 != gorm.ErrRecordNotFound {
		return lastReceivedAt, nil, err2
	}
	return lastReceivedAt, lastProcessedAt, nil
}

// RecordHealthEvent appends a verification soft-fail or processing anomaly
// row. The watchdog does not read these rows; it uses RecentActivity.
func (s *Store) RecordHealthEvent(ctx context.Context, eventID, kind, detail string) error {
	return s.db.WithContext(ctx).Create(&model.WebhookHealthEvent{
		EventID:   eventID,
		Kind:      kind,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}).Error
}
