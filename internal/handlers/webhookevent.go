package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
	"github.com/yungbote/vendorqueue/internal/pkg/errors"
)

type webhookEventPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	EntityID  string `json:"entity_id"`
}

// fanoutRoutes is the closed routing table from inbound webhook event type
// to the downstream sync job type it triggers.
// It is intentionally duplicated, not imported, from the webhook receiver's
// own copy: the two call sites (inline receiver, queued job handler) must
// agree on the table, and handlers does not depend on the webhook package.
var fanoutRoutes = map[string]string{
	"product.update":    model.TypeSyncProduct,
	"inventory.update": model.TypeSyncInventory,
	"customer.update":   model.TypeSyncCustomer,
	"sale.update":       model.TypeSyncSale,
}

// webhookEvent is the queued fallback for a webhook fan-out that the inline
// receiver deferred to the job queue: it
// re-derives the same child job the inline path would have enqueued,
// idempotently, so replays and queue handoff converge on one outcome.
func (d *deps) webhookEvent(ctx context.Context, job *model.Job) error {
	var p webhookEventPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.EventID == "" || p.EventType == "" {
		return &errors.ValidationError{Field: "event_id/event_type", Message: "both required for webhook.event"}
	}

	childType, ok := fanoutRoutes[p.EventType]
	if !ok {
		d.log.Debug("no fan-out route for webhook event type, nothing to enqueue", "event_type", p.EventType)
		d.writeAudit(ctx, job.ID, "webhook_event_no_route", map[string]interface{}{"event_type": p.EventType})
		return nil
	}

	childPayload, err := json.Marshal(syncPayload{EntityID: p.EntityID})
	if err != nil {
		return wrapHandlerErr("webhook_event", err)
	}
	idemKey := fmt.Sprintf("fanout:%s:%s", p.EventType, p.EventID)

	childID, err := d.repo.Enqueue(dbctx.Context{Ctx: ctx}, childType, childPayload, &idemKey, model.DefaultPriority)
	if err != nil {
		return wrapHandlerErr("webhook_event", err)
	}
	d.writeAudit(ctx, job.ID, "webhook_event_fanout", map[string]interface{}{
		"event_id":   p.EventID,
		"event_type": p.EventType,
		"child_job":  childID,
		"child_type": childType,
	})
	return nil
}
