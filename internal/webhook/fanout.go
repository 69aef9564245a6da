package webhook

import (
	"context"
	"encoding/json"
	"fmt"

	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/dbctx"
)

// routes is the closed routing table from inbound topic to the downstream
// sync job type it triggers. The queued webhook.event
// handler in internal/handlers carries its own copy of this table, since
// that package cannot import webhook without a cycle (webhook enqueues
// through jobrepo.Repository directly, same as handlers does); the two must
// be kept in agreement.
var routes = map[string]string{
	"product.update":   model.TypeSyncProduct,
	"inventory.update": model.TypeSyncInventory,
	"customer.update":  model.TypeSyncCustomer,
	"sale.update":       model.TypeSyncSale,
}

// entityIDKeys is the ordered set of locations fan-out looks for a primary
// entity id, checked first inside a nested "data" object, then top-level.
var entityIDKeys = []string{"product_id", "inventory_id", "customer_id", "sale_id", "entity_id", "id"}

func extractEntityID(payload map[string]interface{}) string {
	if data, ok := payload["data"].(map[string]interface{}); ok {
		if id := firstStringField(data, entityIDKeys); id != "" {
			return id
		}
	}
	return firstStringField(payload, entityIDKeys)
}

func firstStringField(m map[string]interface{}, keys []string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

// fanOut enqueues the child job for eventType/entityID per the routing
// table, idempotent on repeated delivery of the same event. It reports
// ok=false when the event type has no route, which is
// not an error — most webhook topics have no downstream sync job.
func fanOut(ctx context.Context, repo jobrepo.Repository, eventType, eventID, entityID string) (childType string, ok bool, err error) {
	childType, ok = routes[eventType]
	if !ok {
		return "", false, nil
	}
	payload, err := json.Marshal(map[string]string{"entity_id": entityID})
	if err != nil {
		return "", false, err
	}
	idemKey := fmt.Sprintf("fanout:%s:%s", eventType, eventID)
	if _, err := repo.Enqueue(dbctx.Context{Ctx: ctx}, childType, payload, &idemKey, model.DefaultPriority); err != nil {
		return "", false, err
	}
	return childType, true, nil
}
