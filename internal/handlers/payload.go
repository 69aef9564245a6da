package handlers

import (
	"encoding/json"
	"fmt"

	"github.com/yungbote/vendorqueue/internal/pkg/errors"
)

func decodePayload(raw []byte, out interface{}) error {
	if len(raw) == 0 {
		return &errors.ValidationError{Field: "payload", Message: "empty job payload"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &errors.ValidationError{Field: "payload", Message: fmt.Sprintf("malformed job payload: %v", err)}
	}
	return nil
}

// consignmentPayload is the per-type tagged variant for every
// consignment-family job (create/update/cancel/edit-lines/add-products/
// mark-transfer-partial): each handler decodes into this shape rather
// than reaching into a bare map by string key.
type consignmentPayload struct {
	ConsignmentID  string                   `json:"consignment_id,omitempty"`
	OutletID       string                   `json:"outlet_id"`
	SupplierID     string                   `json:"supplier_id,omitempty"`
	Status         string                   `json:"status,omitempty"`
	Lines          []map[string]interface{} `json:"lines,omitempty"`
	Reason         string                   `json:"reason,omitempty"`
	IdempotencyRef string                   `json:"idempotency_ref,omitempty"`
}

type productUpdatePayload struct {
	ProductID string                 `json:"product_id"`
	Fields    map[string]interface{} `json:"fields"`
}

type inventoryCommandPayload struct {
	ProductID string `json:"product_id"`
	OutletID  string `json:"outlet_id"`
	Delta     int64  `json:"delta,omitempty"`
	SetCount  *int64 `json:"set_count,omitempty"`
}

type syncPayload struct {
	EntityID string `json:"entity_id"`
}

type pullPayload struct {
	PageSize int `json:"page_size,omitempty"`
}
