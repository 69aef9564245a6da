package handlers

import (
	"context"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/errors"
)

func (d *deps) pushProductUpdate(ctx context.Context, job *model.Job) error {
	var p productUpdatePayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.ProductID == "" {
		return &errors.ValidationError{Field: "product_id", Message: "required for push_product_update"}
	}
	resp, err := d.vendor.PatchJSON(ctx, "/products/"+p.ProductID, p.Fields, nil)
	if err != nil {
		return wrapHandlerErr("push_product_update", err)
	}
	d.writeAudit(ctx, job.ID, "push_product_update", resp.JSON)
	return nil
}

func (d *deps) inventoryCommand(ctx context.Context, job *model.Job) error {
	var p inventoryCommandPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.ProductID == "" || p.OutletID == "" {
		return &errors.ValidationError{Field: "product_id/outlet_id", Message: "both required for inventory.command"}
	}
	body := map[string]interface{}{"product_id": p.ProductID, "outlet_id": p.OutletID}
	if p.SetCount != nil {
		body["set_count"] = *p.SetCount
	} else {
		body["delta"] = p.Delta
	}
	resp, err := d.vendor.PostJSON(ctx, "/inventory/commands", body, nil, idempotencyKeyFor(job))
	if err != nil {
		return wrapHandlerErr("inventory_command", err)
	}
	d.writeAudit(ctx, job.ID, "inventory_command", resp.JSON)
	return nil
}
