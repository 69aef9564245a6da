package handlers

import (
	"context"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/errors"
)

// syncEntity fetches the current vendor state for a single entity and
// records it through the guarded audit insert; the four sync_* handlers are
// identical up to the resource path they hit.
func (d *deps) syncEntity(ctx context.Context, job *model.Job, resource string) error {
	var p syncPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.EntityID == "" {
		return &errors.ValidationError{Field: "entity_id", Message: "required for " + resource + " sync"}
	}
	resp, err := d.vendor.GET(ctx, "/"+resource+"/"+p.EntityID, nil)
	if err != nil {
		return wrapHandlerErr("sync_"+resource, err)
	}
	d.writeAudit(ctx, job.ID, "sync_"+resource, resp.JSON)
	return nil
}

func (d *deps) syncProduct(ctx context.Context, job *model.Job) error {
	return d.syncEntity(ctx, job, "products")
}

func (d *deps) syncInventory(ctx context.Context, job *model.Job) error {
	return d.syncEntity(ctx, job, "inventory")
}

func (d *deps) syncCustomer(ctx context.Context, job *model.Job) error {
	return d.syncEntity(ctx, job, "customers")
}

func (d *deps) syncSale(ctx context.Context, job *model.Job) error {
	return d.syncEntity(ctx, job, "sales")
}
