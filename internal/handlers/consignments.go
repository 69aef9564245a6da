package handlers

import (
	"context"
	"fmt"

	"github.com/yungbote/vendorqueue/internal/model"
	"github.com/yungbote/vendorqueue/internal/pkg/errors"
)

// idempotencyKeyFor returns the job's own idempotency key when the caller
// supplied one, else a deterministic fallback so create-like vendor calls
// never go out with an unset idempotency key.
func idempotencyKeyFor(job *model.Job) string {
	if job.IdempotencyKey != nil && *job.IdempotencyKey != "" {
		return *job.IdempotencyKey
	}
	return fmt.Sprintf("job:%d", job.ID)
}

func (d *deps) createConsignment(ctx context.Context, job *model.Job) error {
	var p consignmentPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	resp, err := d.vendor.PostJSON(ctx, "/consignments", p, nil, idempotencyKeyFor(job))
	if err != nil {
		return wrapHandlerErr("create_consignment", err)
	}
	d.writeAudit(ctx, job.ID, "create_consignment", resp.JSON)
	return nil
}

func (d *deps) updateConsignment(ctx context.Context, job *model.Job) error {
	var p consignmentPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.ConsignmentID == "" {
		return &errors.ValidationError{Field: "consignment_id", Message: "required for update_consignment"}
	}
	resp, err := d.vendor.PutJSON(ctx, "/consignments/"+p.ConsignmentID, p, nil)
	if err != nil {
		return wrapHandlerErr("update_consignment", err)
	}
	d.writeAudit(ctx, job.ID, "update_consignment", resp.JSON)
	return nil
}

func (d *deps) cancelConsignment(ctx context.Context, job *model.Job) error {
	var p consignmentPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.ConsignmentID == "" {
		return &errors.ValidationError{Field: "consignment_id", Message: "required for cancel_consignment"}
	}
	resp, err := d.vendor.PostJSON(ctx, fmt.Sprintf("/consignments/%s/cancel", p.ConsignmentID), map[string]string{"reason": p.Reason}, nil, idempotencyKeyFor(job))
	if err != nil {
		return wrapHandlerErr("cancel_consignment", err)
	}
	d.writeAudit(ctx, job.ID, "cancel_consignment", resp.JSON)
	return nil
}

func (d *deps) editConsignmentLines(ctx context.Context, job *model.Job) error {
	var p consignmentPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.ConsignmentID == "" {
		return &errors.ValidationError{Field: "consignment_id", Message: "required for edit_consignment_lines"}
	}
	resp, err := d.vendor.PatchJSON(ctx, fmt.Sprintf("/consignments/%s/lines", p.ConsignmentID), map[string]interface{}{"lines": p.Lines}, nil)
	if err != nil {
		return wrapHandlerErr("edit_consignment_lines", err)
	}
	d.writeAudit(ctx, job.ID, "edit_consignment_lines", resp.JSON)
	return nil
}

func (d *deps) addConsignmentProducts(ctx context.Context, job *model.Job) error {
	var p consignmentPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.ConsignmentID == "" {
		return &errors.ValidationError{Field: "consignment_id", Message: "required for add_consignment_products"}
	}
	resp, err := d.vendor.PostJSON(ctx, fmt.Sprintf("/consignments/%s/products", p.ConsignmentID), map[string]interface{}{"lines": p.Lines}, nil, idempotencyKeyFor(job))
	if err != nil {
		return wrapHandlerErr("add_consignment_products", err)
	}
	d.writeAudit(ctx, job.ID, "add_consignment_products", resp.JSON)
	return nil
}

func (d *deps) markTransferPartial(ctx context.Context, job *model.Job) error {
	var p consignmentPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}
	if p.ConsignmentID == "" {
		return &errors.ValidationError{Field: "consignment_id", Message: "required for mark_transfer_partial"}
	}
	resp, err := d.vendor.PostJSON(ctx, fmt.Sprintf("/consignments/%s/mark_partial", p.ConsignmentID), map[string]interface{}{"lines": p.Lines}, nil, idempotencyKeyFor(job))
	if err != nil {
		return wrapHandlerErr("mark_transfer_partial", err)
	}
	d.writeAudit(ctx, job.ID, "mark_transfer_partial", resp.JSON)
	return nil
}

func wrapHandlerErr(stage string, cause error) error {
	return &errors.HandlerError{Stage: stage, Message: "vendor request failed", Cause: cause}
}
