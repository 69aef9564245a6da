package handlers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/yungbote/vendorqueue/internal/model"
)

// pullStream walks a listing endpoint from its last persisted cursor,
// advancing the cursor after each page is processed so a crash mid-pull
// re-reads the last page rather than skipping one.
func (d *deps) pullStream(ctx context.Context, job *model.Job, stream, resource string) error {
	var p pullPayload
	if err := decodePayload(job.Payload, &p); err != nil {
		return err
	}

	last, err := d.cursors.Get(ctx, stream)
	if err != nil {
		return wrapHandlerErr("pull_"+stream, err)
	}

	q := url.Values{}
	if p.PageSize > 0 {
		q.Set("page_size", fmt.Sprintf("%d", p.PageSize))
	}
	if last != "" {
		q.Set("page_info", last)
	}

	pageCount := 0
	err = d.vendor.Paginate(ctx, "/"+resource, q, func(page map[string]interface{}) (bool, error) {
		pageCount++
		d.writeAudit(ctx, job.ID, "pull_"+stream, page)
		if next, ok := pageCursor(page); ok {
			if err := d.cursors.Advance(ctx, stream, next); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return wrapHandlerErr("pull_"+stream, err)
	}
	d.log.Debug("pull stream complete", "stream", stream, "pages", pageCount)
	return nil
}

// pageCursor mirrors vendorhttp's own opaque-cursor detection so the
// handler can persist the same value the client would have followed next.
func pageCursor(page map[string]interface{}) (string, bool) {
	if links, ok := page["links"].(map[string]interface{}); ok {
		if next, ok := links["next"].(string); ok && next != "" {
			return next, true
		}
	}
	if meta, ok := page["meta"].(map[string]interface{}); ok {
		if next, ok := meta["next"].(string); ok && next != "" {
			return next, true
		}
	}
	if pi, ok := page["page_info"].(string); ok && pi != "" {
		return pi, true
	}
	return "", false
}

func (d *deps) pullProducts(ctx context.Context, job *model.Job) error {
	return d.pullStream(ctx, job, "products", "products")
}

func (d *deps) pullInventory(ctx context.Context, job *model.Job) error {
	return d.pullStream(ctx, job, "inventory", "inventory")
}

func (d *deps) pullConsignments(ctx context.Context, job *model.Job) error {
	return d.pullStream(ctx, job, "consignments", "consignments")
}
