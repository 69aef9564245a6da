package vendorhttp

import (
	"context"
	"fmt"
	"net/url"
)

const maxPaginatePages = 1000

// Paginate walks a listing endpoint page by page, preferring an opaque
// cursor (links.next, meta.next, or page_info in the decoded response) when
// the vendor supplies one, falling back to an incrementing numeric page
// parameter otherwise. onPage is invoked with
// each page's decoded JSON; returning false stops iteration early.
func (c *Client) Paginate(ctx context.Context, path string, query url.Values, onPage func(page map[string]interface{}) (bool, error)) error {
	if query == nil {
		query = url.Values{}
	}
	opaqueCursor := ""
	usedOpaque := false
	pageNum := 1

	for i := 0; i < maxPaginatePages; i++ {
		q := cloneValues(query)
		if usedOpaque {
			if opaqueCursor == "" {
				return nil
			}
			q.Set("page_info", opaqueCursor)
		} else {
			q.Set("page", fmt.Sprintf("%d", pageNum))
		}

		resp, err := c.GET(ctx, path+"?"+q.Encode(), nil)
		if err != nil {
			return err
		}
		if resp.JSON == nil {
			return nil
		}

		items, _ := resp.JSON["items"].([]interface{})
		if items == nil {
			items, _ = resp.JSON["data"].([]interface{})
		}
		if len(items) == 0 {
			return nil
		}

		cont, err := onPage(resp.JSON)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}

		next, ok := nextOpaqueCursor(resp.JSON)
		if ok {
			usedOpaque = true
			opaqueCursor = next
			if opaqueCursor == "" {
				return nil
			}
			continue
		}
		if usedOpaque {
			// the opaque path previously ended and the server stopped
			// returning a cursor; do not fall back to numeric paging.
			return nil
		}
		pageNum++
	}
	return nil
}

func nextOpaqueCursor(page map[string]interface{}) (string, bool) {
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

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		cp := make([]string, len(vals))
		copy(cp, vals)
		out[k] = cp
	}
	return out
}
