// Package handlers implements the sixteen closed-set job-type handlers:
// pure functions of (payload, job_id) that call the vendor HTTP client and
// record audit rows through a guarded insert. No handler polls for write
// verification: the pollUntilMatch helper in verify.go has no caller.
package handlers

import (
	"github.com/yungbote/vendorqueue/internal/cursor"
	"github.com/yungbote/vendorqueue/internal/dispatcher"
	jobrepo "github.com/yungbote/vendorqueue/internal/repo"
	"github.com/yungbote/vendorqueue/internal/vendorhttp"
	"github.com/yungbote/vendorqueue/internal/pkg/logger"
)

// Registry maps job type to its Handler, and implements
// dispatcher.HandlerRegistry.
type Registry struct {
	byType map[string]dispatcher.Handler
}

func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]dispatcher.Handler)}
}

func (r *Registry) Register(jobType string, h dispatcher.Handler) {
	r.byType[jobType] = h
}

func (r *Registry) Get(jobType string) (dispatcher.Handler, bool) {
	h, ok := r.byType[jobType]
	return h, ok
}

// deps bundles what every handler constructor needs; kept private so
// call sites go through the named constructors below rather than reaching
// into a god-object.
type deps struct {
	vendor  *vendorhttp.Client
	repo    jobrepo.Repository
	cursors *cursor.Store
	log     *logger.Logger
}

// NewDefaultRegistry builds and registers every handler in the closed
// job-type set against the given collaborators.
func NewDefaultRegistry(vendor *vendorhttp.Client, repo jobrepo.Repository, cursors *cursor.Store, log *logger.Logger) *Registry {
	d := &deps{vendor: vendor, repo: repo, cursors: cursors, log: log.With("component", "handlers")}
	r := NewRegistry()

	r.Register("create_consignment", d.createConsignment)
	r.Register("update_consignment", d.updateConsignment)
	r.Register("cancel_consignment", d.cancelConsignment)
	r.Register("edit_consignment_lines", d.editConsignmentLines)
	r.Register("add_consignment_products", d.addConsignmentProducts)
	r.Register("mark_transfer_partial", d.markTransferPartial)
	r.Register("push_product_update", d.pushProductUpdate)
	r.Register("inventory.command", d.inventoryCommand)
	r.Register("webhook.event", d.webhookEvent)
	r.Register("sync_product", d.syncProduct)
	r.Register("sync_inventory", d.syncInventory)
	r.Register("sync_customer", d.syncCustomer)
	r.Register("sync_sale", d.syncSale)
	r.Register("pull_products", d.pullProducts)
	r.Register("pull_inventory", d.pullInventory)
	r.Register("pull_consignments", d.pullConsignments)

	return r
}
