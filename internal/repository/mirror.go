package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/logging"
)

// Mirrored stores write to a primary and a backup database in parallel and
// read from the primary. A backup failure is logged and does not fail the
// write; the primary result is authoritative.

type MirroredCatalog struct {
	primary CatalogStore
	backup  CatalogStore
	log     logging.Logger
}

func NewMirroredCatalog(primary, backup CatalogStore, log logging.Logger) *MirroredCatalog {
	if log == nil {
		log = logging.Nop()
	}
	return &MirroredCatalog{primary: primary, backup: backup, log: log}
}

var _ CatalogStore = (*MirroredCatalog)(nil)

func (m *MirroredCatalog) List(ctx context.Context, f CatalogFilter) ([]domain.CatalogItem, error) {
	return m.primary.List(ctx, f)
}

func (m *MirroredCatalog) Get(ctx context.Context, id string) (*domain.CatalogItem, error) {
	return m.primary.Get(ctx, id)
}

func (m *MirroredCatalog) FindByCode(ctx context.Context, code string) (*domain.CatalogItem, error) {
	return m.primary.FindByCode(ctx, code)
}

func (m *MirroredCatalog) Create(ctx context.Context, item *domain.CatalogItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	primaryItem, backupItem := *item, *item
	err := mirror(ctx, m.log, "create product",
		func(ctx context.Context) error { return m.primary.Create(ctx, &primaryItem) },
		func(ctx context.Context) error { return m.backup.Create(ctx, &backupItem) },
	)
	if err != nil {
		return err
	}
	*item = primaryItem
	return nil
}

func (m *MirroredCatalog) Update(ctx context.Context, id string, patch domain.CatalogPatch) (*domain.CatalogItem, error) {
	var out *domain.CatalogItem
	err := mirror(ctx, m.log, "update product",
		func(ctx context.Context) (err error) {
			out, err = m.primary.Update(ctx, id, patch)
			return err
		},
		func(ctx context.Context) error {
			_, err := m.backup.Update(ctx, id, patch)
			return err
		},
	)
	return out, err
}

func (m *MirroredCatalog) SoftDelete(ctx context.Context, id string) error {
	return mirror(ctx, m.log, "delete product",
		func(ctx context.Context) error { return m.primary.SoftDelete(ctx, id) },
		func(ctx context.Context) error { return m.backup.SoftDelete(ctx, id) },
	)
}

type MirroredInvoices struct {
	primary InvoiceStore
	backup  InvoiceStore
	log     logging.Logger
}

func NewMirroredInvoices(primary, backup InvoiceStore, log logging.Logger) *MirroredInvoices {
	if log == nil {
		log = logging.Nop()
	}
	return &MirroredInvoices{primary: primary, backup: backup, log: log}
}

var _ InvoiceStore = (*MirroredInvoices)(nil)

func (m *MirroredInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	primaryInv, backupInv := inv.Clone(), inv.Clone()
	err := mirror(ctx, m.log, "create invoice",
		func(ctx context.Context) error { return m.primary.Create(ctx, &primaryInv) },
		func(ctx context.Context) error { return m.backup.Create(ctx, &backupInv) },
	)
	if err != nil {
		return err
	}
	*inv = primaryInv
	return nil
}

func (m *MirroredInvoices) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	return m.primary.Get(ctx, id)
}

func (m *MirroredInvoices) Update(ctx context.Context, id string, patch domain.InvoicePatch) (*domain.Invoice, error) {
	var out *domain.Invoice
	err := mirror(ctx, m.log, "update invoice",
		func(ctx context.Context) (err error) {
			out, err = m.primary.Update(ctx, id, patch)
			return err
		},
		func(ctx context.Context) error {
			_, err := m.backup.Update(ctx, id, patch)
			return err
		},
	)
	return out, err
}

func (m *MirroredInvoices) QueryByDateRange(ctx context.Context, start, end time.Time) ([]domain.Invoice, error) {
	return m.primary.QueryByDateRange(ctx, start, end)
}

// mirror runs both writes concurrently and returns the primary error.
func mirror(ctx context.Context, log logging.Logger, op string, primary, backup func(context.Context) error) error {
	var g errgroup.Group
	g.Go(func() error { return primary(ctx) })
	g.Go(func() error {
		if err := backup(ctx); err != nil {
			log.Warn("backup write failed", "op", op, "error", err)
		}
		return nil
	})
	return g.Wait()
}
