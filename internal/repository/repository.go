package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"invoicedesk/internal/domain"
)

// ErrDuplicate запись с таким id или кодом уже есть
var ErrDuplicate = errors.New("duplicate")

// CatalogFilter параметры фильтрации списка товаров
type CatalogFilter struct {
	NameSubstring  string
	Category       string
	MinPrice       *float64
	MaxPrice       *float64
	IncludeDeleted bool
}

// IsZero reports whether the filter selects every live product.
func (f CatalogFilter) IsZero() bool {
	return f.NameSubstring == "" && f.Category == "" && f.MinPrice == nil && f.MaxPrice == nil && !f.IncludeDeleted
}

// CatalogStore интерфейс хранилища товаров. Soft-deleted items are invisible
// to Get, FindByCode and Update.
type CatalogStore interface {
	List(ctx context.Context, f CatalogFilter) ([]domain.CatalogItem, error)
	Get(ctx context.Context, id string) (*domain.CatalogItem, error)
	FindByCode(ctx context.Context, code string) (*domain.CatalogItem, error)
	Create(ctx context.Context, item *domain.CatalogItem) error
	Update(ctx context.Context, id string, patch domain.CatalogPatch) (*domain.CatalogItem, error)
	SoftDelete(ctx context.Context, id string) error
}

// InvoiceStore интерфейс хранилища счетов
type InvoiceStore interface {
	Create(ctx context.Context, inv *domain.Invoice) error
	Get(ctx context.Context, id string) (*domain.Invoice, error)
	Update(ctx context.Context, id string, patch domain.InvoicePatch) (*domain.Invoice, error)
	// QueryByDateRange returns invoices created in [start, end), oldest first.
	QueryByDateRange(ctx context.Context, start, end time.Time) ([]domain.Invoice, error)
}

// LogStore sink for persisted log entries
type LogStore interface {
	AppendLog(ctx context.Context, e domain.LogEntry) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func matches(f CatalogFilter, p domain.CatalogItem) bool {
	if p.Deleted && !f.IncludeDeleted {
		return false
	}
	if !containsIgnoreCase(p.Name, f.NameSubstring) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(p.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	return true
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
