package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoicedesk/internal/domain"
)

// MemoryStore объединённое in-memory хранилище товаров, счетов и логов
type MemoryStore struct {
	mu           sync.RWMutex
	productsByID map[string]domain.CatalogItem
	productOrder []string
	invoicesByID map[string]domain.Invoice
	logs         []domain.LogEntry
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		productsByID: make(map[string]domain.CatalogItem),
		invoicesByID: make(map[string]domain.Invoice),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Ensure interfaces
var (
	_ CatalogStore = (*MemoryStore)(nil)
	_ LogStore     = (*MemoryStore)(nil)
)

func cloneItem(p domain.CatalogItem) *domain.CatalogItem {
	cp := p
	cp.Variants = append([]domain.Variant(nil), p.Variants...)
	return &cp
}

// CatalogStore implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.CatalogItem) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, ok := m.productsByID[p.ID]; ok {
		return fmt.Errorf("product %s: %w", p.ID, ErrDuplicate)
	}
	if p.Code != "" {
		for _, other := range m.productsByID {
			if other.Code == p.Code {
				return fmt.Errorf("product code %s: %w", p.Code, ErrDuplicate)
			}
		}
	}
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.productsByID[p.ID] = *cloneItem(*p)
	m.productOrder = append(m.productOrder, p.ID)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*domain.CatalogItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.productsByID[id]
	if !ok || p.Deleted {
		return nil, domain.NewNotFoundError("product", id)
	}
	// return copy
	return cloneItem(p), nil
}

func (m *MemoryStore) FindByCode(ctx context.Context, code string) (*domain.CatalogItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.productsByID {
		if p.Code == code && code != "" && !p.Deleted {
			return cloneItem(p), nil
		}
	}
	return nil, domain.NewNotFoundError("product", code)
}

func (m *MemoryStore) Update(ctx context.Context, id string, patch domain.CatalogPatch) (*domain.CatalogItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.productsByID[id]
	if !ok || p.Deleted {
		return nil, domain.NewNotFoundError("product", id)
	}
	patch.Apply(&p)
	p.UpdatedAt = m.now()
	m.productsByID[id] = p
	return cloneItem(p), nil
}

// SoftDelete помечает товар удалённым, запись остаётся
func (m *MemoryStore) SoftDelete(ctx context.Context, id string) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.productsByID[id]
	if !ok || p.Deleted {
		return domain.NewNotFoundError("product", id)
	}
	now := m.now()
	p.Deleted = true
	p.DeletedAt = &now
	p.UpdatedAt = now
	m.productsByID[id] = p
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f CatalogFilter) ([]domain.CatalogItem, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	// в порядке создания
	out := make([]domain.CatalogItem, 0)
	for _, id := range m.productOrder {
		p := m.productsByID[id]
		if !matches(f, p) {
			continue
		}
		out = append(out, *cloneItem(p))
	}
	return out, nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, e domain.LogEntry) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, e)
	return nil
}

// Logs snapshot of appended log entries.
func (m *MemoryStore) Logs() []domain.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.LogEntry(nil), m.logs...)
}

// InvoiceStore implementation on wrapper type
type MemoryInvoices struct{ store *MemoryStore }

func NewMemoryInvoices(store *MemoryStore) *MemoryInvoices { return &MemoryInvoices{store: store} }

var _ InvoiceStore = (*MemoryInvoices)(nil)

func (mi *MemoryInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	mi.store.mu.Lock()
	defer mi.store.mu.Unlock()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if _, ok := mi.store.invoicesByID[inv.ID]; ok {
		return fmt.Errorf("invoice %s: %w", inv.ID, ErrDuplicate)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = mi.store.now()
	}
	inv.UpdatedAt = inv.CreatedAt
	mi.store.invoicesByID[inv.ID] = inv.Clone()
	return nil
}

func (mi *MemoryInvoices) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	mi.store.mu.RLock()
	defer mi.store.mu.RUnlock()
	inv, ok := mi.store.invoicesByID[id]
	if !ok {
		return nil, domain.NewNotFoundError("invoice", id)
	}
	cp := inv.Clone()
	return &cp, nil
}

func (mi *MemoryInvoices) Update(ctx context.Context, id string, patch domain.InvoicePatch) (*domain.Invoice, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	mi.store.mu.Lock()
	defer mi.store.mu.Unlock()
	inv, ok := mi.store.invoicesByID[id]
	if !ok {
		return nil, domain.NewNotFoundError("invoice", id)
	}
	patch.Apply(&inv)
	inv.UpdatedAt = mi.store.now()
	mi.store.invoicesByID[id] = inv
	cp := inv.Clone()
	return &cp, nil
}

func (mi *MemoryInvoices) QueryByDateRange(ctx context.Context, start, end time.Time) ([]domain.Invoice, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	mi.store.mu.RLock()
	defer mi.store.mu.RUnlock()
	out := make([]domain.Invoice, 0)
	for _, inv := range mi.store.invoicesByID {
		if inv.CreatedAt.Before(start) || !inv.CreatedAt.Before(end) {
			continue
		}
		out = append(out, inv.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
