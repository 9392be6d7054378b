package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/events"
	"invoicedesk/internal/logging"
	"invoicedesk/internal/repository"
	"invoicedesk/internal/retry"
	"invoicedesk/internal/service"
)

var errReset = errors.New("connection reset")

// flakyCatalog падает на Update для выбранных товаров; -1 = всегда
type flakyCatalog struct {
	*repository.MemoryStore
	mu          sync.Mutex
	failUpdates map[string]int
	updates     map[string]int
	patches     map[string][]int
}

func newFlakyCatalog() *flakyCatalog {
	return &flakyCatalog{
		MemoryStore: repository.NewMemoryStore(),
		failUpdates: map[string]int{},
		updates:     map[string]int{},
		patches:     map[string][]int{},
	}
}

func (f *flakyCatalog) Update(ctx context.Context, id string, patch domain.CatalogPatch) (*domain.CatalogItem, error) {
	f.mu.Lock()
	f.updates[id]++
	if patch.Quantity != nil {
		f.patches[id] = append(f.patches[id], *patch.Quantity)
	}
	n := f.failUpdates[id]
	if n > 0 {
		f.failUpdates[id] = n - 1
	}
	f.mu.Unlock()
	if n != 0 {
		return nil, domain.NewTransientIOError("update product", errReset)
	}
	return f.MemoryStore.Update(ctx, id, patch)
}

func (f *flakyCatalog) heal(id string) {
	f.mu.Lock()
	f.failUpdates[id] = 0
	f.mu.Unlock()
}

func (f *flakyCatalog) updateCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates[id]
}

type flakyInvoices struct {
	*repository.MemoryInvoices
	mu          sync.Mutex
	failCreates int // -1 = всегда
	lostAcks    int // запись проходит, но вызывающий получает ошибку
	failUpdates int
	creates     int
}

func (f *flakyInvoices) Create(ctx context.Context, inv *domain.Invoice) error {
	f.mu.Lock()
	f.creates++
	fail := f.failCreates != 0
	if f.failCreates > 0 {
		f.failCreates--
	}
	lost := f.lostAcks > 0
	if lost {
		f.lostAcks--
	}
	f.mu.Unlock()
	if fail {
		return domain.NewTransientIOError("insert invoice", errReset)
	}
	if err := f.MemoryInvoices.Create(ctx, inv); err != nil {
		return err
	}
	if lost {
		return domain.NewTransientIOError("insert invoice", errReset)
	}
	return nil
}

func (f *flakyInvoices) Update(ctx context.Context, id string, patch domain.InvoicePatch) (*domain.Invoice, error) {
	f.mu.Lock()
	fail := f.failUpdates != 0
	if f.failUpdates > 0 {
		f.failUpdates--
	}
	f.mu.Unlock()
	if fail {
		return nil, domain.NewTransientIOError("update invoice", errReset)
	}
	return f.MemoryInvoices.Update(ctx, id, patch)
}

func (f *flakyInvoices) stored(t *testing.T) []domain.Invoice {
	t.Helper()
	list, err := f.QueryByDateRange(context.Background(), time.Unix(0, 0), time.Now().Add(time.Hour))
	require.NoError(t, err)
	return list
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.InvoiceEvent
}

func (p *capturePublisher) Publish(_ context.Context, e events.InvoiceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

type fixture struct {
	catalog  *flakyCatalog
	invoices *flakyInvoices
	pub      *capturePublisher
	ctrl     *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog:  newFlakyCatalog(),
		invoices: &flakyInvoices{MemoryInvoices: repository.NewMemoryInvoices(repository.NewMemoryStore())},
		pub:      &capturePublisher{},
	}
	exec := retry.New(time.Second, logging.Nop(), retry.WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
	f.ctrl = NewController(f.catalog, f.invoices, exec, logging.Nop(), WithPublisher(f.pub))
	return f
}

func (f *fixture) seed(t *testing.T, id, name string, price float64, qty int) domain.CatalogItem {
	t.Helper()
	item := domain.CatalogItem{ID: id, Name: name, Price: price, Quantity: qty}
	require.NoError(t, f.catalog.Create(context.Background(), &item))
	return item
}

func validBuyer() domain.BuyerDetails {
	return domain.BuyerDetails{Name: "Asha", Email: "asha@example.com", Phone: "1234567890"}
}

func TestSubmit_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 5)

	s := NewSession()
	_, err := s.AddProduct(ring)
	require.NoError(t, err)
	li, err := s.AddProduct(ring)
	require.NoError(t, err)
	require.Equal(t, 2, li.Quantity)
	require.NoError(t, s.SetBuyer(validBuyer()))

	res, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)

	inv := res.Invoice
	assert.Equal(t, 200.0, inv.Subtotal)
	assert.Equal(t, 36.0, inv.TaxAmount)
	assert.Equal(t, 236.0, inv.TotalAmount)
	assert.Equal(t, domain.OrderPrinted, inv.OrderStatus)
	assert.Equal(t, "Invoice #"+inv.ID+" generated successfully!", res.Notice)
	assert.Equal(t, 5*time.Second, res.DismissAfter)

	// ровно один вызов обновления остатка, на 2 единицы
	assert.Equal(t, 1, f.catalog.updateCount("p1"))
	assert.Equal(t, []int{3}, f.catalog.patches["p1"])

	assert.Equal(t, StateCompleted, s.State())
	v := s.View()
	assert.Empty(t, v.Items)
	assert.Equal(t, domain.BuyerDetails{}, v.Buyer)
	assert.Len(t, f.invoices.stored(t), 1)
	require.Len(t, f.pub.events, 1)
	assert.Equal(t, events.TypeInvoiceCompleted, f.pub.events[0].Type)
}

func TestSubmit_PartialStockFailureResumesWithoutDuplicate(t *testing.T) {
	f := newFixture(t)
	s := NewSession()
	for _, id := range []string{"p1", "p2", "p3"} {
		item := f.seed(t, id, "Item "+id, 10, 10)
		_, err := s.AddProduct(item)
		require.NoError(t, err)
	}
	require.NoError(t, s.SetBuyer(validBuyer()))
	f.catalog.failUpdates["p3"] = -1

	_, err := f.ctrl.Submit(context.Background(), s)
	require.Error(t, err)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StateUpdatingStock, stepErr.Step)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, []string{"p3"}, stockErr.ProductIDs)
	assert.ErrorIs(t, err, errReset)

	// счёт сохранён и не откатан, списано 2 из 3
	stored := f.invoices.stored(t)
	require.Len(t, stored, 1)
	for id, want := range map[string]int{"p1": 9, "p2": 9, "p3": 10} {
		item, err := f.catalog.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, item.Quantity, id)
	}
	// успешные шаги не повторялись при автоматических продолжениях
	assert.Equal(t, 1, f.catalog.updateCount("p1"))
	assert.Equal(t, 1, f.catalog.updateCount("p2"))
	assert.Equal(t, DefaultMaxAttempts*(DefaultMaxResumes+1), f.catalog.updateCount("p3"))
	assert.Equal(t, 1, f.invoices.creates)

	assert.Equal(t, StateError, s.State())
	v := s.View()
	assert.Equal(t, stored[0].ID, v.PendingInvoiceID)
	assert.Equal(t, []string{"p3"}, v.PendingStock)
	assert.Equal(t, StateUpdatingStock, v.ResumeFrom)
	assert.Len(t, v.Items, 3, "cart kept until completion")

	assert.ErrorIs(t, s.SetQuantity("p1", 5), ErrSubmissionPending)

	// ручное продолжение после восстановления
	f.catalog.heal("p3")
	res, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, stored[0].ID, res.Invoice.ID)
	assert.Len(t, f.invoices.stored(t), 1)
	assert.Equal(t, 1, f.invoices.creates)
	assert.Equal(t, 1, f.catalog.updateCount("p1"))
	item, _ := f.catalog.Get(context.Background(), "p3")
	assert.Equal(t, 9, item.Quantity)
	assert.Equal(t, StateCompleted, s.State())
}

func TestSubmit_ValidationFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 5)
	s := NewSession()
	_, err := s.AddProduct(ring)
	require.NoError(t, err)
	require.NoError(t, s.SetBuyer(domain.BuyerDetails{Name: "Asha", Email: "asha@example.com", Phone: "12345"}))

	_, err = f.ctrl.Submit(context.Background(), s)
	ve, ok := domain.AsValidationError(err)
	require.True(t, ok)
	assert.True(t, ve.Has("buyerPhone"))

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 0, f.invoices.creates)
	assert.Equal(t, 0, f.catalog.updateCount("p1"))
	assert.Len(t, s.View().Items, 1)

	_, err = f.ctrl.Submit(context.Background(), NewSession())
	ve, ok = domain.AsValidationError(err)
	require.True(t, ok)
	assert.True(t, ve.Has("invoice"))
}

func TestSubmit_PersistFailureKeepsCart(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 5)
	s := NewSession()
	_, err := s.AddProduct(ring)
	require.NoError(t, err)
	require.NoError(t, s.SetBuyer(validBuyer()))
	f.invoices.failCreates = -1

	_, err = f.ctrl.Submit(context.Background(), s)
	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, StatePersisting, stepErr.Step)
	assert.True(t, domain.IsTransientIOError(err))

	assert.Equal(t, StateError, s.State())
	assert.Len(t, s.View().Items, 1)
	assert.Empty(t, f.invoices.stored(t))
	assert.Equal(t, 0, f.catalog.updateCount("p1"))
	assert.Equal(t, DefaultMaxAttempts*(DefaultMaxResumes+1), f.invoices.creates)

	f.invoices.mu.Lock()
	f.invoices.failCreates = 0
	f.invoices.mu.Unlock()
	res, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, stepErr.InvoiceID, res.Invoice.ID, "resume reuses the draft invoice id")
	assert.Len(t, f.invoices.stored(t), 1)
}

func TestSubmit_TransientPersistRetried(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 5)
	s := NewSession()
	_, _ = s.AddProduct(ring)
	require.NoError(t, s.SetBuyer(validBuyer()))
	f.invoices.failCreates = 2

	_, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, 3, f.invoices.creates)
	assert.Len(t, f.invoices.stored(t), 1)
}

func TestSubmit_LostAckDoesNotDuplicate(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 5)
	s := NewSession()
	_, _ = s.AddProduct(ring)
	require.NoError(t, s.SetBuyer(validBuyer()))
	f.invoices.lostAcks = 1

	res, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)
	stored := f.invoices.stored(t)
	require.Len(t, stored, 1)
	assert.Equal(t, stored[0].ID, res.Invoice.ID)
}

func TestSubmit_PrintingResumed(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 5)
	s := NewSession()
	_, _ = s.AddProduct(ring)
	require.NoError(t, s.SetBuyer(validBuyer()))
	// первый прогон исчерпывает попытки печати, автоматическое продолжение проходит
	f.invoices.failUpdates = DefaultMaxAttempts

	res, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPrinted, res.Invoice.OrderStatus)
	assert.Equal(t, 1, f.catalog.updateCount("p1"))
	assert.Equal(t, 1, f.invoices.creates)
}

func TestSubmit_VoidedWhileStockPendingIsNotResumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ring := f.seed(t, "p1", "Ring", 100, 10)
	s := NewSession()
	_, _ = s.AddProduct(ring)
	require.NoError(t, s.SetBuyer(validBuyer()))
	f.catalog.failUpdates["p1"] = -1

	_, err := f.ctrl.Submit(ctx, s)
	require.Error(t, err)
	stored := f.invoices.stored(t)
	require.Len(t, stored, 1)
	id := stored[0].ID

	_, err = service.NewInvoiceService(f.invoices, nil, nil).Void(ctx, id, "customer cancelled", "")
	require.NoError(t, err)
	f.catalog.heal("p1")
	updates := f.catalog.updateCount("p1")

	_, err = f.ctrl.Submit(ctx, s)
	require.ErrorIs(t, err, ErrInvoiceVoided)

	got, err := f.invoices.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderVoided, got.OrderStatus)
	assert.Equal(t, "customer cancelled", got.VoidReason)
	item, _ := f.catalog.Get(ctx, "p1")
	assert.Equal(t, 10, item.Quantity)
	assert.Equal(t, updates, f.catalog.updateCount("p1"))

	v := s.View()
	assert.Equal(t, StateIdle, v.State)
	assert.Empty(t, v.Items)
	assert.Empty(t, v.PendingInvoiceID)
	assert.Empty(t, v.PendingStock)
	assert.Empty(t, f.pub.events)
}

func TestSubmit_VoidedWhilePrintPendingIsNotPrinted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ring := f.seed(t, "p1", "Ring", 100, 5)
	s := NewSession()
	_, _ = s.AddProduct(ring)
	require.NoError(t, s.SetBuyer(validBuyer()))
	f.invoices.failUpdates = -1

	_, err := f.ctrl.Submit(ctx, s)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StatePrinting, stepErr.Step)
	id := stepErr.InvoiceID

	f.invoices.mu.Lock()
	f.invoices.failUpdates = 0
	f.invoices.mu.Unlock()
	_, err = service.NewInvoiceService(f.invoices, nil, nil).Void(ctx, id, "wrong buyer", "")
	require.NoError(t, err)

	_, err = f.ctrl.Submit(ctx, s)
	require.ErrorIs(t, err, ErrInvoiceVoided)
	got, err := f.invoices.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderVoided, got.OrderStatus)
	// склад списан один раз при первом прогоне
	item, _ := f.catalog.Get(ctx, "p1")
	assert.Equal(t, 4, item.Quantity)
	assert.Equal(t, StateIdle, s.State())
}

func TestSubmit_StockClampedAtZeroAndMissingProduct(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 1)
	s := NewSession()
	require.NoError(t, s.PutItem(domain.LineItem{ProductID: ring.ID, Name: ring.Name, UnitPrice: 100, Quantity: 3}))
	require.NoError(t, s.PutItem(domain.LineItem{ProductID: "gone", Name: "Gone", UnitPrice: 5, Quantity: 1}))
	require.NoError(t, s.SetBuyer(validBuyer()))

	_, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)
	item, _ := f.catalog.Get(context.Background(), "p1")
	assert.Equal(t, 0, item.Quantity)
}

func TestSession_BusyRejectsMutations(t *testing.T) {
	f := newFixture(t)
	s := NewSession()
	require.NoError(t, s.acquire())
	_, err := s.AddProduct(domain.CatalogItem{ID: "p1", Name: "Ring", Price: 1})
	assert.ErrorIs(t, err, ErrSessionBusy)
	_, err = f.ctrl.Submit(context.Background(), s)
	assert.ErrorIs(t, err, ErrSessionBusy)
	s.release()
	_, err = s.AddProduct(domain.CatalogItem{ID: "p1", Name: "Ring", Price: 1})
	assert.NoError(t, err)
}

func TestSession_EditAfterCompletionStartsNewDraft(t *testing.T) {
	f := newFixture(t)
	ring := f.seed(t, "p1", "Ring", 100, 5)
	s := NewSession()
	_, _ = s.AddProduct(ring)
	require.NoError(t, s.SetBuyer(validBuyer()))
	_, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)

	_, err = s.AddProduct(ring)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State())
	require.NoError(t, s.SetBuyer(validBuyer()))
	res, err := f.ctrl.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, f.invoices.stored(t), 2)
	assert.Equal(t, 1, res.Invoice.TotalQuantity)
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(StateIdle, StateValidating))
	assert.True(t, CanTransitionTo(StateError, StateUpdatingStock))
	assert.False(t, CanTransitionTo(StateIdle, StatePersisting))
	assert.False(t, CanTransitionTo(StateCompleted, StatePrinting))
	assert.True(t, StateError.IsTerminal())
	assert.False(t, StatePrinting.IsTerminal())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := r.New()
	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, s.acquire())
	assert.ErrorIs(t, r.Delete(s.ID), ErrSessionBusy)
	s.release()
	require.NoError(t, r.Delete(s.ID))
	_, err = r.Get(s.ID)
	assert.True(t, domain.IsNotFoundError(err))
}
