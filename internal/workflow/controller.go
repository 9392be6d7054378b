// Package workflow drives an invoice submission from a drafting session through
// validation, persistence, stock decrement and printing.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/events"
	"invoicedesk/internal/invoice"
	"invoicedesk/internal/logging"
	"invoicedesk/internal/repository"
	"invoicedesk/internal/retry"
)

const (
	DefaultMaxAttempts = 3
	// DefaultMaxResumes automatic resumes of a failed submission
	DefaultMaxResumes = 3
	// NoticeDismissAfter how long clients show the success notice
	NoticeDismissAfter = 5 * time.Second
)

// Catalog is the part of the catalog the workflow writes stock through.
type Catalog interface {
	Get(ctx context.Context, id string) (*domain.CatalogItem, error)
	Update(ctx context.Context, id string, patch domain.CatalogPatch) (*domain.CatalogItem, error)
}

// Result of a completed submission.
type Result struct {
	Invoice      *domain.Invoice `json:"invoice"`
	Notice       string          `json:"notice"`
	DismissAfter time.Duration   `json:"-"`
}

// StepError a workflow step failed after all retries. The session keeps the
// progress and the next Submit resumes from Step.
type StepError struct {
	Step      State
	InvoiceID string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// StockError stock could not be decremented for some products.
type StockError struct {
	ProductIDs []string
	Err        error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("stock update failed for %d item(s) %v: %v", len(e.ProductIDs), e.ProductIDs, e.Err)
}

func (e *StockError) Unwrap() error { return e.Err }

type Controller struct {
	builder     *invoice.Builder
	catalog     Catalog
	invoices    repository.InvoiceStore
	retry       *retry.Executor
	publisher   events.Publisher
	log         logging.Logger
	maxAttempts int
	maxResumes  int
	now         func() time.Time
}

type Option func(*Controller)

func WithMaxAttempts(n int) Option { return func(c *Controller) { c.maxAttempts = n } }

func WithMaxResumes(n int) Option { return func(c *Controller) { c.maxResumes = n } }

func WithPublisher(p events.Publisher) Option { return func(c *Controller) { c.publisher = p } }

func WithBuilder(b *invoice.Builder) Option { return func(c *Controller) { c.builder = b } }

func NewController(catalog Catalog, invoices repository.InvoiceStore, exec *retry.Executor, log logging.Logger, opts ...Option) *Controller {
	if log == nil {
		log = logging.Nop()
	}
	c := &Controller{
		builder:     invoice.NewBuilder(),
		catalog:     catalog,
		invoices:    invoices,
		retry:       exec,
		publisher:   events.Nop{},
		log:         log,
		maxAttempts: DefaultMaxAttempts,
		maxResumes:  DefaultMaxResumes,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	if c.maxResumes < 0 {
		c.maxResumes = 0
	}
	return c
}

// Submit runs the session's submission to completion. A failed step is
// resumed up to maxResumes times, never repeating a step that succeeded;
// a later Submit on a failed session resumes the same way.
func (c *Controller) Submit(ctx context.Context, s *Session) (*Result, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	var err error
	for resume := 0; ; resume++ {
		var res *Result
		res, err = c.run(ctx, s)
		if err == nil {
			return res, nil
		}
		if domain.IsValidationError(err) || errors.Is(err, ErrInvoiceVoided) || ctx.Err() != nil || resume >= c.maxResumes {
			return nil, err
		}
		c.log.Warn("resuming submission",
			"session_id", s.ID,
			"step", s.nextStep(),
			"resume", resume+1,
			"max_resumes", c.maxResumes,
			"error", err,
		)
	}
}

func (c *Controller) run(ctx context.Context, s *Session) (*Result, error) {
	step := s.nextStep()
	for {
		var err error
		switch step {
		case StateValidating:
			err = c.validate(s)
			if err != nil {
				return nil, err
			}
			step = StatePersisting
		case StatePersisting:
			err = c.persist(ctx, s)
			step = StateUpdatingStock
		case StateUpdatingStock:
			err = c.updateStock(ctx, s)
			step = StatePrinting
		case StatePrinting:
			err = c.print(ctx, s)
			step = StateCompleted
		case StateCompleted:
			return c.complete(ctx, s)
		default:
			return nil, fmt.Errorf("%w: resume from %s", ErrIllegalTransition, step)
		}
		if err != nil {
			return nil, err
		}
	}
}

func (c *Controller) validate(s *Session) error {
	if err := s.transition(StateValidating); err != nil {
		return err
	}
	s.mu.Lock()
	inv, err := c.builder.Build(s.cart, s.buyer, s.method)
	s.mu.Unlock()
	if err != nil {
		// Validating → Error → Idle, без побочных эффектов
		_ = s.transition(StateError)
		s.mu.Lock()
		s.state = StateIdle
		s.resumeFrom = StateValidating
		s.lastErr = err
		s.mu.Unlock()
		return err
	}
	pending := make(map[string]int, len(inv.LineItems))
	for _, li := range inv.LineItems {
		pending[li.ProductID] += li.Quantity
	}
	s.mu.Lock()
	s.invoice = inv
	s.pendingStock = pending
	s.mu.Unlock()
	return nil
}

func (c *Controller) fail(s *Session, step State, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateError
	s.resumeFrom = step
	s.lastErr = err
	id := ""
	if s.invoice != nil {
		id = s.invoice.ID
	}
	return &StepError{Step: step, InvoiceID: id, Err: err}
}

func (c *Controller) persist(ctx context.Context, s *Session) error {
	if err := s.transition(StatePersisting); err != nil {
		return err
	}
	s.mu.Lock()
	draft := s.invoice.Clone()
	s.mu.Unlock()

	saved, err := retry.Do(ctx, c.retry, "persist invoice", c.maxAttempts, func(ctx context.Context) (*domain.Invoice, error) {
		inv := draft.Clone()
		err := c.invoices.Create(ctx, &inv)
		if errors.Is(err, repository.ErrDuplicate) {
			// предыдущая попытка всё-таки записала счёт
			return c.invoices.Get(ctx, inv.ID)
		}
		if err != nil {
			return nil, err
		}
		return &inv, nil
	})
	if err != nil {
		return c.fail(s, StatePersisting, err)
	}
	s.mu.Lock()
	s.invoice = saved
	s.persisted = true
	s.mu.Unlock()
	c.log.Info("invoice persisted", "session_id", s.ID, "invoice_id", saved.ID, "total", saved.TotalAmount)
	return nil
}

// updateStock decrements every pending product in parallel, each with its own
// retries. Successful items leave the pending set; the invoice is never rolled back.
func (c *Controller) updateStock(ctx context.Context, s *Session) error {
	if err := s.transition(StateUpdatingStock); err != nil {
		return err
	}
	if err := c.ensureNotVoided(ctx, s, StateUpdatingStock); err != nil {
		return err
	}
	s.mu.Lock()
	pending := make(map[string]int, len(s.pendingStock))
	for id, q := range s.pendingStock {
		pending[id] = q
	}
	s.mu.Unlock()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failed   []string
		firstErr error
	)
	for productID, sold := range pending {
		wg.Add(1)
		go func(productID string, sold int) {
			defer wg.Done()
			err := c.retry.Run(ctx, "update stock", c.maxAttempts, func(ctx context.Context) error {
				return c.decrement(ctx, productID, sold)
			})
			if domain.IsNotFoundError(err) {
				c.log.Warn("product missing, stock not decremented", "product_id", productID, "quantity", sold)
				err = nil
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, productID)
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			s.mu.Lock()
			delete(s.pendingStock, productID)
			s.mu.Unlock()
		}(productID, sold)
	}
	wg.Wait()

	if len(failed) > 0 {
		sort.Strings(failed)
		return c.fail(s, StateUpdatingStock, &StockError{ProductIDs: failed, Err: firstErr})
	}
	return nil
}

// ensureNotVoided re-reads the stored invoice before a step with side effects.
// A voided invoice closes the session: the sale was cancelled.
func (c *Controller) ensureNotVoided(ctx context.Context, s *Session, step State) error {
	s.mu.Lock()
	id := s.invoice.ID
	s.mu.Unlock()

	stored, err := retry.Do(ctx, c.retry, "load invoice", c.maxAttempts, func(ctx context.Context) (*domain.Invoice, error) {
		return c.invoices.Get(ctx, id)
	})
	if err != nil {
		return c.fail(s, step, err)
	}
	if stored.OrderStatus != domain.OrderVoided {
		return nil
	}
	verr := fmt.Errorf("%w: invoice %s", ErrInvoiceVoided, id)
	s.mu.Lock()
	s.reset()
	s.state = StateIdle
	s.lastErr = verr
	s.mu.Unlock()
	c.log.Warn("invoice voided before submission finished, session closed",
		"session_id", s.ID,
		"invoice_id", id,
		"step", step,
		"void_reason", stored.VoidReason,
	)
	return verr
}

func (c *Controller) decrement(ctx context.Context, productID string, sold int) error {
	item, err := c.catalog.Get(ctx, productID)
	if err != nil {
		return err
	}
	qty := item.Quantity - sold
	if qty < 0 {
		qty = 0
	}
	_, err = c.catalog.Update(ctx, productID, domain.CatalogPatch{Quantity: &qty})
	return err
}

func (c *Controller) print(ctx context.Context, s *Session) error {
	if err := s.transition(StatePrinting); err != nil {
		return err
	}
	if err := c.ensureNotVoided(ctx, s, StatePrinting); err != nil {
		return err
	}
	s.mu.Lock()
	id := s.invoice.ID
	s.mu.Unlock()

	printed := domain.OrderPrinted
	inv, err := retry.Do(ctx, c.retry, "print invoice", c.maxAttempts, func(ctx context.Context) (*domain.Invoice, error) {
		return c.invoices.Update(ctx, id, domain.InvoicePatch{OrderStatus: &printed})
	})
	if err != nil {
		return c.fail(s, StatePrinting, err)
	}
	s.mu.Lock()
	s.invoice = inv
	s.mu.Unlock()
	return nil
}

func (c *Controller) complete(ctx context.Context, s *Session) (*Result, error) {
	if err := s.transition(StateCompleted); err != nil {
		return nil, err
	}
	s.mu.Lock()
	inv := s.invoice
	s.reset()
	s.mu.Unlock()

	if err := c.publisher.Publish(ctx, events.NewInvoiceEvent(events.TypeInvoiceCompleted, inv, c.now())); err != nil {
		c.log.Warn("publish event failed", "invoice_id", inv.ID, "error", err)
	}
	c.log.Info("invoice completed", "session_id", s.ID, "invoice_id", inv.ID)
	return &Result{
		Invoice:      inv,
		Notice:       fmt.Sprintf("Invoice #%s generated successfully!", inv.ID),
		DismissAfter: NoticeDismissAfter,
	}, nil
}
