package workflow

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/invoice"
)

// Session one invoice-drafting session. It owns the cart and buyer details
// and remembers how far its current submission got.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	busy   bool
	cart   *domain.Cart
	buyer  domain.BuyerDetails
	method domain.PaymentMethod

	state      State
	resumeFrom State
	invoice    *domain.Invoice
	persisted  bool
	// productID -> количество, которое ещё нужно списать
	pendingStock map[string]int
	lastErr      error
}

func NewSession() *Session {
	return &Session{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		cart:       domain.NewCart(),
		method:     domain.PaymentCash,
		state:      StateIdle,
		resumeFrom: StateValidating,
	}
}

// mutate runs fn under the session lock unless a submission is running or
// waiting to be resumed. Any edit invalidates an unpersisted draft invoice.
func (s *Session) mutate(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrSessionBusy
	}
	if s.persisted {
		return ErrSubmissionPending
	}
	if err := fn(); err != nil {
		return err
	}
	if s.invoice != nil || s.state == StateError || s.state == StateCompleted {
		s.invoice = nil
		s.pendingStock = nil
		s.resumeFrom = StateValidating
		s.state = StateIdle
		s.lastErr = nil
	}
	return nil
}

// AddProduct adds one unit of item, or increments its line.
func (s *Session) AddProduct(item domain.CatalogItem) (domain.LineItem, error) {
	var li domain.LineItem
	err := s.mutate(func() error {
		li = s.cart.Add(item)
		return nil
	})
	return li, err
}

func (s *Session) PutItem(li domain.LineItem) error {
	return s.mutate(func() error { return s.cart.Put(li) })
}

// SetQuantity 0 removes the line.
func (s *Session) SetQuantity(productID string, qty int) error {
	return s.mutate(func() error { return s.cart.SetQuantity(productID, qty) })
}

// SetUnitPrice overrides the price of one line.
func (s *Session) SetUnitPrice(productID string, price float64) error {
	return s.mutate(func() error { return s.cart.SetUnitPrice(productID, price) })
}

func (s *Session) RemoveItem(productID string) error {
	return s.mutate(func() error { return s.cart.Remove(productID) })
}

func (s *Session) SetBuyer(b domain.BuyerDetails) error {
	return s.mutate(func() error {
		s.buyer = b
		return nil
	})
}

func (s *Session) SetPaymentMethod(m domain.PaymentMethod) error {
	return s.mutate(func() error {
		if m == "" {
			m = domain.PaymentCash
		}
		if !m.Valid() {
			return domain.NewValidationError(map[string]string{"paymentMethod": "must be one of cash, card, upi"})
		}
		s.method = m
		return nil
	})
}

// State current workflow state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot read-only view of a session.
type Snapshot struct {
	ID               string               `json:"id"`
	State            State                `json:"state"`
	Items            []domain.LineItem    `json:"items"`
	Buyer            domain.BuyerDetails  `json:"buyer"`
	PaymentMethod    domain.PaymentMethod `json:"payment_method"`
	Subtotal         float64              `json:"subtotal"`
	TaxAmount        float64              `json:"tax_amount"`
	TotalAmount      float64              `json:"total_amount"`
	PendingInvoiceID string               `json:"pending_invoice_id,omitempty"`
	PendingStock     []string             `json:"pending_stock,omitempty"`
	ResumeFrom       State                `json:"resume_from,omitempty"`
	LastError        string               `json:"last_error,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

func (s *Session) View() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.cart.Items()
	sub := invoice.ComputeSubtotal(items)
	v := Snapshot{
		ID:            s.ID,
		State:         s.state,
		Items:         items,
		Buyer:         s.buyer,
		PaymentMethod: s.method,
		Subtotal:      sub,
		TaxAmount:     invoice.ComputeTax(sub),
		TotalAmount:   invoice.ComputeTotal(items),
		CreatedAt:     s.CreatedAt,
	}
	if s.persisted && s.invoice != nil {
		v.PendingInvoiceID = s.invoice.ID
	}
	for id := range s.pendingStock {
		v.PendingStock = append(v.PendingStock, id)
	}
	sort.Strings(v.PendingStock)
	if s.state == StateError {
		v.ResumeFrom = s.resumeFrom
	}
	if s.lastErr != nil {
		v.LastError = s.lastErr.Error()
	}
	return v
}

// reset drops the cart and all submission progress. Caller holds s.mu.
func (s *Session) reset() {
	s.cart.Clear()
	s.buyer = domain.BuyerDetails{}
	s.method = domain.PaymentCash
	s.invoice = nil
	s.persisted = false
	s.pendingStock = nil
	s.resumeFrom = StateValidating
	s.lastErr = nil
}

// acquire marks the session busy for one submission.
func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrSessionBusy
	}
	s.busy = true
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// nextStep step the next submission starts from.
func (s *Session) nextStep() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeFrom
}

func (s *Session) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransitionTo(s.state, to) {
		return ErrIllegalTransition
	}
	s.state = to
	return nil
}
