package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"invoicedesk/internal/domain"
	"invoicedesk/internal/events"
	"invoicedesk/internal/logging"
	"invoicedesk/internal/printing"
	"invoicedesk/internal/repository"
)

// ErrInvalidState операция недопустима в текущем статусе счёта
var ErrInvalidState = errors.New("invalid state")

// InvoiceService реализует жизненный цикл счёта: печать, аннулирование, оплата
type InvoiceService struct {
	invoices  repository.InvoiceStore
	publisher events.Publisher
	log       logging.Logger
	now       func() time.Time
}

func NewInvoiceService(invoices repository.InvoiceStore, publisher events.Publisher, log logging.Logger) *InvoiceService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &InvoiceService{
		invoices:  invoices,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *InvoiceService) Get(ctx context.Context, id string) (*domain.Invoice, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewValidationError(map[string]string{"id": "invoice id is required"})
	}
	return s.invoices.Get(ctx, id)
}

// ListByDateRange invoices created in [from, to).
func (s *InvoiceService) ListByDateRange(ctx context.Context, from, to time.Time) ([]domain.Invoice, error) {
	if !from.Before(to) {
		return nil, domain.NewValidationError(map[string]string{"to": "must be after from"})
	}
	return s.invoices.QueryByDateRange(ctx, from, to)
}

// Void marks the invoice voided. Line items stay untouched; a voided invoice
// cannot be voided again.
func (s *InvoiceService) Void(ctx context.Context, id, reason, by string) (*domain.Invoice, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError(map[string]string{"reason": "void reason is required"})
	}
	if strings.TrimSpace(by) == "" {
		by = "system"
	}
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.OrderStatus == domain.OrderVoided {
		return nil, ErrInvalidState
	}

	now := s.now()
	status := domain.OrderVoided
	updated, err := s.invoices.Update(ctx, id, domain.InvoicePatch{
		OrderStatus: &status,
		VoidReason:  &reason,
		VoidedBy:    &by,
		VoidedAt:    &now,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("invoice voided", "invoice_id", id, "reason", reason, "voided_by", by)
	if err := s.publisher.Publish(ctx, events.NewInvoiceEvent(events.TypeInvoiceVoided, updated, now)); err != nil {
		s.log.Warn("publish event failed", "invoice_id", id, "error", err)
	}
	return updated, nil
}

func (s *InvoiceService) SetPaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) (*domain.Invoice, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError(map[string]string{"paymentStatus": "must be pending or completed"})
	}
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.OrderStatus == domain.OrderVoided {
		return nil, ErrInvalidState
	}
	updated, err := s.invoices.Update(ctx, id, domain.InvoicePatch{PaymentStatus: &status})
	if err != nil {
		return nil, err
	}
	s.log.Info("payment status updated", "invoice_id", id, "status", status)
	return updated, nil
}

// MarkPrinted sets the order status to printed. Already printed invoices are
// returned as is.
func (s *InvoiceService) MarkPrinted(ctx context.Context, id string) (*domain.Invoice, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch inv.OrderStatus {
	case domain.OrderVoided:
		return nil, ErrInvalidState
	case domain.OrderPrinted:
		return inv, nil
	}
	status := domain.OrderPrinted
	return s.invoices.Update(ctx, id, domain.InvoicePatch{OrderStatus: &status})
}

// Print renders the invoice HTML to w and marks it printed. Voided invoices
// are rendered with the VOID stamp and keep their status.
func (s *InvoiceService) Print(ctx context.Context, id string, w io.Writer) error {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return err
	}
	if inv.OrderStatus != domain.OrderVoided {
		if inv, err = s.MarkPrinted(ctx, id); err != nil {
			return err
		}
	}
	s.log.Info("invoice printed", "invoice_id", id)
	return printing.Render(w, inv)
}
