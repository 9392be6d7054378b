package invoice

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"invoicedesk/internal/domain"
)

// TaxRate GST, фиксированная ставка
var TaxRate = decimal.RequireFromString("0.18")

var (
	emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)
	phonePattern = regexp.MustCompile(`^\d{10}$`)
)

// ComputeSubtotal sum of unitPrice × quantity over all lines.
func ComputeSubtotal(items []domain.LineItem) float64 {
	return subtotal(items).InexactFloat64()
}

// ComputeTax tax amount for the given subtotal.
func ComputeTax(subtotal float64) float64 {
	return decimal.NewFromFloat(subtotal).Mul(TaxRate).InexactFloat64()
}

// ComputeTotal subtotal plus tax.
func ComputeTotal(items []domain.LineItem) float64 {
	s := subtotal(items)
	return s.Add(s.Mul(TaxRate)).InexactFloat64()
}

func subtotal(items []domain.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, li := range items {
		sum = sum.Add(decimal.NewFromFloat(li.UnitPrice).Mul(decimal.NewFromInt(int64(li.Quantity))))
	}
	return sum
}

// Builder turns a cart and buyer details into a priced invoice.
// Now and NewID are replaceable in tests.
type Builder struct {
	Now   func() time.Time
	NewID func() string
}

func NewBuilder() *Builder {
	return &Builder{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// ValidateBuyer returns every violated buyer field.
func ValidateBuyer(b domain.BuyerDetails) map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(b.Name) == "" {
		fields["buyerName"] = "Buyer name is required"
	}
	if !emailPattern.MatchString(strings.TrimSpace(b.Email)) {
		fields["buyerEmail"] = "Valid email is required"
	}
	if !phonePattern.MatchString(strings.TrimSpace(b.Phone)) {
		fields["buyerPhone"] = "Valid 10-digit phone number is required"
	}
	return fields
}

// Build validates the input and returns a pending/processing invoice.
// The cart is not modified. An empty payment method means cash.
func (b *Builder) Build(cart *domain.Cart, buyer domain.BuyerDetails, method domain.PaymentMethod) (*domain.Invoice, error) {
	var items []domain.LineItem
	if cart != nil {
		for _, li := range cart.Items() {
			if li.Quantity > 0 {
				items = append(items, li)
			}
		}
	}

	fields := ValidateBuyer(buyer)
	if len(items) == 0 {
		fields["invoice"] = "Please add items to the invoice"
	}
	if method == "" {
		method = domain.PaymentCash
	}
	if !method.Valid() {
		fields["paymentMethod"] = "must be one of cash, card, upi"
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}

	sub := subtotal(items)
	tax := sub.Mul(TaxRate)
	qty := 0
	for _, li := range items {
		qty += li.Quantity
	}
	now := b.Now()
	return &domain.Invoice{
		ID: b.NewID(),
		Buyer: domain.BuyerDetails{
			Name:  strings.TrimSpace(buyer.Name),
			Email: strings.TrimSpace(buyer.Email),
			Phone: strings.TrimSpace(buyer.Phone),
		},
		LineItems:     items,
		Subtotal:      sub.InexactFloat64(),
		TaxAmount:     tax.InexactFloat64(),
		TotalAmount:   sub.Add(tax).InexactFloat64(),
		TotalQuantity: qty,
		PaymentMethod: method,
		PaymentStatus: domain.PaymentPending,
		OrderStatus:   domain.OrderProcessing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
