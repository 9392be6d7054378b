package domain

import "time"

// Variant вариант товара (цвет, размер, материал)
type Variant struct {
	Name     string  `json:"name" bson:"name"`
	Color    string  `json:"color" bson:"color"`
	Size     string  `json:"size" bson:"size"`
	Material string  `json:"material" bson:"material"`
	Quantity int     `json:"quantity" bson:"quantity"`
	Price    float64 `json:"price" bson:"price"`
}

// CatalogItem product record owned by the catalog store
type CatalogItem struct {
	ID          string     `json:"id" bson:"_id"`
	Code        string     `json:"code,omitempty" bson:"code,omitempty"`
	Name        string     `json:"name" bson:"name"`
	Description string     `json:"description,omitempty" bson:"description,omitempty"`
	Category    string     `json:"category,omitempty" bson:"category,omitempty"`
	Price       float64    `json:"price" bson:"price"`
	Quantity    int        `json:"quantity" bson:"quantity"`
	Variants    []Variant  `json:"variants,omitempty" bson:"variants,omitempty"`
	Deleted     bool       `json:"-" bson:"deleted"`
	DeletedAt   *time.Time `json:"-" bson:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// CatalogPatch partial update of a catalog item; nil fields are left untouched.
type CatalogPatch struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	Quantity    *int       `json:"quantity,omitempty"`
	Variants    *[]Variant `json:"variants,omitempty"`
}

// Apply copies the set fields onto item.
func (p CatalogPatch) Apply(item *CatalogItem) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.Price != nil {
		item.Price = *p.Price
	}
	if p.Quantity != nil {
		item.Quantity = *p.Quantity
	}
	if p.Variants != nil {
		item.Variants = append([]Variant(nil), (*p.Variants)...)
	}
}

// PaymentMethod способ оплаты
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	PaymentUPI  PaymentMethod = "upi"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI:
		return true
	}
	return false
}

// PaymentStatus статус оплаты
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentPending || s == PaymentCompleted
}

// OrderStatus lifecycle status of an invoice
type OrderStatus string

const (
	OrderProcessing OrderStatus = "processing"
	OrderPrinted    OrderStatus = "printed"
	OrderVoided     OrderStatus = "voided"
)

// BuyerDetails contact details printed on the invoice
type BuyerDetails struct {
	Name  string `json:"name" bson:"name"`
	Email string `json:"email" bson:"email"`
	Phone string `json:"phone" bson:"phone"`
}

// Invoice persisted invoice document
type Invoice struct {
	ID            string        `json:"id" bson:"_id"`
	Buyer         BuyerDetails  `json:"buyer" bson:"buyer"`
	LineItems     []LineItem    `json:"line_items" bson:"line_items"`
	Subtotal      float64       `json:"subtotal" bson:"subtotal"`
	TaxAmount     float64       `json:"tax_amount" bson:"tax_amount"`
	TotalAmount   float64       `json:"total_amount" bson:"total_amount"`
	TotalQuantity int           `json:"total_quantity" bson:"total_quantity"`
	PaymentMethod PaymentMethod `json:"payment_method" bson:"payment_method"`
	PaymentStatus PaymentStatus `json:"payment_status" bson:"payment_status"`
	OrderStatus   OrderStatus   `json:"order_status" bson:"order_status"`
	VoidReason    string        `json:"void_reason,omitempty" bson:"void_reason,omitempty"`
	VoidedBy      string        `json:"voided_by,omitempty" bson:"voided_by,omitempty"`
	VoidedAt      *time.Time    `json:"voided_at,omitempty" bson:"voided_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" bson:"updated_at"`
}

// InvoicePatch partial update of the invoice status fields.
// Line items and amounts are immutable after creation.
type InvoicePatch struct {
	PaymentStatus *PaymentStatus
	OrderStatus   *OrderStatus
	VoidReason    *string
	VoidedBy      *string
	VoidedAt      *time.Time
}

func (p InvoicePatch) Apply(inv *Invoice) {
	if p.PaymentStatus != nil {
		inv.PaymentStatus = *p.PaymentStatus
	}
	if p.OrderStatus != nil {
		inv.OrderStatus = *p.OrderStatus
	}
	if p.VoidReason != nil {
		inv.VoidReason = *p.VoidReason
	}
	if p.VoidedBy != nil {
		inv.VoidedBy = *p.VoidedBy
	}
	if p.VoidedAt != nil {
		t := *p.VoidedAt
		inv.VoidedAt = &t
	}
}

// Clone returns a deep copy so callers can't mutate stored line items.
func (inv Invoice) Clone() Invoice {
	cp := inv
	cp.LineItems = append([]LineItem(nil), inv.LineItems...)
	if inv.VoidedAt != nil {
		t := *inv.VoidedAt
		cp.VoidedAt = &t
	}
	return cp
}

// LogEntry log record kept by the persistent log sink
type LogEntry struct {
	Level     string         `json:"level" bson:"level"`
	Message   string         `json:"message" bson:"message"`
	Attrs     map[string]any `json:"attrs,omitempty" bson:"attrs,omitempty"`
	Source    string         `json:"source" bson:"source"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}
