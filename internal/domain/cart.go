package domain

// LineItem позиция в корзине / счёте
type LineItem struct {
	ProductID string  `json:"product_id" bson:"product_id"`
	Name      string  `json:"name" bson:"name"`
	UnitPrice float64 `json:"unit_price" bson:"unit_price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
}

// Cart ordered set of line items keyed by product id.
// A line with quantity 0 is never kept.
type Cart struct {
	items []LineItem
}

func NewCart() *Cart { return &Cart{} }

func (c *Cart) index(productID string) int {
	for i := range c.items {
		if c.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Add puts one unit of the product into the cart, or increments an existing line.
func (c *Cart) Add(item CatalogItem) LineItem {
	if i := c.index(item.ID); i >= 0 {
		c.items[i].Quantity++
		return c.items[i]
	}
	li := LineItem{ProductID: item.ID, Name: item.Name, UnitPrice: item.Price, Quantity: 1}
	c.items = append(c.items, li)
	return li
}

// Put inserts or replaces a whole line. Quantity 0 removes it.
func (c *Cart) Put(li LineItem) error {
	if li.ProductID == "" {
		return NewValidationError(map[string]string{"productId": "product id is required"})
	}
	if err := validateLine(li.UnitPrice, li.Quantity); err != nil {
		return err
	}
	i := c.index(li.ProductID)
	switch {
	case li.Quantity == 0 && i >= 0:
		c.items = append(c.items[:i], c.items[i+1:]...)
	case li.Quantity == 0:
	case i >= 0:
		c.items[i] = li
	default:
		c.items = append(c.items, li)
	}
	return nil
}

// SetQuantity changes the quantity of an existing line; 0 removes it.
func (c *Cart) SetQuantity(productID string, qty int) error {
	i := c.index(productID)
	if i < 0 {
		return NewNotFoundError("cart item", productID)
	}
	li := c.items[i]
	li.Quantity = qty
	return c.Put(li)
}

// SetUnitPrice overrides the unit price of an existing line.
func (c *Cart) SetUnitPrice(productID string, price float64) error {
	i := c.index(productID)
	if i < 0 {
		return NewNotFoundError("cart item", productID)
	}
	li := c.items[i]
	li.UnitPrice = price
	return c.Put(li)
}

func (c *Cart) Remove(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return NewNotFoundError("cart item", productID)
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return nil
}

// Items returns a snapshot copy of the lines in insertion order.
func (c *Cart) Items() []LineItem {
	return append([]LineItem(nil), c.items...)
}

func (c *Cart) Len() int { return len(c.items) }

func (c *Cart) Clear() { c.items = nil }

func validateLine(price float64, qty int) error {
	fields := map[string]string{}
	if price < 0 {
		fields["unitPrice"] = "must be non-negative"
	}
	if qty < 0 {
		fields["quantity"] = "must be non-negative"
	}
	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}
