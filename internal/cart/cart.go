// Package cart holds the in-progress order for one till. A line is keyed
// by (product id, unit price): the same product can sit in the cart at two
// different prices as two separate lines, but re-pricing a product merges
// all of its lines under the new price with the quantities summed.
package cart

import (
	"slices"

	"tillpoint/internal/domain"
	"tillpoint/internal/money"
)

type Cart struct {
	lines []domain.CartLine
}

func New() *Cart {
	return &Cart{lines: make([]domain.CartLine, 0, 8)}
}

// Add puts qty units of the product into the cart at the product's unit
// price, or at customPrice when given. Adding a product that already sits
// in the cart at a different price consolidates every line of that product
// into a single line at the new price (last price wins).
func (c *Cart) Add(product domain.Product, qty int, customPrice *money.Money) {
	if qty < 1 {
		return
	}
	price := product.UnitPrice
	if customPrice != nil {
		price = *customPrice
	}

	existingQty := 0
	kept := c.lines[:0]
	for _, line := range c.lines {
		if line.ProductID == product.ID && !line.UnitPrice.Equal(price) {
			existingQty += line.Qty
			continue
		}
		kept = append(kept, line)
	}
	c.lines = kept

	for i := range c.lines {
		if c.lines[i].ProductID == product.ID && c.lines[i].UnitPrice.Equal(price) {
			c.lines[i].Qty += qty + existingQty
			return
		}
	}

	c.lines = append(c.lines, domain.CartLine{
		ProductID: product.ID,
		UnitPrice: price,
		Qty:       qty + existingQty,
	})
}

// SetQuantity updates the quantity on lines matching productID; when price
// is nil every line of the product matches, otherwise only the line at that
// price. A quantity of zero or less removes the matching lines.
func (c *Cart) SetQuantity(productID string, qty int, price *money.Money) {
	if qty <= 0 {
		c.Remove(productID, price)
		return
	}
	for i := range c.lines {
		if c.lines[i].ProductID != productID {
			continue
		}
		if price != nil && !c.lines[i].UnitPrice.Equal(*price) {
			continue
		}
		c.lines[i].Qty = qty
	}
}

// Remove drops lines matching productID, filtered by price when given.
func (c *Cart) Remove(productID string, price *money.Money) {
	kept := c.lines[:0]
	for _, line := range c.lines {
		if line.ProductID == productID {
			if price == nil || line.UnitPrice.Equal(*price) {
				continue
			}
		}
		kept = append(kept, line)
	}
	c.lines = kept
}

func (c *Cart) Clear() {
	c.lines = c.lines[:0]
}

func (c *Cart) IsEmpty() bool {
	return len(c.lines) == 0
}

// Total sums unit price times quantity over all lines in decimal space.
func (c *Cart) Total() money.Money {
	total := money.Zero
	for _, line := range c.lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// Lines returns a copy of the cart contents in insertion order.
func (c *Cart) Lines() []domain.CartLine {
	return slices.Clone(c.lines)
}
