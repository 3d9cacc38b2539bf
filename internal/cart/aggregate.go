package cart

import (
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bookwise-api/internal/pricing"
)

// MaxQuantity bounds a single line. Quantities are stored as int4.
const MaxQuantity = 999

var (
	// ErrItemNotFound indicates the book is not in the cart.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrInvalidQuantity is returned for quantities outside 1..MaxQuantity.
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 999")
	// ErrInvalidPrice is returned for non-positive unit prices.
	ErrInvalidPrice = errors.New("unit price must be positive")
)

// LineItem is one book in a cart. Quantity is always at least 1.
type LineItem struct {
	BookID    int64           `json:"bookId"`
	Title     string          `json:"title,omitempty"`
	Author    string          `json:"author,omitempty"`
	Image     string          `json:"image,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	Selected  bool            `json:"selected"`
	WeightKg  decimal.Decimal `json:"weightKg"`
	AddedAt   time.Time       `json:"addedAt"`
}

// Cart holds at most one line per book, in insertion order.
type Cart struct {
	ID    string     `json:"id"`
	Owner string     `json:"owner"`
	Items []LineItem `json:"items"`
}

func (c *Cart) index(bookID int64) int {
	return slices.IndexFunc(c.Items, func(it LineItem) bool { return it.BookID == bookID })
}

// Find returns the line for bookID.
func (c *Cart) Find(bookID int64) (LineItem, bool) {
	if i := c.index(bookID); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}

func validQuantity(qty int) bool {
	return qty >= 1 && qty <= MaxQuantity
}

// Add inserts a new selected line or increments an existing one. It reports
// whether a new line was created. An existing line keeps its selection and
// takes the latest price. An increment past MaxQuantity leaves the cart
// unchanged.
func (c *Cart) Add(item LineItem, now time.Time) (bool, error) {
	return c.add(item, now, false)
}

// Absorb is Add for merging carts: the summed quantity is capped at
// MaxQuantity instead of rejected.
func (c *Cart) Absorb(item LineItem, now time.Time) (bool, error) {
	return c.add(item, now, true)
}

func (c *Cart) add(item LineItem, now time.Time, capped bool) (bool, error) {
	if !validQuantity(item.Quantity) {
		return false, ErrInvalidQuantity
	}
	if !item.UnitPrice.IsPositive() {
		return false, ErrInvalidPrice
	}
	if i := c.index(item.BookID); i >= 0 {
		sum := c.Items[i].Quantity + item.Quantity
		if sum > MaxQuantity {
			if !capped {
				return false, ErrInvalidQuantity
			}
			sum = MaxQuantity
		}
		c.Items[i].Quantity = sum
		c.Items[i].UnitPrice = item.UnitPrice
		return false, nil
	}
	item.Selected = true
	if item.AddedAt.IsZero() {
		item.AddedAt = now
	}
	c.Items = append(c.Items, item)
	return true, nil
}

// SetQuantity sets an absolute quantity. Anything below 1 removes the line.
func (c *Cart) SetQuantity(bookID int64, qty int) error {
	i := c.index(bookID)
	if i < 0 {
		return ErrItemNotFound
	}
	if qty < 1 {
		c.Items = slices.Delete(c.Items, i, i+1)
		return nil
	}
	if qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	c.Items[i].Quantity = qty
	return nil
}

// Remove deletes the line for bookID.
func (c *Cart) Remove(bookID int64) error {
	i := c.index(bookID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = slices.Delete(c.Items, i, i+1)
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = c.Items[:0]
}

// ToggleSelected flips the selection flag and returns the new value.
func (c *Cart) ToggleSelected(bookID int64) (bool, error) {
	i := c.index(bookID)
	if i < 0 {
		return false, ErrItemNotFound
	}
	c.Items[i].Selected = !c.Items[i].Selected
	return c.Items[i].Selected, nil
}

// SelectAll sets the selection flag on every line.
func (c *Cart) SelectAll(selected bool) {
	for i := range c.Items {
		c.Items[i].Selected = selected
	}
}

// RemoveSelected drops every selected line and returns how many were removed.
func (c *Cart) RemoveSelected() int {
	before := len(c.Items)
	c.Items = slices.DeleteFunc(c.Items, func(it LineItem) bool { return it.Selected })
	return before - len(c.Items)
}

// Selected returns a copy of the selected lines.
func (c *Cart) Selected() []LineItem {
	out := make([]LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		if it.Selected {
			out = append(out, it)
		}
	}
	return out
}

// ItemCount sums quantities over every line.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Lines converts every line for the pricing calculator.
func (c *Cart) Lines() []pricing.Line {
	return PricingLines(c.Items)
}

// SelectedLines converts the selected lines for the pricing calculator.
func (c *Cart) SelectedLines() []pricing.Line {
	return PricingLines(c.Selected())
}

// PricingLines maps line items onto pricing lines.
func PricingLines(items []LineItem) []pricing.Line {
	out := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Line{
			BookID:    it.BookID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			WeightKg:  it.WeightKg,
		})
	}
	return out
}
