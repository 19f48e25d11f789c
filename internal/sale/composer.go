// Package sale holds the in-progress sale draft and its derived totals.
package sale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound    = errors.New("line item not found")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidPrice    = errors.New("price must be a non-negative number")
	ErrUnknownField    = errors.New("unknown line item field")
)

// MaxQuantity bounds a single line.
const MaxQuantity = 100000

// MaxUnitPrice bounds a hand-typed unit price.
var MaxUnitPrice = decimal.NewFromInt(1_000_000)

// Operator input outside these limits is rejected before any arithmetic;
// decimal rescales both operands to a common exponent on every comparison.
const (
	maxInputLen   = 32
	maxExponent   = 9
	priceDecimals = 2
)

// Field names accepted by UpdateItem.
type Field string

const (
	FieldMedication Field = "medication"
	FieldQuantity   Field = "quantity"
	FieldPrice      Field = "price"
)

// PriceList resolves medication identifiers to unit prices.
type PriceList interface {
	Price(medicationID string) (decimal.Decimal, bool)
}

// LineItem is one medication-quantity entry of a draft.
type LineItem struct {
	ID           string          `json:"id"`
	MedicationID string          `json:"medicationId"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	// Overridden is set when the operator typed the unit price by hand.
	Overridden bool `json:"overridden"`
}

// Draft is the unsaved sale being composed.
type Draft struct {
	ClientID string     `json:"clientId"`
	Items    []LineItem `json:"items"`
}

// Empty reports whether the draft has no client and no items.
func (d Draft) Empty() bool {
	return d.ClientID == "" && len(d.Items) == 0
}

func (d Draft) clone() Draft {
	return Draft{ClientID: d.ClientID, Items: append([]LineItem{}, d.Items...)}
}

// Composer owns one Draft and keeps it consistent with a price list.
// It is not safe for concurrent use.
type Composer struct {
	draft  Draft
	prices PriceList
	newID  func() string
}

// NewComposer returns a composer with an empty draft. prices may be nil until
// reference data arrives.
func NewComposer(prices PriceList) *Composer {
	return &Composer{
		draft:  Draft{Items: []LineItem{}},
		prices: prices,
		newID:  uuid.NewString,
	}
}

// SetPriceList swaps the price list and re-resolves every item that was not
// priced by hand.
func (c *Composer) SetPriceList(prices PriceList) {
	c.prices = prices
	for i := range c.draft.Items {
		if !c.draft.Items[i].Overridden {
			c.draft.Items[i].UnitPrice = c.resolve(c.draft.Items[i].MedicationID)
		}
	}
}

// Draft returns a copy of the current draft.
func (c *Composer) Draft() Draft {
	return c.draft.clone()
}

// Restore replaces the draft with a previously taken copy.
func (c *Composer) Restore(d Draft) {
	c.draft = d.clone()
}

// Reset discards the draft.
func (c *Composer) Reset() {
	c.draft = Draft{Items: []LineItem{}}
}

func (c *Composer) SetClient(clientID string) {
	c.draft.ClientID = strings.TrimSpace(clientID)
}

// AddItem appends an item with no medication, quantity 1 and price 0.
func (c *Composer) AddItem() LineItem {
	item := LineItem{
		ID:        c.newID(),
		Quantity:  1,
		UnitPrice: decimal.Zero,
	}
	c.draft.Items = append(c.draft.Items, item)
	return item
}

// RemoveItem deletes the item with that id. Unknown ids are ignored.
func (c *Composer) RemoveItem(id string) {
	for i, item := range c.draft.Items {
		if item.ID == id {
			c.draft.Items = append(c.draft.Items[:i], c.draft.Items[i+1:]...)
			return
		}
	}
}

// UpdateItem sets one field of an item from operator input. On error the item
// keeps its previous value.
func (c *Composer) UpdateItem(id string, field Field, value string) error {
	switch field {
	case FieldMedication:
		return c.SetMedication(id, value)
	case FieldQuantity:
		qty, err := ParseQuantity(value)
		if err != nil {
			return err
		}
		return c.SetQuantity(id, qty)
	case FieldPrice:
		price, ok := parseDecimal(value)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidPrice, value)
		}
		return c.SetPrice(id, price)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
}

// SetMedication changes the medication of an item and re-resolves its price.
func (c *Composer) SetMedication(id, medicationID string) error {
	item, err := c.item(id)
	if err != nil {
		return err
	}
	item.MedicationID = strings.TrimSpace(medicationID)
	item.UnitPrice = c.resolve(item.MedicationID)
	item.Overridden = false
	return nil
}

func (c *Composer) SetQuantity(id string, qty int) error {
	if qty < 1 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	item, err := c.item(id)
	if err != nil {
		return err
	}
	item.Quantity = qty
	return nil
}

// SetPrice overrides the unit price of an item. The price is rounded to cents.
func (c *Composer) SetPrice(id string, price decimal.Decimal) error {
	if !exponentInRange(price) || price.IsNegative() || price.GreaterThan(MaxUnitPrice) {
		return ErrInvalidPrice
	}
	price = price.Round(priceDecimals)
	item, err := c.item(id)
	if err != nil {
		return err
	}
	item.UnitPrice = price
	item.Overridden = true
	return nil
}

// Resolved reports whether the item's medication is known to the price list.
func (c *Composer) Resolved(item LineItem) bool {
	if item.MedicationID == "" || c.prices == nil {
		return false
	}
	_, ok := c.prices.Price(item.MedicationID)
	return ok
}

// Subtotal is quantity × unit price, or 0 when the medication does not resolve.
func (c *Composer) Subtotal(item LineItem) decimal.Decimal {
	if !c.Resolved(item) {
		return decimal.Zero
	}
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

// Total sums the subtotals of all items. It is recomputed on every call.
func (c *Composer) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.draft.Items {
		total = total.Add(c.Subtotal(item))
	}
	return total
}

func (c *Composer) item(id string) (*LineItem, error) {
	for i := range c.draft.Items {
		if c.draft.Items[i].ID == id {
			return &c.draft.Items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

func (c *Composer) resolve(medicationID string) decimal.Decimal {
	if medicationID == "" || c.prices == nil {
		return decimal.Zero
	}
	price, ok := c.prices.Price(medicationID)
	if !ok {
		return decimal.Zero
	}
	return price
}

// ParseQuantity coerces operator input to a positive integer. Fractions are
// truncated; zero, negative and non-numeric input is rejected.
func ParseQuantity(value string) (int, error) {
	d, ok := parseDecimal(value)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
	}
	qty := d.Truncate(0)
	if qty.LessThan(decimal.NewFromInt(1)) || qty.GreaterThan(decimal.NewFromInt(MaxQuantity)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuantity, value)
	}
	return int(qty.IntPart()), nil
}

// parseDecimal reads operator input, refusing long strings and exponents that
// would make later arithmetic expensive.
func parseDecimal(value string) (decimal.Decimal, bool) {
	value = strings.TrimSpace(value)
	if value == "" || len(value) > maxInputLen {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(value)
	if err != nil || !exponentInRange(d) {
		return decimal.Zero, false
	}
	return d, true
}

func exponentInRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -maxExponent && exp <= maxExponent
}
