// Package checkout validates a finished sale draft and submits it to the
// pharmacy API, allowing at most one submission in flight.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"farmacia/pos/internal/farmacia"
	"farmacia/pos/internal/sale"
)

var (
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
	ErrValidation           = errors.New("sale draft is not valid")
)

// ValidationError lists every precondition the draft fails.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SubmissionError is a transport or server failure while creating the sale.
type SubmissionError struct {
	// StatusCode is 0 when no HTTP answer was received.
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("sale submission failed: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Creator posts the sale to the remote API.
type Creator interface {
	CreateSale(ctx context.Context, token string, order farmacia.Order) (farmacia.Confirmation, error)
}

// Reference resolves clients and medication prices for validation.
type Reference interface {
	Customer(id string) (farmacia.Customer, bool)
	Price(medicationID string) (decimal.Decimal, bool)
}

// Gateway submits drafts. Its only state is the submitting flag.
type Gateway struct {
	creator    Creator
	submitting atomic.Bool
}

func NewGateway(creator Creator) *Gateway {
	return &Gateway{creator: creator}
}

// Submitting reports whether a submission is in flight.
func (g *Gateway) Submitting() bool {
	return g.submitting.Load()
}

// Validate checks the draft preconditions without touching the network.
func Validate(draft sale.Draft, ref Reference) error {
	var problems []string
	if draft.ClientID == "" {
		problems = append(problems, "client is required")
	} else if _, ok := ref.Customer(draft.ClientID); !ok {
		problems = append(problems, fmt.Sprintf("client %s is unknown", draft.ClientID))
	}
	if len(draft.Items) == 0 {
		problems = append(problems, "at least one line item is required")
	}
	for i, item := range draft.Items {
		if item.MedicationID == "" {
			problems = append(problems, fmt.Sprintf("line %d: medication is required", i+1))
		} else if _, ok := ref.Price(item.MedicationID); !ok {
			problems = append(problems, fmt.Sprintf("line %d: medication %s is unknown", i+1, item.MedicationID))
		}
		if item.Quantity < 1 {
			problems = append(problems, fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// BuildOrder converts a valid draft to the wire order, including the computed
// total. Hand-priced lines carry their unit price so the API can honour it.
func BuildOrder(draft sale.Draft) farmacia.Order {
	order := farmacia.Order{
		ClientID: farmacia.ID(draft.ClientID),
		Items:    make([]farmacia.OrderLine, len(draft.Items)),
		Total:    decimal.Zero,
	}
	for i, item := range draft.Items {
		order.Items[i] = farmacia.OrderLine{MedicationID: farmacia.ID(item.MedicationID), Quantity: item.Quantity}
		if item.Overridden {
			price := item.UnitPrice
			order.Items[i].UnitPrice = &price
		}
		order.Total = order.Total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return order
}

// Submit validates the draft and creates the sale. Calls made while another
// submission is in flight fail with ErrSubmissionInProgress and send nothing.
// The draft is never modified; clearing it on success is up to the caller.
func (g *Gateway) Submit(ctx context.Context, draft sale.Draft, ref Reference, token string) (farmacia.Confirmation, error) {
	if g.submitting.Load() {
		return farmacia.Confirmation{}, ErrSubmissionInProgress
	}
	if err := Validate(draft, ref); err != nil {
		return farmacia.Confirmation{}, err
	}
	if !g.submitting.CompareAndSwap(false, true) {
		return farmacia.Confirmation{}, ErrSubmissionInProgress
	}
	defer g.submitting.Store(false)

	order := BuildOrder(draft)
	conf, err := g.creator.CreateSale(ctx, token, order)
	if err != nil {
		subErr := &SubmissionError{Err: err}
		var apiErr *farmacia.APIError
		if errors.As(err, &apiErr) {
			subErr.StatusCode = apiErr.StatusCode
		}
		log.Printf("sale submission for client %s failed: %v", draft.ClientID, err)
		return farmacia.Confirmation{}, subErr
	}
	log.Printf("sale %s created for client %s, total %s", conf.ID, draft.ClientID, order.Total.StringFixed(2))
	return conf, nil
}
