// Package workflow drives one "register sale" session: it loads reference data
// when opened, routes operator edits to the composer, and hands the finished
// draft to the checkout gateway.
package workflow

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"farmacia/pos/internal/catalog"
	"farmacia/pos/internal/checkout"
	"farmacia/pos/internal/farmacia"
	"farmacia/pos/internal/sale"
)

var (
	ErrNotOpen           = errors.New("sale workflow is not open")
	ErrBusy              = errors.New("a submission is in progress")
	ErrReferenceLoading  = errors.New("reference data is still loading")
	ErrPricesUnavailable = errors.New("medication prices are unavailable")
)

// Loader is the reference data side of the workflow.
type Loader interface {
	Load(ctx context.Context, token string) *catalog.Reference
}

// Submitter is the checkout side of the workflow.
type Submitter interface {
	Submit(ctx context.Context, draft sale.Draft, ref checkout.Reference, token string) (farmacia.Confirmation, error)
	Submitting() bool
}

// Workflow is safe for concurrent use; edits are serialized.
type Workflow struct {
	loader    Loader
	submitter Submitter

	mu         sync.Mutex
	composer   *sale.Composer
	token      string
	open       bool
	loading    bool
	ref        *catalog.Reference
	loaded     chan struct{}
	cancelLoad context.CancelFunc
	generation int
	// submitting is set under mu before the draft leaves the workflow and
	// cleared under mu once the submitter returned.
	submitting bool
}

func New(loader Loader, submitter Submitter) *Workflow {
	loaded := make(chan struct{})
	close(loaded)
	return &Workflow{
		loader:    loader,
		submitter: submitter,
		composer:  sale.NewComposer(nil),
		loaded:    loaded,
	}
}

// Open starts a fresh draft and fetches reference data in the background.
func (w *Workflow) Open(token string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busyLocked() {
		return ErrBusy
	}
	w.stopLoadLocked()

	w.generation++
	gen := w.generation
	ctx, cancel := context.WithCancel(context.Background())
	loaded := make(chan struct{})

	w.token = token
	w.open = true
	w.loading = true
	w.ref = nil
	w.loaded = loaded
	w.cancelLoad = cancel
	w.composer = sale.NewComposer(nil)

	go func() {
		defer close(loaded)
		defer cancel()
		ref := w.loader.Load(ctx, token)

		w.mu.Lock()
		defer w.mu.Unlock()
		if gen != w.generation {
			return
		}
		w.ref = ref
		w.loading = false
		w.cancelLoad = nil
		w.composer.SetPriceList(ref)
	}()
	return nil
}

// WaitLoaded blocks until the reference data of the current session arrived.
func (w *Workflow) WaitLoaded(ctx context.Context) error {
	w.mu.Lock()
	loaded := w.loaded
	w.mu.Unlock()
	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close discards the draft. It is refused while a submission is in flight.
func (w *Workflow) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busyLocked() {
		return ErrBusy
	}
	w.closeLocked()
	return nil
}

func (w *Workflow) busyLocked() bool {
	return w.submitting || w.submitter.Submitting()
}

func (w *Workflow) closeLocked() {
	w.stopLoadLocked()
	w.generation++
	w.open = false
	w.loading = false
	w.ref = nil
	w.token = ""
	w.composer = sale.NewComposer(nil)
}

func (w *Workflow) stopLoadLocked() {
	if w.cancelLoad != nil {
		w.cancelLoad()
		w.cancelLoad = nil
	}
}

// edit runs fn against the composer when the workflow accepts edits.
func (w *Workflow) edit(fn func(c *sale.Composer) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.open {
		return ErrNotOpen
	}
	if w.busyLocked() {
		return ErrBusy
	}
	return fn(w.composer)
}

func (w *Workflow) SetClient(clientID string) error {
	return w.edit(func(c *sale.Composer) error {
		c.SetClient(clientID)
		return nil
	})
}

func (w *Workflow) AddItem() (sale.LineItem, error) {
	var item sale.LineItem
	err := w.edit(func(c *sale.Composer) error {
		item = c.AddItem()
		return nil
	})
	return item, err
}

func (w *Workflow) RemoveItem(id string) error {
	return w.edit(func(c *sale.Composer) error {
		c.RemoveItem(id)
		return nil
	})
}

func (w *Workflow) UpdateItem(id string, field sale.Field, value string) error {
	return w.edit(func(c *sale.Composer) error {
		return c.UpdateItem(id, field, value)
	})
}

// Submit sends the draft. On success the draft is cleared and the workflow
// closes; on failure the draft is left exactly as it was.
func (w *Workflow) Submit(ctx context.Context) (farmacia.Confirmation, error) {
	w.mu.Lock()
	if !w.open {
		w.mu.Unlock()
		return farmacia.Confirmation{}, ErrNotOpen
	}
	if w.busyLocked() {
		w.mu.Unlock()
		return farmacia.Confirmation{}, checkout.ErrSubmissionInProgress
	}
	if w.loading {
		w.mu.Unlock()
		return farmacia.Confirmation{}, ErrReferenceLoading
	}
	if !w.ref.PricesAvailable() {
		w.mu.Unlock()
		return farmacia.Confirmation{}, ErrPricesUnavailable
	}
	draft, ref, token := w.composer.Draft(), w.ref, w.token
	w.submitting = true
	w.mu.Unlock()

	conf, err := w.submitter.Submit(ctx, draft, ref, token)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if err != nil {
		return farmacia.Confirmation{}, err
	}
	w.closeLocked()
	return conf, nil
}

// ItemView is a line item with its derived values.
type ItemView struct {
	sale.LineItem
	Name     string          `json:"name"`
	Resolved bool            `json:"resolved"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// View is a consistent snapshot of the workflow for rendering.
type View struct {
	Open        bool                  `json:"open"`
	Loading     bool                  `json:"loading"`
	Submitting  bool                  `json:"submitting"`
	ClientID    string                `json:"clientId"`
	Items       []ItemView            `json:"items"`
	Total       decimal.Decimal       `json:"total"`
	Medications []farmacia.Medication `json:"medications"`
	Customers   []farmacia.Customer   `json:"clients"`
	Warnings    []string              `json:"warnings"`
	CanSubmit   bool                  `json:"canSubmit"`
}

func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	draft := w.composer.Draft()
	v := View{
		Open:        w.open,
		Loading:     w.loading,
		Submitting:  w.busyLocked(),
		ClientID:    draft.ClientID,
		Items:       make([]ItemView, len(draft.Items)),
		Total:       w.composer.Total(),
		Medications: []farmacia.Medication{},
		Customers:   []farmacia.Customer{},
		Warnings:    []string{},
	}
	for i, item := range draft.Items {
		iv := ItemView{LineItem: item, Resolved: w.composer.Resolved(item), Subtotal: w.composer.Subtotal(item)}
		if m, ok := w.ref.Medication(item.MedicationID); ok {
			iv.Name = m.Name
		}
		v.Items[i] = iv
	}
	if w.ref != nil {
		v.Medications = w.ref.Medications
		v.Customers = w.ref.Customers
		for _, warn := range w.ref.Warnings {
			v.Warnings = append(v.Warnings, warn.Error())
		}
	}
	v.CanSubmit = v.Open && !v.Loading && !v.Submitting && w.ref.PricesAvailable() &&
		checkout.Validate(draft, w.ref) == nil
	return v
}
