// Package catalog loads the reference data a sale is composed against:
// the medication price list and the known clients.
package catalog

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"farmacia/pos/internal/farmacia"
)

const (
	ResourceMedications = "medicamentos"
	ResourceClients     = "clientes"
)

// Source is the remote side of the loader.
type Source interface {
	ListMedications(ctx context.Context, token string) ([]farmacia.Medication, error)
	ListCustomers(ctx context.Context, token string) ([]farmacia.Customer, error)
}

// DataLoadError reports a reference list that could not be fetched.
// It is a warning: the list is empty and the rest of the workflow continues.
type DataLoadError struct {
	Resource string
	Err      error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Resource, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

// Loader fetches medications and clients for one workflow session.
type Loader struct {
	src Source
}

func NewLoader(src Source) *Loader {
	return &Loader{src: src}
}

// Load fetches both lists concurrently. Each fetch fails on its own: a failed
// resource yields an empty list and a warning, never an error for the caller.
func (l *Loader) Load(ctx context.Context, token string) *Reference {
	var (
		g         errgroup.Group
		meds      []farmacia.Medication
		customers []farmacia.Customer
		medsErr   error
		custErr   error
	)

	g.Go(func() error {
		meds, medsErr = l.src.ListMedications(ctx, token)
		return nil
	})
	g.Go(func() error {
		customers, custErr = l.src.ListCustomers(ctx, token)
		return nil
	})
	_ = g.Wait()

	ref := &Reference{}
	if medsErr != nil {
		ref.warn(ResourceMedications, medsErr)
	} else {
		ref.setMedications(meds)
	}
	if custErr != nil {
		ref.warn(ResourceClients, custErr)
	} else {
		ref.setCustomers(customers)
	}
	return ref
}

// Reference is the immutable reference data of one workflow session.
type Reference struct {
	Medications []farmacia.Medication
	Customers   []farmacia.Customer
	Warnings    []*DataLoadError

	medsLoaded bool
	medByID    map[string]farmacia.Medication
	custByID   map[string]farmacia.Customer
}

// NewReference builds a fully loaded Reference from already known lists.
func NewReference(meds []farmacia.Medication, customers []farmacia.Customer) *Reference {
	ref := &Reference{}
	ref.setMedications(meds)
	ref.setCustomers(customers)
	return ref
}

func (r *Reference) setMedications(meds []farmacia.Medication) {
	r.medsLoaded = true
	r.Medications = make([]farmacia.Medication, 0, len(meds))
	r.medByID = make(map[string]farmacia.Medication, len(meds))
	for _, m := range meds {
		if m.Price.IsNegative() {
			log.Printf("ignoring medication %s with negative price %s", m.ID, m.Price)
			continue
		}
		r.Medications = append(r.Medications, m)
		r.medByID[string(m.ID)] = m
	}
}

func (r *Reference) setCustomers(customers []farmacia.Customer) {
	r.Customers = append([]farmacia.Customer{}, customers...)
	r.custByID = make(map[string]farmacia.Customer, len(customers))
	for _, c := range customers {
		r.custByID[string(c.ID)] = c
	}
}

func (r *Reference) warn(resource string, err error) {
	w := &DataLoadError{Resource: resource, Err: err}
	log.Printf("reference data warning: %v", w)
	r.Warnings = append(r.Warnings, w)
	switch resource {
	case ResourceMedications:
		r.Medications = []farmacia.Medication{}
	case ResourceClients:
		r.Customers = []farmacia.Customer{}
	}
}

// Medication resolves a medication by identifier.
func (r *Reference) Medication(id string) (farmacia.Medication, bool) {
	if r == nil {
		return farmacia.Medication{}, false
	}
	m, ok := r.medByID[id]
	return m, ok
}

// Price implements sale.PriceList.
func (r *Reference) Price(id string) (decimal.Decimal, bool) {
	m, ok := r.Medication(id)
	if !ok {
		return decimal.Zero, false
	}
	return m.Price, true
}

// Customer resolves a client by identifier.
func (r *Reference) Customer(id string) (farmacia.Customer, bool) {
	if r == nil {
		return farmacia.Customer{}, false
	}
	c, ok := r.custByID[id]
	return c, ok
}

// PricesAvailable reports whether the medication list was fetched.
func (r *Reference) PricesAvailable() bool {
	return r != nil && r.medsLoaded
}
