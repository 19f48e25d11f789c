package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmacia/pos/internal/farmacia"
)

type fakeSource struct {
	meds      []farmacia.Medication
	customers []farmacia.Customer
	medsErr   error
	custErr   error
	calls     atomic.Int32
	tokens    chan string
}

func (f *fakeSource) ListMedications(ctx context.Context, token string) ([]farmacia.Medication, error) {
	f.calls.Add(1)
	f.tokens <- token
	return f.meds, f.medsErr
}

func (f *fakeSource) ListCustomers(ctx context.Context, token string) ([]farmacia.Customer, error) {
	f.calls.Add(1)
	f.tokens <- token
	return f.customers, f.custErr
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		meds: []farmacia.Medication{
			{ID: "1", Name: "Paracetamol", Price: decimal.RequireFromString("10.50")},
			{ID: "2", Name: "Ibuprofeno", Price: decimal.RequireFromString("5.00")},
		},
		customers: []farmacia.Customer{{ID: "7", Name: "Ana"}},
		tokens:    make(chan string, 2),
	}
}

func TestLoad(t *testing.T) {
	src := newFakeSource()
	ref := NewLoader(src).Load(context.Background(), "tok")

	assert.Equal(t, int32(2), src.calls.Load())
	assert.Equal(t, "tok", <-src.tokens)
	assert.Equal(t, "tok", <-src.tokens)
	assert.Empty(t, ref.Warnings)
	assert.True(t, ref.PricesAvailable())
	require.Len(t, ref.Medications, 2)
	require.Len(t, ref.Customers, 1)

	price, ok := ref.Price("1")
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("10.5")))

	c, ok := ref.Customer("7")
	assert.True(t, ok)
	assert.Equal(t, "Ana", c.Name)

	_, ok = ref.Medication("404")
	assert.False(t, ok)
}

func TestLoadFailsPerResource(t *testing.T) {
	tests := []struct {
		name          string
		medsErr       error
		custErr       error
		wantMeds      int
		wantCustomers int
		wantWarnings  []string
		pricesLoaded  bool
	}{
		{
			name:          "medications down",
			medsErr:       errors.New("boom"),
			wantMeds:      0,
			wantCustomers: 1,
			wantWarnings:  []string{ResourceMedications},
		},
		{
			name:          "clients down",
			custErr:       &farmacia.APIError{StatusCode: 500},
			wantMeds:      2,
			wantCustomers: 0,
			wantWarnings:  []string{ResourceClients},
			pricesLoaded:  true,
		},
		{
			name:         "both down",
			medsErr:      farmacia.ErrUnauthorized,
			custErr:      farmacia.ErrUnauthorized,
			wantWarnings: []string{ResourceMedications, ResourceClients},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newFakeSource()
			src.medsErr = tt.medsErr
			src.custErr = tt.custErr

			ref := NewLoader(src).Load(context.Background(), "tok")
			assert.Len(t, ref.Medications, tt.wantMeds)
			assert.Len(t, ref.Customers, tt.wantCustomers)
			assert.NotNil(t, ref.Medications)
			assert.NotNil(t, ref.Customers)
			assert.Equal(t, tt.pricesLoaded, ref.PricesAvailable())

			var resources []string
			for _, w := range ref.Warnings {
				resources = append(resources, w.Resource)
				assert.Error(t, w.Unwrap())
			}
			assert.Equal(t, tt.wantWarnings, resources)
		})
	}
}

func TestNegativePricesAreDropped(t *testing.T) {
	ref := NewReference([]farmacia.Medication{
		{ID: "1", Price: decimal.NewFromInt(-1)},
		{ID: "2", Price: decimal.NewFromInt(3)},
	}, nil)
	_, ok := ref.Medication("1")
	assert.False(t, ok)
	assert.Len(t, ref.Medications, 1)
}

func TestNilReference(t *testing.T) {
	var ref *Reference
	assert.False(t, ref.PricesAvailable())
	_, ok := ref.Price("1")
	assert.False(t, ok)
	_, ok = ref.Customer("1")
	assert.False(t, ok)
}
