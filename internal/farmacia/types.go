package farmacia

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// ID is a remote identifier. The API may send it as a JSON number or string.
type ID string

// UnmarshalJSON accepts both numeric and string identifiers.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes integer identifiers as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.numeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) numeric() bool {
	s := string(id)
	if s == "" || s[0] == '+' || (len(s) > 1 && s[0] == '0') {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// Medication is an entry of the remote medication catalog.
type Medication struct {
	ID    ID              `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// UnmarshalJSON accepts the english and spanish field names.
func (m *Medication) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     ID               `json:"id"`
		Name   string           `json:"name"`
		Nombre string           `json:"nombre"`
		Price  *decimal.Decimal `json:"price"`
		Precio *decimal.Decimal `json:"precio"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ID = raw.ID
	m.Name = firstNonEmpty(raw.Name, raw.Nombre)
	switch {
	case raw.Price != nil:
		m.Price = *raw.Price
	case raw.Precio != nil:
		m.Price = *raw.Precio
	default:
		m.Price = decimal.Zero
	}
	if !AmountInRange(m.Price) {
		return fmt.Errorf("medication %s: price out of range", m.ID)
	}
	return nil
}

// maxAmountExponent bounds the exponent of amounts read from the API. Larger
// exponents make every later comparison rescale to huge integers.
const maxAmountExponent = 9

// AmountInRange reports whether d has a sane exponent and fits below 10^12.
func AmountInRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	if exp < -maxAmountExponent || exp > maxAmountExponent {
		return false
	}
	return d.Abs().LessThan(decimal.New(1, 12))
}

// Customer is a client of the pharmacy (the clientes resource).
type Customer struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts the english and spanish field names.
func (c *Customer) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     ID     `json:"id"`
		Name   string `json:"name"`
		Nombre string `json:"nombre"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Name = firstNonEmpty(raw.Name, raw.Nombre)
	return nil
}

// Order is the create-sale payload before wire encoding.
type Order struct {
	ClientID ID
	Items    []OrderLine
	Total    decimal.Decimal
}

// OrderLine is one medication and quantity of an Order. UnitPrice is set
// only when the operator priced the line by hand.
type OrderLine struct {
	MedicationID ID
	Quantity     int
	UnitPrice    *decimal.Decimal
}

// Confirmation is the API answer to a created sale.
type Confirmation struct {
	ID    ID
	Total decimal.Decimal
	Raw   json.RawMessage
}

// LoginResult carries the bearer credential issued by the API.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
