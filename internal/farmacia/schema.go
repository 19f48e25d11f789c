package farmacia

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SaleSchema converts orders to and from the create-sale wire format.
type SaleSchema interface {
	EncodeSale(order Order) ([]byte, error)
	DecodeConfirmation(body []byte) (Confirmation, error)
}

// VentasSchema is the default wire format:
// {"clienteId": .., "items": [{"medicamentoId": .., "cantidad": .., "precioUnitario": ..}], "total": ..}.
// precioUnitario is present only on hand-priced lines.
type VentasSchema struct {
	// OmitTotal leaves the computed total out of the request body.
	OmitTotal bool
}

type ventaItem struct {
	MedicamentoID  ID           `json:"medicamentoId"`
	Cantidad       int          `json:"cantidad"`
	PrecioUnitario *json.Number `json:"precioUnitario,omitempty"`
}

type ventaRequest struct {
	ClienteID ID           `json:"clienteId"`
	Items     []ventaItem  `json:"items"`
	Total     *json.Number `json:"total,omitempty"`
}

func (s VentasSchema) EncodeSale(order Order) ([]byte, error) {
	req := ventaRequest{
		ClienteID: order.ClientID,
		Items:     make([]ventaItem, len(order.Items)),
	}
	for i, line := range order.Items {
		req.Items[i] = ventaItem{MedicamentoID: line.MedicationID, Cantidad: line.Quantity}
		if line.UnitPrice != nil {
			price := json.Number(line.UnitPrice.StringFixed(2))
			req.Items[i].PrecioUnitario = &price
		}
	}
	if !s.OmitTotal {
		total := json.Number(order.Total.StringFixed(2))
		req.Total = &total
	}
	return json.Marshal(req)
}

func (s VentasSchema) DecodeConfirmation(body []byte) (Confirmation, error) {
	var resp struct {
		ID      ID               `json:"id"`
		VentaID ID               `json:"ventaId"`
		Total   *decimal.Decimal `json:"total"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return Confirmation{}, fmt.Errorf("decode sale confirmation: %w", err)
		}
	}
	conf := Confirmation{ID: resp.ID, Raw: json.RawMessage(body)}
	if conf.ID == "" {
		conf.ID = resp.VentaID
	}
	if resp.Total != nil && AmountInRange(*resp.Total) {
		conf.Total = *resp.Total
	}
	return conf, nil
}
