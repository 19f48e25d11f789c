package domain

type Sale struct {
	ID          int64   `db:"id" json:"id"`
	ClientID    int64   `db:"client_id" json:"clienteId"`
	UserID      *int64  `db:"user_id" json:"user_id,omitempty"`
	TotalAmount float64 `db:"total_amount" json:"total"`
	CreatedAt   string  `db:"created_at" json:"created_at"`
}

type SaleItem struct {
	ID           int64   `db:"id" json:"id"`
	SaleID       int64   `db:"sale_id" json:"sale_id"`
	MedicationID int64   `db:"medication_id" json:"medicamentoId"`
	Quantity     int64   `db:"quantity" json:"cantidad"`
	UnitPrice    float64 `db:"unit_price" json:"unit_price"`
	Subtotal     float64 `db:"subtotal" json:"subtotal"`
}
