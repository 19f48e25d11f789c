package domain

type Medication struct {
	ID           int64   `db:"id" json:"id"`
	Name         string  `db:"name" json:"name"`
	GenericName  string  `db:"generic_name" json:"generic_name"`
	Manufacturer string  `db:"manufacturer" json:"manufacturer"`
	Price        float64 `db:"price" json:"price"`
	Stock        int64   `db:"stock" json:"stock"`
	UpdatedAt    string  `db:"updated_at" json:"updated_at"`
}
