package domain

type Client struct {
	ID        int64  `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Document  string `db:"document" json:"document,omitempty"`
	Phone     string `db:"phone" json:"phone,omitempty"`
	CreatedAt string `db:"created_at" json:"created_at"`
}
