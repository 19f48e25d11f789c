package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// LoadMedications ingests the CSV into the medications table, ignoring duplicates.
func LoadMedications(db *sqlx.DB, csvPath string) (int, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open medication catalog %s: %w", csvPath, err)
	}
	defer file.Close()
	return loadMedications(db, file)
}

func loadMedications(db *sqlx.DB, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read medication header: %w", err)
	}

	tx, err := db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("start medication transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO medications (name, generic_name, manufacturer, price, stock) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (name) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("prepare medication insert: %w", err)
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Printf("unable to read medication row: %v", err)
			continue
		}
		if len(record) < 5 {
			continue
		}
		name := strings.TrimSpace(record[0])
		if name == "" {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[3]), 64)
		if err != nil || price < 0 {
			log.Printf("skipping medication %s: invalid price %q", name, record[3])
			continue
		}
		stock, err := strconv.ParseInt(strings.TrimSpace(record[4]), 10, 64)
		if err != nil || stock < 0 {
			stock = 0
		}

		res, err := stmt.Exec(name, strings.TrimSpace(record[1]), strings.TrimSpace(record[2]), price, stock)
		if err != nil {
			log.Printf("unable to insert medication %s: %v", name, err)
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit medication seed: %w", err)
	}
	return rows, nil
}

// EnsureOperator creates the bootstrap operator account if it does not exist yet.
func EnsureOperator(db *sqlx.DB, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	var count int
	if err := db.Get(&count, `SELECT COUNT(*) FROM users WHERE email = $1`, email); err != nil {
		return fmt.Errorf("lookup operator: %w", err)
	}
	if count > 0 {
		return nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash operator password: %w", err)
	}
	username := strings.SplitN(email, "@", 2)[0]
	if _, err := db.Exec(`INSERT INTO users (username, email, password, role) VALUES ($1, $2, $3, $4)`, username, email, string(hashed), "owner"); err != nil {
		return fmt.Errorf("insert operator: %w", err)
	}
	return nil
}
