package api

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"farmacia/pos/domain"
)

type saleItemRequest struct {
	MedicationID int64 `json:"medicamentoId"`
	Quantity     int64 `json:"cantidad"`
	// UnitPrice is the operator's price for the line; the catalog price applies when absent.
	UnitPrice *float64 `json:"precioUnitario,omitempty"`
}

// maxUnitPrice bounds operator-priced lines.
const maxUnitPrice = 1_000_000

func (i saleItemRequest) price(catalog float64) float64 {
	if i.UnitPrice != nil {
		return roundCents(*i.UnitPrice)
	}
	return catalog
}

type saleRequest struct {
	ClientID int64             `json:"clienteId"`
	Items    []saleItemRequest `json:"items"`
	Total    *float64          `json:"total,omitempty"`
}

type saleResponse struct {
	domain.Sale
	Items []domain.SaleItem `json:"items"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "owner", "employee") {
		return
	}
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ClientID == 0 || len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "clienteId and at least one item are required")
		return
	}

	var clientCount int
	if err := h.db.Get(&clientCount, `SELECT COUNT(*) FROM clients WHERE id = $1`, req.ClientID); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch client")
		return
	}
	if clientCount == 0 {
		respondError(w, http.StatusBadRequest, "client not found")
		return
	}

	type stockSnapshot struct {
		Price float64 `db:"price"`
		Stock int64   `db:"stock"`
	}

	// The same medication may appear on several lines; stock is checked against the sum.
	snapshots := make(map[int64]stockSnapshot)
	requested := make(map[int64]int64)
	var total float64

	for _, item := range req.Items {
		if item.MedicationID == 0 || item.Quantity <= 0 {
			respondError(w, http.StatusBadRequest, "medicamentoId and cantidad are required for each item")
			return
		}
		if item.UnitPrice != nil && (*item.UnitPrice < 0 || *item.UnitPrice > maxUnitPrice) {
			respondError(w, http.StatusBadRequest, "precioUnitario must be between 0 and 1000000")
			return
		}
		snap, ok := snapshots[item.MedicationID]
		if !ok {
			err := h.db.Get(&snap, `SELECT price, stock FROM medications WHERE id = $1`, item.MedicationID)
			if errors.Is(err, sql.ErrNoRows) {
				respondError(w, http.StatusBadRequest, "medication not found for one or more items")
				return
			}
			if err != nil {
				respondError(w, http.StatusInternalServerError, "unable to fetch medication")
				return
			}
			snapshots[item.MedicationID] = snap
		}
		requested[item.MedicationID] += item.Quantity
		if snap.Stock < requested[item.MedicationID] {
			respondError(w, http.StatusConflict, "insufficient stock for one or more items")
			return
		}
		total += float64(item.Quantity) * item.price(snap.Price)
	}
	total = roundCents(total)

	if req.Total != nil && roundCents(*req.Total) != total {
		respondError(w, http.StatusConflict, fmt.Sprintf("total mismatch: expected %.2f", total))
		return
	}

	tx, err := h.db.Beginx()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to start sale")
		return
	}
	defer tx.Rollback()

	userID, _ := r.Context().Value(ctxUserID).(int64)
	sale := domain.Sale{ClientID: req.ClientID, UserID: &userID, TotalAmount: total}
	err = tx.QueryRowx(`INSERT INTO sales (client_id, user_id, total_amount) VALUES ($1, $2, $3) RETURNING id, created_at`,
		req.ClientID, userID, total).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create sale")
		return
	}

	for medicationID, qty := range requested {
		if _, err := tx.Exec(`UPDATE medications SET stock = stock - $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, qty, medicationID); err != nil {
			respondError(w, http.StatusInternalServerError, "unable to update stock")
			return
		}
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		price := item.price(snapshots[item.MedicationID].Price)
		line := domain.SaleItem{
			SaleID:       sale.ID,
			MedicationID: item.MedicationID,
			Quantity:     item.Quantity,
			UnitPrice:    price,
			Subtotal:     roundCents(float64(item.Quantity) * price),
		}
		err := tx.QueryRowx(`INSERT INTO sale_items (sale_id, medication_id, quantity, unit_price, subtotal) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			line.SaleID, line.MedicationID, line.Quantity, line.UnitPrice, line.Subtotal).Scan(&line.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "unable to save sale items")
			return
		}
		items = append(items, line)
	}

	if err := tx.Commit(); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to finalize sale")
		return
	}

	respondJSON(w, http.StatusCreated, saleResponse{Sale: sale, Items: items})
}

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	var (
		args    []any
		clauses []string
	)

	if raw := strings.TrimSpace(r.URL.Query().Get("clienteId")); raw != "" {
		clientID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || clientID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid clienteId")
			return
		}
		args = append(args, clientID)
		clauses = append(clauses, fmt.Sprintf("client_id = $%d", len(args)))
	}

	for _, bound := range []struct {
		param string
		op    string
	}{{"start_date", ">="}, {"end_date", "<="}} {
		value := strings.TrimSpace(r.URL.Query().Get(bound.param))
		if value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", value); err != nil {
			respondError(w, http.StatusBadRequest, bound.param+" must be in YYYY-MM-DD format")
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("DATE(created_at) %s $%d", bound.op, len(args)))
	}

	query := `SELECT id, client_id, user_id, total_amount, created_at FROM sales`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	var sales []domain.Sale
	if err := h.db.Select(&sales, query, args...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch sales report")
		return
	}
	if len(sales) == 0 {
		respondJSON(w, http.StatusOK, []saleResponse{})
		return
	}

	ids := make([]int64, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
	}
	itemsQuery, itemsArgs, err := sqlx.In(`SELECT id, sale_id, medication_id, quantity, unit_price, subtotal FROM sale_items WHERE sale_id IN (?) ORDER BY id`, ids)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to prepare sale items query")
		return
	}
	itemsQuery = h.db.Rebind(itemsQuery)

	var rows []domain.SaleItem
	if err := h.db.Select(&rows, itemsQuery, itemsArgs...); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load sale items")
		return
	}
	itemsBySale := make(map[int64][]domain.SaleItem)
	for _, row := range rows {
		itemsBySale[row.SaleID] = append(itemsBySale[row.SaleID], row)
	}

	report := make([]saleResponse, len(sales))
	for i, sale := range sales {
		report[i] = saleResponse{Sale: sale, Items: itemsBySale[sale.ID]}
	}
	respondJSON(w, http.StatusOK, report)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
