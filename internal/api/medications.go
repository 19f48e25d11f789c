package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"farmacia/pos/domain"
)

const medicationColumns = `id, name, generic_name, manufacturer, price, stock, updated_at`

func (h *Handler) listMedications(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	medications := []domain.Medication{}
	var err error
	if query == "" {
		err = h.db.Select(&medications, `SELECT `+medicationColumns+` FROM medications ORDER BY name`)
	} else {
		like := "%" + strings.ToLower(query) + "%"
		err = h.db.Select(&medications, `SELECT `+medicationColumns+` FROM medications WHERE LOWER(name) LIKE $1 OR LOWER(generic_name) LIKE $1 ORDER BY name`, like)
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list medications")
		return
	}
	respondJSON(w, http.StatusOK, medications)
}

type medicationRequest struct {
	Name         string  `json:"name"`
	GenericName  string  `json:"generic_name"`
	Manufacturer string  `json:"manufacturer"`
	Price        float64 `json:"price"`
	Stock        int64   `json:"stock"`
}

func (h *Handler) createMedication(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "owner") {
		return
	}
	var req medicationRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Price < 0 || req.Stock < 0 {
		respondError(w, http.StatusBadRequest, "name, non-negative price and stock are required")
		return
	}
	var id int64
	err := h.db.QueryRowx(`INSERT INTO medications (name, generic_name, manufacturer, price, stock) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		req.Name, req.GenericName, req.Manufacturer, req.Price, req.Stock).Scan(&id)
	if err != nil {
		respondError(w, http.StatusConflict, "medication already exists")
		return
	}
	respondJSON(w, http.StatusCreated, domain.Medication{
		ID:           id,
		Name:         req.Name,
		GenericName:  req.GenericName,
		Manufacturer: req.Manufacturer,
		Price:        req.Price,
		Stock:        req.Stock,
	})
}

func (h *Handler) updateStock(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, "owner", "employee") {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid medication id")
		return
	}
	var payload struct {
		Stock int64 `json:"stock"`
	}
	if err := decodeJSON(r, &payload); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Stock < 0 {
		respondError(w, http.StatusBadRequest, "stock must be positive")
		return
	}
	res, err := h.db.Exec(`UPDATE medications SET stock = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, payload.Stock, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to update stock")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		respondError(w, http.StatusNotFound, "medication not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stock updated"})
}
