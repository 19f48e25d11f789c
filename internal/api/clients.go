package api

import (
	"net/http"
	"strings"

	"farmacia/pos/domain"
)

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients := []domain.Client{}
	if err := h.db.Select(&clients, `SELECT id, name, document, phone, created_at FROM clients ORDER BY name`); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list clients")
		return
	}
	respondJSON(w, http.StatusOK, clients)
}

type clientRequest struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Phone    string `json:"phone"`
}

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	var id int64
	err := h.db.QueryRowx(`INSERT INTO clients (name, document, phone) VALUES ($1, $2, $3) RETURNING id`,
		req.Name, req.Document, req.Phone).Scan(&id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create client")
		return
	}
	respondJSON(w, http.StatusCreated, domain.Client{ID: id, Name: req.Name, Document: req.Document, Phone: req.Phone})
}
