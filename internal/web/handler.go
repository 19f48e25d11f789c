package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"farmacia/pos/internal/checkout"
	"farmacia/pos/internal/farmacia"
	"farmacia/pos/internal/sale"
	"farmacia/pos/internal/session"
	"farmacia/pos/internal/workflow"
)

//go:embed templates/*.html
var templateFS embed.FS

type ctxKey string

const ctxSession ctxKey = "session"

// API is the part of the pharmacy API the dashboard calls directly.
type API interface {
	ListMedications(ctx context.Context, token string) ([]farmacia.Medication, error)
	Login(ctx context.Context, email, password string) (farmacia.LoginResult, error)
}

// Handler bundles dependencies for the dashboard frontend.
type Handler struct {
	api       API
	sessions  *session.Store
	workflows *workflow.Registry
	tmpl      *template.Template
	timeout   time.Duration
}

// New constructs a Handler.
func New(api API, sessions *session.Store, workflows *workflow.Registry, timeout time.Duration) (*Handler, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{api: api, sessions: sessions, workflows: workflows, tmpl: tmpl, timeout: timeout}, nil
}

// Router wires up the dashboard.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
	r.Get("/login", h.loginPage)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireSession)

		pr.Get("/dashboard", h.dashboard)

		pr.Route("/venta", func(r chi.Router) {
			r.Get("/", h.saleView)
			r.Post("/open", h.openSale)
			r.Post("/close", h.closeSale)
			r.Put("/cliente", h.setClient)
			r.Post("/items", h.addItem)
			r.Patch("/items/{id}", h.updateItem)
			r.Delete("/items/{id}", h.removeItem)
			r.Post("/submit", h.submitSale)
		})
	})

	return r
}

// requireSession redirects to the login page with 303 when there is no valid session.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := h.sessions.Load(r)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				if cookie, cerr := r.Cookie(h.sessions.CookieName); cerr == nil {
					h.workflows.Forget(cookie.Value)
				}
				h.sessions.Clear(w)
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		ctx := context.WithValue(r.Context(), ctxSession, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentSession(r *http.Request) *session.Session {
	s, _ := r.Context().Value(ctxSession).(*session.Session)
	return s
}

func (h *Handler) workflowFor(r *http.Request) *workflow.Workflow {
	s := currentSession(r)
	return h.workflows.Get(s.AccessToken, s.ExpiresAt)
}

// Pages

type loginData struct {
	Title string
	Email string
	Error string
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.Load(r); err == nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "login", loginData{Title: "Iniciar sesión"})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", loginData{Title: "Iniciar sesión", Error: "formulario inválido"})
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	result, err := h.api.Login(ctx, email, password)
	if err != nil {
		status, msg := http.StatusBadGateway, "servicio no disponible"
		if errors.Is(err, farmacia.ErrUnauthorized) {
			status, msg = http.StatusUnauthorized, "credenciales inválidas"
		}
		log.Printf("login for %s failed: %v", email, err)
		h.render(w, status, "login", loginData{Title: "Iniciar sesión", Email: email, Error: msg})
		return
	}

	expires := time.Unix(result.ExpiresAt, 0)
	if result.ExpiresAt == 0 {
		expires = time.Now().Add(24 * time.Hour)
	}
	h.sessions.Save(w, result.AccessToken, expires)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if s, err := h.sessions.Load(r); err == nil {
		h.workflows.Forget(s.AccessToken)
	}
	h.sessions.Clear(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type dashboardData struct {
	Title     string
	Productos []farmacia.Medication
	Warning   string
	Venta     workflow.View
}

// dashboard fetches the product list before rendering. A failed fetch renders
// an empty list; an expired credential sends the operator back to login.
func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	s := currentSession(r)
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	data := dashboardData{Title: "Dashboard", Productos: []farmacia.Medication{}}
	productos, err := h.api.ListMedications(ctx, s.AccessToken)
	switch {
	case errors.Is(err, farmacia.ErrUnauthorized):
		h.workflows.Forget(s.AccessToken)
		h.sessions.Clear(w)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	case err != nil:
		log.Printf("dashboard: %v", err)
		data.Warning = "No se pudieron cargar los medicamentos."
	default:
		data.Productos = productos
	}
	data.Venta = h.workflowFor(r).View()
	h.render(w, http.StatusOK, "dashboard", data)
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("render %s: %v", name, err)
	}
}

// Sale workflow endpoints

func (h *Handler) saleView(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.workflowFor(r).View())
}

func (h *Handler) openSale(w http.ResponseWriter, r *http.Request) {
	wf := h.workflowFor(r)
	if err := wf.Open(currentSession(r).AccessToken); err != nil {
		respondWorkflowError(w, err)
		return
	}
	if r.URL.Query().Get("wait") == "1" {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		_ = wf.WaitLoaded(ctx)
	}
	respondJSON(w, http.StatusOK, wf.View())
}

func (h *Handler) closeSale(w http.ResponseWriter, r *http.Request) {
	wf := h.workflowFor(r)
	if err := wf.Close(); err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf.View())
}

func (h *Handler) setClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID string `json:"clientId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf := h.workflowFor(r)
	if err := wf.SetClient(req.ClientID); err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf.View())
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	wf := h.workflowFor(r)
	item, err := wf.AddItem()
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

type updateItemRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	wf := h.workflowFor(r)
	if err := wf.UpdateItem(chi.URLParam(r, "id"), sale.Field(req.Field), req.Value); err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf.View())
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	wf := h.workflowFor(r)
	if err := wf.RemoveItem(chi.URLParam(r, "id")); err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wf.View())
}

func (h *Handler) submitSale(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	conf, err := h.workflowFor(r).Submit(ctx)
	if err != nil {
		respondWorkflowError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status": "venta registrada",
		"id":     conf.ID,
		"total":  conf.Total.StringFixed(2),
	})
}

// Helpers

// respondWorkflowError maps workflow failures to operator-visible JSON errors.
func respondWorkflowError(w http.ResponseWriter, err error) {
	var (
		vErr   *checkout.ValidationError
		subErr *checkout.SubmissionError
	)
	switch {
	case errors.As(err, &vErr):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": checkout.ErrValidation.Error(), "problems": vErr.Problems})
	case errors.As(err, &subErr):
		status := http.StatusBadGateway
		if errors.Is(err, farmacia.ErrUnauthorized) {
			status = http.StatusUnauthorized
		}
		respondError(w, status, subErr.Error())
	case errors.Is(err, sale.ErrItemNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sale.ErrInvalidQuantity), errors.Is(err, sale.ErrInvalidPrice), errors.Is(err, sale.ErrUnknownField):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrNotOpen), errors.Is(err, workflow.ErrBusy), errors.Is(err, workflow.ErrReferenceLoading),
		errors.Is(err, workflow.ErrPricesUnavailable), errors.Is(err, checkout.ErrSubmissionInProgress):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
