package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmacia/pos/internal/catalog"
	"farmacia/pos/internal/checkout"
	"farmacia/pos/internal/farmacia"
	"farmacia/pos/internal/session"
	"farmacia/pos/internal/workflow"
)

type fakeAPI struct {
	mu        sync.Mutex
	medsErr   error
	loginErr  error
	token     string
	createErr error
	orders    []farmacia.Order
}

func (f *fakeAPI) ListMedications(ctx context.Context, token string) ([]farmacia.Medication, error) {
	if f.medsErr != nil {
		return nil, f.medsErr
	}
	return []farmacia.Medication{
		{ID: "1", Name: "Paracetamol", Price: decimal.RequireFromString("10.50")},
		{ID: "2", Name: "Ibuprofeno", Price: decimal.RequireFromString("5.00")},
	}, nil
}

func (f *fakeAPI) ListCustomers(ctx context.Context, token string) ([]farmacia.Customer, error) {
	return []farmacia.Customer{{ID: "7", Name: "Ana"}}, nil
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (farmacia.LoginResult, error) {
	if f.loginErr != nil {
		return farmacia.LoginResult{}, f.loginErr
	}
	return farmacia.LoginResult{AccessToken: f.token, TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour).Unix()}, nil
}

func (f *fakeAPI) CreateSale(ctx context.Context, token string, order farmacia.Order) (farmacia.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return farmacia.Confirmation{}, f.createErr
	}
	f.orders = append(f.orders, order)
	return farmacia.Confirmation{ID: "55", Total: order.Total}, nil
}

type testEnv struct {
	api       *fakeAPI
	router    http.Handler
	cookie    *http.Cookie
	sessions  *session.Store
	workflows *workflow.Registry
}

func newTestEnv(t *testing.T, api *fakeAPI) *testEnv {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": 1,
		"role":    "owner",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	api.token = token

	store := session.NewStore("farmacia_session")
	registry := workflow.NewRegistry(catalog.NewLoader(api), func() workflow.Submitter {
		return checkout.NewGateway(api)
	})
	h, err := New(api, store, registry, 2*time.Second)
	require.NoError(t, err)

	return &testEnv{
		api:       api,
		router:    h.Router(),
		cookie:    &http.Cookie{Name: "farmacia_session", Value: token},
		sessions:  store,
		workflows: registry,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(e.cookie)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) workflow.View {
	t.Helper()
	var v workflow.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestDashboardRequiresSession(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	for _, path := range []string{"/dashboard", "/venta"} {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
		assert.Equal(t, "/login", rec.Header().Get("Location"), path)
	}
}

func TestDashboardRendersMedications(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})
	rec := env.do(t, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paracetamol")
	assert.Contains(t, rec.Body.String(), "10.50")
}

func TestDashboardFetchFailure(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{medsErr: errors.New("connection refused")})
	rec := env.do(t, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No hay medicamentos disponibles.")
	assert.Contains(t, rec.Body.String(), "No se pudieron cargar los medicamentos.")
}

func TestDashboardUnauthorizedRedirects(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{medsErr: &farmacia.APIError{StatusCode: http.StatusUnauthorized}})
	rec := env.do(t, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})
	form := url.Values{"email": {"owner@farmacia.test"}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, env.api.token, cookies[0].Value)
}

func TestLoginRejected(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{loginErr: &farmacia.APIError{StatusCode: http.StatusUnauthorized, Message: "invalid credentials"}})
	form := url.Values{"email": {"owner@farmacia.test"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "credenciales inválidas")
	assert.Empty(t, rec.Result().Cookies())
}

func TestSaleWorkflowEndToEnd(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	rec := env.do(t, http.MethodPost, "/venta/open?wait=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeView(t, rec)
	assert.True(t, v.Open)
	assert.False(t, v.Loading)
	assert.Len(t, v.Medications, 2)

	rec = env.do(t, http.MethodPut, "/venta/cliente", map[string]string{"clientId": "7"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/venta/items", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var item struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	require.NotEmpty(t, item.ID)

	rec = env.do(t, http.MethodPatch, "/venta/items/"+item.ID, updateItemRequest{Field: "medication", Value: "1"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodPatch, "/venta/items/"+item.ID, updateItemRequest{Field: "quantity", Value: "3"})
	require.Equal(t, http.StatusOK, rec.Code)
	v = decodeView(t, rec)
	assert.True(t, v.Total.Equal(decimal.RequireFromString("31.50")))
	assert.True(t, v.CanSubmit)

	rec = env.do(t, http.MethodPost, "/venta/submit", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":"31.50"`)

	require.Len(t, env.api.orders, 1)
	order := env.api.orders[0]
	assert.Equal(t, farmacia.ID("7"), order.ClientID)
	require.Len(t, order.Items, 1)
	assert.Equal(t, farmacia.OrderLine{MedicationID: "1", Quantity: 3}, order.Items[0])

	v = decodeView(t, env.do(t, http.MethodGet, "/venta", nil))
	assert.False(t, v.Open)
	assert.Empty(t, v.Items)
}

func TestSaleWorkflowErrors(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})

	rec := env.do(t, http.MethodPost, "/venta/items", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "edits require an open sale")

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/venta/open?wait=1", nil).Code)

	rec = env.do(t, http.MethodPost, "/venta/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "client is required")
	assert.Contains(t, rec.Body.String(), "at least one line item is required")

	rec = env.do(t, http.MethodPatch, "/venta/items/missing", updateItemRequest{Field: "quantity", Value: "2"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/venta/items", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var item struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))

	rec = env.do(t, http.MethodPatch, "/venta/items/"+item.ID, updateItemRequest{Field: "quantity", Value: "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodPatch, "/venta/items/"+item.ID, updateItemRequest{Field: "color", Value: "red"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/venta/items/"+item.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeView(t, rec).Items)
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{createErr: &farmacia.APIError{StatusCode: http.StatusInternalServerError, Message: "db down"}})

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/venta/open?wait=1", nil).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/venta/cliente", map[string]string{"clientId": "7"}).Code)
	rec := env.do(t, http.MethodPost, "/venta/items", nil)
	var item struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&item))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, "/venta/items/"+item.ID, updateItemRequest{Field: "medication", Value: "2"}).Code)

	rec = env.do(t, http.MethodPost, "/venta/submit", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "db down")

	v := decodeView(t, env.do(t, http.MethodGet, "/venta", nil))
	assert.True(t, v.Open)
	assert.Equal(t, "7", v.ClientID)
	require.Len(t, v.Items, 1)
	assert.True(t, v.Total.Equal(decimal.RequireFromString("5.00")))
}

func TestLogoutForgetsWorkflow(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/venta/open?wait=1", nil).Code)

	rec := env.do(t, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	v := decodeView(t, env.do(t, http.MethodGet, "/venta", nil))
	assert.False(t, v.Open)
}

func TestExpiredSessionForgetsWorkflow(t *testing.T) {
	env := newTestEnv(t, &fakeAPI{})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/venta/open?wait=1", nil).Code)
	require.Equal(t, 1, env.workflows.Len())

	env.sessions.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	rec := env.do(t, http.MethodGet, "/venta", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	assert.Equal(t, 0, env.workflows.Len())
}
