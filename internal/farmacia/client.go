package farmacia

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoToken      = errors.New("missing access token")
)

// APIError is a non-2xx answer of the pharmacy API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error %d", e.StatusCode)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is reports 401 and 403 answers as ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && (e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Endpoints are the resource paths relative to the base URL.
type Endpoints struct {
	Medications string
	Clients     string
	Sales       string
	Login       string
}

// DefaultEndpoints match the pharmacy API routes.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Medications: "/medicamentos",
		Clients:     "/clientes",
		Sales:       "/ventas",
		Login:       "/auth/login",
	}
}

// Client talks to the external pharmacy API.
type Client struct {
	baseURL    string
	endpoints  Endpoints
	schema     SaleSchema
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithEndpoints(e Endpoints) Option {
	return func(c *Client) { c.endpoints = e }
}

func WithSaleSchema(s SaleSchema) Option {
	return func(c *Client) { c.schema = s }
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		endpoints: DefaultEndpoints(),
		schema:    VentasSchema{},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListMedications fetches the medication catalog.
func (c *Client) ListMedications(ctx context.Context, token string) ([]Medication, error) {
	var meds []Medication
	if err := c.getJSON(ctx, token, c.endpoints.Medications, &meds); err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	return meds, nil
}

// ListCustomers fetches the known clients.
func (c *Client) ListCustomers(ctx context.Context, token string) ([]Customer, error) {
	var customers []Customer
	if err := c.getJSON(ctx, token, c.endpoints.Clients, &customers); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return customers, nil
}

// CreateSale posts a new sale transaction.
func (c *Client) CreateSale(ctx context.Context, token string, order Order) (Confirmation, error) {
	if token == "" {
		return Confirmation{}, ErrNoToken
	}
	body, err := c.schema.EncodeSale(order)
	if err != nil {
		return Confirmation{}, fmt.Errorf("encode sale: %w", err)
	}
	respBody, err := c.do(ctx, http.MethodPost, c.endpoints.Sales, token, body)
	if err != nil {
		return Confirmation{}, fmt.Errorf("create sale: %w", err)
	}
	// The sale exists once the API answered 2xx; an unreadable body must not
	// make the caller retry and create it twice.
	conf, err := c.schema.DecodeConfirmation(respBody)
	if err != nil {
		log.Printf("sale created but confirmation unreadable: %v", err)
		return Confirmation{Raw: json.RawMessage(respBody)}, nil
	}
	return conf, nil
}

// Login exchanges operator credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return LoginResult{}, err
	}
	respBody, err := c.do(ctx, http.MethodPost, c.endpoints.Login, "", body)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	var result LoginResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return LoginResult{}, fmt.Errorf("decode login response: %w", err)
	}
	if result.AccessToken == "" {
		return LoginResult{}, fmt.Errorf("login: %w", ErrNoToken)
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, token, path string, dest any) error {
	if token == "" {
		return ErrNoToken
	}
	body, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

// errorMessage extracts {"error"} or {"message"} from an error body, else the raw text.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := firstNonEmpty(payload.Error, payload.Message); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(body))
}
