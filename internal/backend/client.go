package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	createPaymentPath = "/api/create-payment"
	analyzePath       = "/api/analyze-after-payment"

	maxResponseBytes = 4 << 20
)

// Client is the remote document backend: it turns an uploaded document into
// a payment intent and, once paid, into a raw analysis payload.
type Client interface {
	CreatePaymentIntent(ctx context.Context, req UploadRequest) (string, error)
	RetrieveAnalysis(ctx context.Context, paymentIntentID string) ([]byte, error)
}

type UploadRequest struct {
	Filename       string
	Content        []byte
	IdempotencyKey string
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend request failed with status %d: %s", e.StatusCode, e.Body)
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a client for baseURL. submitRPM throttles intent
// creation per process; zero or less disables the throttle.
func NewHTTPClient(baseURL string, submitRPM int) *HTTPClient {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if submitRPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(submitRPM)/60.0), 1)
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		limiter:    limiter,
	}
}

var _ Client = (*HTTPClient)(nil)

func (c *HTTPClient) CreatePaymentIntent(ctx context.Context, req UploadRequest) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("submission limiter wait: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(req.Content); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createPaymentPath, &body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	respBody, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	return ParseClientSecret(respBody)
}

func (c *HTTPClient) RetrieveAnalysis(ctx context.Context, paymentIntentID string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("BACKEND_BASE_URL is required")
	}
	payload, err := json.Marshal(analyzeRequest{PaymentIntentID: paymentIntentID})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return c.do(httpReq)
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

type analyzeRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}
