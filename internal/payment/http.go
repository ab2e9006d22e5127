package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"nda-clarity/internal/domain"
)

const (
	defaultBaseURL = "https://api.stripe.com"

	declineFallback = "Your payment was declined."
	pendingFallback = "Your payment requires additional action before it can complete."
)

type HTTPProcessor struct {
	baseURL        string
	publishableKey string
	httpClient     *http.Client
}

func NewHTTPProcessor(baseURL, publishableKey string) *HTTPProcessor {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &HTTPProcessor{
		baseURL:        baseURL,
		publishableKey: publishableKey,
		httpClient:     &http.Client{Timeout: time.Minute},
	}
}

var _ Processor = (*HTTPProcessor)(nil)

type intentResponse struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	NextAction       json.RawMessage `json:"next_action"`
	LastPaymentError *apiError       `json:"last_payment_error"`
	Error            *apiError       `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (p *HTTPProcessor) Confirm(ctx context.Context, intent domain.PaymentIntent, details MethodDetails) (Outcome, error) {
	if p.publishableKey == "" {
		return Outcome{}, fmt.Errorf("PAYMENT_PUBLISHABLE_KEY is required")
	}
	if intent.ID == "" || intent.ClientSecret == "" {
		return Outcome{}, fmt.Errorf("%w: incomplete payment intent", domain.ErrMalformedResponse)
	}
	if details.PaymentMethodID == "" {
		return Failed("A payment method is required."), nil
	}

	form := url.Values{}
	form.Set("client_secret", intent.ClientSecret)
	form.Set("payment_method", details.PaymentMethodID)
	if details.ReturnURL != "" {
		form.Set("return_url", details.ReturnURL)
	}

	endpoint := fmt.Sprintf("%s/v1/payment_intents/%s/confirm", p.baseURL, url.PathEscape(intent.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.publishableKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Outcome{}, err
	}
	return mapResponse(resp.StatusCode, body, intent.ID)
}

func mapResponse(statusCode int, body []byte, intentID string) (Outcome, error) {
	var parsed intentResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Outcome{}, fmt.Errorf("unable to parse payment response (status %d): %w", statusCode, err)
	}

	if statusCode >= 500 {
		return Outcome{}, fmt.Errorf("payment processor failed with status %d", statusCode)
	}
	if statusCode >= 400 {
		if parsed.Error != nil {
			switch parsed.Error.Type {
			case "card_error", "invalid_request_error":
				return Failed(messageOr(parsed.Error.Message, declineFallback)), nil
			}
		}
		return Outcome{}, fmt.Errorf("payment processor rejected request with status %d", statusCode)
	}

	switch parsed.Status {
	case "succeeded":
		id := parsed.ID
		if id == "" {
			id = intentID
		}
		return Succeeded(id), nil
	case "requires_action", "processing":
		return Pending(pendingFallback), nil
	case "requires_payment_method", "canceled":
		msg := declineFallback
		if parsed.LastPaymentError != nil {
			msg = messageOr(parsed.LastPaymentError.Message, declineFallback)
		}
		return Failed(msg), nil
	}
	if len(parsed.NextAction) > 0 && string(parsed.NextAction) != "null" {
		return Pending(pendingFallback), nil
	}
	return Outcome{}, fmt.Errorf("%w: unexpected payment status %q", domain.ErrMalformedResponse, parsed.Status)
}

func messageOr(msg, fallback string) string {
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	return msg
}
