package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"nda-clarity/internal/domain"
)

type createPaymentResponse struct {
	ClientSecret *string `json:"clientSecret"`
}

// ParseClientSecret extracts the client secret from an intent creation body.
// Unknown keys are tolerated; a missing, null or blank secret is malformed.
func ParseClientSecret(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty create-payment body", domain.ErrMalformedResponse)
	}
	var resp createPaymentResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if resp.ClientSecret == nil || strings.TrimSpace(*resp.ClientSecret) == "" {
		return "", fmt.Errorf("%w: missing clientSecret", domain.ErrMalformedResponse)
	}
	return strings.TrimSpace(*resp.ClientSecret), nil
}
