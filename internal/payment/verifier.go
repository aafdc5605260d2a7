package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Proof is the opaque payment evidence a client submits at confirm time.
type Proof struct {
	Method      string `json:"method"`
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
}

type Result struct {
	Accepted    bool   `json:"accepted"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
}

// Verifier checks a payment proof against the external gateway. The engine
// treats the gateway as opaque: it only looks at Accepted and AmountCents.
type Verifier interface {
	Verify(ctx context.Context, proof Proof) (Result, error)
}

// GatewayVerifier calls the gateway's verification endpoint over HTTP.
type GatewayVerifier struct {
	baseURL string
	client  *http.Client
}

func NewGatewayVerifier(baseURL string, timeout time.Duration) *GatewayVerifier {
	return &GatewayVerifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (v *GatewayVerifier) Verify(ctx context.Context, proof Proof) (Result, error) {
	body, err := json.Marshal(proof)
	if err != nil {
		return Result{}, fmt.Errorf("marshal proof: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/v1/payments/verify", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("verify payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("verify payment: gateway returned %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode gateway response: %w", err)
	}
	return result, nil
}

var _ Verifier = (*GatewayVerifier)(nil)
