package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// Khalti talks to the Khalti ePayment API. Khalti denominates everything in
// paisa, so amounts are multiplied by 100 on initiate and divided back on
// verify.
type Khalti struct {
	secretKey string
	baseURL   string
	returnURL string
	http      *http.Client
}

// NewKhalti constructs a Khalti adapter. An empty secret key produces an
// adapter that reports ErrUnavailable on every call.
func NewKhalti(baseURL, secretKey, returnURL string) *Khalti {
	return &Khalti{
		secretKey: strings.TrimSpace(secretKey),
		baseURL:   strings.TrimRight(baseURL, "/"),
		returnURL: returnURL,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements PaymentGateway.
func (k *Khalti) Name() string { return "khalti" }

type khaltiInitiateRequest struct {
	ReturnURL         string `json:"return_url"`
	WebsiteURL        string `json:"website_url"`
	Amount            int64  `json:"amount"`
	PurchaseOrderID   string `json:"purchase_order_id"`
	PurchaseOrderName string `json:"purchase_order_name"`
	CustomerInfo      struct {
		Name  string `json:"name,omitempty"`
		Email string `json:"email,omitempty"`
		Phone string `json:"phone,omitempty"`
	} `json:"customer_info"`
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
}

type khaltiLookupResponse struct {
	Pidx        string `json:"pidx"`
	TotalAmount int64  `json:"total_amount"`
	Status      string `json:"status"`
	Refunded    bool   `json:"refunded"`
}

// Initiate opens a Khalti payment and returns the pidx handle plus the hosted
// payment page URL.
func (k *Khalti) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if k == nil || k.secretKey == "" {
		return nil, fmt.Errorf("%w: khalti secret key not configured", ErrUnavailable)
	}
	payload := khaltiInitiateRequest{
		ReturnURL:         k.returnURL,
		WebsiteURL:        k.returnURL,
		Amount:            toPaisa(req.Amount),
		PurchaseOrderID:   req.TransactionID.String(),
		PurchaseOrderName: "escrow-" + req.TransactionID.String(),
	}
	payload.CustomerInfo.Name = req.CustomerName
	payload.CustomerInfo.Email = req.CustomerEmail
	payload.CustomerInfo.Phone = req.CustomerPhone

	var resp khaltiInitiateResponse
	if err := k.doRequest(ctx, "/epayment/initiate/", payload, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Pidx) == "" {
		return nil, fmt.Errorf("%w: khalti initiate returned no pidx", ErrGatewayError)
	}
	return &InitiateResult{ExternalID: resp.Pidx, PaymentLink: resp.PaymentURL}, nil
}

// Verify looks up the payment by pidx. Khalti reports "Completed" once funds
// have cleared; every later lookup reports the same status.
func (k *Khalti) Verify(ctx context.Context, externalID string) (*VerifyResult, error) {
	if k == nil || k.secretKey == "" {
		return nil, fmt.Errorf("%w: khalti secret key not configured", ErrUnavailable)
	}
	if strings.TrimSpace(externalID) == "" {
		return nil, fmt.Errorf("%w: empty pidx", ErrGatewayError)
	}
	var resp khaltiLookupResponse
	if err := k.doRequest(ctx, "/epayment/lookup/", map[string]string{"pidx": externalID}, &resp); err != nil {
		return nil, err
	}
	settled := strings.EqualFold(strings.TrimSpace(resp.Status), "Completed") && !resp.Refunded
	return &VerifyResult{
		Settled:         settled,
		RemoteStatus:    resp.Status,
		AmountConfirmed: fromPaisa(resp.TotalAmount),
	}, nil
}

func (k *Khalti) doRequest(ctx context.Context, path string, payload, out interface{}) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode khalti request: %v", ErrGatewayError, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayError, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+k.secretKey)
	resp, err := k.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: khalti %s: %v", ErrGatewayError, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: khalti %s failed: status=%d", ErrGatewayError, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode khalti response: %v", ErrGatewayError, err)
	}
	return nil
}

func toPaisa(major float64) int64 {
	return int64(math.Floor(major*100 + 0.5))
}

func fromPaisa(minor int64) float64 {
	return float64(minor) / 100
}
