package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Esewa talks to the eSewa ePay API. eSewa works in major currency units and
// signs its asynchronous callbacks with HMAC-SHA256 over the raw payload.
type Esewa struct {
	productCode string
	secretKey   string
	baseURL     string
	returnURL   string
	http        *http.Client
}

// NewEsewa constructs an eSewa adapter. Empty credentials produce an adapter
// that reports ErrUnavailable on every call.
func NewEsewa(baseURL, productCode, secretKey, returnURL string) *Esewa {
	return &Esewa{
		productCode: strings.TrimSpace(productCode),
		secretKey:   strings.TrimSpace(secretKey),
		baseURL:     strings.TrimRight(baseURL, "/"),
		returnURL:   returnURL,
		http:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Name implements PaymentGateway.
func (e *Esewa) Name() string { return "esewa" }

// Initiate builds the signed checkout URL for the hosted eSewa form. The
// transaction UUID doubles as the provider reference.
func (e *Esewa) Initiate(_ context.Context, req InitiateRequest) (*InitiateResult, error) {
	if e == nil || e.secretKey == "" || e.productCode == "" {
		return nil, fmt.Errorf("%w: esewa credentials not configured", ErrUnavailable)
	}
	txnUUID := req.TransactionID.String()
	amount := fmt.Sprintf("%.2f", req.Amount)
	message := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s", amount, txnUUID, e.productCode)
	signature := e.sign([]byte(message))

	params := url.Values{}
	params.Set("amount", amount)
	params.Set("total_amount", amount)
	params.Set("transaction_uuid", txnUUID)
	params.Set("product_code", e.productCode)
	params.Set("success_url", e.returnURL)
	params.Set("failure_url", e.returnURL)
	params.Set("signed_field_names", "total_amount,transaction_uuid,product_code")
	params.Set("signature", signature)

	return &InitiateResult{
		ExternalID:  txnUUID,
		PaymentLink: e.baseURL + "/epay/main/v2/form?" + params.Encode(),
	}, nil
}

type esewaStatusResponse struct {
	ProductCode     string  `json:"product_code"`
	TransactionUUID string  `json:"transaction_uuid"`
	TotalAmount     float64 `json:"total_amount"`
	Status          string  `json:"status"`
	RefID           string  `json:"ref_id"`
}

// Verify checks the transaction status endpoint. eSewa reports "COMPLETE" once
// settled and keeps reporting it on later checks.
func (e *Esewa) Verify(ctx context.Context, externalID string) (*VerifyResult, error) {
	if e == nil || e.secretKey == "" || e.productCode == "" {
		return nil, fmt.Errorf("%w: esewa credentials not configured", ErrUnavailable)
	}
	if strings.TrimSpace(externalID) == "" {
		return nil, fmt.Errorf("%w: empty transaction uuid", ErrGatewayError)
	}
	endpoint := fmt.Sprintf("%s/api/epay/transaction/status/?product_code=%s&transaction_uuid=%s",
		e.baseURL, url.QueryEscape(e.productCode), url.QueryEscape(externalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayError, err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: esewa status check: %v", ErrGatewayError, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: esewa status check failed: status=%d", ErrGatewayError, resp.StatusCode)
	}
	var status esewaStatusResponse
	if err := jsonDecode(resp, &status); err != nil {
		return nil, err
	}
	return &VerifyResult{
		Settled:         strings.EqualFold(strings.TrimSpace(status.Status), "COMPLETE"),
		RemoteStatus:    status.Status,
		AmountConfirmed: status.TotalAmount,
	}, nil
}

// VerifySignature implements WebhookVerifier. eSewa sends a base64 HMAC-SHA256
// digest; hex digests are tolerated for older merchant integrations.
func (e *Esewa) VerifySignature(payload []byte, signature string) bool {
	if e == nil || e.secretKey == "" {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(e.secretKey))
	mac.Write(payload)
	expected := mac.Sum(nil)
	if decoded, err := base64.StdEncoding.DecodeString(signature); err == nil && hmac.Equal(expected, decoded) {
		return true
	}
	if decoded, err := hex.DecodeString(signature); err == nil && hmac.Equal(expected, decoded) {
		return true
	}
	return false
}

func (e *Esewa) sign(message []byte) string {
	mac := hmac.New(sha256.New, []byte(e.secretKey))
	mac.Write(message)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func jsonDecode(resp *http.Response, out interface{}) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode esewa response: %v", ErrGatewayError, err)
	}
	return nil
}
