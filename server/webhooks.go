package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gigpay/gateway"
	"gigpay/models"
	"gigpay/observability"
	"gigpay/observability/logging"
	"gigpay/payments"
)

// webhookVerifyTimeout bounds the re-verification call for unsigned callbacks.
const webhookVerifyTimeout = 15 * time.Second

// webhookHandler terminates provider callbacks. Responses are deliberately
// non-committal: unknown references and bad signatures get 200 with an
// "ignored" body so probing the endpoint reveals nothing about stored
// transactions.
type webhookHandler struct {
	processor *payments.Processor
	metrics   *observability.PaymentMetrics
	log       *slog.Logger
	limiter   *rate.Limiter
}

func newWebhookHandler(processor *payments.Processor, log *slog.Logger, perSecond float64, burst int) *webhookHandler {
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &webhookHandler{
		processor: processor,
		metrics:   observability.Payments(),
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (h *webhookHandler) allow(w http.ResponseWriter) bool {
	if h.limiter.Allow() {
		return true
	}
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

type khaltiCallback struct {
	Pidx   string `json:"pidx"`
	Status string `json:"status"`
}

// khalti handles the Khalti callback. Khalti does not sign its callbacks, so
// the payload is treated as a hint only: settlement is confirmed by calling
// the lookup API before any state changes.
func (h *webhookHandler) khalti(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var cb khaltiCallback
	if err := json.Unmarshal(body, &cb); err != nil || strings.TrimSpace(cb.Pidx) == "" {
		h.ignore(w, "khalti", "malformed payload")
		return
	}

	txn, err := h.processor.FindByGatewayRef(r.Context(), models.MethodKhalti, cb.Pidx)
	if err != nil {
		h.ignore(w, "khalti", "unknown reference")
		return
	}

	gw, err := h.processor.Gateway(models.MethodKhalti)
	if err != nil {
		h.fail(w, "khalti", txn.ID.String(), err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), webhookVerifyTimeout)
	defer cancel()
	res, err := gw.Verify(ctx, cb.Pidx)
	if err != nil {
		h.fail(w, "khalti", txn.ID.String(), err)
		return
	}
	h.apply(w, r, "khalti", txn, res, string(body))
}

type esewaCallback struct {
	TransactionCode string `json:"transaction_code"`
	Status          string `json:"status"`
	TotalAmount     string `json:"total_amount"`
	TransactionUUID string `json:"transaction_uuid"`
	ProductCode     string `json:"product_code"`
	Signature       string `json:"signature"`
}

// esewa handles the eSewa callback. The body is either the JSON callback or
// its base64 encoding, signed over the documented field list. A valid
// signature lets the payload status stand without a status-endpoint call.
func (h *webhookHandler) esewa(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w) {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	cb, err := decodeEsewaCallback(body)
	if err != nil {
		h.ignore(w, "esewa", "malformed payload")
		return
	}

	gw, err := h.processor.Gateway(models.MethodEsewa)
	if err != nil {
		writeError(w, http.StatusBadGateway, "esewa gateway unavailable")
		return
	}
	verifier, ok := gw.(gateway.WebhookVerifier)
	if !ok {
		writeError(w, http.StatusBadGateway, "esewa gateway unavailable")
		return
	}
	signed := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s",
		cb.TotalAmount, cb.TransactionUUID, cb.ProductCode)
	if !verifier.VerifySignature([]byte(signed), cb.Signature) {
		h.log.Warn("esewa webhook signature rejected",
			logging.Field("signature", cb.Signature),
			slog.String("transaction_uuid", cb.TransactionUUID))
		h.count("esewa", "rejected")
		h.ignore(w, "esewa", "ignored")
		return
	}

	txn, err := h.processor.FindByGatewayRef(r.Context(), models.MethodEsewa, cb.TransactionUUID)
	if err != nil {
		h.ignore(w, "esewa", "unknown reference")
		return
	}
	res := &gateway.VerifyResult{
		Settled:      strings.EqualFold(strings.TrimSpace(cb.Status), "COMPLETE"),
		RemoteStatus: cb.Status,
	}
	h.apply(w, r, "esewa", txn, res, string(body))
}

func (h *webhookHandler) apply(w http.ResponseWriter, r *http.Request, provider string, txn *models.Transaction, res *gateway.VerifyResult, raw string) {
	updated, err := h.processor.ApplyGatewayResult(r.Context(), txn.ID, txn.ClientID, res, raw, true)
	if err != nil {
		h.fail(w, provider, txn.ID.String(), err)
		return
	}
	h.count(provider, "applied")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "accepted",
		"transaction_id": updated.ID.String(),
	})
}

func (h *webhookHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return nil, false
	}
	return body, true
}

func (h *webhookHandler) ignore(w http.ResponseWriter, provider, reason string) {
	h.count(provider, "ignored")
	h.log.Debug("webhook ignored",
		slog.String("provider", provider),
		slog.String("reason", reason))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}

func (h *webhookHandler) fail(w http.ResponseWriter, provider, transactionID string, err error) {
	h.count(provider, "failed")
	h.log.Error("webhook processing failed",
		slog.String("provider", provider),
		slog.String("transaction_id", transactionID),
		slog.String("error", err.Error()))
	writeError(w, http.StatusBadGateway, "callback could not be processed")
}

func (h *webhookHandler) count(provider, outcome string) {
	if h.metrics != nil {
		h.metrics.WebhookDeliveries.WithLabelValues(provider, outcome).Inc()
	}
}

// decodeEsewaCallback accepts the raw JSON callback or its base64 form, which
// eSewa uses on success redirects.
func decodeEsewaCallback(body []byte) (*esewaCallback, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("empty body")
	}
	raw := []byte(trimmed)
	if !strings.HasPrefix(trimmed, "{") {
		decoded, err := base64Decode(trimmed)
		if err != nil {
			return nil, err
		}
		raw = decoded
	}
	var cb esewaCallback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cb.TransactionUUID) == "" {
		return nil, fmt.Errorf("missing transaction_uuid")
	}
	return &cb, nil
}

func base64Decode(s string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
