package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"gigpay/models"
)

// Adapter errors. Transport and remote failures wrap ErrGatewayError so the
// orchestrator can leave local state untouched and let the caller retry.
var (
	// ErrUnavailable indicates the provider is not configured (missing
	// credentials) or the method has no gateway at all.
	ErrUnavailable = errors.New("gateway: provider unavailable")
	// ErrGatewayError indicates a transport or remote failure, including a
	// bounded-timeout expiry.
	ErrGatewayError = errors.New("gateway: provider error")
)

// InitiateRequest carries everything a provider needs to open a payment.
// Amount is in major currency units; unit conversion is provider-specific.
type InitiateRequest struct {
	TransactionID uuid.UUID
	Amount        float64
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// InitiateResult is the provider's handle for a newly opened payment.
type InitiateResult struct {
	ExternalID  string
	PaymentLink string
}

// VerifyResult reports the provider's view of a payment. Verify is idempotent:
// a settled payment reports the same outcome on every call.
type VerifyResult struct {
	Settled         bool
	RemoteStatus    string
	AmountConfirmed float64
}

// PaymentGateway abstracts an external payment provider. Implementations make
// outbound calls only; persistence belongs to the orchestrator.
type PaymentGateway interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, externalID string) (*VerifyResult, error)
}

// WebhookVerifier is implemented by providers that sign their asynchronous
// callbacks.
type WebhookVerifier interface {
	VerifySignature(payload []byte, signature string) bool
}

// Registry resolves the gateway for a payment method. Manual methods resolve
// to the manual adapter.
type Registry struct {
	gateways map[models.PaymentMethod]PaymentGateway
}

// NewRegistry builds a registry. Nil gateways fall back to the manual adapter
// so an unconfigured provider degrades to "no payment link" instead of a nil
// dereference.
func NewRegistry(khalti, esewa PaymentGateway) *Registry {
	manual := Manual{}
	if khalti == nil {
		khalti = manual
	}
	if esewa == nil {
		esewa = manual
	}
	return &Registry{gateways: map[models.PaymentMethod]PaymentGateway{
		models.MethodKhalti:       khalti,
		models.MethodEsewa:        esewa,
		models.MethodBankTransfer: manual,
		models.MethodWallet:       manual,
	}}
}

// ForMethod returns the gateway handling the given method.
func (r *Registry) ForMethod(method models.PaymentMethod) (PaymentGateway, error) {
	gw, ok := r.gateways[method]
	if !ok {
		return nil, ErrUnavailable
	}
	return gw, nil
}

// Manual is the no-op adapter for methods settled outside any gateway.
type Manual struct{}

// Name implements PaymentGateway.
func (Manual) Name() string { return "manual" }

// Initiate implements PaymentGateway. Manual methods have no payment link.
func (Manual) Initiate(context.Context, InitiateRequest) (*InitiateResult, error) {
	return nil, ErrUnavailable
}

// Verify implements PaymentGateway. Manual settlements are confirmed by staff,
// never by a provider lookup.
func (Manual) Verify(context.Context, string) (*VerifyResult, error) {
	return nil, ErrUnavailable
}
