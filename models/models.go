package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Actor roles recognised by the payment service.
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
	RoleAdmin      = "admin"
)

// PaymentMethod identifies how the client pays into escrow.
type PaymentMethod string

// Supported payment methods. Khalti and Esewa are gateway-backed; bank
// transfers and wallet top-ups are settled manually by operations staff.
const (
	MethodKhalti       PaymentMethod = "khalti"
	MethodEsewa        PaymentMethod = "esewa"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodWallet       PaymentMethod = "e-wallet"
)

// Valid reports whether the method is one the service accepts.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodKhalti, MethodEsewa, MethodBankTransfer, MethodWallet:
		return true
	default:
		return false
	}
}

// Manual reports whether the method settles outside any payment gateway.
func (m PaymentMethod) Manual() bool {
	return m == MethodBankTransfer || m == MethodWallet
}

// TransactionStatus tracks the commercial payment record.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "pending"
	TransactionEscrowed TransactionStatus = "escrowed"
	TransactionReleased TransactionStatus = "released"
	TransactionRefunded TransactionStatus = "refunded"
	TransactionFailed   TransactionStatus = "failed"
)

// LedgerState tracks custody of the funds held for a transaction.
type LedgerState string

const (
	LedgerPendingPayment LedgerState = "pending_payment"
	LedgerHeld           LedgerState = "held"
	LedgerReleased       LedgerState = "released"
	LedgerRefunded       LedgerState = "refunded"
	LedgerDisputed       LedgerState = "disputed"
)

// ProjectStatus mirrors the states owned by the marketplace core. The payment
// service only ever writes "completed" and "cancelled".
const (
	ProjectOpen       = "open"
	ProjectInProgress = "in_progress"
	ProjectCompleted  = "completed"
	ProjectCancelled  = "cancelled"
)

// ProposalAccepted is the only proposal state a payment may be initiated for.
const ProposalAccepted = "accepted"

// Project is the collaborator entity supplied by the marketplace subsystem.
// The payment service reads it for ownership checks and sets its status on
// release or refund.
type Project struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	Title     string    `gorm:"size:255" json:"title"`
	Status    string    `gorm:"size:32;index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Proposal is the accepted bid a payment is initiated against. Read-only here.
type Proposal struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID      uuid.UUID `gorm:"type:uuid;index" json:"project_id"`
	FreelancerID   uuid.UUID `gorm:"type:uuid;index" json:"freelancer_id"`
	Status         string    `gorm:"size:32;index" json:"status"`
	ProposedBudget float64   `gorm:"type:numeric(12,2)" json:"proposed_budget"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Transaction is the commercial record for one project payment. Financial
// records are never deleted; refunds and failures are recorded as states.
type Transaction struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_project_proposal" json:"project_id"`
	ProposalID   uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_project_proposal" json:"proposal_id"`
	ClientID     uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	FreelancerID uuid.UUID `gorm:"type:uuid;index" json:"freelancer_id"`

	Amount        float64 `gorm:"type:numeric(12,2);not null" json:"amount"`
	ClientFee     float64 `gorm:"type:numeric(12,2);not null" json:"client_fee"`
	FreelancerFee float64 `gorm:"type:numeric(12,2);not null" json:"freelancer_fee"`
	NetAmount     float64 `gorm:"type:numeric(12,2);not null" json:"net_amount"`

	PaymentMethod PaymentMethod     `gorm:"size:32;index" json:"payment_method"`
	Status        TransactionStatus `gorm:"size:32;index" json:"status"`

	GatewayRef      string `gorm:"size:128;index" json:"gateway_ref,omitempty"`
	GatewayResponse string `gorm:"type:text" json:"-"`
	RefundReason    string `gorm:"size:512" json:"refund_reason,omitempty"`

	EscrowedAt *time.Time `json:"escrowed_at,omitempty"`
	ReleasedAt *time.Time `json:"released_at,omitempty"`
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Ledger *EscrowLedger `gorm:"constraint:OnDelete:RESTRICT" json:"ledger,omitempty"`
}

// EscrowLedger is the funds-custody record, one-to-one with its transaction.
// AmountHeld is fixed at creation and never changes.
type EscrowLedger struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID uuid.UUID   `gorm:"type:uuid;uniqueIndex" json:"transaction_id"`
	ProjectID     uuid.UUID   `gorm:"type:uuid;index" json:"project_id"`
	AmountHeld    float64     `gorm:"type:numeric(12,2);not null" json:"amount_held"`
	Status        LedgerState `gorm:"size:32;index" json:"status"`

	HoldStartedAt     *time.Time `json:"hold_started_at,omitempty"`
	HoldReleasedAt    *time.Time `json:"hold_released_at,omitempty"`
	DisputeReason     string     `gorm:"size:512" json:"dispute_reason,omitempty"`
	DisputeOpenedAt   *time.Time `json:"dispute_opened_at,omitempty"`
	DisputeResolvedAt *time.Time `json:"dispute_resolved_at,omitempty"`
	ResolutionNotes   string     `gorm:"size:512" json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Event is the audit trail for payment state transitions.
type Event struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TransactionID *uuid.UUID `gorm:"type:uuid;index"`
	ActorID       uuid.UUID  `gorm:"type:uuid;index"`
	Action        string     `gorm:"size:64"`
	Details       string     `gorm:"type:text"`
	CreatedAt     time.Time
}

// IdempotencyKey stores request idempotency metadata for mutating routes.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey;size:128"`
	RequestID string `gorm:"size:64"`
	Method    string `gorm:"size:8"`
	Path      string `gorm:"size:255"`
	Status    int
	Response  string `gorm:"type:text"`
	CreatedAt time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Project{},
		&Proposal{},
		&Transaction{},
		&EscrowLedger{},
		&Event{},
		&IdempotencyKey{},
	)
}
