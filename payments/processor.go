package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gigpay/escrow"
	"gigpay/fees"
	"gigpay/gateway"
	"gigpay/models"
	"gigpay/observability"
	"gigpay/observability/logging"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrNotFound         = errors.New("payments: transaction not found")
	ErrProjectNotFound  = errors.New("payments: project not found")
	ErrProposalNotFound = errors.New("payments: proposal not found")
	// ErrNotAuthorized denotes an actor acting outside their role or on a
	// transaction that is not theirs.
	ErrNotAuthorized = errors.New("payments: actor not authorized")
	// ErrAlreadyInitiated is returned when a transaction already exists for
	// the (project, proposal) pair.
	ErrAlreadyInitiated = errors.New("payments: payment already initiated for this proposal")
	// ErrProposalNotAccepted rejects initiation against any non-accepted proposal.
	ErrProposalNotAccepted = errors.New("payments: proposal is not accepted")
	// ErrProposalMismatch rejects a proposal that belongs to another project.
	ErrProposalMismatch = errors.New("payments: proposal does not belong to project")
	// ErrNoGatewayReference means the transaction was created with a manual
	// method and has nothing to verify against a gateway.
	ErrNoGatewayReference = errors.New("payments: transaction has no gateway reference")
	// ErrInvalidTransactionState carries the actual status in its wrapped message.
	ErrInvalidTransactionState = errors.New("payments: invalid transaction state")
	// ErrReasonTooShort enforces substantive refund reasons and resolution notes.
	ErrReasonTooShort = errors.New("payments: reason must be at least 20 characters")
	// ErrIntegrityViolation marks transaction/ledger status drift. It is never
	// auto-corrected.
	ErrIntegrityViolation = errors.New("payments: transaction and ledger state have drifted")
)

// minReasonLength forces a substantive explanation on refund requests and
// dispute resolutions.
const minReasonLength = 20

// gatewayCallTimeout bounds every outbound provider call so no orchestrator
// operation blocks indefinitely.
const gatewayCallTimeout = 15 * time.Second

// Resolution outcomes an admin may choose for a dispute.
const (
	ResolutionRelease = "release"
	ResolutionRefund  = "refund"
)

// Actor is the authenticated identity driving an operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// InitiateOutcome bundles what a successful initiation returns to the caller.
// PaymentLink is empty for manual methods and when the gateway is down.
type InitiateOutcome struct {
	Transaction *models.Transaction `json:"transaction"`
	Ledger      *models.EscrowLedger `json:"ledger"`
	PaymentLink string              `json:"payment_link,omitempty"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Status string
	Method string
	Limit  int
	Offset int
}

// Processor drives the escrow payment state machine. Every mutating operation
// runs inside one database transaction with the commercial record locked, so
// two concurrent operations against the same pair serialize and the loser is
// rejected by the precondition checks.
type Processor struct {
	db       *gorm.DB
	fees     fees.Calculator
	gateways *gateway.Registry
	metrics  *observability.PaymentMetrics
	log      *slog.Logger
	now      func() time.Time
}

// Config captures the dependencies required to construct the processor.
type Config struct {
	DB       *gorm.DB
	Fees     fees.Calculator
	Gateways *gateway.Registry
	Metrics  *observability.PaymentMetrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// New constructs a processor.
func New(cfg Config) *Processor {
	if cfg.DB == nil {
		panic("payments: database required")
	}
	if cfg.Gateways == nil {
		cfg.Gateways = gateway.NewRegistry(nil, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{
		db:       cfg.DB,
		fees:     cfg.Fees,
		gateways: cfg.Gateways,
		metrics:  cfg.Metrics,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
}

// Initiate creates the Transaction and EscrowLedger pair for an accepted
// proposal and asks the provider for a payment link. A gateway failure does
// not abort the operation; the records persist and the link comes back empty
// so the client can retry payment later.
func (p *Processor) Initiate(ctx context.Context, projectID, proposalID uuid.UUID, actor Actor, method models.PaymentMethod) (*InitiateOutcome, error) {
	if actor.Role != models.RoleClient {
		return nil, fmt.Errorf("%w: only clients initiate payments", ErrNotAuthorized)
	}
	if !method.Valid() {
		return nil, fmt.Errorf("payments: unsupported payment method %q", method)
	}

	var (
		transaction models.Transaction
		ledger      models.EscrowLedger
	)
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}
		if project.ClientID != actor.ID {
			return fmt.Errorf("%w: project belongs to another client", ErrNotAuthorized)
		}

		var proposal models.Proposal
		if err := tx.First(&proposal, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProposalNotFound
			}
			return err
		}
		if proposal.ProjectID != projectID {
			return ErrProposalMismatch
		}
		if proposal.Status != models.ProposalAccepted {
			return fmt.Errorf("%w: proposal status is %s", ErrProposalNotAccepted, proposal.Status)
		}

		var existing int64
		if err := tx.Model(&models.Transaction{}).
			Where("project_id = ? AND proposal_id = ?", projectID, proposalID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyInitiated
		}

		breakdown, err := p.fees.Calculate(proposal.ProposedBudget)
		if err != nil {
			return err
		}

		now := p.now()
		transaction = models.Transaction{
			ID:            uuid.New(),
			ProjectID:     projectID,
			ProposalID:    proposalID,
			ClientID:      project.ClientID,
			FreelancerID:  proposal.FreelancerID,
			Amount:        breakdown.Amount,
			ClientFee:     breakdown.ClientFee,
			FreelancerFee: breakdown.FreelancerFee,
			NetAmount:     breakdown.NetAmount,
			PaymentMethod: method,
			Status:        models.TransactionPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}
		ledger = models.EscrowLedger{
			ID:            uuid.New(),
			TransactionID: transaction.ID,
			ProjectID:     projectID,
			AmountHeld:    breakdown.TotalToEscrow,
			Status:        models.LedgerPendingPayment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&ledger).Error; err != nil {
			return err
		}
		return p.recordEvent(tx, &transaction.ID, actor.ID, "payment.initiated",
			fmt.Sprintf("method=%s amount=%.2f escrow=%.2f", method, breakdown.Amount, breakdown.TotalToEscrow))
	})
	if err != nil {
		return nil, err
	}
	p.countInitiated(method)

	outcome := &InitiateOutcome{Transaction: &transaction, Ledger: &ledger}
	gw, err := p.gateways.ForMethod(method)
	if err != nil {
		return outcome, nil
	}

	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	res, err := gw.Initiate(gwCtx, gateway.InitiateRequest{
		TransactionID: transaction.ID,
		Amount:        ledger.AmountHeld,
	})
	if err != nil {
		// Manual methods land here too; the records stand and the link
		// stays empty.
		p.log.Warn("gateway initiate failed",
			slog.String("transaction_id", transaction.ID.String()),
			slog.String("method", string(method)),
			slog.String("error", err.Error()))
		return outcome, nil
	}

	transaction.GatewayRef = res.ExternalID
	transaction.UpdatedAt = p.now()
	if err := p.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", transaction.ID).
		Updates(map[string]interface{}{"gateway_ref": res.ExternalID, "updated_at": transaction.UpdatedAt}).Error; err != nil {
		return nil, err
	}
	outcome.PaymentLink = res.PaymentLink
	p.log.Info("payment initiated",
		slog.String("transaction_id", transaction.ID.String()),
		slog.String("method", string(method)),
		logging.Field("gateway_ref", res.ExternalID))
	return outcome, nil
}

// Verify asks the provider whether the payment settled and applies the
// outcome. A transaction that already left pending is rejected with
// ErrInvalidTransactionState; the webhook path is the silent no-op.
func (p *Processor) Verify(ctx context.Context, transactionID uuid.UUID, actor Actor) (*models.Transaction, error) {
	transaction, err := p.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && transaction.ClientID != actor.ID {
		return nil, fmt.Errorf("%w: verify is limited to the paying client or an admin", ErrNotAuthorized)
	}
	if transaction.PaymentMethod.Manual() || strings.TrimSpace(transaction.GatewayRef) == "" {
		return nil, ErrNoGatewayReference
	}
	if transaction.Status != models.TransactionPending {
		return nil, fmt.Errorf("%w: cannot verify transaction in status %s", ErrInvalidTransactionState, transaction.Status)
	}

	gw, err := p.gateways.ForMethod(transaction.PaymentMethod)
	if err != nil {
		return nil, err
	}
	gwCtx, cancel := context.WithTimeout(ctx, gatewayCallTimeout)
	defer cancel()
	res, err := gw.Verify(gwCtx, transaction.GatewayRef)
	if err != nil {
		// Local state stays untouched so a later verify can succeed.
		return nil, err
	}
	return p.ApplyGatewayResult(ctx, transaction.ID, actor.ID, res, res.RemoteStatus, false)
}

// ApplyGatewayResult applies a settlement outcome to a pending transaction.
// On settlement the transaction moves to escrowed and the ledger to held in
// one atomic write; on non-settlement the transaction fails and the ledger is
// left in pending_payment because money never moved. When fromWebhook is set,
// a transaction that already left pending is an idempotent no-op.
func (p *Processor) ApplyGatewayResult(ctx context.Context, transactionID uuid.UUID, actorID uuid.UUID, res *gateway.VerifyResult, rawPayload string, fromWebhook bool) (*models.Transaction, error) {
	var (
		updated      models.Transaction
		transitioned bool
	)
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transaction, ledger, err := p.lockPair(tx, transactionID)
		if err != nil {
			return err
		}
		if transaction.Status != models.TransactionPending {
			if fromWebhook {
				updated = *transaction
				return nil
			}
			return fmt.Errorf("%w: cannot verify transaction in status %s", ErrInvalidTransactionState, transaction.Status)
		}

		now := p.now()
		transaction.GatewayResponse = rawPayload
		if res.Settled {
			if err := escrow.ValidateTransactionTransition(transaction.Status, models.TransactionEscrowed); err != nil {
				return err
			}
			if err := escrow.ValidateLedgerTransition(ledger.Status, models.LedgerHeld); err != nil {
				return err
			}
			transaction.Status = models.TransactionEscrowed
			transaction.EscrowedAt = &now
			ledger.Status = models.LedgerHeld
			ledger.HoldStartedAt = &now
			ledger.UpdatedAt = now
			if err := tx.Save(ledger).Error; err != nil {
				return err
			}
		} else {
			if err := escrow.ValidateTransactionTransition(transaction.Status, models.TransactionFailed); err != nil {
				return err
			}
			transaction.Status = models.TransactionFailed
		}
		transaction.UpdatedAt = now
		if err := tx.Save(transaction).Error; err != nil {
			return err
		}

		action := "payment.escrowed"
		if !res.Settled {
			action = "payment.failed"
		}
		if err := p.recordEvent(tx, &transaction.ID, actorID, action,
			fmt.Sprintf("remote_status=%s amount_confirmed=%.2f webhook=%t", res.RemoteStatus, res.AmountConfirmed, fromWebhook)); err != nil {
			return err
		}
		updated = *transaction
		transitioned = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if transitioned {
		if updated.Status == models.TransactionEscrowed {
			p.countSettled()
		} else if updated.Status == models.TransactionFailed {
			p.countFailed()
		}
	}
	return &updated, nil
}

// Release pays the freelancer: transaction escrowed -> released, ledger
// held -> released, project completed. Both records are checked; a pair where
// only one side holds is surfaced as ErrIntegrityViolation, never repaired.
func (p *Processor) Release(ctx context.Context, transactionID uuid.UUID, actor Actor) (*models.Transaction, error) {
	var updated models.Transaction
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transaction, ledger, err := p.lockPair(tx, transactionID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleAdmin && transaction.ClientID != actor.ID {
			return fmt.Errorf("%w: release is limited to the paying client or an admin", ErrNotAuthorized)
		}
		if err := requirePair(transaction, ledger, models.TransactionEscrowed, models.LedgerHeld, "release"); err != nil {
			return err
		}

		now := p.now()
		transaction.Status = models.TransactionReleased
		transaction.ReleasedAt = &now
		transaction.UpdatedAt = now
		ledger.Status = models.LedgerReleased
		ledger.HoldReleasedAt = &now
		ledger.UpdatedAt = now
		if err := tx.Save(transaction).Error; err != nil {
			return err
		}
		if err := tx.Save(ledger).Error; err != nil {
			return err
		}
		if err := p.setProjectStatus(tx, transaction.ProjectID, models.ProjectCompleted, now); err != nil {
			return err
		}
		if err := p.recordEvent(tx, &transaction.ID, actor.ID, "payment.released",
			fmt.Sprintf("net_amount=%.2f freelancer=%s", transaction.NetAmount, transaction.FreelancerID)); err != nil {
			return err
		}
		updated = *transaction
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.countReleased()
	return &updated, nil
}

// RequestRefund opens a dispute: ledger held -> disputed with the client's
// reason recorded. The transaction stays escrowed until an admin resolves.
func (p *Processor) RequestRefund(ctx context.Context, transactionID uuid.UUID, actor Actor, reason string) (*models.EscrowLedger, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minReasonLength {
		return nil, ErrReasonTooShort
	}
	var updated models.EscrowLedger
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transaction, ledger, err := p.lockPair(tx, transactionID)
		if err != nil {
			return err
		}
		if actor.Role != models.RoleClient || transaction.ClientID != actor.ID {
			return fmt.Errorf("%w: only the paying client may request a refund", ErrNotAuthorized)
		}
		if err := requirePair(transaction, ledger, models.TransactionEscrowed, models.LedgerHeld, "request refund"); err != nil {
			return err
		}

		now := p.now()
		ledger.Status = models.LedgerDisputed
		ledger.DisputeReason = reason
		ledger.DisputeOpenedAt = &now
		ledger.UpdatedAt = now
		if err := tx.Save(ledger).Error; err != nil {
			return err
		}
		if err := p.recordEvent(tx, &transaction.ID, actor.ID, "payment.dispute_opened", "refund requested by client"); err != nil {
			return err
		}
		updated = *ledger
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.countDisputeOpened()
	return &updated, nil
}

// ResolveDispute lets an admin settle a disputed ledger. "release" pays the
// freelancer and completes the project; "refund" returns the hold to the
// client and cancels the project. Ledger and transaction move together or not
// at all.
func (p *Processor) ResolveDispute(ctx context.Context, transactionID uuid.UUID, actor Actor, resolution, notes string) (*models.Transaction, error) {
	if actor.Role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: dispute resolution requires the admin role", ErrNotAuthorized)
	}
	notes = strings.TrimSpace(notes)
	if len(notes) < minReasonLength {
		return nil, ErrReasonTooShort
	}
	if resolution != ResolutionRelease && resolution != ResolutionRefund {
		return nil, fmt.Errorf("payments: unknown resolution %q", resolution)
	}

	var updated models.Transaction
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transaction, ledger, err := p.lockPair(tx, transactionID)
		if err != nil {
			return err
		}
		if ledger.Status != models.LedgerDisputed {
			return fmt.Errorf("%w: cannot resolve ledger in state %s", ErrInvalidTransactionState, ledger.Status)
		}
		if transaction.Status != models.TransactionEscrowed {
			return fmt.Errorf("%w: ledger disputed but transaction status is %s", ErrIntegrityViolation, transaction.Status)
		}

		now := p.now()
		ledger.DisputeResolvedAt = &now
		ledger.ResolutionNotes = notes
		ledger.UpdatedAt = now
		transaction.UpdatedAt = now

		var projectStatus, action string
		if resolution == ResolutionRelease {
			ledger.Status = models.LedgerReleased
			ledger.HoldReleasedAt = &now
			transaction.Status = models.TransactionReleased
			transaction.ReleasedAt = &now
			projectStatus = models.ProjectCompleted
			action = "payment.dispute_resolved"
		} else {
			ledger.Status = models.LedgerRefunded
			ledger.HoldReleasedAt = &now
			transaction.Status = models.TransactionRefunded
			transaction.RefundedAt = &now
			transaction.RefundReason = notes
			projectStatus = models.ProjectCancelled
			action = "payment.dispute_resolved"
		}
		if err := tx.Save(ledger).Error; err != nil {
			return err
		}
		if err := tx.Save(transaction).Error; err != nil {
			return err
		}
		if err := p.setProjectStatus(tx, transaction.ProjectID, projectStatus, now); err != nil {
			return err
		}
		if err := p.recordEvent(tx, &transaction.ID, actor.ID, action, "resolution="+resolution); err != nil {
			return err
		}
		updated = *transaction
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.countDisputeResolved(resolution)
	if resolution == ResolutionRefund {
		p.countRefunded()
	} else {
		p.countReleased()
	}
	return &updated, nil
}

// Get returns the transaction with its ledger. Only the transaction's parties
// and admins may read it.
func (p *Processor) Get(ctx context.Context, transactionID uuid.UUID, actor Actor) (*models.Transaction, error) {
	transaction, err := p.load(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && transaction.ClientID != actor.ID && transaction.FreelancerID != actor.ID {
		return nil, fmt.Errorf("%w: transaction belongs to other parties", ErrNotAuthorized)
	}
	return transaction, nil
}

// List returns transactions matching the filter, newest first.
func (p *Processor) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	query := p.db.WithContext(ctx).Model(&models.Transaction{}).Preload("Ledger").Order("created_at DESC")
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		query = query.Where("payment_method = ?", filter.Method)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var transactions []models.Transaction
	if err := query.Limit(limit).Offset(filter.Offset).Find(&transactions).Error; err != nil {
		return nil, err
	}
	return transactions, nil
}

// FindByGatewayRef resolves a provider callback reference to its transaction.
func (p *Processor) FindByGatewayRef(ctx context.Context, method models.PaymentMethod, ref string) (*models.Transaction, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNotFound
	}
	var transaction models.Transaction
	err := p.db.WithContext(ctx).
		First(&transaction, "gateway_ref = ? AND payment_method = ?", ref, method).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &transaction, nil
}

// Gateway exposes the configured adapter for a method so the webhook receiver
// can re-verify unsigned callbacks.
func (p *Processor) Gateway(method models.PaymentMethod) (gateway.PaymentGateway, error) {
	return p.gateways.ForMethod(method)
}

func (p *Processor) load(ctx context.Context, transactionID uuid.UUID) (*models.Transaction, error) {
	var transaction models.Transaction
	if err := p.db.WithContext(ctx).Preload("Ledger").First(&transaction, "id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &transaction, nil
}

// lockPair loads the transaction row under a row lock along with its ledger.
// All mutating operations go through here so concurrent operations against
// the same pair serialize.
func (p *Processor) lockPair(tx *gorm.DB, transactionID uuid.UUID) (*models.Transaction, *models.EscrowLedger, error) {
	var transaction models.Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&transaction, "id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	var ledger models.EscrowLedger
	if err := tx.First(&ledger, "transaction_id = ?", transactionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("%w: transaction %s has no escrow ledger", ErrIntegrityViolation, transactionID)
		}
		return nil, nil, err
	}
	return &transaction, &ledger, nil
}

// requirePair checks both sides of the pair before a custody transition. One
// side holding without the other is drift and fatal.
func requirePair(transaction *models.Transaction, ledger *models.EscrowLedger, wantStatus models.TransactionStatus, wantState models.LedgerState, action string) error {
	txOK := transaction.Status == wantStatus
	ledgerOK := ledger.Status == wantState
	if txOK && ledgerOK {
		return nil
	}
	if txOK != ledgerOK {
		return fmt.Errorf("%w: transaction=%s ledger=%s while attempting %s",
			ErrIntegrityViolation, transaction.Status, ledger.Status, action)
	}
	return fmt.Errorf("%w: cannot %s transaction in status %s (ledger %s)",
		ErrInvalidTransactionState, action, transaction.Status, ledger.Status)
}

func (p *Processor) setProjectStatus(tx *gorm.DB, projectID uuid.UUID, status string, now time.Time) error {
	return tx.Model(&models.Project{}).
		Where("id = ?", projectID).
		Updates(map[string]interface{}{"status": status, "updated_at": now}).Error
}

func (p *Processor) recordEvent(tx *gorm.DB, transactionID *uuid.UUID, actorID uuid.UUID, action, details string) error {
	return tx.Create(&models.Event{
		ID:            uuid.New(),
		TransactionID: transactionID,
		ActorID:       actorID,
		Action:        action,
		Details:       details,
		CreatedAt:     p.now(),
	}).Error
}

func (p *Processor) countInitiated(method models.PaymentMethod) {
	if p.metrics != nil {
		p.metrics.Initiated.WithLabelValues(string(method)).Inc()
	}
}

func (p *Processor) countSettled() {
	if p.metrics != nil {
		p.metrics.Settled.Inc()
	}
}

func (p *Processor) countFailed() {
	if p.metrics != nil {
		p.metrics.Failed.Inc()
	}
}

func (p *Processor) countReleased() {
	if p.metrics != nil {
		p.metrics.Released.Inc()
	}
}

func (p *Processor) countRefunded() {
	if p.metrics != nil {
		p.metrics.Refunded.Inc()
	}
}

func (p *Processor) countDisputeOpened() {
	if p.metrics != nil {
		p.metrics.DisputesOpened.Inc()
	}
}

func (p *Processor) countDisputeResolved(resolution string) {
	if p.metrics != nil {
		p.metrics.DisputesResolved.WithLabelValues(resolution).Inc()
	}
}
