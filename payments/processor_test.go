package payments

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"gigpay/fees"
	"gigpay/gateway"
	"gigpay/models"
)

type stubGateway struct {
	mu          sync.Mutex
	externalID  string
	paymentLink string
	result      gateway.VerifyResult
	initiateErr error
	verifyErr   error
	verifyCalls int
}

func (s *stubGateway) Name() string { return "stub" }

func (s *stubGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResult, error) {
	if s.initiateErr != nil {
		return nil, s.initiateErr
	}
	return &gateway.InitiateResult{ExternalID: s.externalID, PaymentLink: s.paymentLink}, nil
}

func (s *stubGateway) Verify(ctx context.Context, externalID string) (*gateway.VerifyResult, error) {
	s.mu.Lock()
	s.verifyCalls++
	s.mu.Unlock()
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	res := s.result
	return &res, nil
}

type fixture struct {
	db           *gorm.DB
	processor    *Processor
	khalti       *stubGateway
	clientID     uuid.UUID
	freelancerID uuid.UUID
	projectID    uuid.UUID
	proposalID   uuid.UUID
}

func (f *fixture) client() Actor     { return Actor{ID: f.clientID, Role: models.RoleClient} }
func (f *fixture) freelancer() Actor { return Actor{ID: f.freelancerID, Role: models.RoleFreelancer} }
func (f *fixture) admin() Actor      { return Actor{ID: uuid.New(), Role: models.RoleAdmin} }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func newFixture(t *testing.T, budget float64) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:           db,
		khalti:       &stubGateway{externalID: "pidx-" + uuid.NewString()[:8], paymentLink: "https://pay.example/checkout"},
		clientID:     uuid.New(),
		freelancerID: uuid.New(),
		projectID:    uuid.New(),
		proposalID:   uuid.New(),
	}
	require.NoError(t, db.Create(&models.Project{
		ID:       f.projectID,
		ClientID: f.clientID,
		Title:    "Landing page redesign",
		Status:   models.ProjectInProgress,
	}).Error)
	require.NoError(t, db.Create(&models.Proposal{
		ID:             f.proposalID,
		ProjectID:      f.projectID,
		FreelancerID:   f.freelancerID,
		Status:         models.ProposalAccepted,
		ProposedBudget: budget,
	}).Error)
	f.processor = New(Config{
		DB:       db,
		Fees:     fees.NewCalculator(0, 0),
		Gateways: gateway.NewRegistry(f.khalti, nil),
	})
	return f
}

func (f *fixture) initiate(t *testing.T, method models.PaymentMethod) *InitiateOutcome {
	t.Helper()
	out, err := f.processor.Initiate(context.Background(), f.projectID, f.proposalID, f.client(), method)
	require.NoError(t, err)
	return out
}

func (f *fixture) settle(t *testing.T, id uuid.UUID) *models.Transaction {
	t.Helper()
	f.khalti.result = gateway.VerifyResult{Settled: true, RemoteStatus: "Completed"}
	txn, err := f.processor.Verify(context.Background(), id, f.client())
	require.NoError(t, err)
	return txn
}

func (f *fixture) ledger(t *testing.T, transactionID uuid.UUID) *models.EscrowLedger {
	t.Helper()
	var ledger models.EscrowLedger
	require.NoError(t, f.db.First(&ledger, "transaction_id = ?", transactionID).Error)
	return &ledger
}

func (f *fixture) project(t *testing.T) *models.Project {
	t.Helper()
	var project models.Project
	require.NoError(t, f.db.First(&project, "id = ?", f.projectID).Error)
	return &project
}

func TestInitiateCreatesTransactionAndLedger(t *testing.T) {
	f := newFixture(t, 500)

	out := f.initiate(t, models.MethodKhalti)

	txn := out.Transaction
	require.Equal(t, models.TransactionPending, txn.Status)
	require.Equal(t, 500.0, txn.Amount)
	require.Equal(t, 25.0, txn.ClientFee)
	require.Equal(t, 10.0, txn.FreelancerFee)
	require.Equal(t, 490.0, txn.NetAmount)
	require.Equal(t, f.clientID, txn.ClientID)
	require.Equal(t, f.freelancerID, txn.FreelancerID)

	ledger := f.ledger(t, txn.ID)
	require.Equal(t, models.LedgerPendingPayment, ledger.Status)
	require.Equal(t, 525.0, ledger.AmountHeld)
	require.Nil(t, ledger.HoldStartedAt)

	require.Equal(t, "https://pay.example/checkout", out.PaymentLink)
	var stored models.Transaction
	require.NoError(t, f.db.First(&stored, "id = ?", txn.ID).Error)
	require.Equal(t, f.khalti.externalID, stored.GatewayRef)

	var events int64
	require.NoError(t, f.db.Model(&models.Event{}).
		Where("transaction_id = ? AND action = ?", txn.ID, "payment.initiated").
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestInitiateRejectsDuplicate(t *testing.T) {
	f := newFixture(t, 500)
	f.initiate(t, models.MethodKhalti)

	_, err := f.processor.Initiate(context.Background(), f.projectID, f.proposalID, f.client(), models.MethodEsewa)
	require.ErrorIs(t, err, ErrAlreadyInitiated)
}

func TestInitiateAuthorization(t *testing.T) {
	f := newFixture(t, 500)
	ctx := context.Background()

	_, err := f.processor.Initiate(ctx, f.projectID, f.proposalID, f.freelancer(), models.MethodKhalti)
	require.ErrorIs(t, err, ErrNotAuthorized)

	stranger := Actor{ID: uuid.New(), Role: models.RoleClient}
	_, err = f.processor.Initiate(ctx, f.projectID, f.proposalID, stranger, models.MethodKhalti)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestInitiateChecksProposal(t *testing.T) {
	f := newFixture(t, 500)
	ctx := context.Background()

	pending := models.Proposal{
		ID:             uuid.New(),
		ProjectID:      f.projectID,
		FreelancerID:   f.freelancerID,
		Status:         "pending",
		ProposedBudget: 300,
	}
	require.NoError(t, f.db.Create(&pending).Error)
	_, err := f.processor.Initiate(ctx, f.projectID, pending.ID, f.client(), models.MethodKhalti)
	require.ErrorIs(t, err, ErrProposalNotAccepted)

	otherProject := models.Project{ID: uuid.New(), ClientID: f.clientID, Status: models.ProjectInProgress}
	require.NoError(t, f.db.Create(&otherProject).Error)
	_, err = f.processor.Initiate(ctx, otherProject.ID, f.proposalID, f.client(), models.MethodKhalti)
	require.ErrorIs(t, err, ErrProposalMismatch)

	_, err = f.processor.Initiate(ctx, uuid.New(), f.proposalID, f.client(), models.MethodKhalti)
	require.ErrorIs(t, err, ErrProjectNotFound)

	_, err = f.processor.Initiate(ctx, f.projectID, uuid.New(), f.client(), models.MethodKhalti)
	require.ErrorIs(t, err, ErrProposalNotFound)
}

func TestInitiateSurvivesGatewayOutage(t *testing.T) {
	f := newFixture(t, 500)
	f.khalti.initiateErr = gateway.ErrGatewayError

	out := f.initiate(t, models.MethodKhalti)

	require.Empty(t, out.PaymentLink)
	var stored models.Transaction
	require.NoError(t, f.db.First(&stored, "id = ?", out.Transaction.ID).Error)
	require.Equal(t, models.TransactionPending, stored.Status)
	require.Empty(t, stored.GatewayRef)
}

func TestVerifySettlesPayment(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)

	txn := f.settle(t, out.Transaction.ID)

	require.Equal(t, models.TransactionEscrowed, txn.Status)
	require.NotNil(t, txn.EscrowedAt)
	ledger := f.ledger(t, txn.ID)
	require.Equal(t, models.LedgerHeld, ledger.Status)
	require.NotNil(t, ledger.HoldStartedAt)
	require.Equal(t, 525.0, ledger.AmountHeld)
}

func TestVerifyRejectsSecondCall(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)

	_, err := f.processor.Verify(context.Background(), out.Transaction.ID, f.client())
	require.ErrorIs(t, err, ErrInvalidTransactionState)
}

func TestVerifyFailsUnsettledPayment(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.khalti.result = gateway.VerifyResult{Settled: false, RemoteStatus: "Expired"}

	txn, err := f.processor.Verify(context.Background(), out.Transaction.ID, f.client())
	require.NoError(t, err)
	require.Equal(t, models.TransactionFailed, txn.Status)

	// Money never moved, so custody stays where it was.
	ledger := f.ledger(t, txn.ID)
	require.Equal(t, models.LedgerPendingPayment, ledger.Status)
}

func TestVerifyManualMethod(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodBankTransfer)

	_, err := f.processor.Verify(context.Background(), out.Transaction.ID, f.client())
	require.ErrorIs(t, err, ErrNoGatewayReference)
}

func TestVerifyGatewayErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.khalti.verifyErr = gateway.ErrGatewayError

	_, err := f.processor.Verify(context.Background(), out.Transaction.ID, f.client())
	require.ErrorIs(t, err, gateway.ErrGatewayError)

	var stored models.Transaction
	require.NoError(t, f.db.First(&stored, "id = ?", out.Transaction.ID).Error)
	require.Equal(t, models.TransactionPending, stored.Status)
}

func TestWebhookDoubleDeliveryIsNoOp(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	ctx := context.Background()
	res := &gateway.VerifyResult{Settled: true, RemoteStatus: "Completed"}

	first, err := f.processor.ApplyGatewayResult(ctx, out.Transaction.ID, f.clientID, res, `{"status":"Completed"}`, true)
	require.NoError(t, err)
	require.Equal(t, models.TransactionEscrowed, first.Status)

	second, err := f.processor.ApplyGatewayResult(ctx, out.Transaction.ID, f.clientID, res, `{"status":"Completed"}`, true)
	require.NoError(t, err)
	require.Equal(t, models.TransactionEscrowed, second.Status)
	require.Equal(t, first.EscrowedAt.Unix(), second.EscrowedAt.Unix())

	var events int64
	require.NoError(t, f.db.Model(&models.Event{}).
		Where("transaction_id = ? AND action = ?", out.Transaction.ID, "payment.escrowed").
		Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestReleaseCompletesProject(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)

	txn, err := f.processor.Release(context.Background(), out.Transaction.ID, f.client())
	require.NoError(t, err)
	require.Equal(t, models.TransactionReleased, txn.Status)
	require.NotNil(t, txn.ReleasedAt)
	require.Equal(t, 490.0, txn.NetAmount)

	ledger := f.ledger(t, txn.ID)
	require.Equal(t, models.LedgerReleased, ledger.Status)
	require.NotNil(t, ledger.HoldReleasedAt)
	require.Equal(t, models.ProjectCompleted, f.project(t).Status)
}

func TestReleaseAuthorization(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)

	_, err := f.processor.Release(context.Background(), out.Transaction.ID, f.freelancer())
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestReleaseRequiresEscrowedState(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)

	_, err := f.processor.Release(context.Background(), out.Transaction.ID, f.client())
	require.ErrorIs(t, err, ErrInvalidTransactionState)
}

func TestReleaseDetectsDrift(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)

	require.NoError(t, f.db.Model(&models.EscrowLedger{}).
		Where("transaction_id = ?", out.Transaction.ID).
		Update("status", models.LedgerReleased).Error)

	_, err := f.processor.Release(context.Background(), out.Transaction.ID, f.client())
	require.ErrorIs(t, err, ErrIntegrityViolation)
}

func TestRefundLifecycle(t *testing.T) {
	f := newFixture(t, 900)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)
	ctx := context.Background()

	require.Equal(t, 945.0, f.ledger(t, out.Transaction.ID).AmountHeld)

	ledger, err := f.processor.RequestRefund(ctx, out.Transaction.ID, f.client(),
		"deliverables were never submitted before the deadline")
	require.NoError(t, err)
	require.Equal(t, models.LedgerDisputed, ledger.Status)
	require.NotNil(t, ledger.DisputeOpenedAt)

	// Transaction stays escrowed while the dispute is open.
	var stored models.Transaction
	require.NoError(t, f.db.First(&stored, "id = ?", out.Transaction.ID).Error)
	require.Equal(t, models.TransactionEscrowed, stored.Status)

	txn, err := f.processor.ResolveDispute(ctx, out.Transaction.ID, f.admin(), ResolutionRefund,
		"freelancer confirmed abandonment, refunding the client in full")
	require.NoError(t, err)
	require.Equal(t, models.TransactionRefunded, txn.Status)
	require.NotNil(t, txn.RefundedAt)
	require.NotEmpty(t, txn.RefundReason)

	resolved := f.ledger(t, txn.ID)
	require.Equal(t, models.LedgerRefunded, resolved.Status)
	require.NotNil(t, resolved.DisputeResolvedAt)
	require.Equal(t, models.ProjectCancelled, f.project(t).Status)
}

func TestResolveDisputeRelease(t *testing.T) {
	f := newFixture(t, 900)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)
	ctx := context.Background()

	_, err := f.processor.RequestRefund(ctx, out.Transaction.ID, f.client(),
		"work quality does not match the agreed specification")
	require.NoError(t, err)

	txn, err := f.processor.ResolveDispute(ctx, out.Transaction.ID, f.admin(), ResolutionRelease,
		"delivered work matches the proposal, paying the freelancer")
	require.NoError(t, err)
	require.Equal(t, models.TransactionReleased, txn.Status)
	require.Equal(t, models.LedgerReleased, f.ledger(t, txn.ID).Status)
	require.Equal(t, models.ProjectCompleted, f.project(t).Status)
}

func TestRefundGuards(t *testing.T) {
	f := newFixture(t, 900)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)
	ctx := context.Background()

	_, err := f.processor.RequestRefund(ctx, out.Transaction.ID, f.client(), "too short")
	require.ErrorIs(t, err, ErrReasonTooShort)

	_, err = f.processor.RequestRefund(ctx, out.Transaction.ID, f.freelancer(),
		"freelancers cannot request refunds on their own payments")
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.processor.ResolveDispute(ctx, out.Transaction.ID, f.client(), ResolutionRefund,
		"clients cannot resolve their own disputes either")
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.processor.ResolveDispute(ctx, out.Transaction.ID, f.admin(), ResolutionRefund,
		"there is no open dispute on this transaction yet")
	require.ErrorIs(t, err, ErrInvalidTransactionState)
}

func TestConcurrentReleaseSingleWinner(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.processor.Release(context.Background(), out.Transaction.ID, f.client())
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, models.LedgerReleased, f.ledger(t, out.Transaction.ID).Status)
}

func TestGetAuthorization(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	ctx := context.Background()

	for _, actor := range []Actor{f.client(), f.freelancer(), f.admin()} {
		txn, err := f.processor.Get(ctx, out.Transaction.ID, actor)
		require.NoError(t, err)
		require.Equal(t, out.Transaction.ID, txn.ID)
		require.NotNil(t, txn.Ledger)
	}

	stranger := Actor{ID: uuid.New(), Role: models.RoleFreelancer}
	_, err := f.processor.Get(ctx, out.Transaction.ID, stranger)
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.processor.Get(ctx, uuid.New(), f.admin())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFilters(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	f.settle(t, out.Transaction.ID)
	ctx := context.Background()

	all, err := f.processor.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)

	escrowed, err := f.processor.List(ctx, ListFilter{Status: string(models.TransactionEscrowed)})
	require.NoError(t, err)
	require.Len(t, escrowed, 1)

	none, err := f.processor.List(ctx, ListFilter{Status: string(models.TransactionRefunded)})
	require.NoError(t, err)
	require.Empty(t, none)

	esewa, err := f.processor.List(ctx, ListFilter{Method: string(models.MethodEsewa)})
	require.NoError(t, err)
	require.Empty(t, esewa)
}

func TestFindByGatewayRef(t *testing.T) {
	f := newFixture(t, 500)
	out := f.initiate(t, models.MethodKhalti)
	ctx := context.Background()

	txn, err := f.processor.FindByGatewayRef(ctx, models.MethodKhalti, f.khalti.externalID)
	require.NoError(t, err)
	require.Equal(t, out.Transaction.ID, txn.ID)

	_, err = f.processor.FindByGatewayRef(ctx, models.MethodEsewa, f.khalti.externalID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.processor.FindByGatewayRef(ctx, models.MethodKhalti, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFeeRoundingOnFractionalBudget(t *testing.T) {
	f := newFixture(t, 150.50)
	out := f.initiate(t, models.MethodKhalti)

	require.Equal(t, 7.53, out.Transaction.ClientFee)
	require.Equal(t, 3.01, out.Transaction.FreelancerFee)
	require.Equal(t, 147.49, out.Transaction.NetAmount)
	require.Equal(t, 158.03, f.ledger(t, out.Transaction.ID).AmountHeld)
}
