package escrow

import (
	"errors"
	"fmt"

	"gigpay/models"
)

// ErrInvalidStateTransition marks any attempt to move a ledger or transaction
// along an edge the state machine does not permit.
var ErrInvalidStateTransition = errors.New("invalid state transition")

var allowedLedgerTransitions = map[models.LedgerState][]models.LedgerState{
	models.LedgerPendingPayment: {models.LedgerHeld},
	models.LedgerHeld:           {models.LedgerReleased, models.LedgerRefunded, models.LedgerDisputed},
	models.LedgerDisputed:       {models.LedgerReleased, models.LedgerRefunded},
}

var allowedTransactionTransitions = map[models.TransactionStatus][]models.TransactionStatus{
	models.TransactionPending:  {models.TransactionEscrowed, models.TransactionFailed},
	models.TransactionEscrowed: {models.TransactionReleased, models.TransactionRefunded},
}

// ValidateLedgerTransition ensures the custody transition follows the ledger
// state machine. Released and refunded are terminal.
func ValidateLedgerTransition(current, next models.LedgerState) error {
	allowed, ok := allowedLedgerTransitions[current]
	if !ok {
		return fmt.Errorf("%w: ledger state %s is terminal, cannot move to %s", ErrInvalidStateTransition, current, next)
	}
	for _, state := range allowed {
		if state == next {
			return nil
		}
	}
	return fmt.Errorf("%w: ledger transition %s -> %s is not permitted", ErrInvalidStateTransition, current, next)
}

// ValidateTransactionTransition ensures the commercial record follows the
// transaction state machine. Released, refunded and failed are terminal.
func ValidateTransactionTransition(current, next models.TransactionStatus) error {
	allowed, ok := allowedTransactionTransitions[current]
	if !ok {
		return fmt.Errorf("%w: transaction status %s is terminal, cannot move to %s", ErrInvalidStateTransition, current, next)
	}
	for _, status := range allowed {
		if status == next {
			return nil
		}
	}
	return fmt.Errorf("%w: transaction transition %s -> %s is not permitted", ErrInvalidStateTransition, current, next)
}

// LedgerTerminal reports whether no further custody transition is permitted.
func LedgerTerminal(state models.LedgerState) bool {
	_, ok := allowedLedgerTransitions[state]
	return !ok
}

// TransactionTerminal reports whether no further status transition is permitted.
func TransactionTerminal(status models.TransactionStatus) bool {
	_, ok := allowedTransactionTransitions[status]
	return !ok
}
