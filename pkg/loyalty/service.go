package loyalty

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service owns guest point balances and their transaction history.
type Service struct {
	store  Store
	nowFn  func() time.Time
	logger OperationLogger
}

// AdjustmentRequest describes a signed change to a guest balance.
type AdjustmentRequest struct {
	GuestID       GuestID
	Amount        Points
	Note          string
	Actor         Actor
	AllowNegative bool
}

// Adjustment is the outcome of a committed balance change.
type Adjustment struct {
	Transaction Transaction
	Balance     Points
}

// History is a guest's ledger view.
type History struct {
	Transactions   []Transaction
	TotalEarned    Points
	TotalSpent     Points
	CurrentBalance Points
}

// Verification summarizes a ledger replay.
type Verification struct {
	GuestID          GuestID
	TransactionCount int
	StoredBalance    Points
	ReplayedBalance  Points
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// ApplyAdjustment changes a guest balance and appends the matching transaction atomically.
func (service *Service) ApplyAdjustment(ctx context.Context, request AdjustmentRequest) (Adjustment, error) {
	var adjustment Adjustment
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		applied, err := service.applyAdjustment(ctx, transactionStore, request)
		if err != nil {
			return err
		}
		adjustment = applied
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: OperationAdjust,
		GuestID:   request.GuestID,
		Amount:    request.Amount,
		Balance:   adjustment.Balance,
		Actor:     request.Actor,
		Error:     operationError,
	})
	if operationError != nil {
		return Adjustment{}, operationError
	}
	return adjustment, nil
}

// applyAdjustment runs the read-check-write sequence on an open transaction.
func (service *Service) applyAdjustment(ctx context.Context, transactionStore Store, request AdjustmentRequest) (Adjustment, error) {
	if err := request.validate(); err != nil {
		return Adjustment{}, err
	}
	guest, err := transactionStore.LockGuest(ctx, request.GuestID)
	if err != nil {
		return Adjustment{}, err
	}
	newBalance := guest.LoyaltyPoints + request.Amount
	if newBalance < 0 && !request.AllowNegative {
		return Adjustment{}, WrapError(errorOperationService, errorSubjectAdjustment, errorCodeNegativeBalance, ErrInsufficientBalance)
	}
	sequence := int64(1)
	last, found, err := transactionStore.LastTransaction(ctx, request.GuestID)
	if err != nil {
		return Adjustment{}, err
	}
	if found {
		sequence = last.Sequence + 1
	}
	if err := transactionStore.UpdateGuestBalance(ctx, request.GuestID, newBalance); err != nil {
		return Adjustment{}, err
	}
	transaction, err := transactionStore.InsertTransaction(ctx, TransactionInput{
		GuestID:      request.GuestID,
		Sequence:     sequence,
		Amount:       request.Amount,
		BalanceAfter: newBalance,
		Note:         strings.TrimSpace(request.Note),
		CreatedBy:    request.Actor,
		CreatedAt:    service.nowFn().UTC(),
	})
	if err != nil {
		return Adjustment{}, err
	}
	return Adjustment{Transaction: transaction, Balance: newBalance}, nil
}

// Balance returns the stored balance of a guest.
func (service *Service) Balance(ctx context.Context, guestID GuestID) (Points, error) {
	guest, err := service.store.GetGuest(ctx, guestID)
	if err != nil {
		return 0, err
	}
	return guest.LoyaltyPoints, nil
}

// History returns transactions newest first along with earned and spent totals.
func (service *Service) History(ctx context.Context, guestID GuestID) (History, error) {
	guest, err := service.store.GetGuest(ctx, guestID)
	if err != nil {
		return History{}, err
	}
	transactions, err := service.store.ListTransactions(ctx, guestID)
	if err != nil {
		return History{}, err
	}
	history := History{
		Transactions:   transactions,
		CurrentBalance: guest.LoyaltyPoints,
	}
	for _, transaction := range transactions {
		if transaction.Amount > 0 {
			history.TotalEarned += transaction.Amount
		} else {
			history.TotalSpent -= transaction.Amount
		}
	}
	return history, nil
}

// Verify replays a guest ledger and checks it against the stored balance.
func (service *Service) Verify(ctx context.Context, guestID GuestID) (Verification, error) {
	verification, operationError := service.verify(ctx, guestID)
	service.logOperation(ctx, OperationLog{
		Operation: OperationVerify,
		GuestID:   guestID,
		Balance:   verification.StoredBalance,
		Error:     operationError,
	})
	return verification, operationError
}

func (service *Service) verify(ctx context.Context, guestID GuestID) (Verification, error) {
	guest, err := service.store.GetGuest(ctx, guestID)
	if err != nil {
		return Verification{}, err
	}
	transactions, err := service.store.ListTransactions(ctx, guestID)
	if err != nil {
		return Verification{}, err
	}
	verification := Verification{
		GuestID:          guestID,
		TransactionCount: len(transactions),
		StoredBalance:    guest.LoyaltyPoints,
	}
	replayed := Points(0)
	for index := len(transactions) - 1; index >= 0; index-- {
		transaction := transactions[index]
		expectedSequence := int64(len(transactions) - index)
		if transaction.Sequence != expectedSequence {
			return verification, WrapError(errorOperationService, errorSubjectLedger, errorCodeSequenceMismatch,
				fmt.Errorf("%w: transaction %s has sequence %d, expected %d", ErrLedgerCorrupt, transaction.ID, transaction.Sequence, expectedSequence))
		}
		replayed += transaction.Amount
		if transaction.BalanceAfter != replayed {
			return verification, WrapError(errorOperationService, errorSubjectLedger, errorCodeBalanceMismatch,
				fmt.Errorf("%w: transaction %s records %d, replay gives %d", ErrLedgerCorrupt, transaction.ID, transaction.BalanceAfter, replayed))
		}
	}
	verification.ReplayedBalance = replayed
	if replayed != guest.LoyaltyPoints {
		return verification, WrapError(errorOperationService, errorSubjectLedger, errorCodeBalanceMismatch,
			fmt.Errorf("%w: stored balance %d, replay gives %d", ErrLedgerCorrupt, guest.LoyaltyPoints, replayed))
	}
	return verification, nil
}

func (request AdjustmentRequest) validate() error {
	if request.GuestID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidGuestID)
	}
	if request.Amount == 0 {
		return fmt.Errorf("%w: must be non-zero", ErrInvalidAmount)
	}
	if request.Actor.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidActor)
	}
	return nil
}
