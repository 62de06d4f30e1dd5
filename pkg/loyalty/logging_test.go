package loyalty

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func TestServiceLogsAdjustOperation(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	guest := store.seedGuest(test, guestEmailValue, 10)
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))
	actor := mustActor(test, frontDeskActor)

	if _, err := service.ApplyAdjustment(context.Background(), AdjustmentRequest{GuestID: guest.ID, Amount: 5, Actor: actor}); err != nil {
		test.Fatalf("adjust: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != OperationAdjust || entry.GuestID != guest.ID || entry.Amount != 5 || entry.Balance != 15 || entry.Actor != actor {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Error != nil || entry.Status != OperationStatusOK {
		test.Fatalf("expected successful log entry, got %+v", entry)
	}
}

func TestServiceLogsErrorStatus(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	guest := store.seedGuest(test, guestEmailValue, 10)
	logger := &recorderLogger{}
	service := mustNewService(test, store, WithOperationLogger(logger))

	_, err := service.ApplyAdjustment(context.Background(), AdjustmentRequest{GuestID: guest.ID, Amount: -50, Actor: mustActor(test, frontDeskActor)})
	if err == nil {
		test.Fatalf("expected error")
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected one log entry, got %d", len(logger.entries))
	}
	if entry := logger.entries[0]; entry.Status != OperationStatusError || !errors.Is(entry.Error, ErrInsufficientBalance) {
		test.Fatalf("expected error log entry, got %+v", entry)
	}
}

func TestRegistrarLogsSingleEntry(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	store.seedRoom(test, roomIDValue, roomNumberValue)
	store.seedOrder(test, OrderKindGoods, roomNumberValue, 20000, stubEpoch.Add(-time.Hour))
	logger := &recorderLogger{}
	registrar := mustNewRegistrar(test, mustNewService(test, store, WithOperationLogger(logger)))

	result, err := registrar.Register(context.Background(), walkInRequest(""))
	if err != nil {
		test.Fatalf("register: %v", err)
	}
	if len(logger.entries) != 1 {
		test.Fatalf("expected the nested award to stay unlogged, got %d entries", len(logger.entries))
	}
	entry := logger.entries[0]
	if entry.Operation != OperationRegister || entry.GuestID != result.Guest.ID || entry.OrdersLinked != 1 || !entry.NewGuest {
		test.Fatalf("unexpected log entry: %+v", entry)
	}
	if entry.Amount != 102 || entry.Balance != 102 || entry.RoomID.String() != roomIDValue {
		test.Fatalf("unexpected log amounts: %+v", entry)
	}
}
