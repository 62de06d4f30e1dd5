package oplog

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogOperationWritesFields(test *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	logger := New(zap.New(core))
	guestID, err := loyalty.NewGuestID("guest-1")
	if err != nil {
		test.Fatalf("guest id: %v", err)
	}

	logger.LogOperation(context.Background(), loyalty.OperationLog{
		Operation:    loyalty.OperationRegister,
		GuestID:      guestID,
		Amount:       108,
		Balance:      108,
		OrdersLinked: 2,
		NewGuest:     true,
		Status:       loyalty.OperationStatusOK,
	})

	entries := observed.All()
	if len(entries) != 1 {
		test.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zap.InfoLevel || entry.Message != "loyalty operation" {
		test.Fatalf("unexpected entry %+v", entry.Entry)
	}
	fields := entry.ContextMap()
	if fields["guest_id"] != "guest-1" || fields["amount"] != int64(108) || fields["orders_linked"] != int64(2) || fields["new_guest"] != true {
		test.Fatalf("unexpected fields %v", fields)
	}
}

func TestLogOperationWarnsOnError(test *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	logger := New(zap.New(core))

	logger.LogOperation(context.Background(), loyalty.OperationLog{
		Operation: loyalty.OperationAdjust,
		Amount:    -50,
		Status:    loyalty.OperationStatusError,
		Error:     errors.New("boom"),
	})

	entries := observed.All()
	if len(entries) != 1 || entries[0].Level != zap.WarnLevel {
		test.Fatalf("expected one warning, got %+v", entries)
	}
	fields := entries[0].ContextMap()
	if fields["error"] != "boom" {
		test.Fatalf("expected error field, got %v", fields)
	}
	if _, ok := fields["orders_linked"]; ok {
		test.Fatalf("adjustments should not carry registration fields")
	}
}

func TestNewWithNilLogger(test *testing.T) {
	logger := New(nil)
	logger.LogOperation(context.Background(), loyalty.OperationLog{Operation: loyalty.OperationVerify, Status: loyalty.OperationStatusOK})
}
