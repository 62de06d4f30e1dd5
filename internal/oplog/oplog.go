// Package oplog writes loyalty operation logs to zap and the metrics counters.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/guestledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"go.uber.org/zap"
)

// Logger implements loyalty.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger writing to logger. A nil logger discards entries but still counts them.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

func (operationLogger *Logger) LogOperation(ctx context.Context, entry loyalty.OperationLog) {
	metrics.IncOperation(entry.Operation, entry.Status)

	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.GuestID.IsZero() {
		fields = append(fields, zap.String("guest_id", entry.GuestID.String()))
	}
	if roomID := entry.RoomID.String(); roomID != "" {
		fields = append(fields, zap.String("room_id", roomID))
	}
	if actor := entry.Actor.String(); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}
	fields = append(fields,
		zap.Int64("amount", entry.Amount.Int64()),
		zap.Int64("balance", entry.Balance.Int64()),
	)
	if entry.Operation == loyalty.OperationRegister {
		fields = append(fields,
			zap.Int("orders_linked", entry.OrdersLinked),
			zap.Bool("new_guest", entry.NewGuest),
		)
	}

	if entry.Error != nil {
		operationLogger.logger.Warn("loyalty operation failed", append(fields, zap.Error(entry.Error))...)
		return
	}
	metrics.AddPointsAwarded(entry.Amount.Int64())
	metrics.AddOrdersLinked(entry.OrdersLinked)
	operationLogger.logger.Info("loyalty operation", fields...)
}
