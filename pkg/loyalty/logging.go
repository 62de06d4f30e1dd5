package loyalty

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service and Registrar operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing loyalty operation.
type OperationLog struct {
	Operation    string
	GuestID      GuestID
	RoomID       RoomID
	Amount       Points
	Balance      Points
	Actor        Actor
	OrdersLinked int
	NewGuest     bool
	Status       string
	Error        error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = OperationStatusError
		} else {
			entry.Status = OperationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
