package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeInvalidPayload      = "invalid_payload"
	errorCodeValidation          = "validation_error"
	errorCodeNotFound            = "not_found"
	errorCodeNoDefaultBooking    = "no_default_booking"
	errorCodeInsufficientBalance = "insufficient_balance"
	errorCodeConflict            = "conflict"
	errorCodeLedgerCorrupt       = "ledger_corrupt"
	errorCodeTimeout             = "timeout"
	errorCodeInternal            = "internal_error"

	internalErrorMessage = "internal error"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered so the specific categories win over the generic fallbacks.
var errorMappings = []errorMapping{
	{target: loyalty.ErrValidation, status: http.StatusBadRequest, code: errorCodeValidation},
	{target: loyalty.ErrNoDefaultBooking, status: http.StatusUnprocessableEntity, code: errorCodeNoDefaultBooking},
	{target: loyalty.ErrNotFound, status: http.StatusNotFound, code: errorCodeNotFound},
	{target: loyalty.ErrInsufficientBalance, status: http.StatusConflict, code: errorCodeInsufficientBalance},
	{target: loyalty.ErrConflict, status: http.StatusConflict, code: errorCodeConflict},
	{target: loyalty.ErrLedgerCorrupt, status: http.StatusConflict, code: errorCodeLedgerCorrupt},
	{target: context.DeadlineExceeded, status: http.StatusGatewayTimeout, code: errorCodeTimeout},
}

// statusForError maps a domain error to an HTTP status and error code.
func statusForError(err error) (int, string) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			return mapping.status, mapping.code
		}
	}
	return http.StatusInternalServerError, errorCodeInternal
}

func (handler *httpHandler) respondError(ctx *gin.Context, operation string, err error) {
	status, code := statusForError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		handler.logger.Error(operation+" failed", zap.Error(err), zap.String("code", code))
		if code == errorCodeInternal {
			message = internalErrorMessage
		}
	}
	ctx.JSON(status, errorResponse(code, message))
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
