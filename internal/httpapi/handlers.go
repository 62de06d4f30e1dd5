package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/internal/revenueexport"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/revenue"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type httpHandler struct {
	logger         *zap.Logger
	ledger         *loyalty.Service
	registrar      *loyalty.Registrar
	orders         *loyalty.OrderAggregator
	revenue        *revenue.Aggregator
	requestTimeout time.Duration
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.requestTimeout)
}

func (handler *httpHandler) handleRegistration(ctx *gin.Context) {
	var request registrationRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	result, err := handler.registrar.Register(requestCtx, loyalty.RegistrationRequest{
		Email:        request.Email,
		Name:         request.Name,
		Phone:        request.Phone,
		ConsentGiven: request.ConsentGiven,
		RoomID:       request.CurrentRoomID,
		SessionToken: request.SessionToken,
	})
	if err != nil {
		handler.respondError(ctx, "registration", err)
		return
	}
	ctx.JSON(http.StatusOK, registrationResponse{
		Success:          true,
		Guest:            newGuestPayload(result.Guest),
		Booking:          bookingPayload{ID: result.Booking.ID.String(), RoomNumber: result.Booking.RoomNumber.String()},
		NewGuest:         result.NewGuest,
		BonusesAwarded:   result.BonusesAwarded.Int64(),
		PastOrdersLinked: result.PastOrdersLinked,
	})
}

func (handler *httpHandler) handleAdjustment(ctx *gin.Context) {
	guestID, ok := handler.guestIDParam(ctx)
	if !ok {
		return
	}
	var request adjustmentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return
	}
	if request.Amount <= 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeValidation, "amount must be positive"))
		return
	}
	actor, err := loyalty.NewActor(request.CreatedBy)
	if err != nil {
		handler.respondError(ctx, "adjustment", err)
		return
	}
	amount := loyalty.Points(request.Amount)
	if request.IsDeduction {
		amount = -amount
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	adjustment, err := handler.ledger.ApplyAdjustment(requestCtx, loyalty.AdjustmentRequest{
		GuestID: guestID,
		Amount:  amount,
		Note:    request.Note,
		Actor:   actor,
	})
	if err != nil {
		handler.respondError(ctx, "adjustment", err)
		return
	}
	ctx.JSON(http.StatusOK, adjustmentResponse{
		Transaction: newTransactionPayload(adjustment.Transaction),
		Balance:     adjustment.Balance.Int64(),
	})
}

func (handler *httpHandler) handleBalance(ctx *gin.Context) {
	guestID, ok := handler.guestIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	balance, err := handler.ledger.Balance(requestCtx, guestID)
	if err != nil {
		handler.respondError(ctx, "balance", err)
		return
	}
	ctx.JSON(http.StatusOK, balanceResponse{GuestID: guestID.String(), Balance: balance.Int64()})
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	guestID, ok := handler.guestIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	history, err := handler.ledger.History(requestCtx, guestID)
	if err != nil {
		handler.respondError(ctx, "history", err)
		return
	}
	transactions := make([]transactionPayload, 0, len(history.Transactions))
	for _, transaction := range history.Transactions {
		transactions = append(transactions, newTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, historyResponse{
		GuestID:        guestID.String(),
		Transactions:   transactions,
		TotalEarned:    history.TotalEarned.Int64(),
		TotalSpent:     history.TotalSpent.Int64(),
		CurrentBalance: history.CurrentBalance.Int64(),
	})
}

func (handler *httpHandler) handleVerify(ctx *gin.Context) {
	guestID, ok := handler.guestIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	verification, err := handler.ledger.Verify(requestCtx, guestID)
	if err != nil {
		if errors.Is(err, loyalty.ErrLedgerCorrupt) {
			handler.logger.Error("ledger verification failed", zap.String("guest_id", guestID.String()), zap.Error(err))
		}
		handler.respondError(ctx, "verify", err)
		return
	}
	ctx.JSON(http.StatusOK, verificationResponse{
		GuestID:          guestID.String(),
		Valid:            true,
		TransactionCount: verification.TransactionCount,
		StoredBalance:    verification.StoredBalance.Int64(),
		ReplayedBalance:  verification.ReplayedBalance.Int64(),
	})
}

func (handler *httpHandler) handleOrders(ctx *gin.Context) {
	keys := loyalty.NewIdentityKeySet(ctx.Query("guest_id"), ctx.Query("booking_id"), ctx.Query("room_number"))
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	orders, err := handler.orders.Orders(requestCtx, keys)
	if err != nil {
		handler.respondError(ctx, "orders", err)
		return
	}
	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, newOrderPayload(order))
	}
	ctx.JSON(http.StatusOK, ordersResponse{Orders: payloads})
}

func (handler *httpHandler) handleRevenue(ctx *gin.Context) {
	report, ok := handler.buildReport(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (handler *httpHandler) handleRevenueExport(ctx *gin.Context) {
	report, ok := handler.buildReport(ctx)
	if !ok {
		return
	}
	var buffer bytes.Buffer
	if err := revenueexport.Write(&buffer, report); err != nil {
		handler.respondError(ctx, "revenue export", err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", revenueexport.FileName(report)))
	ctx.Data(http.StatusOK, revenueexport.ContentType, buffer.Bytes())
}

func (handler *httpHandler) buildReport(ctx *gin.Context) (revenue.Report, bool) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()

	report, err := handler.revenue.Report(requestCtx, revenue.Scope{HostID: ctx.Query("host_id")})
	if err != nil {
		handler.respondError(ctx, "revenue", err)
		return revenue.Report{}, false
	}
	return report, true
}

func (handler *httpHandler) guestIDParam(ctx *gin.Context) (loyalty.GuestID, bool) {
	guestID, err := loyalty.NewGuestID(ctx.Param("guest_id"))
	if err != nil {
		handler.respondError(ctx, "guest lookup", err)
		return loyalty.GuestID{}, false
	}
	return guestID, true
}
