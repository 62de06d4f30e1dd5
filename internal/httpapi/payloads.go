package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
)

type registrationRequest struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	CurrentRoomID string `json:"current_room_id"`
	SessionToken  string `json:"session_token"`
	ConsentGiven  bool   `json:"consent_given"`
}

type adjustmentRequest struct {
	Amount      int64  `json:"amount"`
	Note        string `json:"note"`
	CreatedBy   string `json:"created_by"`
	IsDeduction bool   `json:"is_deduction"`
}

type guestPayload struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	LoyaltyPoints   int64  `json:"loyalty_points"`
	TotalSpentCents int64  `json:"total_spent_cents"`
	GuestType       string `json:"guest_type"`
}

type bookingPayload struct {
	ID         string `json:"id"`
	RoomNumber string `json:"room_number,omitempty"`
}

type registrationResponse struct {
	Success          bool           `json:"success"`
	Guest            guestPayload   `json:"guest"`
	Booking          bookingPayload `json:"booking"`
	NewGuest         bool           `json:"new_guest"`
	BonusesAwarded   int64          `json:"bonuses_awarded"`
	PastOrdersLinked int            `json:"past_orders_linked"`
}

type transactionPayload struct {
	ID           string    `json:"id"`
	Sequence     int64     `json:"sequence"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	Note         string    `json:"note"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type adjustmentResponse struct {
	Transaction transactionPayload `json:"transaction"`
	Balance     int64              `json:"balance"`
}

type balanceResponse struct {
	GuestID string `json:"guest_id"`
	Balance int64  `json:"balance"`
}

type historyResponse struct {
	GuestID        string               `json:"guest_id"`
	Transactions   []transactionPayload `json:"transactions"`
	TotalEarned    int64                `json:"total_earned"`
	TotalSpent     int64                `json:"total_spent"`
	CurrentBalance int64                `json:"current_balance"`
}

type verificationResponse struct {
	GuestID          string `json:"guest_id"`
	Valid            bool   `json:"valid"`
	TransactionCount int    `json:"transaction_count"`
	StoredBalance    int64  `json:"stored_balance"`
	ReplayedBalance  int64  `json:"replayed_balance"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	Kind             string             `json:"kind"`
	GuestID          string             `json:"guest_id,omitempty"`
	BookingID        string             `json:"booking_id,omitempty"`
	RoomNumber       string             `json:"room_number,omitempty"`
	TotalAmountCents int64              `json:"total_amount_cents"`
	Status           string             `json:"status"`
	Items            []loyalty.LineItem `json:"items"`
	CreatedAt        time.Time          `json:"created_at"`
}

type ordersResponse struct {
	Orders []orderPayload `json:"orders"`
}

func newGuestPayload(guest loyalty.Guest) guestPayload {
	return guestPayload{
		ID:              guest.ID.String(),
		Email:           guest.Email.String(),
		Name:            guest.Name,
		Phone:           guest.Phone,
		LoyaltyPoints:   guest.LoyaltyPoints.Int64(),
		TotalSpentCents: guest.TotalSpent.Int64(),
		GuestType:       guest.Type.String(),
	}
}

func newTransactionPayload(transaction loyalty.Transaction) transactionPayload {
	return transactionPayload{
		ID:           transaction.ID,
		Sequence:     transaction.Sequence,
		Amount:       transaction.Amount.Int64(),
		BalanceAfter: transaction.BalanceAfter.Int64(),
		Note:         transaction.Note,
		CreatedBy:    transaction.CreatedBy.String(),
		CreatedAt:    transaction.CreatedAt,
	}
}

func newOrderPayload(order loyalty.Order) orderPayload {
	items := order.Items
	if items == nil {
		items = []loyalty.LineItem{}
	}
	return orderPayload{
		ID:               order.ID,
		Kind:             order.Kind.String(),
		GuestID:          order.GuestID.String(),
		BookingID:        order.BookingID.String(),
		RoomNumber:       order.RoomNumber.String(),
		TotalAmountCents: order.TotalAmount.Int64(),
		Status:           order.Status.String(),
		Items:            items,
		CreatedAt:        order.CreatedAt,
	}
}
