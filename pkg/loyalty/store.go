package loyalty

import (
	"context"
	"time"
)

// OrderQuery selects orders of one stream. Zero-valued fields do not filter.
type OrderQuery struct {
	Kind             OrderKind
	GuestID          GuestID
	BookingID        BookingID
	RoomNumber       RoomNumber
	HostID           string
	UnlinkedOnly     bool
	CreatedFrom      time.Time
	ExcludeCancelled bool
}

// OrderReader lists orders for a query.
type OrderReader interface {
	ListOrders(ctx context.Context, query OrderQuery) ([]Order, error)
}

// GuestStore persists guest records.
type GuestStore interface {
	GetGuest(ctx context.Context, guestID GuestID) (Guest, error)
	// LockGuest reads a guest and holds a write lock on it until the transaction ends.
	LockGuest(ctx context.Context, guestID GuestID) (Guest, error)
	FindGuestByEmail(ctx context.Context, email Email) (Guest, bool, error)
	CreateGuest(ctx context.Context, input GuestInput) (Guest, error)
	UpdateGuestProfile(ctx context.Context, guestID GuestID, profile GuestProfile) error
	UpdateGuestBalance(ctx context.Context, guestID GuestID, balance Points) error
	AddGuestTotalSpent(ctx context.Context, guestID GuestID, amount AmountCents) error
}

// TransactionStore persists the append-only bonus ledger.
type TransactionStore interface {
	LastTransaction(ctx context.Context, guestID GuestID) (Transaction, bool, error)
	InsertTransaction(ctx context.Context, input TransactionInput) (Transaction, error)
	// ListTransactions returns transactions newest first.
	ListTransactions(ctx context.Context, guestID GuestID) ([]Transaction, error)
}

// BookingStore persists bookings.
type BookingStore interface {
	FindDefaultBooking(ctx context.Context, roomID RoomID) (Booking, error)
	CreateBooking(ctx context.Context, input BookingInput) (Booking, error)
}

// OrderStore reads and links orders.
type OrderStore interface {
	OrderReader
	// LinkOrder assigns an unlinked order to a guest and booking. It reports false
	// when the order was already linked.
	LinkOrder(ctx context.Context, kind OrderKind, orderID string, guestID GuestID, bookingID BookingID) (bool, error)
}

// SessionStore upgrades anonymous sessions.
type SessionStore interface {
	UpgradeSession(ctx context.Context, token SessionToken, contact SessionContact) error
}

// Store is the persistence contract used by Service and Registrar.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GuestStore
	TransactionStore
	BookingStore
	OrderStore
	SessionStore
}
