package loyalty

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Points is a signed loyalty point quantity.
type Points int64

// Int64 exposes the raw value.
func (points Points) Int64() int64 {
	return int64(points)
}

// AmountCents is an integer currency amount in cents.
type AmountCents int64

// Int64 exposes the raw value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// GuestID identifies a guest.
type GuestID struct {
	value string
}

// BookingID identifies a booking.
type BookingID struct {
	value string
}

// RoomID identifies a room.
type RoomID struct {
	value string
}

// RoomNumber is the human-facing room label orders are tagged with.
type RoomNumber struct {
	value string
}

// Email is a normalized guest email address.
type Email struct {
	value string
}

// Actor records who initiated a ledger change.
type Actor struct {
	value string
}

// SessionToken identifies an anonymous guest session.
type SessionToken struct {
	value string
}

// ActorSystem is the actor used for automatic awards.
var ActorSystem = Actor{value: actorSystemValue}

// NewGuestID validates and normalizes a guest id.
func NewGuestID(raw string) (GuestID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return GuestID{}, fmt.Errorf("%w: empty value", ErrInvalidGuestID)
	}
	return GuestID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id GuestID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id GuestID) IsZero() bool {
	return id.value == ""
}

// NewBookingID validates and normalizes a booking id.
func NewBookingID(raw string) (BookingID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BookingID{}, fmt.Errorf("%w: empty value", ErrInvalidBookingID)
	}
	return BookingID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BookingID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id BookingID) IsZero() bool {
	return id.value == ""
}

// NewRoomID validates and normalizes a room id.
func NewRoomID(raw string) (RoomID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RoomID{}, fmt.Errorf("%w: empty value", ErrInvalidRoomID)
	}
	return RoomID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RoomID) String() string {
	return id.value
}

// NewRoomNumber validates and normalizes a room number.
func NewRoomNumber(raw string) (RoomNumber, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RoomNumber{}, fmt.Errorf("%w: empty value", ErrInvalidRoomNumber)
	}
	return RoomNumber{value: trimmed}, nil
}

// String returns the normalized room number.
func (number RoomNumber) String() string {
	return number.value
}

// IsZero reports whether the room number is unset.
func (number RoomNumber) IsZero() bool {
	return number.value == ""
}

// NewEmail trims, lowercases and validates an email address.
func NewEmail(raw string) (Email, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return Email{}, fmt.Errorf("%w: empty value", ErrInvalidEmail)
	}
	address, err := mail.ParseAddress(normalized)
	if err != nil || address.Address != normalized {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	localPart, domain, found := strings.Cut(normalized, "@")
	if !found || localPart == "" || !strings.Contains(domain, ".") || strings.HasSuffix(domain, ".") {
		return Email{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return Email{value: normalized}, nil
}

// String returns the normalized address.
func (email Email) String() string {
	return email.value
}

// NewActor validates an actor name.
func NewActor(raw string) (Actor, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Actor{}, fmt.Errorf("%w: empty value", ErrInvalidActor)
	}
	return Actor{value: trimmed}, nil
}

// String returns the actor name.
func (actor Actor) String() string {
	return actor.value
}

// NewSessionToken validates a session token.
func NewSessionToken(raw string) (SessionToken, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SessionToken{}, fmt.Errorf("%w: empty value", ErrInvalidSessionToken)
	}
	return SessionToken{value: trimmed}, nil
}

// String returns the token.
func (token SessionToken) String() string {
	return token.value
}

// IsZero reports whether the token is unset.
func (token SessionToken) IsZero() bool {
	return token.value == ""
}

// GuestType distinguishes guests created from a booking from walk-ins.
type GuestType string

const (
	GuestTypePreRegistered GuestType = "pre_registered"
	GuestTypeWalkIn        GuestType = "walk_in"
)

// ParseGuestType validates a stored guest type.
func ParseGuestType(raw string) (GuestType, error) {
	switch GuestType(strings.TrimSpace(raw)) {
	case GuestTypePreRegistered:
		return GuestTypePreRegistered, nil
	case GuestTypeWalkIn:
		return GuestTypeWalkIn, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGuestType, raw)
	}
}

// String returns the stored representation.
func (guestType GuestType) String() string {
	return string(guestType)
}

// Guest is a stored guest record.
type Guest struct {
	ID            GuestID
	Email         Email
	Name          string
	Phone         string
	LoyaltyPoints Points
	TotalSpent    AmountCents
	Type          GuestType
	ConsentGiven  bool
	ConsentAt     time.Time
	CreatedAt     time.Time
}

// GuestProfile holds the contact fields reconciliation may overwrite.
type GuestProfile struct {
	Name         string
	Phone        string
	ConsentGiven bool
	ConsentAt    time.Time
}

// GuestInput describes a guest to create. Balance always starts at zero.
type GuestInput struct {
	Email   Email
	Profile GuestProfile
	Type    GuestType
}

// Transaction is one immutable line of a guest's bonus ledger.
type Transaction struct {
	ID           string
	GuestID      GuestID
	Sequence     int64
	Amount       Points
	BalanceAfter Points
	Note         string
	CreatedBy    Actor
	CreatedAt    time.Time
}

// TransactionInput describes a ledger line to append.
type TransactionInput struct {
	GuestID      GuestID
	Sequence     int64
	Amount       Points
	BalanceAfter Points
	Note         string
	CreatedBy    Actor
	CreatedAt    time.Time
}

// Booking is a stay record. Default bookings represent anonymous occupancy of a room.
type Booking struct {
	ID         BookingID
	RoomID     RoomID
	RoomNumber RoomNumber
	GuestID    GuestID
	IsDefault  bool
	CheckIn    time.Time
	CreatedAt  time.Time
}

// BookingInput describes a booking to create.
type BookingInput struct {
	RoomID    RoomID
	GuestID   GuestID
	IsDefault bool
	CheckIn   time.Time
}

// OrderKind names one of the two order streams.
type OrderKind string

const (
	OrderKindGoods   OrderKind = "goods"
	OrderKindService OrderKind = "service"
)

// OrderKinds lists every order stream in a stable order.
func OrderKinds() []OrderKind {
	return []OrderKind{OrderKindGoods, OrderKindService}
}

// ParseOrderKind validates an order kind.
func ParseOrderKind(raw string) (OrderKind, error) {
	switch OrderKind(strings.TrimSpace(raw)) {
	case OrderKindGoods:
		return OrderKindGoods, nil
	case OrderKindService:
		return OrderKindService, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderKind, raw)
	}
}

// String returns the stored representation.
func (kind OrderKind) String() string {
	return string(kind)
}

// OrderStatus is the order lifecycle state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// ParseOrderStatus validates an order status.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch OrderStatus(strings.TrimSpace(raw)) {
	case OrderStatusPending:
		return OrderStatusPending, nil
	case OrderStatusConfirmed:
		return OrderStatusConfirmed, nil
	case OrderStatusCompleted:
		return OrderStatusCompleted, nil
	case OrderStatusCancelled:
		return OrderStatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderStatus, raw)
	}
}

// String returns the stored representation.
func (status OrderStatus) String() string {
	return string(status)
}

// LineItem is one product or service line of an order.
type LineItem struct {
	Name           string      `json:"name"`
	Quantity       int64       `json:"quantity"`
	UnitPriceCents AmountCents `json:"unit_price_cents"`
}

// Revenue returns quantity times unit price.
func (item LineItem) Revenue() AmountCents {
	return AmountCents(item.Quantity) * item.UnitPriceCents
}

// Order is a goods or service order, tagged with its stream.
type Order struct {
	ID          string
	Kind        OrderKind
	GuestID     GuestID
	BookingID   BookingID
	RoomNumber  RoomNumber
	TotalAmount AmountCents
	Status      OrderStatus
	Items       []LineItem
	CreatedAt   time.Time
}

// IsLinked reports whether the order already belongs to a guest.
func (order Order) IsLinked() bool {
	return !order.GuestID.IsZero()
}

// SessionContact holds the fields copied onto an upgraded session.
type SessionContact struct {
	GuestID GuestID
	Email   Email
	Name    string
	Phone   string
}
