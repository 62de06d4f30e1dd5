package gormstore

import (
	"context"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"gorm.io/gorm"
)

const sessionTypeAnonymous = "anonymous"

// RoomInput describes a room to provision.
type RoomInput struct {
	RoomNumber loyalty.RoomNumber
	HostID     string
}

// OrderInput describes an order placed through the portal.
type OrderInput struct {
	GuestID     loyalty.GuestID
	BookingID   loyalty.BookingID
	RoomNumber  loyalty.RoomNumber
	TotalAmount loyalty.AmountCents
	Status      loyalty.OrderStatus
	Items       []loyalty.LineItem
	CreatedAt   time.Time
}

// CreateRoom inserts a room together with the default booking that represents
// anonymous occupancy.
func (store *Store) CreateRoom(ctx context.Context, input RoomInput) (loyalty.Booking, error) {
	var booking loyalty.Booking
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		transactionStore := &Store{db: transaction}
		room := Room{RoomNumber: input.RoomNumber.String(), HostID: strings.TrimSpace(input.HostID)}
		err := transaction.Create(&room).Error
		if isUniqueViolation(err) {
			return wrapStoreError(errorSubjectRoom, errorCodeDuplicate, loyalty.ConflictFailure(err))
		}
		if err != nil {
			return wrapStoreError(errorSubjectRoom, errorCodeCreate, loyalty.PersistenceFailure(err))
		}
		roomID, err := loyalty.NewRoomID(room.RoomID)
		if err != nil {
			return wrapStoreError(errorSubjectRoom, errorCodeInvalid, err)
		}
		booking, err = transactionStore.CreateBooking(ctx, loyalty.BookingInput{RoomID: roomID, IsDefault: true})
		return err
	})
	if err != nil {
		return loyalty.Booking{}, err
	}
	return booking, nil
}

// PlaceOrder inserts an order into the stream named by kind.
func (store *Store) PlaceOrder(ctx context.Context, kind loyalty.OrderKind, input OrderInput) (loyalty.Order, error) {
	items, err := itemsJSON(input.Items)
	if err != nil {
		return loyalty.Order{}, wrapStoreError(errorSubjectOrder, errorCodeInvalid, err)
	}
	status := input.Status
	if status == "" {
		status = loyalty.OrderStatusPending
	}
	createdAt := input.CreatedAt.UTC()
	if input.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var (
		orderID string
		create  error
	)
	switch kind {
	case loyalty.OrderKindGoods:
		model := GoodsOrder{
			GuestID:          stringPointer(input.GuestID.String()),
			BookingID:        stringPointer(input.BookingID.String()),
			RoomNumber:       stringPointer(input.RoomNumber.String()),
			TotalAmountCents: input.TotalAmount.Int64(),
			Status:           status.String(),
			Items:            items,
			CreatedAt:        createdAt,
		}
		create = store.db.WithContext(ctx).Create(&model).Error
		orderID = model.OrderID
	case loyalty.OrderKindService:
		model := ServiceOrder{
			GuestID:          stringPointer(input.GuestID.String()),
			BookingID:        stringPointer(input.BookingID.String()),
			RoomNumber:       stringPointer(input.RoomNumber.String()),
			TotalAmountCents: input.TotalAmount.Int64(),
			Status:           status.String(),
			Items:            items,
			CreatedAt:        createdAt,
		}
		create = store.db.WithContext(ctx).Create(&model).Error
		orderID = model.OrderID
	default:
		_, parseErr := loyalty.ParseOrderKind(kind.String())
		return loyalty.Order{}, wrapStoreError(errorSubjectOrder, errorCodeInsert, parseErr)
	}
	if create != nil {
		return loyalty.Order{}, wrapStoreError(errorSubjectOrder, errorCodeInsert, loyalty.PersistenceFailure(create))
	}
	return loyalty.Order{
		ID:          orderID,
		Kind:        kind,
		GuestID:     input.GuestID,
		BookingID:   input.BookingID,
		RoomNumber:  input.RoomNumber,
		TotalAmount: input.TotalAmount,
		Status:      status,
		Items:       input.Items,
		CreatedAt:   createdAt,
	}, nil
}

// OpenSession records an anonymous session for a room.
func (store *Store) OpenSession(ctx context.Context, token loyalty.SessionToken, roomID loyalty.RoomID) error {
	session := GuestSession{
		Token:       token.String(),
		SessionType: sessionTypeAnonymous,
		RoomID:      stringPointer(roomID.String()),
	}
	err := store.db.WithContext(ctx).Create(&session).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectSession, errorCodeDuplicate, loyalty.ConflictFailure(err))
	}
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeCreate, loyalty.PersistenceFailure(err))
	}
	return nil
}

// SessionType reports the stored type of a session.
func (store *Store) SessionType(ctx context.Context, token loyalty.SessionToken) (string, error) {
	var session GuestSession
	if err := store.db.WithContext(ctx).Where("token = ?", token.String()).Take(&session).Error; err != nil {
		return "", wrapStoreError(errorSubjectSession, errorCodeGet, loyalty.PersistenceFailure(err))
	}
	return session.SessionType, nil
}
