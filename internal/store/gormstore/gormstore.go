package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	emptyItemsJSON          = "[]"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	mysqlDuplicateEntry     = 1062
	sessionTypeRegistered   = "registered"
	errorOperationStore     = "store"
	errorSubjectGuest       = "guest"
	errorSubjectTransaction = "transaction"
	errorSubjectBooking     = "booking"
	errorSubjectRoom        = "room"
	errorSubjectOrder       = "order"
	errorSubjectSession     = "session"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeLookup         = "lookup"
	errorCodeUpdate         = "update"
	errorCodeLink           = "link"
)

// Store implements loyalty.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table the store uses.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(Models()...)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore loyalty.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetGuest(ctx context.Context, guestID loyalty.GuestID) (loyalty.Guest, error) {
	var model Guest
	err := store.db.WithContext(ctx).Where("guest_id = ?", guestID.String()).Take(&model).Error
	return store.guestResult(model, errorCodeGet, err)
}

func (store *Store) LockGuest(ctx context.Context, guestID loyalty.GuestID) (loyalty.Guest, error) {
	var model Guest
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("guest_id = ?", guestID.String()).
		Take(&model).Error
	return store.guestResult(model, errorCodeLock, err)
}

func (store *Store) guestResult(model Guest, code string, err error) (loyalty.Guest, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, code, loyalty.ErrGuestNotFound)
	}
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, code, loyalty.PersistenceFailure(err))
	}
	guest, err := mapGuest(model)
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return guest, nil
}

func (store *Store) FindGuestByEmail(ctx context.Context, email loyalty.Email) (loyalty.Guest, bool, error) {
	var model Guest
	err := store.db.WithContext(ctx).Where("email = ?", email.String()).Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loyalty.Guest{}, false, nil
	}
	guest, err := store.guestResult(model, errorCodeLookup, err)
	if err != nil {
		return loyalty.Guest{}, false, err
	}
	return guest, true, nil
}

func (store *Store) CreateGuest(ctx context.Context, input loyalty.GuestInput) (loyalty.Guest, error) {
	model := Guest{
		Email:        input.Email.String(),
		Name:         input.Profile.Name,
		Phone:        input.Profile.Phone,
		GuestType:    input.Type.String(),
		ConsentGiven: input.Profile.ConsentGiven,
		ConsentAt:    timePointer(input.Profile.ConsentAt),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeDuplicate, loyalty.ConflictFailure(err))
	}
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeCreate, loyalty.PersistenceFailure(err))
	}
	guest, err := mapGuest(model)
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return guest, nil
}

func (store *Store) UpdateGuestProfile(ctx context.Context, guestID loyalty.GuestID, profile loyalty.GuestProfile) error {
	err := store.db.WithContext(ctx).
		Model(&Guest{}).
		Where("guest_id = ?", guestID.String()).
		Updates(map[string]any{
			"name":          profile.Name,
			"phone":         profile.Phone,
			"consent_given": profile.ConsentGiven,
			"consent_at":    timePointer(profile.ConsentAt),
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectGuest, errorCodeUpdate, loyalty.PersistenceFailure(err))
	}
	return nil
}

func (store *Store) UpdateGuestBalance(ctx context.Context, guestID loyalty.GuestID, balance loyalty.Points) error {
	err := store.db.WithContext(ctx).
		Model(&Guest{}).
		Where("guest_id = ?", guestID.String()).
		Update("loyalty_points", balance.Int64()).Error
	if err != nil {
		return wrapStoreError(errorSubjectGuest, errorCodeUpdate, loyalty.PersistenceFailure(err))
	}
	return nil
}

func (store *Store) AddGuestTotalSpent(ctx context.Context, guestID loyalty.GuestID, amount loyalty.AmountCents) error {
	result := store.db.WithContext(ctx).
		Model(&Guest{}).
		Where("guest_id = ?", guestID.String()).
		Update("total_spent_cents", gorm.Expr("total_spent_cents + ?", amount.Int64()))
	if result.Error != nil {
		return wrapStoreError(errorSubjectGuest, errorCodeUpdate, loyalty.PersistenceFailure(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectGuest, errorCodeUpdate, loyalty.ErrGuestNotFound)
	}
	return nil
}

func (store *Store) LastTransaction(ctx context.Context, guestID loyalty.GuestID) (loyalty.Transaction, bool, error) {
	var model BonusTransaction
	err := store.db.WithContext(ctx).
		Where("guest_id = ?", guestID.String()).
		Order("sequence DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loyalty.Transaction{}, false, nil
	}
	if err != nil {
		return loyalty.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, loyalty.PersistenceFailure(err))
	}
	transaction, err := mapTransaction(model)
	if err != nil {
		return loyalty.Transaction{}, false, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return transaction, true, nil
}

func (store *Store) InsertTransaction(ctx context.Context, input loyalty.TransactionInput) (loyalty.Transaction, error) {
	model := BonusTransaction{
		GuestID:      input.GuestID.String(),
		Sequence:     input.Sequence,
		Amount:       input.Amount.Int64(),
		BalanceAfter: input.BalanceAfter.Int64(),
		Note:         input.Note,
		CreatedBy:    input.CreatedBy.String(),
		CreatedAt:    input.CreatedAt.UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return loyalty.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, loyalty.ConflictFailure(err))
	}
	if err != nil {
		return loyalty.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, loyalty.PersistenceFailure(err))
	}
	transaction, err := mapTransaction(model)
	if err != nil {
		return loyalty.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return transaction, nil
}

func (store *Store) ListTransactions(ctx context.Context, guestID loyalty.GuestID) ([]loyalty.Transaction, error) {
	var rows []BonusTransaction
	err := store.db.WithContext(ctx).
		Where("guest_id = ?", guestID.String()).
		Order("sequence DESC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, loyalty.PersistenceFailure(err))
	}
	transactions := make([]loyalty.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, loyalty.PersistenceFailure(err))
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) FindDefaultBooking(ctx context.Context, roomID loyalty.RoomID) (loyalty.Booking, error) {
	var model Booking
	err := store.db.WithContext(ctx).
		Where("room_id = ? AND is_default = ?", roomID.String(), true).
		Order("created_at DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeLookup, loyalty.ErrBookingNotFound)
	}
	if err != nil {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeLookup, loyalty.PersistenceFailure(err))
	}
	return store.bookingResult(ctx, model)
}

func (store *Store) CreateBooking(ctx context.Context, input loyalty.BookingInput) (loyalty.Booking, error) {
	model := Booking{
		RoomID:    input.RoomID.String(),
		GuestID:   stringPointer(input.GuestID.String()),
		IsDefault: input.IsDefault,
		CheckIn:   timePointer(input.CheckIn),
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeCreate, loyalty.PersistenceFailure(err))
	}
	return store.bookingResult(ctx, model)
}

func (store *Store) bookingResult(ctx context.Context, model Booking) (loyalty.Booking, error) {
	var room Room
	err := store.db.WithContext(ctx).Where("room_id = ?", model.RoomID).Take(&room).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return loyalty.Booking{}, wrapStoreError(errorSubjectRoom, errorCodeGet, loyalty.PersistenceFailure(err))
	}
	booking, err := mapBooking(model, room.RoomNumber)
	if err != nil {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return booking, nil
}

// ListOrders reads one order stream. Host scope matches orders placed from one
// of the host's rooms or attached to a booking on one of them.
func (store *Store) ListOrders(ctx context.Context, query loyalty.OrderQuery) ([]loyalty.Order, error) {
	table, err := orderTable(query.Kind)
	if err != nil {
		return nil, wrapStoreError(errorSubjectOrder, errorCodeList, err)
	}
	db := store.db.WithContext(ctx)
	statement := db.Table(table)
	if !query.GuestID.IsZero() {
		statement = statement.Where("guest_id = ?", query.GuestID.String())
	}
	if !query.BookingID.IsZero() {
		statement = statement.Where("booking_id = ?", query.BookingID.String())
	}
	if !query.RoomNumber.IsZero() {
		statement = statement.Where("room_number = ?", query.RoomNumber.String())
	}
	if query.UnlinkedOnly {
		statement = statement.Where("guest_id IS NULL")
	}
	if !query.CreatedFrom.IsZero() {
		statement = statement.Where("created_at >= ?", query.CreatedFrom.UTC())
	}
	if query.ExcludeCancelled {
		statement = statement.Where("status <> ?", loyalty.OrderStatusCancelled.String())
	}
	if query.HostID != "" {
		hostRooms := db.Model(&Room{}).Select("room_number").Where("host_id = ?", query.HostID)
		hostBookings := db.Model(&Booking{}).
			Select("bookings.booking_id").
			Joins("JOIN rooms ON rooms.room_id = bookings.room_id").
			Where("rooms.host_id = ?", query.HostID)
		statement = statement.Where("(room_number IN (?) OR booking_id IN (?))", hostRooms, hostBookings)
	}

	var rows []orderRow
	if err := statement.Order("created_at DESC").Order("order_id DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectOrder, errorCodeList, loyalty.PersistenceFailure(err))
	}
	orders := make([]loyalty.Order, 0, len(rows))
	for _, row := range rows {
		order, err := mapOrder(query.Kind, row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectOrder, errorCodeInvalid, loyalty.PersistenceFailure(err))
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// LinkOrder claims an unlinked order. The guest_id IS NULL guard keeps linking permanent.
func (store *Store) LinkOrder(ctx context.Context, kind loyalty.OrderKind, orderID string, guestID loyalty.GuestID, bookingID loyalty.BookingID) (bool, error) {
	table, err := orderTable(kind)
	if err != nil {
		return false, wrapStoreError(errorSubjectOrder, errorCodeLink, err)
	}
	result := store.db.WithContext(ctx).
		Table(table).
		Where("order_id = ? AND guest_id IS NULL", orderID).
		Updates(map[string]any{
			"guest_id":   guestID.String(),
			"booking_id": bookingID.String(),
		})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectOrder, errorCodeLink, loyalty.PersistenceFailure(result.Error))
	}
	return result.RowsAffected > 0, nil
}

func (store *Store) UpgradeSession(ctx context.Context, token loyalty.SessionToken, contact loyalty.SessionContact) error {
	var session GuestSession
	err := store.db.WithContext(ctx).Where("token = ?", token.String()).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(errorSubjectSession, errorCodeLookup, loyalty.ErrSessionNotFound)
	}
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeLookup, loyalty.PersistenceFailure(err))
	}
	err = store.db.WithContext(ctx).
		Model(&GuestSession{}).
		Where("token = ?", token.String()).
		Updates(map[string]any{
			"session_type": sessionTypeRegistered,
			"guest_id":     contact.GuestID.String(),
			"email":        contact.Email.String(),
			"name":         contact.Name,
			"phone":        contact.Phone,
		}).Error
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, loyalty.PersistenceFailure(err))
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return loyalty.WrapError(errorOperationStore, subject, code, err)
}

func orderTable(kind loyalty.OrderKind) (string, error) {
	switch kind {
	case loyalty.OrderKindGoods:
		return GoodsOrder{}.TableName(), nil
	case loyalty.OrderKindService:
		return ServiceOrder{}.TableName(), nil
	default:
		_, err := loyalty.ParseOrderKind(kind.String())
		return "", err
	}
}

func mapGuest(model Guest) (loyalty.Guest, error) {
	guestID, err := loyalty.NewGuestID(model.GuestID)
	if err != nil {
		return loyalty.Guest{}, err
	}
	email, err := loyalty.NewEmail(model.Email)
	if err != nil {
		return loyalty.Guest{}, err
	}
	guestType, err := loyalty.ParseGuestType(model.GuestType)
	if err != nil {
		return loyalty.Guest{}, err
	}
	return loyalty.Guest{
		ID:            guestID,
		Email:         email,
		Name:          model.Name,
		Phone:         model.Phone,
		LoyaltyPoints: loyalty.Points(model.LoyaltyPoints),
		TotalSpent:    loyalty.AmountCents(model.TotalSpentCents),
		Type:          guestType,
		ConsentGiven:  model.ConsentGiven,
		ConsentAt:     timeOrZero(model.ConsentAt),
		CreatedAt:     model.CreatedAt.UTC(),
	}, nil
}

func mapTransaction(model BonusTransaction) (loyalty.Transaction, error) {
	guestID, err := loyalty.NewGuestID(model.GuestID)
	if err != nil {
		return loyalty.Transaction{}, err
	}
	actor, err := loyalty.NewActor(model.CreatedBy)
	if err != nil {
		return loyalty.Transaction{}, err
	}
	return loyalty.Transaction{
		ID:           model.TransactionID,
		GuestID:      guestID,
		Sequence:     model.Sequence,
		Amount:       loyalty.Points(model.Amount),
		BalanceAfter: loyalty.Points(model.BalanceAfter),
		Note:         model.Note,
		CreatedBy:    actor,
		CreatedAt:    model.CreatedAt.UTC(),
	}, nil
}

func mapBooking(model Booking, roomNumber string) (loyalty.Booking, error) {
	bookingID, err := loyalty.NewBookingID(model.BookingID)
	if err != nil {
		return loyalty.Booking{}, err
	}
	roomID, err := loyalty.NewRoomID(model.RoomID)
	if err != nil {
		return loyalty.Booking{}, err
	}
	booking := loyalty.Booking{
		ID:        bookingID,
		RoomID:    roomID,
		IsDefault: model.IsDefault,
		CheckIn:   timeOrZero(model.CheckIn),
		CreatedAt: model.CreatedAt.UTC(),
	}
	if model.GuestID != nil {
		if booking.GuestID, err = loyalty.NewGuestID(*model.GuestID); err != nil {
			return loyalty.Booking{}, err
		}
	}
	if roomNumber != "" {
		if booking.RoomNumber, err = loyalty.NewRoomNumber(roomNumber); err != nil {
			return loyalty.Booking{}, err
		}
	}
	return booking, nil
}

func mapOrder(kind loyalty.OrderKind, row orderRow) (loyalty.Order, error) {
	status, err := loyalty.ParseOrderStatus(row.Status)
	if err != nil {
		return loyalty.Order{}, err
	}
	order := loyalty.Order{
		ID:          row.OrderID,
		Kind:        kind,
		TotalAmount: loyalty.AmountCents(row.TotalAmountCents),
		Status:      status,
		CreatedAt:   row.CreatedAt.UTC(),
	}
	if row.GuestID != nil {
		if order.GuestID, err = loyalty.NewGuestID(*row.GuestID); err != nil {
			return loyalty.Order{}, err
		}
	}
	if row.BookingID != nil {
		if order.BookingID, err = loyalty.NewBookingID(*row.BookingID); err != nil {
			return loyalty.Order{}, err
		}
	}
	if row.RoomNumber != nil {
		if order.RoomNumber, err = loyalty.NewRoomNumber(*row.RoomNumber); err != nil {
			return loyalty.Order{}, err
		}
	}
	if len(row.Items) > 0 {
		if err := json.Unmarshal(row.Items, &order.Items); err != nil {
			return loyalty.Order{}, err
		}
	}
	return order, nil
}

func itemsJSON(items []loyalty.LineItem) (datatypes.JSON, error) {
	if len(items) == 0 {
		return datatypes.JSON([]byte(emptyItemsJSON)), nil
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timeOrZero(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}

func stringPointer(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}
	return false
}
