package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolationCode   = "23505"
	sessionTypeRegistered   = "registered"
	errorOperationStore     = "store"
	errorSubjectGuest       = "guest"
	errorSubjectBooking     = "booking"
	errorSubjectOrder       = "order"
	errorSubjectSession     = "session"
	errorSubjectLedger      = "transaction"
	errorSubjectTransaction = "tx"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeCreate         = "create"
	errorCodeDuplicate      = "duplicate"
	errorCodeGet            = "get"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeLink           = "link"
	errorCodeList           = "list"
	errorCodeLock           = "lock"
	errorCodeLookup         = "lookup"
	errorCodeUpdate         = "update"

	guestColumns = `guest_id, email, name, phone, loyalty_points, total_spent_cents, guest_type, consent_given, consent_at, created_at`

	sqlSelectGuest = `select ` + guestColumns + ` from guests where guest_id = $1`

	sqlLockGuest = sqlSelectGuest + ` for update`

	sqlSelectGuestByEmail = `select ` + guestColumns + ` from guests where email = $1`

	sqlInsertGuest = `
		insert into guests(guest_id, email, name, phone, loyalty_points, total_spent_cents, guest_type, consent_given, consent_at, created_at, updated_at)
		values ($1, $2, $3, $4, 0, 0, $5, $6, $7, now(), now())
		returning created_at
	`

	sqlUpdateGuestProfile = `
		update guests set name = $2, phone = $3, consent_given = $4, consent_at = $5, updated_at = now()
		where guest_id = $1
	`

	sqlUpdateGuestBalance = `update guests set loyalty_points = $2, updated_at = now() where guest_id = $1`

	sqlAddGuestTotalSpent = `update guests set total_spent_cents = total_spent_cents + $2, updated_at = now() where guest_id = $1`

	transactionColumns = `transaction_id, guest_id, sequence, amount, balance_after, note, created_by, created_at`

	sqlLastTransaction = `select ` + transactionColumns + ` from bonus_transactions where guest_id = $1 order by sequence desc limit 1`

	sqlInsertTransaction = `
		insert into bonus_transactions(` + transactionColumns + `)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	sqlListTransactions = `select ` + transactionColumns + ` from bonus_transactions where guest_id = $1 order by sequence desc`

	sqlFindDefaultBooking = `
		select b.booking_id, b.room_id, b.guest_id, b.is_default, b.check_in, b.created_at, coalesce(r.room_number, '')
		from bookings b
		left join rooms r on r.room_id = b.room_id
		where b.room_id = $1 and b.is_default
		order by b.created_at desc
		limit 1
	`

	sqlInsertBooking = `
		insert into bookings(booking_id, room_id, guest_id, is_default, check_in, created_at)
		values ($1, $2, $3, $4, $5, now())
		returning created_at, coalesce((select room_number from rooms where room_id = $2), '')
	`

	orderColumns = `order_id, guest_id, booking_id, room_number, total_amount_cents, status, items, created_at`

	sqlLinkOrder = `update %s set guest_id = $2, booking_id = $3 where order_id = $1 and guest_id is null`

	sqlUpgradeSession = `
		update guest_sessions
		set session_type = $2, guest_id = $3, email = $4, name = $5, phone = $6, updated_at = now()
		where token = $1
	`
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements loyalty.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements loyalty.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

type queries struct {
	db querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore loyalty.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, loyalty.PersistenceFailure(err))
	}
	transactionStore := &TxStore{queries: queries{db: tx}, tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, loyalty.PersistenceFailure(err))
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore loyalty.Store) error) error {
	return fn(ctx, store)
}

func (store queries) GetGuest(ctx context.Context, guestID loyalty.GuestID) (loyalty.Guest, error) {
	return store.selectGuest(ctx, sqlSelectGuest, errorCodeGet, guestID.String())
}

func (store queries) LockGuest(ctx context.Context, guestID loyalty.GuestID) (loyalty.Guest, error) {
	return store.selectGuest(ctx, sqlLockGuest, errorCodeLock, guestID.String())
}

func (store queries) FindGuestByEmail(ctx context.Context, email loyalty.Email) (loyalty.Guest, bool, error) {
	guest, err := store.selectGuest(ctx, sqlSelectGuestByEmail, errorCodeLookup, email.String())
	if errors.Is(err, loyalty.ErrGuestNotFound) {
		return loyalty.Guest{}, false, nil
	}
	if err != nil {
		return loyalty.Guest{}, false, err
	}
	return guest, true, nil
}

func (store queries) selectGuest(ctx context.Context, sql string, code string, argument string) (loyalty.Guest, error) {
	var row guestRow
	err := store.db.QueryRow(ctx, sql, argument).Scan(
		&row.guestID, &row.email, &row.name, &row.phone, &row.loyaltyPoints, &row.totalSpentCents,
		&row.guestType, &row.consentGiven, &row.consentAt, &row.createdAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, code, loyalty.ErrGuestNotFound)
	}
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, code, loyalty.PersistenceFailure(err))
	}
	guest, err := row.toGuest()
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return guest, nil
}

func (store queries) CreateGuest(ctx context.Context, input loyalty.GuestInput) (loyalty.Guest, error) {
	guestIDValue := uuid.NewString()
	var createdAt time.Time
	err := store.db.QueryRow(ctx, sqlInsertGuest,
		guestIDValue, input.Email.String(), input.Profile.Name, input.Profile.Phone,
		input.Type.String(), input.Profile.ConsentGiven, timePointer(input.Profile.ConsentAt),
	).Scan(&createdAt)
	if isUniqueViolation(err) {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeDuplicate, loyalty.ConflictFailure(err))
	}
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeCreate, loyalty.PersistenceFailure(err))
	}
	guestID, err := loyalty.NewGuestID(guestIDValue)
	if err != nil {
		return loyalty.Guest{}, wrapStoreError(errorSubjectGuest, errorCodeInvalid, err)
	}
	return loyalty.Guest{
		ID:           guestID,
		Email:        input.Email,
		Name:         input.Profile.Name,
		Phone:        input.Profile.Phone,
		Type:         input.Type,
		ConsentGiven: input.Profile.ConsentGiven,
		ConsentAt:    input.Profile.ConsentAt.UTC(),
		CreatedAt:    createdAt.UTC(),
	}, nil
}

func (store queries) UpdateGuestProfile(ctx context.Context, guestID loyalty.GuestID, profile loyalty.GuestProfile) error {
	_, err := store.db.Exec(ctx, sqlUpdateGuestProfile, guestID.String(), profile.Name, profile.Phone, profile.ConsentGiven, timePointer(profile.ConsentAt))
	if err != nil {
		return wrapStoreError(errorSubjectGuest, errorCodeUpdate, loyalty.PersistenceFailure(err))
	}
	return nil
}

func (store queries) UpdateGuestBalance(ctx context.Context, guestID loyalty.GuestID, balance loyalty.Points) error {
	return store.updateGuest(ctx, sqlUpdateGuestBalance, guestID, balance.Int64())
}

func (store queries) AddGuestTotalSpent(ctx context.Context, guestID loyalty.GuestID, amount loyalty.AmountCents) error {
	return store.updateGuest(ctx, sqlAddGuestTotalSpent, guestID, amount.Int64())
}

func (store queries) updateGuest(ctx context.Context, sql string, guestID loyalty.GuestID, value int64) error {
	tag, err := store.db.Exec(ctx, sql, guestID.String(), value)
	if err != nil {
		return wrapStoreError(errorSubjectGuest, errorCodeUpdate, loyalty.PersistenceFailure(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectGuest, errorCodeUpdate, loyalty.ErrGuestNotFound)
	}
	return nil
}

func (store queries) LastTransaction(ctx context.Context, guestID loyalty.GuestID) (loyalty.Transaction, bool, error) {
	transaction, err := scanTransaction(store.db.QueryRow(ctx, sqlLastTransaction, guestID.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return loyalty.Transaction{}, false, nil
	}
	if err != nil {
		return loyalty.Transaction{}, false, wrapStoreError(errorSubjectLedger, errorCodeLookup, loyalty.PersistenceFailure(err))
	}
	return transaction, true, nil
}

func (store queries) InsertTransaction(ctx context.Context, input loyalty.TransactionInput) (loyalty.Transaction, error) {
	transactionID := uuid.NewString()
	createdAt := input.CreatedAt.UTC()
	if input.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := store.db.Exec(ctx, sqlInsertTransaction,
		transactionID, input.GuestID.String(), input.Sequence, input.Amount.Int64(), input.BalanceAfter.Int64(),
		input.Note, input.CreatedBy.String(), createdAt,
	)
	if isUniqueViolation(err) {
		return loyalty.Transaction{}, wrapStoreError(errorSubjectLedger, errorCodeDuplicate, loyalty.ConflictFailure(err))
	}
	if err != nil {
		return loyalty.Transaction{}, wrapStoreError(errorSubjectLedger, errorCodeInsert, loyalty.PersistenceFailure(err))
	}
	return loyalty.Transaction{
		ID:           transactionID,
		GuestID:      input.GuestID,
		Sequence:     input.Sequence,
		Amount:       input.Amount,
		BalanceAfter: input.BalanceAfter,
		Note:         input.Note,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    createdAt,
	}, nil
}

func (store queries) ListTransactions(ctx context.Context, guestID loyalty.GuestID) ([]loyalty.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactions, guestID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeList, loyalty.PersistenceFailure(err))
	}
	defer rows.Close()

	transactions := make([]loyalty.Transaction, 0)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectLedger, errorCodeInvalid, loyalty.PersistenceFailure(err))
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectLedger, errorCodeList, loyalty.PersistenceFailure(err))
	}
	return transactions, nil
}

func (store queries) FindDefaultBooking(ctx context.Context, roomID loyalty.RoomID) (loyalty.Booking, error) {
	var row bookingRow
	err := store.db.QueryRow(ctx, sqlFindDefaultBooking, roomID.String()).Scan(
		&row.bookingID, &row.roomID, &row.guestID, &row.isDefault, &row.checkIn, &row.createdAt, &row.roomNumber,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeLookup, loyalty.ErrBookingNotFound)
	}
	if err != nil {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeLookup, loyalty.PersistenceFailure(err))
	}
	booking, err := row.toBooking()
	if err != nil {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return booking, nil
}

func (store queries) CreateBooking(ctx context.Context, input loyalty.BookingInput) (loyalty.Booking, error) {
	row := bookingRow{
		bookingID: uuid.NewString(),
		roomID:    input.RoomID.String(),
		guestID:   stringPointer(input.GuestID.String()),
		isDefault: input.IsDefault,
		checkIn:   timePointer(input.CheckIn),
	}
	err := store.db.QueryRow(ctx, sqlInsertBooking, row.bookingID, row.roomID, row.guestID, row.isDefault, row.checkIn).
		Scan(&row.createdAt, &row.roomNumber)
	if err != nil {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeCreate, loyalty.PersistenceFailure(err))
	}
	booking, err := row.toBooking()
	if err != nil {
		return loyalty.Booking{}, wrapStoreError(errorSubjectBooking, errorCodeInvalid, loyalty.PersistenceFailure(err))
	}
	return booking, nil
}

func (store queries) ListOrders(ctx context.Context, query loyalty.OrderQuery) ([]loyalty.Order, error) {
	sql, arguments, err := orderQuerySQL(query)
	if err != nil {
		return nil, wrapStoreError(errorSubjectOrder, errorCodeList, err)
	}
	rows, err := store.db.Query(ctx, sql, arguments...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectOrder, errorCodeList, loyalty.PersistenceFailure(err))
	}
	defer rows.Close()

	orders := make([]loyalty.Order, 0)
	for rows.Next() {
		var row orderRow
		if err := rows.Scan(&row.orderID, &row.guestID, &row.bookingID, &row.roomNumber, &row.totalAmountCents, &row.status, &row.items, &row.createdAt); err != nil {
			return nil, wrapStoreError(errorSubjectOrder, errorCodeList, loyalty.PersistenceFailure(err))
		}
		order, err := row.toOrder(query.Kind)
		if err != nil {
			return nil, wrapStoreError(errorSubjectOrder, errorCodeInvalid, loyalty.PersistenceFailure(err))
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectOrder, errorCodeList, loyalty.PersistenceFailure(err))
	}
	return orders, nil
}

func (store queries) LinkOrder(ctx context.Context, kind loyalty.OrderKind, orderID string, guestID loyalty.GuestID, bookingID loyalty.BookingID) (bool, error) {
	table, err := orderTable(kind)
	if err != nil {
		return false, wrapStoreError(errorSubjectOrder, errorCodeLink, err)
	}
	tag, err := store.db.Exec(ctx, fmt.Sprintf(sqlLinkOrder, table), orderID, guestID.String(), bookingID.String())
	if err != nil {
		return false, wrapStoreError(errorSubjectOrder, errorCodeLink, loyalty.PersistenceFailure(err))
	}
	return tag.RowsAffected() > 0, nil
}

func (store queries) UpgradeSession(ctx context.Context, token loyalty.SessionToken, contact loyalty.SessionContact) error {
	tag, err := store.db.Exec(ctx, sqlUpgradeSession,
		token.String(), sessionTypeRegistered, contact.GuestID.String(), contact.Email.String(), contact.Name, contact.Phone,
	)
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeUpdate, loyalty.PersistenceFailure(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeLookup, loyalty.ErrSessionNotFound)
	}
	return nil
}

// orderQuerySQL renders a loyalty.OrderQuery against one order table.
func orderQuerySQL(query loyalty.OrderQuery) (string, []any, error) {
	table, err := orderTable(query.Kind)
	if err != nil {
		return "", nil, err
	}
	var (
		conditions []string
		arguments  []any
	)
	bind := func(condition string, value any) {
		arguments = append(arguments, value)
		conditions = append(conditions, strings.ReplaceAll(condition, "?", fmt.Sprintf("$%d", len(arguments))))
	}
	if !query.GuestID.IsZero() {
		bind("guest_id = ?", query.GuestID.String())
	}
	if !query.BookingID.IsZero() {
		bind("booking_id = ?", query.BookingID.String())
	}
	if !query.RoomNumber.IsZero() {
		bind("room_number = ?", query.RoomNumber.String())
	}
	if query.UnlinkedOnly {
		conditions = append(conditions, "guest_id is null")
	}
	if !query.CreatedFrom.IsZero() {
		bind("created_at >= ?", query.CreatedFrom.UTC())
	}
	if query.ExcludeCancelled {
		bind("status <> ?", loyalty.OrderStatusCancelled.String())
	}
	if query.HostID != "" {
		bind("(room_number in (select room_number from rooms where host_id = ?)"+
			" or booking_id in (select b.booking_id from bookings b join rooms r on r.room_id = b.room_id where r.host_id = ?))", query.HostID)
	}

	var builder strings.Builder
	builder.WriteString("select ")
	builder.WriteString(orderColumns)
	builder.WriteString(" from ")
	builder.WriteString(table)
	if len(conditions) > 0 {
		builder.WriteString(" where ")
		builder.WriteString(strings.Join(conditions, " and "))
	}
	builder.WriteString(" order by created_at desc, order_id desc")
	return builder.String(), arguments, nil
}

func orderTable(kind loyalty.OrderKind) (string, error) {
	switch kind {
	case loyalty.OrderKindGoods:
		return "goods_orders", nil
	case loyalty.OrderKindService:
		return "service_orders", nil
	default:
		_, err := loyalty.ParseOrderKind(kind.String())
		return "", err
	}
}

func wrapStoreError(subject string, code string, err error) error {
	return loyalty.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}

type guestRow struct {
	guestID         string
	email           string
	name            string
	phone           string
	loyaltyPoints   int64
	totalSpentCents int64
	guestType       string
	consentGiven    bool
	consentAt       *time.Time
	createdAt       time.Time
}

func (row guestRow) toGuest() (loyalty.Guest, error) {
	guestID, err := loyalty.NewGuestID(row.guestID)
	if err != nil {
		return loyalty.Guest{}, err
	}
	email, err := loyalty.NewEmail(row.email)
	if err != nil {
		return loyalty.Guest{}, err
	}
	guestType, err := loyalty.ParseGuestType(row.guestType)
	if err != nil {
		return loyalty.Guest{}, err
	}
	return loyalty.Guest{
		ID:            guestID,
		Email:         email,
		Name:          row.name,
		Phone:         row.phone,
		LoyaltyPoints: loyalty.Points(row.loyaltyPoints),
		TotalSpent:    loyalty.AmountCents(row.totalSpentCents),
		Type:          guestType,
		ConsentGiven:  row.consentGiven,
		ConsentAt:     timeOrZero(row.consentAt),
		CreatedAt:     row.createdAt.UTC(),
	}, nil
}

func scanTransaction(row pgx.Row) (loyalty.Transaction, error) {
	var (
		transactionID string
		guestIDValue  string
		sequence      int64
		amount        int64
		balanceAfter  int64
		note          string
		createdBy     string
		createdAt     time.Time
	)
	if err := row.Scan(&transactionID, &guestIDValue, &sequence, &amount, &balanceAfter, &note, &createdBy, &createdAt); err != nil {
		return loyalty.Transaction{}, err
	}
	guestID, err := loyalty.NewGuestID(guestIDValue)
	if err != nil {
		return loyalty.Transaction{}, err
	}
	actor, err := loyalty.NewActor(createdBy)
	if err != nil {
		return loyalty.Transaction{}, err
	}
	return loyalty.Transaction{
		ID:           transactionID,
		GuestID:      guestID,
		Sequence:     sequence,
		Amount:       loyalty.Points(amount),
		BalanceAfter: loyalty.Points(balanceAfter),
		Note:         note,
		CreatedBy:    actor,
		CreatedAt:    createdAt.UTC(),
	}, nil
}

type bookingRow struct {
	bookingID  string
	roomID     string
	guestID    *string
	isDefault  bool
	checkIn    *time.Time
	createdAt  time.Time
	roomNumber string
}

func (row bookingRow) toBooking() (loyalty.Booking, error) {
	bookingID, err := loyalty.NewBookingID(row.bookingID)
	if err != nil {
		return loyalty.Booking{}, err
	}
	roomID, err := loyalty.NewRoomID(row.roomID)
	if err != nil {
		return loyalty.Booking{}, err
	}
	booking := loyalty.Booking{
		ID:        bookingID,
		RoomID:    roomID,
		IsDefault: row.isDefault,
		CheckIn:   timeOrZero(row.checkIn),
		CreatedAt: row.createdAt.UTC(),
	}
	if row.guestID != nil {
		if booking.GuestID, err = loyalty.NewGuestID(*row.guestID); err != nil {
			return loyalty.Booking{}, err
		}
	}
	if row.roomNumber != "" {
		if booking.RoomNumber, err = loyalty.NewRoomNumber(row.roomNumber); err != nil {
			return loyalty.Booking{}, err
		}
	}
	return booking, nil
}

type orderRow struct {
	orderID          string
	guestID          *string
	bookingID        *string
	roomNumber       *string
	totalAmountCents int64
	status           string
	items            []byte
	createdAt        time.Time
}

func (row orderRow) toOrder(kind loyalty.OrderKind) (loyalty.Order, error) {
	status, err := loyalty.ParseOrderStatus(row.status)
	if err != nil {
		return loyalty.Order{}, err
	}
	order := loyalty.Order{
		ID:          row.orderID,
		Kind:        kind,
		TotalAmount: loyalty.AmountCents(row.totalAmountCents),
		Status:      status,
		CreatedAt:   row.createdAt.UTC(),
	}
	if row.guestID != nil {
		if order.GuestID, err = loyalty.NewGuestID(*row.guestID); err != nil {
			return loyalty.Order{}, err
		}
	}
	if row.bookingID != nil {
		if order.BookingID, err = loyalty.NewBookingID(*row.bookingID); err != nil {
			return loyalty.Order{}, err
		}
	}
	if row.roomNumber != nil {
		if order.RoomNumber, err = loyalty.NewRoomNumber(*row.roomNumber); err != nil {
			return loyalty.Order{}, err
		}
	}
	if len(row.items) > 0 {
		if err := json.Unmarshal(row.items, &order.Items); err != nil {
			return loyalty.Order{}, err
		}
	}
	return order, nil
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
