package loyalty

import (
	"context"
	"fmt"
	"testing"
	"time"
)

var stubEpoch = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

type stubSession struct {
	sessionType string
	contact     SessionContact
}

type stubStore struct {
	guests       map[GuestID]Guest
	transactions []Transaction
	bookings     []Booking
	orders       []Order
	sessions     map[SessionToken]stubSession
	rooms        map[RoomID]RoomNumber
	nextID       int
	commits      int
	rollbacks    int

	getGuestError          error
	lockGuestError         error
	findGuestError         error
	createGuestError       error
	updateProfileError     error
	updateBalanceError     error
	addTotalSpentError     error
	lastTransactionError   error
	insertTransactionError error
	listTransactionsError  error
	findBookingError       error
	createBookingError     error
	listOrdersError        error
	linkOrderError         error
	upgradeSessionError    error
}

type stubSnapshot struct {
	guests       map[GuestID]Guest
	transactions []Transaction
	bookings     []Booking
	orders       []Order
	sessions     map[SessionToken]stubSession
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		guests:   make(map[GuestID]Guest),
		sessions: make(map[SessionToken]stubSession),
		rooms:    make(map[RoomID]RoomNumber),
	}
}

func (store *stubStore) snapshot() stubSnapshot {
	guests := make(map[GuestID]Guest, len(store.guests))
	for key, value := range store.guests {
		guests[key] = value
	}
	sessions := make(map[SessionToken]stubSession, len(store.sessions))
	for key, value := range store.sessions {
		sessions[key] = value
	}
	orders := make([]Order, len(store.orders))
	copy(orders, store.orders)
	return stubSnapshot{
		guests:       guests,
		transactions: append([]Transaction(nil), store.transactions...),
		bookings:     append([]Booking(nil), store.bookings...),
		orders:       orders,
		sessions:     sessions,
	}
}

func (store *stubStore) restore(snapshot stubSnapshot) {
	store.guests = snapshot.guests
	store.transactions = snapshot.transactions
	store.bookings = snapshot.bookings
	store.orders = snapshot.orders
	store.sessions = snapshot.sessions
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	snapshot := store.snapshot()
	if err := fn(ctx, store); err != nil {
		store.restore(snapshot)
		store.rollbacks++
		return err
	}
	store.commits++
	return nil
}

func (store *stubStore) newID(prefix string) string {
	store.nextID++
	return fmt.Sprintf("%s-%d", prefix, store.nextID)
}

func (store *stubStore) GetGuest(ctx context.Context, guestID GuestID) (Guest, error) {
	if store.getGuestError != nil {
		return Guest{}, store.getGuestError
	}
	guest, ok := store.guests[guestID]
	if !ok {
		return Guest{}, ErrGuestNotFound
	}
	return guest, nil
}

func (store *stubStore) LockGuest(ctx context.Context, guestID GuestID) (Guest, error) {
	if store.lockGuestError != nil {
		return Guest{}, store.lockGuestError
	}
	guest, ok := store.guests[guestID]
	if !ok {
		return Guest{}, ErrGuestNotFound
	}
	return guest, nil
}

func (store *stubStore) FindGuestByEmail(ctx context.Context, email Email) (Guest, bool, error) {
	if store.findGuestError != nil {
		return Guest{}, false, store.findGuestError
	}
	for _, guest := range store.guests {
		if guest.Email == email {
			return guest, true, nil
		}
	}
	return Guest{}, false, nil
}

func (store *stubStore) CreateGuest(ctx context.Context, input GuestInput) (Guest, error) {
	if store.createGuestError != nil {
		return Guest{}, store.createGuestError
	}
	guest := Guest{
		ID:           GuestID{value: store.newID("guest")},
		Email:        input.Email,
		Name:         input.Profile.Name,
		Phone:        input.Profile.Phone,
		Type:         input.Type,
		ConsentGiven: input.Profile.ConsentGiven,
		ConsentAt:    input.Profile.ConsentAt,
		CreatedAt:    stubEpoch,
	}
	store.guests[guest.ID] = guest
	return guest, nil
}

func (store *stubStore) UpdateGuestProfile(ctx context.Context, guestID GuestID, profile GuestProfile) error {
	if store.updateProfileError != nil {
		return store.updateProfileError
	}
	guest, ok := store.guests[guestID]
	if !ok {
		return ErrGuestNotFound
	}
	guest.Name = profile.Name
	guest.Phone = profile.Phone
	guest.ConsentGiven = profile.ConsentGiven
	guest.ConsentAt = profile.ConsentAt
	store.guests[guestID] = guest
	return nil
}

func (store *stubStore) UpdateGuestBalance(ctx context.Context, guestID GuestID, balance Points) error {
	if store.updateBalanceError != nil {
		return store.updateBalanceError
	}
	guest, ok := store.guests[guestID]
	if !ok {
		return ErrGuestNotFound
	}
	guest.LoyaltyPoints = balance
	store.guests[guestID] = guest
	return nil
}

func (store *stubStore) AddGuestTotalSpent(ctx context.Context, guestID GuestID, amount AmountCents) error {
	if store.addTotalSpentError != nil {
		return store.addTotalSpentError
	}
	guest, ok := store.guests[guestID]
	if !ok {
		return ErrGuestNotFound
	}
	guest.TotalSpent += amount
	store.guests[guestID] = guest
	return nil
}

func (store *stubStore) LastTransaction(ctx context.Context, guestID GuestID) (Transaction, bool, error) {
	if store.lastTransactionError != nil {
		return Transaction{}, false, store.lastTransactionError
	}
	for index := len(store.transactions) - 1; index >= 0; index-- {
		if store.transactions[index].GuestID == guestID {
			return store.transactions[index], true, nil
		}
	}
	return Transaction{}, false, nil
}

func (store *stubStore) InsertTransaction(ctx context.Context, input TransactionInput) (Transaction, error) {
	if store.insertTransactionError != nil {
		return Transaction{}, store.insertTransactionError
	}
	transaction := Transaction{
		ID:           store.newID("txn"),
		GuestID:      input.GuestID,
		Sequence:     input.Sequence,
		Amount:       input.Amount,
		BalanceAfter: input.BalanceAfter,
		Note:         input.Note,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    input.CreatedAt,
	}
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *stubStore) ListTransactions(ctx context.Context, guestID GuestID) ([]Transaction, error) {
	if store.listTransactionsError != nil {
		return nil, store.listTransactionsError
	}
	transactions := make([]Transaction, 0)
	for index := len(store.transactions) - 1; index >= 0; index-- {
		if store.transactions[index].GuestID == guestID {
			transactions = append(transactions, store.transactions[index])
		}
	}
	return transactions, nil
}

func (store *stubStore) FindDefaultBooking(ctx context.Context, roomID RoomID) (Booking, error) {
	if store.findBookingError != nil {
		return Booking{}, store.findBookingError
	}
	for index := len(store.bookings) - 1; index >= 0; index-- {
		booking := store.bookings[index]
		if booking.IsDefault && booking.RoomID == roomID {
			return booking, nil
		}
	}
	return Booking{}, ErrBookingNotFound
}

func (store *stubStore) CreateBooking(ctx context.Context, input BookingInput) (Booking, error) {
	if store.createBookingError != nil {
		return Booking{}, store.createBookingError
	}
	booking := Booking{
		ID:         BookingID{value: store.newID("booking")},
		RoomID:     input.RoomID,
		RoomNumber: store.rooms[input.RoomID],
		GuestID:    input.GuestID,
		IsDefault:  input.IsDefault,
		CheckIn:    input.CheckIn,
		CreatedAt:  stubEpoch,
	}
	store.bookings = append(store.bookings, booking)
	return booking, nil
}

func (store *stubStore) ListOrders(ctx context.Context, query OrderQuery) ([]Order, error) {
	if store.listOrdersError != nil {
		return nil, store.listOrdersError
	}
	matches := make([]Order, 0)
	for _, order := range store.orders {
		if order.Kind != query.Kind {
			continue
		}
		if !query.GuestID.IsZero() && order.GuestID != query.GuestID {
			continue
		}
		if !query.BookingID.IsZero() && order.BookingID != query.BookingID {
			continue
		}
		if !query.RoomNumber.IsZero() && order.RoomNumber != query.RoomNumber {
			continue
		}
		if query.UnlinkedOnly && order.IsLinked() {
			continue
		}
		if !query.CreatedFrom.IsZero() && order.CreatedAt.Before(query.CreatedFrom) {
			continue
		}
		if query.ExcludeCancelled && order.Status == OrderStatusCancelled {
			continue
		}
		matches = append(matches, order)
	}
	return matches, nil
}

func (store *stubStore) LinkOrder(ctx context.Context, kind OrderKind, orderID string, guestID GuestID, bookingID BookingID) (bool, error) {
	if store.linkOrderError != nil {
		return false, store.linkOrderError
	}
	for index, order := range store.orders {
		if order.Kind == kind && order.ID == orderID {
			if order.IsLinked() {
				return false, nil
			}
			store.orders[index].GuestID = guestID
			store.orders[index].BookingID = bookingID
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) UpgradeSession(ctx context.Context, token SessionToken, contact SessionContact) error {
	if store.upgradeSessionError != nil {
		return store.upgradeSessionError
	}
	if _, ok := store.sessions[token]; !ok {
		return ErrSessionNotFound
	}
	store.sessions[token] = stubSession{sessionType: "registered", contact: contact}
	return nil
}

func (store *stubStore) seedGuest(test *testing.T, email string, balance Points) Guest {
	test.Helper()
	guest, err := store.CreateGuest(context.Background(), GuestInput{
		Email:   mustEmail(test, email),
		Profile: GuestProfile{Name: "Seeded Guest", ConsentGiven: true},
		Type:    GuestTypePreRegistered,
	})
	if err != nil {
		test.Fatalf("seed guest: %v", err)
	}
	if balance != 0 {
		transaction, err := store.InsertTransaction(context.Background(), TransactionInput{
			GuestID:      guest.ID,
			Sequence:     1,
			Amount:       balance,
			BalanceAfter: balance,
			Note:         "seed",
			CreatedBy:    ActorSystem,
			CreatedAt:    stubEpoch.Add(-time.Hour),
		})
		if err != nil {
			test.Fatalf("seed transaction: %v", err)
		}
		guest.LoyaltyPoints = transaction.BalanceAfter
		store.guests[guest.ID] = guest
	}
	return guest
}

func (store *stubStore) seedRoom(test *testing.T, roomID string, roomNumber string) Booking {
	test.Helper()
	room := mustRoomID(test, roomID)
	store.rooms[room] = mustRoomNumber(test, roomNumber)
	booking, err := store.CreateBooking(context.Background(), BookingInput{RoomID: room, IsDefault: true})
	if err != nil {
		test.Fatalf("seed booking: %v", err)
	}
	return booking
}

func (store *stubStore) seedOrder(test *testing.T, kind OrderKind, roomNumber string, amount AmountCents, createdAt time.Time) Order {
	test.Helper()
	order := Order{
		ID:          store.newID(kind.String()),
		Kind:        kind,
		TotalAmount: amount,
		Status:      OrderStatusCompleted,
		CreatedAt:   createdAt,
	}
	if roomNumber != "" {
		order.RoomNumber = mustRoomNumber(test, roomNumber)
	}
	store.orders = append(store.orders, order)
	return order
}

func (store *stubStore) mustGuest(test *testing.T, guestID GuestID) Guest {
	test.Helper()
	guest, ok := store.guests[guestID]
	if !ok {
		test.Fatalf("guest %s not found", guestID.String())
	}
	return guest
}

func (store *stubStore) guestTransactions(guestID GuestID) []Transaction {
	transactions := make([]Transaction, 0)
	for _, transaction := range store.transactions {
		if transaction.GuestID == guestID {
			transactions = append(transactions, transaction)
		}
	}
	return transactions
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() time.Time { return stubEpoch }, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustNewRegistrar(test *testing.T, service *Service, options ...RegistrarOption) *Registrar {
	test.Helper()
	registrar, err := NewRegistrar(service, options...)
	if err != nil {
		test.Fatalf("new registrar: %v", err)
	}
	return registrar
}

func mustGuestID(test *testing.T, raw string) GuestID {
	test.Helper()
	value, err := NewGuestID(raw)
	if err != nil {
		test.Fatalf("guest id: %v", err)
	}
	return value
}

func mustRoomID(test *testing.T, raw string) RoomID {
	test.Helper()
	value, err := NewRoomID(raw)
	if err != nil {
		test.Fatalf("room id: %v", err)
	}
	return value
}

func mustRoomNumber(test *testing.T, raw string) RoomNumber {
	test.Helper()
	value, err := NewRoomNumber(raw)
	if err != nil {
		test.Fatalf("room number: %v", err)
	}
	return value
}

func mustEmail(test *testing.T, raw string) Email {
	test.Helper()
	value, err := NewEmail(raw)
	if err != nil {
		test.Fatalf("email: %v", err)
	}
	return value
}

func mustActor(test *testing.T, raw string) Actor {
	test.Helper()
	value, err := NewActor(raw)
	if err != nil {
		test.Fatalf("actor: %v", err)
	}
	return value
}
