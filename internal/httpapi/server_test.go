package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/guestledger/internal/revenueexport"
	"github.com/MarkoPoloResearchLab/guestledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/loyalty"
	"github.com/MarkoPoloResearchLab/guestledger/pkg/revenue"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const (
	testHostID        = "host-alpha"
	testRoomNumber    = "101"
	testGuestEmail    = "walkin@example.com"
	testAllowedOrigin = "http://portal.example"
)

type testServer struct {
	router  *gin.Engine
	store   *gormstore.Store
	booking loyalty.Booking
}

func newTestServer(test *testing.T, options Options) testServer {
	test.Helper()
	database, err := gorm.Open(sqlite.Open(test.TempDir()+"/guestledger.db"), &gorm.Config{})
	if err != nil {
		test.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := gormstore.Migrate(context.Background(), database); err != nil {
		test.Fatalf("automigrate failed: %v", err)
	}
	store := gormstore.New(database)

	roomNumber, err := loyalty.NewRoomNumber(testRoomNumber)
	if err != nil {
		test.Fatalf("room number: %v", err)
	}
	booking, err := store.CreateRoom(context.Background(), gormstore.RoomInput{RoomNumber: roomNumber, HostID: testHostID})
	if err != nil {
		test.Fatalf("create room: %v", err)
	}

	clock := func() time.Time { return time.Now().UTC() }
	ledger, err := loyalty.NewService(store, clock)
	if err != nil {
		test.Fatalf("service: %v", err)
	}
	registrar, err := loyalty.NewRegistrar(ledger)
	if err != nil {
		test.Fatalf("registrar: %v", err)
	}
	orders, err := loyalty.NewOrderAggregator(store)
	if err != nil {
		test.Fatalf("orders: %v", err)
	}
	revenueAggregator, err := revenue.NewAggregator(store, clock, time.UTC)
	if err != nil {
		test.Fatalf("revenue: %v", err)
	}
	if len(options.AllowedOrigins) == 0 {
		options.AllowedOrigins = []string{testAllowedOrigin}
	}
	router, err := NewRouter(Dependencies{
		Ledger:    ledger,
		Registrar: registrar,
		Orders:    orders,
		Revenue:   revenueAggregator,
	}, options)
	if err != nil {
		test.Fatalf("router: %v", err)
	}
	return testServer{router: router, store: store, booking: booking}
}

func (server testServer) placeOrder(test *testing.T, kind loyalty.OrderKind, amount loyalty.AmountCents, age time.Duration, items ...loyalty.LineItem) {
	test.Helper()
	_, err := server.store.PlaceOrder(context.Background(), kind, gormstore.OrderInput{
		RoomNumber:  server.booking.RoomNumber,
		TotalAmount: amount,
		Status:      loyalty.OrderStatusCompleted,
		Items:       items,
		CreatedAt:   time.Now().UTC().Add(-age),
	})
	if err != nil {
		test.Fatalf("place order: %v", err)
	}
}

func (server testServer) do(test *testing.T, method string, path string, body any) *httptest.ResponseRecorder {
	test.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			test.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	request.RemoteAddr = "192.0.2.10:4321"
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, request)
	return recorder
}

func decode[T any](test *testing.T, recorder *httptest.ResponseRecorder) T {
	test.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		test.Fatalf("decode %s: %v", recorder.Body.String(), err)
	}
	return payload
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (server testServer) register(test *testing.T) registrationResponse {
	test.Helper()
	recorder := server.do(test, http.MethodPost, "/api/registrations", registrationRequest{
		Email:         testGuestEmail,
		Name:          "Walk In",
		CurrentRoomID: server.booking.RoomID.String(),
		ConsentGiven:  true,
	})
	if recorder.Code != http.StatusOK {
		test.Fatalf("registration status %d: %s", recorder.Code, recorder.Body.String())
	}
	return decode[registrationResponse](test, recorder)
}

func TestRegistrationEndToEnd(test *testing.T) {
	server := newTestServer(test, Options{})
	server.placeOrder(test, loyalty.OrderKindGoods, 50000, 48*time.Hour, loyalty.LineItem{Name: "Wine", Quantity: 2, UnitPriceCents: 25000})
	server.placeOrder(test, loyalty.OrderKindService, 30000, time.Hour)

	registered := server.register(test)
	if !registered.Success || !registered.NewGuest {
		test.Fatalf("unexpected registration %+v", registered)
	}
	if registered.BonusesAwarded != 108 || registered.PastOrdersLinked != 2 || registered.Guest.LoyaltyPoints != 108 {
		test.Fatalf("unexpected bonuses %+v", registered)
	}
	if registered.Guest.GuestType != loyalty.GuestTypeWalkIn.String() || registered.Booking.ID == "" {
		test.Fatalf("unexpected guest or booking %+v", registered)
	}

	guestPath := "/api/guests/" + registered.Guest.ID
	balance := decode[balanceResponse](test, server.do(test, http.MethodGet, guestPath+"/balance", nil))
	if balance.Balance != 108 {
		test.Fatalf("expected balance 108, got %d", balance.Balance)
	}

	history := decode[historyResponse](test, server.do(test, http.MethodGet, guestPath+"/transactions", nil))
	if len(history.Transactions) != 1 || history.TotalEarned != 108 || history.CurrentBalance != 108 {
		test.Fatalf("unexpected history %+v", history)
	}

	verify := server.do(test, http.MethodGet, guestPath+"/ledger/verify", nil)
	verification := decode[verificationResponse](test, verify)
	if verify.Code != http.StatusOK || !verification.Valid || verification.ReplayedBalance != 108 {
		test.Fatalf("unexpected verification %d %+v", verify.Code, verification)
	}

	orders := decode[ordersResponse](test, server.do(test, http.MethodGet, "/api/orders?guest_id="+registered.Guest.ID+"&room_number="+testRoomNumber, nil))
	if len(orders.Orders) != 2 {
		test.Fatalf("expected 2 merged orders, got %+v", orders)
	}
	if orders.Orders[0].Kind != loyalty.OrderKindService.String() || orders.Orders[1].Items[0].Name != "Wine" {
		test.Fatalf("unexpected order listing %+v", orders.Orders)
	}

	again := server.register(test)
	if again.NewGuest || again.BonusesAwarded != 0 || again.PastOrdersLinked != 0 || again.Guest.LoyaltyPoints != 108 {
		test.Fatalf("expected idempotent re-registration, got %+v", again)
	}
}

func TestRegistrationErrors(test *testing.T) {
	server := newTestServer(test, Options{})
	testCases := []struct {
		name         string
		body         any
		expectedCode int
		errorCode    string
	}{
		{name: "malformed", body: "not an object", expectedCode: http.StatusBadRequest, errorCode: errorCodeInvalidPayload},
		{name: "consent", body: registrationRequest{Email: testGuestEmail, Name: "Walk In", CurrentRoomID: server.booking.RoomID.String()}, expectedCode: http.StatusBadRequest, errorCode: errorCodeValidation},
		{name: "email", body: registrationRequest{Email: "nope", Name: "Walk In", CurrentRoomID: server.booking.RoomID.String(), ConsentGiven: true}, expectedCode: http.StatusBadRequest, errorCode: errorCodeValidation},
		{name: "unknown room", body: registrationRequest{Email: testGuestEmail, Name: "Walk In", CurrentRoomID: "missing-room", ConsentGiven: true}, expectedCode: http.StatusUnprocessableEntity, errorCode: errorCodeNoDefaultBooking},
		{name: "unknown session", body: registrationRequest{Email: testGuestEmail, Name: "Walk In", CurrentRoomID: server.booking.RoomID.String(), SessionToken: "ghost", ConsentGiven: true}, expectedCode: http.StatusNotFound, errorCode: errorCodeNotFound},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			recorder := server.do(test, http.MethodPost, "/api/registrations", testCase.body)
			if recorder.Code != testCase.expectedCode {
				test.Fatalf("expected %d, got %d: %s", testCase.expectedCode, recorder.Code, recorder.Body.String())
			}
			body := decode[errorBody](test, recorder)
			if body.Success || body.Error.Code != testCase.errorCode {
				test.Fatalf("unexpected error body %+v", body)
			}
		})
	}

	history := server.do(test, http.MethodGet, "/api/orders?room_number="+testRoomNumber, nil)
	if history.Code != http.StatusOK {
		test.Fatalf("orders status %d", history.Code)
	}
}

func TestAdjustments(test *testing.T) {
	server := newTestServer(test, Options{})
	registered := server.register(test)
	path := "/api/guests/" + registered.Guest.ID + "/adjustments"

	deduction := server.do(test, http.MethodPost, path, adjustmentRequest{Amount: 40, Note: "spa credit", CreatedBy: "front-desk", IsDeduction: true})
	if deduction.Code != http.StatusOK {
		test.Fatalf("deduction status %d: %s", deduction.Code, deduction.Body.String())
	}
	applied := decode[adjustmentResponse](test, deduction)
	if applied.Balance != 60 || applied.Transaction.Amount != -40 || applied.Transaction.Sequence != 2 || applied.Transaction.CreatedBy != "front-desk" {
		test.Fatalf("unexpected adjustment %+v", applied)
	}

	overdraft := server.do(test, http.MethodPost, path, adjustmentRequest{Amount: 500, CreatedBy: "front-desk", IsDeduction: true})
	if overdraft.Code != http.StatusConflict || decode[errorBody](test, overdraft).Error.Code != errorCodeInsufficientBalance {
		test.Fatalf("expected insufficient balance, got %d: %s", overdraft.Code, overdraft.Body.String())
	}

	invalid := server.do(test, http.MethodPost, path, adjustmentRequest{Amount: 0, CreatedBy: "front-desk"})
	if invalid.Code != http.StatusBadRequest {
		test.Fatalf("expected bad request, got %d", invalid.Code)
	}
	missingActor := server.do(test, http.MethodPost, path, adjustmentRequest{Amount: 5})
	if missingActor.Code != http.StatusBadRequest {
		test.Fatalf("expected bad request for missing actor, got %d", missingActor.Code)
	}

	missing := server.do(test, http.MethodPost, "/api/guests/unknown-guest/adjustments", adjustmentRequest{Amount: 5, CreatedBy: "front-desk"})
	if missing.Code != http.StatusNotFound || decode[errorBody](test, missing).Error.Code != errorCodeNotFound {
		test.Fatalf("expected not found, got %d: %s", missing.Code, missing.Body.String())
	}

	balance := decode[balanceResponse](test, server.do(test, http.MethodGet, "/api/guests/"+registered.Guest.ID+"/balance", nil))
	if balance.Balance != 60 {
		test.Fatalf("expected balance 60 after rejected writes, got %d", balance.Balance)
	}
}

func TestRegistrationRateLimit(test *testing.T) {
	server := newTestServer(test, Options{RegistrationRPS: 0.001, RegistrationBurst: 1})
	server.register(test)

	limited := server.do(test, http.MethodPost, "/api/registrations", registrationRequest{
		Email:         testGuestEmail,
		Name:          "Walk In",
		CurrentRoomID: server.booking.RoomID.String(),
		ConsentGiven:  true,
	})
	if limited.Code != http.StatusTooManyRequests || decode[errorBody](test, limited).Error.Code != errorCodeRateLimited {
		test.Fatalf("expected rate limit, got %d: %s", limited.Code, limited.Body.String())
	}
}

func TestRevenueEndpoints(test *testing.T) {
	server := newTestServer(test, Options{})
	server.placeOrder(test, loyalty.OrderKindService, 30000, 0, loyalty.LineItem{Name: "Spa", Quantity: 1, UnitPriceCents: 30000})

	recorder := server.do(test, http.MethodGet, "/api/revenue?host_id="+testHostID, nil)
	if recorder.Code != http.StatusOK {
		test.Fatalf("revenue status %d: %s", recorder.Code, recorder.Body.String())
	}
	report := decode[revenue.Report](test, recorder)
	if report.Windows.Today.Service != 30000 || report.Windows.Last30Days.Total != 30000 {
		test.Fatalf("unexpected windows %+v", report.Windows)
	}
	if len(report.TopServices) != 1 || report.TopServices[0].Name != "Spa" || len(report.DailyTrend) != 14 {
		test.Fatalf("unexpected report %+v", report)
	}

	other := decode[revenue.Report](test, server.do(test, http.MethodGet, "/api/revenue?host_id=host-beta", nil))
	if other.Windows.Last30Days.Total != 0 {
		test.Fatalf("expected empty report for other host, got %+v", other.Windows)
	}

	export := server.do(test, http.MethodGet, "/api/revenue/export?host_id="+testHostID, nil)
	if export.Code != http.StatusOK || export.Header().Get("Content-Type") != revenueexport.ContentType {
		test.Fatalf("unexpected export response %d %q", export.Code, export.Header().Get("Content-Type"))
	}
	if !strings.Contains(export.Header().Get("Content-Disposition"), "revenue_host_host-alpha_") {
		test.Fatalf("unexpected disposition %q", export.Header().Get("Content-Disposition"))
	}
	if export.Body.Len() == 0 {
		test.Fatalf("expected workbook bytes")
	}
}

func TestOperationalEndpoints(test *testing.T) {
	server := newTestServer(test, Options{})

	health := server.do(test, http.MethodGet, "/healthz", nil)
	if health.Code != http.StatusOK || !strings.Contains(health.Body.String(), "ok") {
		test.Fatalf("unexpected health %d %s", health.Code, health.Body.String())
	}
	metricsResponse := server.do(test, http.MethodGet, "/metrics", nil)
	if metricsResponse.Code != http.StatusOK {
		test.Fatalf("unexpected metrics status %d", metricsResponse.Code)
	}

	request := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	request.Header.Set("Origin", testAllowedOrigin)
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	recorder := httptest.NewRecorder()
	server.router.ServeHTTP(recorder, request)
	if recorder.Header().Get("Access-Control-Allow-Origin") != testAllowedOrigin {
		test.Fatalf("expected CORS header, got %v", recorder.Header())
	}
}

func TestNewRouterRequiresServices(test *testing.T) {
	if _, err := NewRouter(Dependencies{}, Options{}); err == nil {
		test.Fatalf("expected config error")
	}
}

func TestStatusForError(test *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "validation", err: loyalty.ErrInvalidEmail, status: http.StatusBadRequest, code: errorCodeValidation},
		{name: "not found", err: loyalty.ErrGuestNotFound, status: http.StatusNotFound, code: errorCodeNotFound},
		{name: "no default", err: loyalty.ErrNoDefaultBooking, status: http.StatusUnprocessableEntity, code: errorCodeNoDefaultBooking},
		{name: "balance", err: loyalty.ErrInsufficientBalance, status: http.StatusConflict, code: errorCodeInsufficientBalance},
		{name: "conflict", err: loyalty.ConflictFailure(context.Canceled), status: http.StatusConflict, code: errorCodeConflict},
		{name: "corrupt", err: loyalty.ErrLedgerCorrupt, status: http.StatusConflict, code: errorCodeLedgerCorrupt},
		{name: "timeout", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout, code: errorCodeTimeout},
		{name: "persistence", err: loyalty.PersistenceFailure(context.Canceled), status: http.StatusInternalServerError, code: errorCodeInternal},
	}
	for _, testCase := range testCases {
		test.Run(testCase.name, func(test *testing.T) {
			status, code := statusForError(testCase.err)
			if status != testCase.status || code != testCase.code {
				test.Fatalf("expected %d/%s, got %d/%s", testCase.status, testCase.code, status, code)
			}
		})
	}
}
