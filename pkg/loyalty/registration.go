package loyalty

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RegistrationPolicy controls the bonuses granted at walk-in registration.
type RegistrationPolicy struct {
	WelcomeBonus            Points
	PurchaseRateBasisPoints int64
	LookbackWindow          time.Duration
}

// DefaultRegistrationPolicy grants 100 welcome points, one point per 100
// currency units spent, and looks back seven days for anonymous orders.
func DefaultRegistrationPolicy() RegistrationPolicy {
	return RegistrationPolicy{
		WelcomeBonus:            defaultWelcomeBonusPoints,
		PurchaseRateBasisPoints: defaultPurchaseRateBasisPoints,
		LookbackWindow:          defaultLookbackWindow,
	}
}

// PurchaseBonus converts a spent amount into points, rounding down.
func (policy RegistrationPolicy) PurchaseBonus(spent AmountCents) Points {
	if spent <= 0 || policy.PurchaseRateBasisPoints <= 0 {
		return 0
	}
	return Points(spent.Int64() * policy.PurchaseRateBasisPoints / basisPointsDenominator / centsPerUnit)
}

// Bonus returns the total award for a registration.
func (policy RegistrationPolicy) Bonus(spent AmountCents, newGuest bool) Points {
	bonus := policy.PurchaseBonus(spent)
	if newGuest {
		bonus += policy.WelcomeBonus
	}
	return bonus
}

func (policy RegistrationPolicy) validate() error {
	if policy.WelcomeBonus < 0 {
		return fmt.Errorf("%w: welcome bonus must not be negative", ErrInvalidServiceConfig)
	}
	if policy.PurchaseRateBasisPoints < 0 {
		return fmt.Errorf("%w: purchase rate must not be negative", ErrInvalidServiceConfig)
	}
	if policy.LookbackWindow <= 0 {
		return fmt.Errorf("%w: lookback window must be positive", ErrInvalidServiceConfig)
	}
	return nil
}

// RegistrationRequest is the raw walk-in self-registration input.
type RegistrationRequest struct {
	Email        string
	Name         string
	Phone        string
	ConsentGiven bool
	RoomID       string
	SessionToken string
}

// RegistrationResult reports what a committed registration did.
type RegistrationResult struct {
	Guest            Guest
	Booking          Booking
	NewGuest         bool
	BonusesAwarded   Points
	PastOrdersLinked int
	LinkedSpent      AmountCents
}

type registration struct {
	email        Email
	name         string
	phone        string
	roomID       RoomID
	sessionToken SessionToken
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithRegistrationPolicy overrides the default bonus policy.
func WithRegistrationPolicy(policy RegistrationPolicy) RegistrarOption {
	return func(registrar *Registrar) {
		registrar.policy = policy
	}
}

// WithLocation sets the location used to derive the booking check-in date.
func WithLocation(location *time.Location) RegistrarOption {
	return func(registrar *Registrar) {
		if location != nil {
			registrar.location = location
		}
	}
}

// Registrar promotes anonymous room activity into a guest identity.
type Registrar struct {
	store    Store
	ledger   *Service
	policy   RegistrationPolicy
	location *time.Location
}

// NewRegistrar wires a Registrar over the ledger's store.
func NewRegistrar(ledger *Service, options ...RegistrarOption) (*Registrar, error) {
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	registrar := &Registrar{
		store:    ledger.store,
		ledger:   ledger,
		policy:   DefaultRegistrationPolicy(),
		location: time.UTC,
	}
	for _, option := range options {
		if option != nil {
			option(registrar)
		}
	}
	if err := registrar.policy.validate(); err != nil {
		return nil, err
	}
	return registrar, nil
}

// Register runs a walk-in self-registration as a single store transaction.
func (registrar *Registrar) Register(ctx context.Context, request RegistrationRequest) (RegistrationResult, error) {
	var result RegistrationResult
	validated, operationError := request.normalize()
	if operationError == nil {
		operationError = registrar.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			registered, err := registrar.register(ctx, transactionStore, validated)
			if err != nil {
				return err
			}
			result = registered
			return nil
		})
	}
	registrar.ledger.logOperation(ctx, OperationLog{
		Operation:    OperationRegister,
		GuestID:      result.Guest.ID,
		RoomID:       validated.roomID,
		Amount:       result.BonusesAwarded,
		Balance:      result.Guest.LoyaltyPoints,
		Actor:        ActorSystem,
		OrdersLinked: result.PastOrdersLinked,
		NewGuest:     result.NewGuest,
		Error:        operationError,
	})
	if operationError != nil {
		return RegistrationResult{}, operationError
	}
	return result, nil
}

func (registrar *Registrar) register(ctx context.Context, transactionStore Store, validated registration) (RegistrationResult, error) {
	now := registrar.ledger.nowFn()
	guest, newGuest, err := registrar.upsertGuest(ctx, transactionStore, validated, now)
	if err != nil {
		return RegistrationResult{}, err
	}
	defaultBooking, err := transactionStore.FindDefaultBooking(ctx, validated.roomID)
	if errors.Is(err, ErrBookingNotFound) {
		return RegistrationResult{}, WrapError(errorOperationRegistrar, errorSubjectBooking, errorCodeMissingDefault,
			fmt.Errorf("%w: room %s", ErrNoDefaultBooking, validated.roomID.String()))
	}
	if err != nil {
		return RegistrationResult{}, err
	}
	personalBooking, err := transactionStore.CreateBooking(ctx, BookingInput{
		RoomID:    defaultBooking.RoomID,
		GuestID:   guest.ID,
		IsDefault: false,
		CheckIn:   startOfDay(now, registrar.location),
	})
	if err != nil {
		return RegistrationResult{}, err
	}

	var (
		linked int
		spent  AmountCents
	)
	if !defaultBooking.RoomNumber.IsZero() {
		candidates, err := collectOrders(ctx, transactionStore, unlinkedRoomQueries(defaultBooking.RoomNumber, now.Add(-registrar.policy.LookbackWindow)))
		if err != nil {
			return RegistrationResult{}, err
		}
		for _, order := range candidates {
			updated, err := transactionStore.LinkOrder(ctx, order.Kind, order.ID, guest.ID, personalBooking.ID)
			if err != nil {
				return RegistrationResult{}, err
			}
			if updated {
				linked++
				spent += order.TotalAmount
			}
		}
	}

	bonus := registrar.policy.Bonus(spent, newGuest)
	if bonus > 0 {
		adjustment, err := registrar.ledger.applyAdjustment(ctx, transactionStore, AdjustmentRequest{
			GuestID: guest.ID,
			Amount:  bonus,
			Note:    registrationNote(newGuest, linked),
			Actor:   ActorSystem,
		})
		if err != nil {
			return RegistrationResult{}, err
		}
		guest.LoyaltyPoints = adjustment.Balance
	}
	if spent > 0 {
		if err := transactionStore.AddGuestTotalSpent(ctx, guest.ID, spent); err != nil {
			return RegistrationResult{}, err
		}
		guest.TotalSpent += spent
	}
	if !validated.sessionToken.IsZero() {
		if err := transactionStore.UpgradeSession(ctx, validated.sessionToken, SessionContact{
			GuestID: guest.ID,
			Email:   guest.Email,
			Name:    guest.Name,
			Phone:   guest.Phone,
		}); err != nil {
			return RegistrationResult{}, err
		}
	}
	return RegistrationResult{
		Guest:            guest,
		Booking:          personalBooking,
		NewGuest:         newGuest,
		BonusesAwarded:   bonus,
		PastOrdersLinked: linked,
		LinkedSpent:      spent,
	}, nil
}

func (registrar *Registrar) upsertGuest(ctx context.Context, transactionStore Store, validated registration, now time.Time) (Guest, bool, error) {
	profile := GuestProfile{
		Name:         validated.name,
		Phone:        validated.phone,
		ConsentGiven: true,
		ConsentAt:    now.UTC(),
	}
	existing, found, err := transactionStore.FindGuestByEmail(ctx, validated.email)
	if err != nil {
		return Guest{}, false, err
	}
	if found {
		if profile.Phone == "" {
			profile.Phone = existing.Phone
		}
		if err := transactionStore.UpdateGuestProfile(ctx, existing.ID, profile); err != nil {
			return Guest{}, false, err
		}
		existing.Name = profile.Name
		existing.Phone = profile.Phone
		existing.ConsentGiven = profile.ConsentGiven
		existing.ConsentAt = profile.ConsentAt
		return existing, false, nil
	}
	created, err := transactionStore.CreateGuest(ctx, GuestInput{
		Email:   validated.email,
		Profile: profile,
		Type:    GuestTypeWalkIn,
	})
	if err != nil {
		return Guest{}, false, err
	}
	return created, true, nil
}

func (request RegistrationRequest) normalize() (registration, error) {
	email, err := NewEmail(request.Email)
	if err != nil {
		return registration{}, err
	}
	if !request.ConsentGiven {
		return registration{}, ErrConsentRequired
	}
	name := strings.TrimSpace(request.Name)
	if name == "" {
		return registration{}, fmt.Errorf("%w: empty value", ErrInvalidName)
	}
	roomID, err := NewRoomID(request.RoomID)
	if err != nil {
		return registration{}, err
	}
	validated := registration{
		email:  email,
		name:   name,
		phone:  strings.TrimSpace(request.Phone),
		roomID: roomID,
	}
	if strings.TrimSpace(request.SessionToken) != "" {
		token, err := NewSessionToken(request.SessionToken)
		if err != nil {
			return registration{}, err
		}
		validated.sessionToken = token
	}
	return validated, nil
}

func registrationNote(newGuest bool, linked int) string {
	if newGuest {
		return fmt.Sprintf("%s: welcome, %d past orders", registrationBonusNote, linked)
	}
	return fmt.Sprintf("%s: %d past orders", registrationBonusNote, linked)
}

func startOfDay(moment time.Time, location *time.Location) time.Time {
	local := moment.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
}
