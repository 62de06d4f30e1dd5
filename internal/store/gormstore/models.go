package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Guest represents the guests table.
type Guest struct {
	GuestID         string     `gorm:"size:36;primaryKey"`
	Email           string     `gorm:"size:320;not null;uniqueIndex:uniq_guests_email"`
	Name            string     `gorm:"size:255;not null"`
	Phone           string     `gorm:"size:64;not null"`
	LoyaltyPoints   int64      `gorm:"not null"`
	TotalSpentCents int64      `gorm:"not null"`
	GuestType       string     `gorm:"size:32;not null"`
	ConsentGiven    bool       `gorm:"not null"`
	ConsentAt       *time.Time `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (Guest) TableName() string { return "guests" }

func (guest *Guest) BeforeCreate(tx *gorm.DB) error {
	if guest.GuestID == "" {
		guest.GuestID = uuid.NewString()
	}
	return nil
}

// BonusTransaction mirrors the append-only bonus_transactions table.
type BonusTransaction struct {
	TransactionID string    `gorm:"size:36;primaryKey"`
	GuestID       string    `gorm:"size:36;not null;uniqueIndex:uniq_bonus_guest_sequence,priority:1"`
	Sequence      int64     `gorm:"not null;uniqueIndex:uniq_bonus_guest_sequence,priority:2"`
	Amount        int64     `gorm:"not null"`
	BalanceAfter  int64     `gorm:"not null"`
	Note          string    `gorm:"size:512;not null"`
	CreatedBy     string    `gorm:"size:128;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (BonusTransaction) TableName() string { return "bonus_transactions" }

func (transaction *BonusTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.TransactionID == "" {
		transaction.TransactionID = uuid.NewString()
	}
	return nil
}

// Room mirrors the rooms table. HostID carries the revenue scope.
type Room struct {
	RoomID     string    `gorm:"size:36;primaryKey"`
	RoomNumber string    `gorm:"size:32;not null;uniqueIndex:uniq_rooms_number"`
	HostID     string    `gorm:"size:64;not null;index:idx_rooms_host"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Room) TableName() string { return "rooms" }

func (room *Room) BeforeCreate(tx *gorm.DB) error {
	if room.RoomID == "" {
		room.RoomID = uuid.NewString()
	}
	return nil
}

// Booking mirrors the bookings table. Default bookings carry no guest.
type Booking struct {
	BookingID string     `gorm:"size:36;primaryKey"`
	RoomID    string     `gorm:"size:36;not null;index:idx_bookings_room_default,priority:1"`
	GuestID   *string    `gorm:"size:36;index:idx_bookings_guest"`
	IsDefault bool       `gorm:"not null;index:idx_bookings_room_default,priority:2"`
	CheckIn   *time.Time `gorm:""`
	CreatedAt time.Time  `gorm:"not null"`
}

func (Booking) TableName() string { return "bookings" }

func (booking *Booking) BeforeCreate(tx *gorm.DB) error {
	if booking.BookingID == "" {
		booking.BookingID = uuid.NewString()
	}
	return nil
}

// GoodsOrder mirrors the goods_orders table.
type GoodsOrder struct {
	OrderID          string         `gorm:"size:36;primaryKey"`
	GuestID          *string        `gorm:"size:36;index:idx_goods_orders_guest"`
	BookingID        *string        `gorm:"size:36;index:idx_goods_orders_booking"`
	RoomNumber       *string        `gorm:"size:32;index:idx_goods_orders_room_created,priority:1"`
	TotalAmountCents int64          `gorm:"not null"`
	Status           string         `gorm:"size:32;not null"`
	Items            datatypes.JSON `gorm:"not null"`
	CreatedAt        time.Time      `gorm:"not null;index:idx_goods_orders_room_created,priority:2"`
}

func (GoodsOrder) TableName() string { return "goods_orders" }

func (order *GoodsOrder) BeforeCreate(tx *gorm.DB) error {
	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	return nil
}

// ServiceOrder mirrors the service_orders table.
type ServiceOrder struct {
	OrderID          string         `gorm:"size:36;primaryKey"`
	GuestID          *string        `gorm:"size:36;index:idx_service_orders_guest"`
	BookingID        *string        `gorm:"size:36;index:idx_service_orders_booking"`
	RoomNumber       *string        `gorm:"size:32;index:idx_service_orders_room_created,priority:1"`
	TotalAmountCents int64          `gorm:"not null"`
	Status           string         `gorm:"size:32;not null"`
	Items            datatypes.JSON `gorm:"not null"`
	CreatedAt        time.Time      `gorm:"not null;index:idx_service_orders_room_created,priority:2"`
}

func (ServiceOrder) TableName() string { return "service_orders" }

func (order *ServiceOrder) BeforeCreate(tx *gorm.DB) error {
	if order.OrderID == "" {
		order.OrderID = uuid.NewString()
	}
	return nil
}

// GuestSession mirrors the guest_sessions table owned by the portal's session layer.
type GuestSession struct {
	Token       string    `gorm:"size:128;primaryKey"`
	SessionType string    `gorm:"size:32;not null"`
	RoomID      *string   `gorm:"size:36"`
	GuestID     *string   `gorm:"size:36;index:idx_guest_sessions_guest"`
	Email       string    `gorm:"size:320;not null"`
	Name        string    `gorm:"size:255;not null"`
	Phone       string    `gorm:"size:64;not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (GuestSession) TableName() string { return "guest_sessions" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Guest{},
		&BonusTransaction{},
		&Room{},
		&Booking{},
		&GoodsOrder{},
		&ServiceOrder{},
		&GuestSession{},
	}
}

// orderRow scans either order table.
type orderRow struct {
	OrderID          string
	GuestID          *string
	BookingID        *string
	RoomNumber       *string
	TotalAmountCents int64
	Status           string
	Items            datatypes.JSON
	CreatedAt        time.Time
}
