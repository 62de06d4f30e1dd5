package loyalty

import (
	"strings"
	"time"
)

// IdentityKeySet holds the keys a guest's orders can be reached through.
// Absent keys are zero values. Precedence, used for query order and merging,
// is guest id, then booking id, then room number.
type IdentityKeySet struct {
	guestID    GuestID
	bookingID  BookingID
	roomNumber RoomNumber
}

// NewIdentityKeySet builds a key set, dropping blank keys.
func NewIdentityKeySet(guestID string, bookingID string, roomNumber string) IdentityKeySet {
	return IdentityKeySet{
		guestID:    GuestID{value: strings.TrimSpace(guestID)},
		bookingID:  BookingID{value: strings.TrimSpace(bookingID)},
		roomNumber: RoomNumber{value: strings.TrimSpace(roomNumber)},
	}
}

// GuestID returns the guest key when present.
func (keys IdentityKeySet) GuestID() (GuestID, bool) {
	return keys.guestID, !keys.guestID.IsZero()
}

// BookingID returns the booking key when present.
func (keys IdentityKeySet) BookingID() (BookingID, bool) {
	return keys.bookingID, !keys.bookingID.IsZero()
}

// RoomNumber returns the room key when present.
func (keys IdentityKeySet) RoomNumber() (RoomNumber, bool) {
	return keys.roomNumber, !keys.roomNumber.IsZero()
}

// IsEmpty reports whether no key is present.
func (keys IdentityKeySet) IsEmpty() bool {
	return keys.guestID.IsZero() && keys.bookingID.IsZero() && keys.roomNumber.IsZero()
}

// Merge returns a key set where keys present on the receiver win and absent
// ones are filled from other.
func (keys IdentityKeySet) Merge(other IdentityKeySet) IdentityKeySet {
	merged := keys
	if merged.guestID.IsZero() {
		merged.guestID = other.guestID
	}
	if merged.bookingID.IsZero() {
		merged.bookingID = other.bookingID
	}
	if merged.roomNumber.IsZero() {
		merged.roomNumber = other.roomNumber
	}
	return merged
}

// Queries expands the key set into one query per present key and stream.
func (keys IdentityKeySet) Queries() []OrderQuery {
	queries := make([]OrderQuery, 0, 6)
	for _, kind := range OrderKinds() {
		if !keys.guestID.IsZero() {
			queries = append(queries, OrderQuery{Kind: kind, GuestID: keys.guestID})
		}
		if !keys.bookingID.IsZero() {
			queries = append(queries, OrderQuery{Kind: kind, BookingID: keys.bookingID})
		}
		if !keys.roomNumber.IsZero() {
			queries = append(queries, OrderQuery{Kind: kind, RoomNumber: keys.roomNumber})
		}
	}
	return queries
}

// unlinkedRoomQueries is the matching rule for retroactive linking: orders of
// either stream placed from the room since the cutoff that no guest owns yet.
func unlinkedRoomQueries(roomNumber RoomNumber, since time.Time) []OrderQuery {
	queries := make([]OrderQuery, 0, 2)
	for _, kind := range OrderKinds() {
		queries = append(queries, OrderQuery{
			Kind:         kind,
			RoomNumber:   roomNumber,
			UnlinkedOnly: true,
			CreatedFrom:  since,
		})
	}
	return queries
}
