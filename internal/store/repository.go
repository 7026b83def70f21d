package store

import (
	"github.com/akarczewski/go-msgbroker/internal/types"
)

// UpsertStatus reports what UpsertUser did.
type UpsertStatus int

const (
	UserCreated UpsertStatus = iota
	UserUpdated
)

// Repository is the record store for users, rooms and subscriptions. All
// invariants (single subscription row per room/user pair, monotonic ids,
// no zero-remaining rows) are enforced behind this interface; callers never
// mutate records directly.
//
// Implementations must make each mutation appear as an atomic table swap:
// a reader that observes the store after a mutation sees the whole change
// or none of it. They are not required to isolate concurrent writers; the
// broker serializes all mutations on a single goroutine.
type Repository interface {
	UserByName(name string) (types.User, error)
	UserByID(id int64) (types.User, error)
	// UserByMailbox resolves the user currently bound to a mailbox.
	UserByMailbox(mailbox int64) (types.User, error)
	// UpsertUser logs a user in. A name with a cleared mailbox is re-bound
	// in place, keeping its stable id; a name bound to a different live
	// mailbox fails with ErrNameTaken; an unknown name creates a new row
	// with id = highest observed + 1.
	UpsertUser(name string, mailbox int64) (types.User, UpsertStatus, error)
	// ClearMailbox logs out whichever user holds the mailbox. It is
	// idempotent and a no-op when no user matches.
	ClearMailbox(mailbox int64) error

	RoomByName(name string) (types.Room, error)
	CreateRoom(name string) (types.Room, error)
	// ListRooms returns rooms in creation order.
	ListRooms() ([]types.Room, error)

	// UpsertSubscription inserts a subscription row or overwrites the
	// remaining count of an existing one. It reports whether a new row was
	// created.
	UpsertSubscription(roomID, userID int64, remaining int) (bool, error)
	// RoomSubscriptions returns a room's subscriptions in insertion order.
	RoomSubscriptions(roomID int64) ([]types.Subscription, error)
	// ReplaceRoomSubscriptions swaps every subscription row of a room for
	// the given set in one step, preserving the given order.
	ReplaceRoomSubscriptions(roomID int64, subs []types.Subscription) error

	Close() error
}
