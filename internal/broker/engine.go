package broker

import (
	"errors"
	"fmt"
	"log"

	"github.com/akarczewski/go-msgbroker/internal/stats"
	"github.com/akarczewski/go-msgbroker/internal/store"
	"github.com/akarczewski/go-msgbroker/internal/types"
)

// JoinResult distinguishes a first join from a budget change on an existing
// subscription.
type JoinResult int

const (
	Joined JoinResult = iota
	Changed
)

// Engine owns subscription bookkeeping: joining rooms and fanning published
// messages out to subscribers while consuming their delivery budgets.
type Engine struct {
	repo  store.Repository
	dir   *Directory
	log   *log.Logger
	stats stats.StatsProvider
}

func newEngine(logger *log.Logger, repo store.Repository, dir *Directory, su stats.StatsProvider) *Engine {
	return &Engine{
		repo:  repo,
		dir:   dir,
		log:   logger,
		stats: su,
	}
}

// Join subscribes a user to a room with the given budget. The budget is
// validated by the caller; joining an already-joined room overwrites the
// remaining count in place instead of adding a second row.
func (e *Engine) Join(roomName string, userID int64, budget int) (JoinResult, error) {
	room, err := e.repo.RoomByName(roomName)
	if err != nil {
		return 0, err
	}

	created, err := e.repo.UpsertSubscription(room.Id, userID, budget)
	if err != nil {
		return 0, fmt.Errorf("upsert subscription: %w", err)
	}

	if created {
		return Joined, nil
	}
	return Changed, nil
}

// Publish walks the room's subscriptions in stored order, consumes one unit
// of budget per subscriber and hands the message to every subscriber with a
// live mailbox. A subscription whose budget reaches zero after this message
// is dropped from the table. Budget consumption does not depend on delivery
// succeeding: an offline subscriber burns a unit just the same.
//
// Returns how many subscribers the message was actually handed to.
func (e *Engine) Publish(room types.Room, msg *types.Delivery) (int, error) {
	subs, err := e.repo.RoomSubscriptions(room.Id)
	if err != nil {
		return 0, fmt.Errorf("room subscriptions: %w", err)
	}

	out := &ServerMessage{Delivery: msg}
	kept := make([]types.Subscription, 0, len(subs))
	delivered := 0

	for _, sub := range subs {
		user, err := e.repo.UserByID(sub.UserId)
		switch {
		case errors.Is(err, store.ErrNotFound):
			e.log.Printf("subscription in room %q references unknown user %d", room.Name, sub.UserId)
			user = types.User{}
		case err != nil:
			return delivered, fmt.Errorf("resolve subscriber %d: %w", sub.UserId, err)
		}

		// logged-out subscribers are skipped but their budget burns anyway
		if user.Mailbox > 0 && e.dir.Send(user.Mailbox, out) {
			delivered++
			e.stats.Incr("NumDeliveries")
		}

		if sub.Remaining != types.UnlimitedBudget {
			sub.Remaining--
		}

		if sub.Remaining == 0 {
			// the budget is spent, the row is not rewritten
			e.stats.Incr("NumExpiredSubscriptions")
			continue
		}

		kept = append(kept, sub)
	}

	if err := e.repo.ReplaceRoomSubscriptions(room.Id, kept); err != nil {
		return delivered, fmt.Errorf("rewrite subscriptions: %w", err)
	}

	return delivered, nil
}
