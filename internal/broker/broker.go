package broker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/akarczewski/go-msgbroker/internal/stats"
	"github.com/akarczewski/go-msgbroker/internal/store"
	"github.com/akarczewski/go-msgbroker/internal/types"
)

const requestQueueSize = 256

// Broker is the request router. A single goroutine drains the request
// channel and serves each request to completion before taking the next one,
// which is what lets the record store get away with whole-table swaps
// instead of transactions.
type Broker struct {
	log      *log.Logger
	repo     store.Repository
	dir      *Directory
	engine   *Engine
	stats    stats.StatsProvider
	requests chan *Request
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New(logger *log.Logger, repo store.Repository, su stats.StatsProvider) *Broker {
	for _, metric := range []string{
		"NumActiveClients",
		"NumRooms",
		"NumDeliveries",
		"NumExpiredSubscriptions",
	} {
		su.RegisterMetric(metric)
	}

	dir := NewDirectory(logger, su)

	return &Broker{
		log:      logger,
		repo:     repo,
		dir:      dir,
		engine:   newEngine(logger, repo, dir, su),
		stats:    su,
		requests: make(chan *Request, requestQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Directory exposes the mailbox directory to transports.
func (b *Broker) Directory() *Directory {
	return b.dir
}

// Submit enqueues a request without blocking. It reports false when the
// broker is saturated; transports surface that to the client as a failed
// request rather than waiting.
func (b *Broker) Submit(req *Request) bool {
	select {
	case b.requests <- req:
		return true
	default:
		b.log.Println("request queue full, rejecting request")
		return false
	}
}

// Run serves requests until Shutdown is called or the store fails. A store
// failure is not recoverable: serving from a half-written table would be
// worse than stopping, so the loop exits with the error.
func (b *Broker) Run() error {
	b.log.Println("broker loop started")
	defer close(b.done)

	for {
		select {
		case req := <-b.requests:
			if err := b.dispatch(req); err != nil {
				b.log.Println("store failure:", err)
				return err
			}
		case <-b.stop:
			b.log.Println("broker loop stopping")
			return nil
		}
	}
}

func (b *Broker) Shutdown(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch serves one request. Expected conditions (missing rooms, taken
// names, bad arguments) become Fail responses; only store failures escape
// as errors.
func (b *Broker) dispatch(req *Request) error {
	switch {
	case req.Logout != nil:
		return b.handleLogout(req)
	case req.Login != nil:
		return b.handleLogin(req)
	case req.CreateRoom != nil:
		return b.handleCreateRoom(req)
	case req.ListRooms != nil:
		return b.handleListRooms(req)
	case req.JoinRoom != nil:
		return b.handleJoinRoom(req)
	case req.SendMessage != nil:
		return b.handleSendMessage(req)
	default:
		b.log.Printf("dropping empty request from mailbox %d", req.Mailbox)
		return nil
	}
}

func (b *Broker) respond(req *Request, msg *ServerMessage) {
	if !b.dir.Send(req.Mailbox, msg) {
		b.log.Printf("could not respond to mailbox %d", req.Mailbox)
	}
}

// handleLogout clears the user record bound to the mailbox. Fire and
// forget: no response is sent.
func (b *Broker) handleLogout(req *Request) error {
	b.log.Printf("logout from mailbox %d", req.Mailbox)

	if err := b.repo.ClearMailbox(req.Mailbox); err != nil {
		return fmt.Errorf("clear mailbox: %w", err)
	}
	return nil
}

func (b *Broker) handleLogin(req *Request) error {
	name := req.Login.Username
	b.log.Printf("login %q from mailbox %d", name, req.Mailbox)

	if name == "" || len(name) > types.MaxNameLen {
		b.respond(req, FailResponse(TextInvalidName))
		return nil
	}

	_, _, err := b.repo.UpsertUser(name, req.Mailbox)
	switch {
	case errors.Is(err, store.ErrNameTaken):
		b.respond(req, FailResponse(TextNameTaken))
	case err != nil:
		return fmt.Errorf("upsert user: %w", err)
	default:
		b.respond(req, SuccessResponse(TextLoginOK))
	}

	return nil
}

func (b *Broker) handleCreateRoom(req *Request) error {
	name := req.CreateRoom.RoomName
	b.log.Printf("create room %q from mailbox %d", name, req.Mailbox)

	if name == "" || len(name) > types.MaxNameLen {
		b.respond(req, FailResponse(TextInvalidRoom))
		return nil
	}

	_, err := b.repo.CreateRoom(name)
	switch {
	case errors.Is(err, store.ErrRoomExists):
		b.respond(req, FailResponse(TextRoomTaken))
	case err != nil:
		return fmt.Errorf("create room: %w", err)
	default:
		b.stats.Incr("NumRooms")
		b.respond(req, SuccessResponse(TextRoomCreated))
	}

	return nil
}

// handleListRooms streams room names in chunks. Every full chunk goes out
// with StatusMore; the last one, possibly empty, closes the stream with
// StatusSuccess.
func (b *Broker) handleListRooms(req *Request) error {
	b.log.Printf("list rooms from mailbox %d", req.Mailbox)

	rooms, err := b.repo.ListRooms()
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	var chunk string
	for _, room := range rooms {
		next := room.Name
		if chunk != "" {
			next = chunk + " " + room.Name
		}

		if len(next) > types.MaxResponseText {
			b.respond(req, MoreResponse(chunk))
			chunk = room.Name
			continue
		}
		chunk = next
	}

	b.respond(req, SuccessResponse(chunk))
	return nil
}

func (b *Broker) handleJoinRoom(req *Request) error {
	join := req.JoinRoom
	b.log.Printf("join room %q (budget %d) from mailbox %d", join.RoomName, join.Budget, req.Mailbox)

	if join.Budget == 0 || join.Budget < types.UnlimitedBudget {
		b.respond(req, FailResponse(TextBadBudget))
		return nil
	}

	user, err := b.repo.UserByMailbox(req.Mailbox)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.respond(req, FailResponse(TextNotLoggedIn))
		return nil
	case err != nil:
		return fmt.Errorf("resolve requester: %w", err)
	}

	result, err := b.engine.Join(join.RoomName, user.Id, join.Budget)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.respond(req, FailResponse(TextRoomMissing))
	case err != nil:
		return err
	case result == Changed:
		b.respond(req, SuccessResponse(TextSubChanged))
	default:
		b.respond(req, SuccessResponse(TextRoomJoined))
	}

	return nil
}

func (b *Broker) handleSendMessage(req *Request) error {
	send := req.SendMessage
	b.log.Printf("publish to room %q from mailbox %d", send.RoomName, req.Mailbox)

	if send.Priority < types.MinPriority || send.Priority > types.MaxPriority {
		b.respond(req, FailResponse(TextBadPriority))
		return nil
	}
	if len(send.Body) > types.MaxBodyLen {
		b.respond(req, FailResponse(TextMessageTooBig))
		return nil
	}

	room, err := b.repo.RoomByName(send.RoomName)
	switch {
	case errors.Is(err, store.ErrNotFound):
		b.respond(req, FailResponse(TextRoomMissing))
		return nil
	case err != nil:
		return fmt.Errorf("resolve room: %w", err)
	}

	delivered, err := b.engine.Publish(room, &types.Delivery{
		Author:   send.Author,
		RoomName: send.RoomName,
		Body:     send.Body,
		Priority: send.Priority,
	})
	if err != nil {
		return err
	}

	b.log.Printf("delivered to %d subscribers in %q", delivered, send.RoomName)
	b.respond(req, SuccessResponse(TextMessageSent))
	return nil
}
