package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/akarczewski/go-msgbroker/internal/types"
)

const (
	usersTable = "users.tab"
	roomsTable = "rooms.tab"
	subsTable  = "subs.tab"
)

// FileStore keeps the three tables as msgpack-encoded files in a data
// directory. Tables are held in memory; every mutation rewrites the affected
// table to a temp file and renames it over the old one, so a crash leaves
// either the previous or the new snapshot, never a torn file.
//
// FileStore methods are safe for concurrent use, but two interleaved writers
// can still lose updates to each other; the broker's single dispatch
// goroutine is what makes the whole-table swap sufficient.
type FileStore struct {
	dir string

	mu    sync.Mutex
	users []types.User
	rooms []types.Room
	subs  []types.Subscription
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &FileStore{dir: dir}
	if err := s.loadTable(usersTable, &s.users); err != nil {
		return nil, fmt.Errorf("load users table: %w", err)
	}
	if err := s.loadTable(roomsTable, &s.rooms); err != nil {
		return nil, fmt.Errorf("load rooms table: %w", err)
	}
	if err := s.loadTable(subsTable, &s.subs); err != nil {
		return nil, fmt.Errorf("load subscriptions table: %w", err)
	}

	return s, nil
}

func (s *FileStore) loadTable(name string, dest any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		// first boot, table starts empty
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	return msgpack.Unmarshal(data, dest)
}

func (s *FileStore) writeTable(name string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}

	return nil
}

func (s *FileStore) UserByName(name string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Name == name {
			return u, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (s *FileStore) UserByID(id int64) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Id == id {
			return u, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (s *FileStore) UserByMailbox(mailbox int64) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mailbox == 0 {
		return types.User{}, ErrNotFound
	}

	for _, u := range s.users {
		if u.Mailbox == mailbox {
			return u, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (s *FileStore) UpsertUser(name string, mailbox int64) (types.User, UpsertStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, u := range s.users {
		if u.Name != name {
			continue
		}

		if u.Mailbox != 0 && u.Mailbox != mailbox {
			return types.User{}, 0, ErrNameTaken
		}

		users := make([]types.User, len(s.users))
		copy(users, s.users)
		users[i].Mailbox = mailbox

		if err := s.writeTable(usersTable, users); err != nil {
			return types.User{}, 0, err
		}
		s.users = users

		return users[i], UserUpdated, nil
	}

	user := types.User{
		Id:      s.nextUserID(),
		Name:    name,
		Mailbox: mailbox,
	}

	users := make([]types.User, len(s.users), len(s.users)+1)
	copy(users, s.users)
	users = append(users, user)

	if err := s.writeTable(usersTable, users); err != nil {
		return types.User{}, 0, err
	}
	s.users = users

	return user, UserCreated, nil
}

func (s *FileStore) ClearMailbox(mailbox int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mailbox == 0 {
		return nil
	}

	for i, u := range s.users {
		if u.Mailbox != mailbox {
			continue
		}

		users := make([]types.User, len(s.users))
		copy(users, s.users)
		users[i].Mailbox = 0

		if err := s.writeTable(usersTable, users); err != nil {
			return err
		}
		s.users = users
		return nil
	}

	return nil
}

func (s *FileStore) RoomByName(name string) (types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.Name == name {
			return r, nil
		}
	}
	return types.Room{}, ErrNotFound
}

func (s *FileStore) CreateRoom(name string) (types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.Name == name {
			return types.Room{}, ErrRoomExists
		}
	}

	room := types.Room{
		Id:   s.nextRoomID(),
		Name: name,
	}

	rooms := make([]types.Room, len(s.rooms), len(s.rooms)+1)
	copy(rooms, s.rooms)
	rooms = append(rooms, room)

	if err := s.writeTable(roomsTable, rooms); err != nil {
		return types.Room{}, err
	}
	s.rooms = rooms

	return room, nil
}

func (s *FileStore) ListRooms() ([]types.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]types.Room, len(s.rooms))
	copy(rooms, s.rooms)
	return rooms, nil
}

func (s *FileStore) UpsertSubscription(roomID, userID int64, remaining int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.RoomId != roomID || sub.UserId != userID {
			continue
		}

		subs := make([]types.Subscription, len(s.subs))
		copy(subs, s.subs)
		subs[i].Remaining = remaining

		if err := s.writeTable(subsTable, subs); err != nil {
			return false, err
		}
		s.subs = subs
		return false, nil
	}

	subs := make([]types.Subscription, len(s.subs), len(s.subs)+1)
	copy(subs, s.subs)
	subs = append(subs, types.Subscription{
		RoomId:    roomID,
		UserId:    userID,
		Remaining: remaining,
	})

	if err := s.writeTable(subsTable, subs); err != nil {
		return false, err
	}
	s.subs = subs

	return true, nil
}

func (s *FileStore) RoomSubscriptions(roomID int64) ([]types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var subs []types.Subscription
	for _, sub := range s.subs {
		if sub.RoomId == roomID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (s *FileStore) ReplaceRoomSubscriptions(roomID int64, subs []types.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]types.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.RoomId != roomID {
			next = append(next, sub)
		}
	}
	next = append(next, subs...)

	if err := s.writeTable(subsTable, next); err != nil {
		return err
	}
	s.subs = next

	return nil
}

func (s *FileStore) nextUserID() int64 {
	var max int64
	for _, u := range s.users {
		if u.Id > max {
			max = u.Id
		}
	}
	return max + 1
}

func (s *FileStore) nextRoomID() int64 {
	var max int64
	for _, r := range s.rooms {
		if r.Id > max {
			max = r.Id
		}
	}
	return max + 1
}

func (s *FileStore) Close() error {
	return nil
}
