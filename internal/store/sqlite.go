package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/akarczewski/go-msgbroker/internal/types"
)

// SqliteStore is an embedded transactional Repository backend. The atomic
// table-swap behavior of the file store maps onto real transactions here.
type SqliteStore struct {
	conn *sql.DB
}

func NewSqliteStore(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &SqliteStore{conn: db}, nil
}

func ensureSchema(db *sql.DB) error {
	const usersTable = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		mailbox INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := db.Exec(usersTable); err != nil {
		return err
	}

	const roomsTable = `
	CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);`
	if _, err := db.Exec(roomsTable); err != nil {
		return err
	}

	const subsTable = `
	CREATE TABLE IF NOT EXISTS subscriptions (
		pos INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		UNIQUE(room_id, user_id)
	);`
	if _, err := db.Exec(subsTable); err != nil {
		return err
	}

	return nil
}

func (s *SqliteStore) UserByName(name string) (types.User, error) {
	row := s.conn.QueryRow(
		"SELECT id, name, mailbox FROM users WHERE name = ? LIMIT 1",
		name,
	)

	var u types.User
	if err := row.Scan(&u.Id, &u.Name, &u.Mailbox); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	return u, nil
}

func (s *SqliteStore) UserByID(id int64) (types.User, error) {
	row := s.conn.QueryRow(
		"SELECT id, name, mailbox FROM users WHERE id = ? LIMIT 1",
		id,
	)

	var u types.User
	if err := row.Scan(&u.Id, &u.Name, &u.Mailbox); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	return u, nil
}

func (s *SqliteStore) UserByMailbox(mailbox int64) (types.User, error) {
	if mailbox == 0 {
		return types.User{}, ErrNotFound
	}

	row := s.conn.QueryRow(
		"SELECT id, name, mailbox FROM users WHERE mailbox = ? LIMIT 1",
		mailbox,
	)

	var u types.User
	if err := row.Scan(&u.Id, &u.Name, &u.Mailbox); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}

	return u, nil
}

func (s *SqliteStore) UpsertUser(name string, mailbox int64) (types.User, UpsertStatus, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return types.User{}, 0, err
	}
	defer tx.Rollback()

	row := tx.QueryRow("SELECT id, mailbox FROM users WHERE name = ? LIMIT 1", name)

	var (
		id      int64
		current int64
	)
	err = row.Scan(&id, &current)
	switch {
	case err == nil:
		if current != 0 && current != mailbox {
			return types.User{}, 0, ErrNameTaken
		}
		if _, err := tx.Exec("UPDATE users SET mailbox = ? WHERE id = ?", mailbox, id); err != nil {
			return types.User{}, 0, err
		}
		if err := tx.Commit(); err != nil {
			return types.User{}, 0, err
		}
		return types.User{Id: id, Name: name, Mailbox: mailbox}, UserUpdated, nil
	case errors.Is(err, sql.ErrNoRows):
		row := tx.QueryRow(
			"INSERT INTO users (id, name, mailbox) "+
				"VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM users), ?, ?) RETURNING id",
			name,
			mailbox,
		)
		if err := row.Scan(&id); err != nil {
			return types.User{}, 0, err
		}
		if err := tx.Commit(); err != nil {
			return types.User{}, 0, err
		}
		return types.User{Id: id, Name: name, Mailbox: mailbox}, UserCreated, nil
	default:
		return types.User{}, 0, err
	}
}

func (s *SqliteStore) ClearMailbox(mailbox int64) error {
	if mailbox == 0 {
		return nil
	}

	_, err := s.conn.Exec("UPDATE users SET mailbox = 0 WHERE mailbox = ?", mailbox)
	return err
}

func (s *SqliteStore) RoomByName(name string) (types.Room, error) {
	row := s.conn.QueryRow(
		"SELECT id, name FROM rooms WHERE name = ? LIMIT 1",
		name,
	)

	var r types.Room
	if err := row.Scan(&r.Id, &r.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Room{}, ErrNotFound
		}
		return types.Room{}, err
	}

	return r, nil
}

func (s *SqliteStore) CreateRoom(name string) (types.Room, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return types.Room{}, err
	}
	defer tx.Rollback()

	var exists int64
	err = tx.QueryRow("SELECT id FROM rooms WHERE name = ? LIMIT 1", name).Scan(&exists)
	if err == nil {
		return types.Room{}, ErrRoomExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Room{}, err
	}

	row := tx.QueryRow(
		"INSERT INTO rooms (id, name) "+
			"VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM rooms), ?) RETURNING id",
		name,
	)

	var id int64
	if err := row.Scan(&id); err != nil {
		return types.Room{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Room{}, err
	}

	return types.Room{Id: id, Name: name}, nil
}

func (s *SqliteStore) ListRooms() ([]types.Room, error) {
	rows, err := s.conn.Query("SELECT id, name FROM rooms ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []types.Room
	for rows.Next() {
		var r types.Room
		if err := rows.Scan(&r.Id, &r.Name); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}

	return rooms, rows.Err()
}

func (s *SqliteStore) UpsertSubscription(roomID, userID int64, remaining int) (bool, error) {
	res, err := s.conn.Exec(
		"UPDATE subscriptions SET remaining = ? WHERE room_id = ? AND user_id = ?",
		remaining,
		roomID,
		userID,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	_, err = s.conn.Exec(
		"INSERT INTO subscriptions (room_id, user_id, remaining) VALUES (?, ?, ?)",
		roomID,
		userID,
		remaining,
	)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *SqliteStore) RoomSubscriptions(roomID int64) ([]types.Subscription, error) {
	rows, err := s.conn.Query(
		"SELECT room_id, user_id, remaining FROM subscriptions WHERE room_id = ? ORDER BY pos",
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []types.Subscription
	for rows.Next() {
		var sub types.Subscription
		if err := rows.Scan(&sub.RoomId, &sub.UserId, &sub.Remaining); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

func (s *SqliteStore) ReplaceRoomSubscriptions(roomID int64, subs []types.Subscription) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM subscriptions WHERE room_id = ?", roomID); err != nil {
		return err
	}

	for _, sub := range subs {
		_, err := tx.Exec(
			"INSERT INTO subscriptions (room_id, user_id, remaining) VALUES (?, ?, ?)",
			roomID,
			sub.UserId,
			sub.Remaining,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SqliteStore) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
