package store

import "errors"

var (
	// ErrNotFound is returned when a user or room does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNameTaken is returned by UpsertUser when the name is held by a
	// currently logged-in user.
	ErrNameTaken = errors.New("username is taken")
	// ErrRoomExists is returned by CreateRoom for a duplicate name.
	ErrRoomExists = errors.New("room already exists")
)
