package store

import (
	"github.com/stretchr/testify/mock"

	"github.com/akarczewski/go-msgbroker/internal/types"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) UserByName(name string) (types.User, error) {
	args := m.Called(name)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockRepository) UserByID(id int64) (types.User, error) {
	args := m.Called(id)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockRepository) UserByMailbox(mailbox int64) (types.User, error) {
	args := m.Called(mailbox)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *MockRepository) UpsertUser(name string, mailbox int64) (types.User, UpsertStatus, error) {
	args := m.Called(name, mailbox)
	return args.Get(0).(types.User), args.Get(1).(UpsertStatus), args.Error(2)
}

func (m *MockRepository) ClearMailbox(mailbox int64) error {
	args := m.Called(mailbox)
	return args.Error(0)
}

func (m *MockRepository) RoomByName(name string) (types.Room, error) {
	args := m.Called(name)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockRepository) CreateRoom(name string) (types.Room, error) {
	args := m.Called(name)
	return args.Get(0).(types.Room), args.Error(1)
}

func (m *MockRepository) ListRooms() ([]types.Room, error) {
	args := m.Called()
	return args.Get(0).([]types.Room), args.Error(1)
}

func (m *MockRepository) UpsertSubscription(roomID, userID int64, remaining int) (bool, error) {
	args := m.Called(roomID, userID, remaining)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) RoomSubscriptions(roomID int64) ([]types.Subscription, error) {
	args := m.Called(roomID)
	return args.Get(0).([]types.Subscription), args.Error(1)
}

func (m *MockRepository) ReplaceRoomSubscriptions(roomID int64, subs []types.Subscription) error {
	args := m.Called(roomID, subs)
	return args.Error(0)
}

func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
