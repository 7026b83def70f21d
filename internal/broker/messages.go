package broker

import (
	"github.com/akarczewski/go-msgbroker/internal/types"
)

// Status mirrors the wire-level response codes.
type Status int

const (
	StatusSuccess Status = iota
	StatusFail
	// StatusMore marks a ListRooms chunk with more chunks to follow.
	StatusMore
)

// Response texts are fixed so clients can rely on them.
const (
	TextLoginOK       = "Login successful"
	TextNameTaken     = "Username is taken"
	TextInvalidName   = "Invalid username"
	TextNotLoggedIn   = "Not logged in"
	TextRoomCreated   = "Room created"
	TextInvalidRoom   = "Invalid room name"
	TextRoomTaken     = "Room name is taken"
	TextRoomMissing   = "Room does not exist"
	TextRoomJoined    = "Room joined"
	TextSubChanged    = "Changed room subscription"
	TextMessageSent   = "Message sent"
	TextBadBudget     = "Invalid subscription budget"
	TextBadPriority   = "Invalid priority"
	TextMessageTooBig = "Message too long"
	TextBadRequest    = "Malformed request"
	TextBusy          = "Server busy"
)

// Request is the tagged union carried on the broker's inbound channel.
// Exactly one of the kind fields is set; Mailbox identifies the requester's
// delivery channel and is stamped by the transport, never by the client
// payload.
type Request struct {
	Mailbox int64 `json:"-"`

	Login       *Login       `json:"login,omitempty"`
	Logout      *Logout      `json:"logout,omitempty"`
	CreateRoom  *CreateRoom  `json:"create_room,omitempty"`
	ListRooms   *ListRooms   `json:"list_rooms,omitempty"`
	JoinRoom    *JoinRoom    `json:"join_room,omitempty"`
	SendMessage *SendMessage `json:"send_message,omitempty"`
}

type Login struct {
	Username string `json:"username"`
}

type Logout struct{}

type CreateRoom struct {
	RoomName string `json:"room_name"`
}

type ListRooms struct{}

type JoinRoom struct {
	RoomName string `json:"room_name"`
	Budget   int    `json:"budget"`
}

type SendMessage struct {
	Author   string `json:"author"`
	RoomName string `json:"room_name"`
	Body     string `json:"body"`
	Priority int    `json:"priority"`
}

// Response answers a single request. Text stays within
// types.MaxResponseText bytes.
type Response struct {
	Status Status `json:"status"`
	Text   string `json:"text"`
}

// ServerMessage is what lands in a mailbox: either the response to a request
// the client sent, or a fanned-out delivery from a room it subscribes to.
type ServerMessage struct {
	Response *Response       `json:"response,omitempty"`
	Delivery *types.Delivery `json:"delivery,omitempty"`
}

func SuccessResponse(text string) *ServerMessage {
	return &ServerMessage{Response: &Response{Status: StatusSuccess, Text: text}}
}

func FailResponse(text string) *ServerMessage {
	return &ServerMessage{Response: &Response{Status: StatusFail, Text: text}}
}

func MoreResponse(text string) *ServerMessage {
	return &ServerMessage{Response: &Response{Status: StatusMore, Text: text}}
}
