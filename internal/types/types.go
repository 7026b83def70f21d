package types

const (
	// MaxNameLen bounds user and room names.
	MaxNameLen = 31
	// MaxBodyLen bounds the body of a published message.
	MaxBodyLen = 255
	// MaxResponseText bounds the text of a single response chunk.
	MaxResponseText = 128

	MinPriority = 1
	MaxPriority = 10

	// UnlimitedBudget marks a subscription that never expires.
	UnlimitedBudget = -1
)

// User is a registered client. Mailbox is the private delivery address
// granted at login; zero means logged out.
type User struct {
	Id      int64  `json:"id"`
	Name    string `json:"name"`
	Mailbox int64  `json:"mailbox,omitempty"`
}

type Room struct {
	Id   int64  `json:"id"`
	Name string `json:"name"`
}

// Subscription ties a user to a room with a delivery budget. Remaining is
// UnlimitedBudget or a positive countdown; a subscription that reaches zero
// is deleted, never stored.
type Subscription struct {
	RoomId    int64 `json:"room_id"`
	UserId    int64 `json:"user_id"`
	Remaining int   `json:"remaining"`
}

// Delivery is a fanned-out message handed to a subscriber's mailbox. It is
// transient and never persisted.
type Delivery struct {
	Author   string `json:"author"`
	RoomName string `json:"room_name"`
	Body     string `json:"body"`
	Priority int    `json:"priority"`
}
