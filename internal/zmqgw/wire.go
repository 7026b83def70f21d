package zmqgw

import (
	"fmt"

	"github.com/akarczewski/go-msgbroker/internal/broker"
)

// Services a request envelope can carry.
const (
	ServiceHello       = "hello"
	ServiceBye         = "bye"
	ServiceLogin       = "login"
	ServiceLogout      = "logout"
	ServiceCreateRoom  = "create_room"
	ServiceListRooms   = "list_rooms"
	ServiceJoinRoom    = "join_room"
	ServiceSendMessage = "send_message"
)

// RequestEnvelope is the msgpack frame clients push to the gateway. ID is a
// client-generated correlation id; Mailbox is zero only for hello, which is
// how a client obtains one.
type RequestEnvelope struct {
	ID       string `msgpack:"id"`
	Mailbox  int64  `msgpack:"mailbox"`
	Service  string `msgpack:"service"`
	Username string `msgpack:"username,omitempty"`
	RoomName string `msgpack:"room_name,omitempty"`
	Budget   int    `msgpack:"budget,omitempty"`
	Author   string `msgpack:"author,omitempty"`
	Body     string `msgpack:"body,omitempty"`
	Priority int    `msgpack:"priority,omitempty"`
}

// ReplyEnvelope is published on the client's mailbox topic. Exactly one of
// the response fields and Delivery is meaningful: responses carry Status and
// Text, fan-out carries Delivery.
type ReplyEnvelope struct {
	ID       string           `msgpack:"id"`
	Mailbox  int64            `msgpack:"mailbox,omitempty"`
	Status   int              `msgpack:"status"`
	Text     string           `msgpack:"text,omitempty"`
	Delivery *DeliveryPayload `msgpack:"delivery,omitempty"`
}

type DeliveryPayload struct {
	Author   string `msgpack:"author"`
	RoomName string `msgpack:"room_name"`
	Body     string `msgpack:"body"`
	Priority int    `msgpack:"priority"`
}

// toRequest translates an envelope into a broker request. Hello and bye are
// handled by the gateway itself and never reach this.
func toRequest(env *RequestEnvelope) (*broker.Request, error) {
	req := &broker.Request{Mailbox: env.Mailbox}

	switch env.Service {
	case ServiceLogin:
		req.Login = &broker.Login{Username: env.Username}
	case ServiceLogout:
		req.Logout = &broker.Logout{}
	case ServiceCreateRoom:
		req.CreateRoom = &broker.CreateRoom{RoomName: env.RoomName}
	case ServiceListRooms:
		req.ListRooms = &broker.ListRooms{}
	case ServiceJoinRoom:
		req.JoinRoom = &broker.JoinRoom{RoomName: env.RoomName, Budget: env.Budget}
	case ServiceSendMessage:
		req.SendMessage = &broker.SendMessage{
			Author:   env.Author,
			RoomName: env.RoomName,
			Body:     env.Body,
			Priority: env.Priority,
		}
	default:
		return nil, fmt.Errorf("unknown service %q", env.Service)
	}

	return req, nil
}

func toReply(id string, msg *broker.ServerMessage) *ReplyEnvelope {
	if msg.Delivery != nil {
		return &ReplyEnvelope{
			ID: id,
			Delivery: &DeliveryPayload{
				Author:   msg.Delivery.Author,
				RoomName: msg.Delivery.RoomName,
				Body:     msg.Delivery.Body,
				Priority: msg.Delivery.Priority,
			},
		}
	}

	return &ReplyEnvelope{
		ID:     id,
		Status: int(msg.Response.Status),
		Text:   msg.Response.Text,
	}
}
