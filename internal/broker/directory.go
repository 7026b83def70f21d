package broker

import (
	"log"
	"sync"

	"github.com/akarczewski/go-msgbroker/internal/stats"
)

// MailboxSize is the per-client delivery buffer. A mailbox that fills up
// drops further messages until the client drains it.
const MailboxSize = 16

// Directory maps mailbox ids to live delivery channels. A mailbox id is
// granted once per connection and never reused; the zero id is reserved to
// mean "logged out" in user records.
type Directory struct {
	log   *log.Logger
	stats stats.StatsProvider

	mu        sync.RWMutex
	nextID    int64
	mailboxes map[int64]chan *ServerMessage
}

func NewDirectory(logger *log.Logger, su stats.StatsProvider) *Directory {
	return &Directory{
		log:       logger,
		stats:     su,
		mailboxes: make(map[int64]chan *ServerMessage),
	}
}

// Register grants a fresh mailbox and returns its delivery channel. The
// caller owns draining the channel until it calls Deregister.
func (d *Directory) Register() (int64, <-chan *ServerMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	ch := make(chan *ServerMessage, MailboxSize)
	d.mailboxes[d.nextID] = ch

	d.stats.Incr("NumActiveClients")
	return d.nextID, ch
}

func (d *Directory) Deregister(mailbox int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.mailboxes[mailbox]; !ok {
		return
	}

	delete(d.mailboxes, mailbox)
	d.stats.Decr("NumActiveClients")
}

// Send hands a message to a mailbox without blocking. Delivery to a missing
// or full mailbox fails silently; the subscription bookkeeping that led here
// is never rolled back.
func (d *Directory) Send(mailbox int64, msg *ServerMessage) bool {
	d.mu.RLock()
	ch, ok := d.mailboxes[mailbox]
	d.mu.RUnlock()

	if !ok {
		return false
	}

	select {
	case ch <- msg:
		return true
	default:
		d.log.Printf("mailbox %d is full, dropping message", mailbox)
		return false
	}
}
