package zmqgw

import (
	"fmt"
	"log"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/akarczewski/go-msgbroker/internal/broker"
	"github.com/akarczewski/go-msgbroker/internal/config"
)

const (
	recvTimeout  = 500 * time.Millisecond
	pubQueueSize = 256
)

// mailboxTopic is the PUB topic a client subscribes to after hello.
func mailboxTopic(mailbox int64) string {
	return fmt.Sprintf("mb/%d", mailbox)
}

// helloTopic carries the mailbox grant back to a client that has no mailbox
// yet, keyed by the correlation id it chose.
func helloTopic(id string) string {
	return "hello/" + id
}

type pubFrame struct {
	topic   string
	payload []byte
}

// Gateway bridges ZeroMQ clients to the broker. Requests arrive as msgpack
// envelopes on a PULL socket; responses and deliveries go out on a PUB
// socket under per-mailbox topics. The PUB socket has a single writer
// goroutine, everything else funnels frames through the out channel.
type Gateway struct {
	log    *log.Logger
	broker *broker.Broker
	ctx    *zmq.Context
	pull   *zmq.Socket
	pub    *zmq.Socket
	out    chan pubFrame

	mu         sync.Mutex
	forwarders map[int64]chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewGateway(logger *log.Logger, b *broker.Broker, cfg *config.Config) (*Gateway, error) {
	ctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq context: %w", err)
	}

	pull, err := ctx.NewSocket(zmq.PULL)
	if err != nil {
		ctx.Term()
		return nil, fmt.Errorf("new pull socket: %w", err)
	}
	if err := pull.Bind(cfg.ZmqPullAddr); err != nil {
		pull.Close()
		ctx.Term()
		return nil, fmt.Errorf("bind %s: %w", cfg.ZmqPullAddr, err)
	}
	if err := pull.SetRcvtimeo(recvTimeout); err != nil {
		pull.Close()
		ctx.Term()
		return nil, fmt.Errorf("set recv timeout: %w", err)
	}

	pub, err := ctx.NewSocket(zmq.PUB)
	if err != nil {
		pull.Close()
		ctx.Term()
		return nil, fmt.Errorf("new pub socket: %w", err)
	}
	if err := pub.Bind(cfg.ZmqPubAddr); err != nil {
		pull.Close()
		pub.Close()
		ctx.Term()
		return nil, fmt.Errorf("bind %s: %w", cfg.ZmqPubAddr, err)
	}

	return &Gateway{
		log:        logger,
		broker:     b,
		ctx:        ctx,
		pull:       pull,
		pub:        pub,
		out:        make(chan pubFrame, pubQueueSize),
		forwarders: make(map[int64]chan struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func (g *Gateway) Run() error {
	g.log.Println("zmq gateway started")
	defer close(g.done)

	go g.publishLoop()

	for {
		select {
		case <-g.stop:
			return nil
		default:
		}

		raw, err := g.pull.RecvBytes(0)
		if err != nil {
			if zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN) {
				continue
			}
			return fmt.Errorf("zmq recv: %w", err)
		}

		var env RequestEnvelope
		if err := msgpack.Unmarshal(raw, &env); err != nil {
			g.log.Println("bad envelope:", err)
			continue
		}

		g.serve(&env)
	}
}

func (g *Gateway) serve(env *RequestEnvelope) {
	switch env.Service {
	case ServiceHello:
		g.handleHello(env)
	case ServiceBye:
		g.handleBye(env)
	default:
		req, err := toRequest(env)
		if err != nil {
			g.log.Printf("mailbox %d: %v", env.Mailbox, err)
			g.publish(mailboxTopic(env.Mailbox), toReply(env.ID, broker.FailResponse(broker.TextBadRequest)))
			return
		}

		if !g.broker.Submit(req) {
			g.publish(mailboxTopic(env.Mailbox), toReply(env.ID, broker.FailResponse(broker.TextBusy)))
		}
	}
}

// handleHello grants a mailbox. The grant is published under the hello topic
// with the client's correlation id; from then on the client subscribes to
// its mailbox topic.
func (g *Gateway) handleHello(env *RequestEnvelope) {
	mailbox, recv := g.broker.Directory().Register()

	stop := make(chan struct{})
	g.mu.Lock()
	g.forwarders[mailbox] = stop
	g.mu.Unlock()

	go g.forward(mailbox, recv, stop)

	g.log.Printf("granted mailbox %d to hello %s", mailbox, env.ID)
	g.publish(helloTopic(env.ID), &ReplyEnvelope{ID: env.ID, Mailbox: mailbox})
}

func (g *Gateway) handleBye(env *RequestEnvelope) {
	g.mu.Lock()
	stop, ok := g.forwarders[env.Mailbox]
	if ok {
		delete(g.forwarders, env.Mailbox)
	}
	g.mu.Unlock()

	if !ok {
		g.log.Printf("bye for unknown mailbox %d", env.Mailbox)
		return
	}

	close(stop)
	if !g.broker.Submit(&broker.Request{Mailbox: env.Mailbox, Logout: &broker.Logout{}}) {
		g.log.Printf("could not enqueue logout for mailbox %d", env.Mailbox)
	}
	g.broker.Directory().Deregister(env.Mailbox)
}

// forward drains one mailbox into the publish queue.
func (g *Gateway) forward(mailbox int64, recv <-chan *broker.ServerMessage, stop chan struct{}) {
	topic := mailboxTopic(mailbox)

	for {
		select {
		case msg := <-recv:
			g.publish(topic, toReply(uuid.NewString(), msg))
		case <-stop:
			return
		case <-g.stop:
			return
		}
	}
}

func (g *Gateway) publish(topic string, reply *ReplyEnvelope) {
	payload, err := msgpack.Marshal(reply)
	if err != nil {
		g.log.Println("marshal reply:", err)
		return
	}

	select {
	case g.out <- pubFrame{topic: topic, payload: payload}:
	case <-g.stop:
	}
}

func (g *Gateway) publishLoop() {
	for {
		select {
		case frame := <-g.out:
			if _, err := g.pub.SendMessage(frame.topic, frame.payload); err != nil {
				g.log.Println("zmq publish:", err)
			}
		case <-g.stop:
			return
		}
	}
}

// Shutdown stops the loops and releases the sockets. Safe to call more than
// once.
func (g *Gateway) Shutdown() error {
	g.stopOnce.Do(func() { close(g.stop) })
	<-g.done

	g.pull.Close()
	g.pub.Close()
	return g.ctx.Term()
}
