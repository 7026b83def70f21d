package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/akarczewski/go-msgbroker/internal/broker"
	"github.com/akarczewski/go-msgbroker/internal/config"
)

// Server is the websocket front of the broker. A single GET /ws endpoint
// upgrades the connection and binds it to a fresh mailbox; the same mux also
// carries the debug vars handler registered by the stats updater.
type Server struct {
	log      *log.Logger
	broker   *broker.Broker
	srv      *http.Server
	upgrader websocket.Upgrader
}

func NewServer(mux *http.ServeMux, logger *log.Logger, b *broker.Broker, cfg *config.Config) *Server {
	s := &Server{
		log:    logger,
		broker: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	s.srv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handlers.LoggingHandler(logger.Writer(), h),
	}

	return s
}

// originChecker allows the configured origins plus same-host requests. With
// no origins configured it falls back to the upgrader's same-origin default.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		_, ok := set[origin]
		return ok
	}
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("ws upgrade:", err)
		return
	}

	session, err := shortid.Generate()
	if err != nil {
		s.log.Println("generate session id:", err)
		conn.Close()
		return
	}

	mailbox, recv := s.broker.Directory().Register()
	s.log.Printf("[%s] connection from %s bound to mailbox %d", session, r.RemoteAddr, mailbox)

	client := NewClient(conn, s.broker, s.log, session, mailbox, recv)
	go client.Write()
	go client.Read()
}

func (s *Server) Start() error {
	s.log.Printf("Starting websocket gateway on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}
