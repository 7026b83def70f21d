package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/akarczewski/go-msgbroker/internal/broker"
	"github.com/akarczewski/go-msgbroker/internal/config"
	"github.com/akarczewski/go-msgbroker/internal/gateway"
	"github.com/akarczewski/go-msgbroker/internal/stats"
	"github.com/akarczewski/go-msgbroker/internal/store"
	"github.com/akarczewski/go-msgbroker/internal/zmqgw"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	zmqPullAddr    string
	zmqPubAddr     string
	backend        string
	dataDir        string
	dsn            string
	allowedOrigins stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "websocket gateway address")
	flag.StringVar(&zmqPullAddr, "zmq-pull-addr", "", "zmq endpoint for inbound requests, e.g. tcp://*:5555")
	flag.StringVar(&zmqPubAddr, "zmq-pub-addr", "", "zmq endpoint for outbound fan-out, e.g. tcp://*:5556")
	flag.StringVar(&backend, "backend", config.BackendFile, "store backend: file, sqlite or postgres")
	flag.StringVar(&dataDir, "data-dir", "data", "directory for file and sqlite backends")
	flag.StringVar(&dsn, "dsn", "", "postgres connection string")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[msgbroker] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, zmqPullAddr, zmqPubAddr, backend, dataDir, dsn, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	repo, err := openStore(cfg)
	if err != nil {
		logger.Fatal("store open:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Fatal("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	b := broker.New(logger, repo, statsUpdater)
	ws := gateway.NewServer(mux, logger, b, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run()
	}()
	go func() {
		errCh <- ws.Start()
	}()

	var zg *zmqgw.Gateway
	if cfg.ZmqPullAddr != "" {
		zg, err = zmqgw.NewGateway(logger, b, cfg)
		if err != nil {
			logger.Fatal("zmq gateway:", err)
		}
		go func() {
			errCh <- zg.Run()
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("fatal:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := ws.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("websocket gateway shutdown:", err)
	}

	if zg != nil {
		if err := zg.Shutdown(); err != nil {
			logger.Fatalln("zmq gateway shutdown:", err)
		}
	}

	logger.Println("shutting down broker...")
	if err := b.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("broker shutdown:", err)
	}

	logger.Println("shutdown complete")
}

func openStore(cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreBackend {
	case config.BackendSqlite:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return store.NewSqliteStore(filepath.Join(cfg.DataDir, "broker.db"))
	case config.BackendPostgres:
		return store.NewPgStore(cfg.DatabaseDSN)
	default:
		return store.NewFileStore(cfg.DataDir)
	}
}
