package config

import (
	"fmt"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendSqlite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	// ListenAddr is the address of the HTTP listener serving the
	// websocket endpoint and debug vars.
	ListenAddr string
	// ZmqPullAddr and ZmqPubAddr are the ZeroMQ endpoints for inbound
	// requests and outbound fan-out. Empty disables the ZeroMQ gateway.
	ZmqPullAddr string
	ZmqPubAddr  string

	StoreBackend string
	// DataDir holds the table files of the file backend and the database
	// file of the sqlite backend.
	DataDir string
	// DatabaseDSN is the postgres connection string.
	DatabaseDSN string

	AllowedOrigins []string
}

func NewConfig(listenAddr, zmqPullAddr, zmqPubAddr, backend, dataDir, databaseDSN string, allowedOrigins []string) (*Config, error) {
	if listenAddr == "" {
		return nil, fmt.Errorf("listen address cannot be empty")
	}
	if (zmqPullAddr == "") != (zmqPubAddr == "") {
		return nil, fmt.Errorf("zmq pull and pub addresses must be set together")
	}

	switch backend {
	case BackendFile, BackendSqlite:
		if dataDir == "" {
			return nil, fmt.Errorf("data directory cannot be empty for the %s backend", backend)
		}
	case BackendPostgres:
		if databaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}

	return &Config{
		ListenAddr:     listenAddr,
		ZmqPullAddr:    zmqPullAddr,
		ZmqPubAddr:     zmqPubAddr,
		StoreBackend:   backend,
		DataDir:        dataDir,
		DatabaseDSN:    databaseDSN,
		AllowedOrigins: allowedOrigins,
	}, nil
}
