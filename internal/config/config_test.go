package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr = "localhost:8080"
		pull = "tcp://127.0.0.1:5555"
		pub  = "tcp://127.0.0.1:5556"
		dir  = "/var/lib/msgbroker"
		dsn  = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		orig = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name    string
		addr    string
		pull    string
		pub     string
		backend string
		dataDir string
		dsn     string
		err     bool
	}{
		{
			name:    "valid file backend",
			addr:    addr,
			pull:    pull,
			pub:     pub,
			backend: BackendFile,
			dataDir: dir,
			err:     false,
		},
		{
			name:    "valid sqlite backend",
			addr:    addr,
			backend: BackendSqlite,
			dataDir: dir,
			err:     false,
		},
		{
			name:    "valid postgres backend",
			addr:    addr,
			backend: BackendPostgres,
			dsn:     dsn,
			err:     false,
		},
		{
			name:    "empty address",
			addr:    "",
			backend: BackendFile,
			dataDir: dir,
			err:     true,
		},
		{
			name:    "pull address without pub address",
			addr:    addr,
			pull:    pull,
			backend: BackendFile,
			dataDir: dir,
			err:     true,
		},
		{
			name:    "file backend without data dir",
			addr:    addr,
			backend: BackendFile,
			err:     true,
		},
		{
			name:    "postgres backend without DSN",
			addr:    addr,
			backend: BackendPostgres,
			err:     true,
		},
		{
			name:    "unknown backend",
			addr:    addr,
			backend: "cassandra",
			dataDir: dir,
			err:     true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.pull, tc.pub, tc.backend, tc.dataDir, tc.dsn, orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ListenAddr, "expected listen address to match")
			assert.Equal(t, tc.backend, config.StoreBackend, "expected store backend to match")
			assert.Equal(t, orig, config.AllowedOrigins, "expected allowed origins to match")
		})
	}
}
