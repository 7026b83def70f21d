package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOriginChecker(t *testing.T) {
	t.Run("no configured origins falls back to upgrader default", func(t *testing.T) {
		assert.Nil(t, originChecker(nil))
	})

	check := originChecker([]string{"http://localhost:3000"})

	tcases := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{
			name:    "allowed origin",
			origin:  "http://localhost:3000",
			allowed: true,
		},
		{
			name:    "unknown origin",
			origin:  "http://evil.example",
			allowed: false,
		},
		{
			name:    "no origin header",
			origin:  "",
			allowed: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r := &http.Request{Header: http.Header{}}
			if tc.origin != "" {
				r.Header.Set("Origin", tc.origin)
			}
			assert.Equal(t, tc.allowed, check(r))
		})
	}
}
