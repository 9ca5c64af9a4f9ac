package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		db   pinger
		want string
	}{
		{"connected", fakePinger{}, `{"status":"ok","database":"connected"}`},
		{"database down", fakePinger{err: errors.New("refused")}, `{"status":"ok","database":"unavailable"}`},
		{"no database", nil, `{"status":"ok","database":"unavailable"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			NewHealthHandler(tc.db).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, tc.want, rr.Body.String())
		})
	}
}
