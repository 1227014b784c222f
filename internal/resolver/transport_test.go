package resolver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/device-entitlement/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Endpoint(t *testing.T) {
	tr := NewHTTPTransport("https://license.example.com/", time.Second)
	assert.Equal(t, "https://license.example.com/api/device/status", tr.Endpoint())
}

func TestHTTPTransport_StatusCodes(t *testing.T) {
	cases := []struct {
		name string
		code int
		want error
	}{
		{"bad request", http.StatusBadRequest, ErrRejected},
		{"not found", http.StatusNotFound, ErrRejected},
		{"rate limited", http.StatusTooManyRequests, ErrUnreachable},
		{"bad gateway", http.StatusBadGateway, ErrUnreachable},
		{"unavailable", http.StatusServiceUnavailable, ErrUnreachable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := statusServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.code, dto.ErrorResponse{Error: "nope"})
			})
			resp, err := tr.Status(context.Background(), fp)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestHTTPTransport_DecodesReply(t *testing.T) {
	serverTime := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := statusServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, dto.DeviceStatusResponse{
			ServerTime: serverTime,
			DeviceHash: fp,
			TrialEndAt: serverTime.Add(time.Hour),
			Allowed:    true,
			Reason:     "trial",
		})
	})

	resp, err := tr.Status(context.Background(), fp)
	require.NoError(t, err)
	assert.True(t, serverTime.Equal(resp.ServerTime))
	assert.Equal(t, "trial", resp.Reason)
	assert.True(t, resp.Allowed)
}

func TestHTTPTransport_Unreachable(t *testing.T) {
	tr := NewHTTPTransport("http://127.0.0.1:1", 500*time.Millisecond)
	_, err := tr.Status(context.Background(), fp)
	assert.ErrorIs(t, err, ErrUnreachable)
}
