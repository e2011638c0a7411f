package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifierFor(t *testing.T, handler http.HandlerFunc) *HTTPVerifier {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPVerifier(server.URL, 5*time.Second)
}

func TestVerifyAcceptsValidTicket(t *testing.T) {
	var gotBody []byte
	v := verifierFor(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		// Some verification services label their JSON verdicts text/plain;
		// the verdict must still be honored.
		w.Header().Set("Content-Type", "text/plain")
		json.NewEncoder(w).Encode(map[string]any{
			"valid":       true,
			"external_id": "steam:76561198000000000",
		})
	})

	verdict, err := v.Verify(context.Background(), []byte("ticket-bytes"))
	require.NoError(t, err)
	assert.True(t, verdict.OK)
	assert.Equal(t, "steam:76561198000000000", verdict.ExternalID)
	assert.Equal(t, []byte("ticket-bytes"), gotBody, "the raw ticket should be posted as the body")
}

func TestVerifyRejectedTicketIsNotAnError(t *testing.T) {
	v := verifierFor(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"valid":  false,
			"reason": "Ticket expired",
		})
	})

	verdict, err := v.Verify(context.Background(), []byte("stale"))
	require.NoError(t, err, "a rejected ticket is a verdict, not a transport failure")
	assert.False(t, verdict.OK)
	assert.Equal(t, "Ticket expired", verdict.Reason)
}

func TestVerifyNon200IsAnError(t *testing.T) {
	v := verifierFor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := v.Verify(context.Background(), []byte("ticket"))
	assert.Error(t, err)
}

func TestVerifyTransportFailureIsAnError(t *testing.T) {
	// Nothing listens here.
	v := NewHTTPVerifier("http://127.0.0.1:1/verify", time.Second)

	_, err := v.Verify(context.Background(), []byte("ticket"))
	assert.Error(t, err)
}

func TestVerifyHonorsContext(t *testing.T) {
	v := verifierFor(t, func(w http.ResponseWriter, r *http.Request) {
		// Stall past the caller's deadline, but return eventually so the
		// test server can shut down.
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := v.Verify(ctx, []byte("ticket"))
	assert.Error(t, err)
}
