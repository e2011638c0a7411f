// Package auth verifies client credentials. Username/password logins are
// checked locally; platform tickets are verified against an external
// HTTP service.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Verification is the outcome of a ticket check.
type Verification struct {
	OK         bool
	ExternalID string
	Reason     string
}

// Verifier validates an opaque platform ticket.
type Verifier interface {
	Verify(ctx context.Context, ticket []byte) (Verification, error)
}

// HTTPVerifier posts tickets to an external verification endpoint.
type HTTPVerifier struct {
	logger zerolog.Logger
	rest   *resty.Client
	url    string
}

// verifyResponse is the JSON body returned by the verification service.
type verifyResponse struct {
	Valid      bool   `json:"valid"`
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

// NewHTTPVerifier creates a verifier for the given endpoint URL.
func NewHTTPVerifier(url string, timeout time.Duration) *HTTPVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPVerifier{
		logger: log.With().Str("component", "auth").Logger(),
		rest:   resty.New().SetTimeout(timeout),
		url:    url,
	}
}

// Verify posts the ticket and interprets the service's verdict. A
// transport failure is an error; a rejected ticket is not.
func (v *HTTPVerifier) Verify(ctx context.Context, ticket []byte) (Verification, error) {
	var body verifyResponse
	response, err := v.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(ticket).
		SetResult(&body).
		// The verdict body is JSON whether or not the service says so;
		// without this, a text/plain response leaves body zero-valued and
		// every ticket looks rejected.
		ForceContentType("application/json").
		Post(v.url)
	if err != nil {
		return Verification{}, fmt.Errorf("ticket verification request failed: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return Verification{}, fmt.Errorf("ticket verification returned status %d", response.StatusCode())
	}

	if !body.Valid {
		v.logger.Debug().Str("reason", body.Reason).Msg("ticket rejected by verifier")
		return Verification{OK: false, Reason: body.Reason}, nil
	}
	return Verification{OK: true, ExternalID: body.ExternalID}, nil
}
