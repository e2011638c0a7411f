package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/slonopotamus/Atto/internal/protocol"
)

// LoginError is a login rejected by the server, as opposed to a
// transport failure.
type LoginError struct {
	Reason string
}

func (e *LoginError) Error() string { return e.Reason }

// Login authenticates with a username and password, returning the user
// id assigned by the server.
func (c *Client) Login(ctx context.Context, username, password string, buildUniqueID int32) (uint64, error) {
	return c.login(ctx, protocol.UsernamePassword(username, password), buildUniqueID)
}

// LoginWithTicket authenticates with an opaque platform ticket.
func (c *Client) LoginWithTicket(ctx context.Context, ticket string, buildUniqueID int32) (uint64, error) {
	return c.login(ctx, protocol.PlatformTicket(ticket), buildUniqueID)
}

func (c *Client) login(ctx context.Context, cred protocol.Credential, buildUniqueID int32) (uint64, error) {
	result, err := c.roundTrip(ctx, &protocol.LoginRequest{
		Credential:    cred,
		BuildUniqueID: buildUniqueID,
	})
	if err != nil {
		return 0, err
	}
	login, ok := result.(*protocol.LoginResult)
	if !ok {
		return 0, unexpectedResult(result)
	}
	if login.Error != "" {
		return 0, &LoginError{Reason: login.Error}
	}
	return login.UserID, nil
}

// Logout signs a user out.
func (c *Client) Logout(ctx context.Context, userID uint64) (bool, error) {
	result, err := c.roundTrip(ctx, &protocol.LogoutRequest{UserID: userID})
	if err != nil {
		return false, err
	}
	logout, ok := result.(*protocol.LogoutResult)
	if !ok {
		return false, unexpectedResult(result)
	}
	return logout.Success, nil
}

// CreateSession advertises a session owned by the given user.
func (c *Client) CreateSession(ctx context.Context, owningUserID uint64, info protocol.SessionInfo) (bool, error) {
	result, err := c.roundTrip(ctx, &protocol.CreateSessionRequest{
		OwningUserID: owningUserID,
		SessionInfo:  info,
	})
	if err != nil {
		return false, err
	}
	created, ok := result.(*protocol.CreateSessionResult)
	if !ok {
		return false, unexpectedResult(result)
	}
	return created.Success, nil
}

// UpdateSession replaces the mutable part of the user's session.
func (c *Client) UpdateSession(ctx context.Context, owningUserID uint64, info protocol.SessionUpdatableInfo) (bool, error) {
	result, err := c.roundTrip(ctx, &protocol.UpdateSessionRequest{
		OwningUserID:  owningUserID,
		UpdatableInfo: info,
	})
	if err != nil {
		return false, err
	}
	updated, ok := result.(*protocol.UpdateSessionResult)
	if !ok {
		return false, unexpectedResult(result)
	}
	return updated.Success, nil
}

// DestroySession withdraws the user's session.
func (c *Client) DestroySession(ctx context.Context, owningUserID uint64) (bool, error) {
	result, err := c.roundTrip(ctx, &protocol.DestroySessionRequest{OwningUserID: owningUserID})
	if err != nil {
		return false, err
	}
	destroyed, ok := result.(*protocol.DestroySessionResult)
	if !ok {
		return false, unexpectedResult(result)
	}
	return destroyed.Success, nil
}

// FindSessions searches advertised sessions matching the given params.
func (c *Client) FindSessions(ctx context.Context, searchingUserID uint64, params map[string]protocol.FindSessionsParam, searchID, maxResults int32) ([]protocol.SessionInfo, error) {
	result, err := c.roundTrip(ctx, &protocol.FindSessionsRequest{
		SearchingUserID: searchingUserID,
		Params:          params,
		SearchID:        searchID,
		MaxResults:      maxResults,
	})
	if err != nil {
		return nil, err
	}
	found, ok := result.(*protocol.FindSessionsResult)
	if !ok {
		return nil, unexpectedResult(result)
	}
	if found.SearchID != searchID {
		return nil, fmt.Errorf("search id mismatch: sent %d, got %d", searchID, found.SearchID)
	}
	return found.Sessions, nil
}

// QueryServerUtcTime asks for the server's wall clock.
func (c *Client) QueryServerUtcTime(ctx context.Context) (time.Time, error) {
	result, err := c.roundTrip(ctx, &protocol.QueryServerUtcTimeRequest{})
	if err != nil {
		return time.Time{}, err
	}
	t, ok := result.(*protocol.QueryServerUtcTimeResult)
	if !ok {
		return time.Time{}, unexpectedResult(result)
	}
	return t.ServerTime, nil
}

// StartMatchmaking enters the whole local party into matchmaking and
// blocks until the server reports an outcome, the context is canceled,
// or the connection drops.
func (c *Client) StartMatchmaking(ctx context.Context, users []uint64, params map[string]protocol.FindSessionsParam, timeout time.Duration) (*protocol.StartMatchmakingResult, error) {
	result, err := c.roundTrip(ctx, &protocol.StartMatchmakingRequest{
		Users:   users,
		Params:  params,
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	mm, ok := result.(*protocol.StartMatchmakingResult)
	if !ok {
		return nil, unexpectedResult(result)
	}
	return mm, nil
}

// CancelMatchmaking withdraws the connection's pending matchmaking
// request.
func (c *Client) CancelMatchmaking(ctx context.Context, userID uint64) (bool, error) {
	result, err := c.roundTrip(ctx, &protocol.CancelMatchmakingRequest{UserID: userID})
	if err != nil {
		return false, err
	}
	canceled, ok := result.(*protocol.CancelMatchmakingResult)
	if !ok {
		return false, unexpectedResult(result)
	}
	return canceled.Success, nil
}

func unexpectedResult(result protocol.ServerResult) error {
	if result == nil {
		return errors.New("missing result")
	}
	return fmt.Errorf("unexpected result kind %v", result.Kind())
}
