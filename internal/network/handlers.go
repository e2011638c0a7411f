package network

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"

	"github.com/slonopotamus/Atto/internal/protocol"
)

// handleRequest dispatches one decoded request. Most handlers answer
// synchronously on the reader goroutine; platform-ticket logins and
// matchmaking waits answer later from their own goroutine.
func (c *Conn) handleRequest(requestID int64, request protocol.ClientRequest) {
	c.logger.Debug().
		Int64("request_id", requestID).
		Stringer("kind", request.Kind()).
		Msg("request received")

	switch req := request.(type) {
	case *protocol.LoginRequest:
		c.handleLogin(requestID, req)
	case *protocol.LogoutRequest:
		c.handleLogout(requestID, req)
	case *protocol.CreateSessionRequest:
		c.handleCreateSession(requestID, req)
	case *protocol.UpdateSessionRequest:
		c.handleUpdateSession(requestID, req)
	case *protocol.DestroySessionRequest:
		c.handleDestroySession(requestID, req)
	case *protocol.FindSessionsRequest:
		c.handleFindSessions(requestID, req)
	case *protocol.QueryServerUtcTimeRequest:
		c.sendResult(requestID, &protocol.QueryServerUtcTimeResult{ServerTime: time.Now().UTC()})
	case *protocol.StartMatchmakingRequest:
		c.handleStartMatchmaking(requestID, req)
	case *protocol.CancelMatchmakingRequest:
		c.handleCancelMatchmaking(requestID, req)
	}
}

// newUserID derives a fresh opaque user id. Identity is per-login, so
// the id hashes a random GUID rather than anything about the user.
func newUserID() uint64 {
	guid := uuid.New()
	h := fnv.New64a()
	h.Write(guid[:])
	return h.Sum64()
}

func (c *Conn) handleLogin(requestID int64, req *protocol.LoginRequest) {
	if req.BuildUniqueID != c.server.buildUniqueID {
		err := fmt.Sprintf("Mismatched build id. Server: %d != Client: %d", c.server.buildUniqueID, req.BuildUniqueID)
		c.logger.Debug().Str("error", err).Msg("login rejected")
		c.sendResult(requestID, &protocol.LoginResult{Error: err})
		return
	}

	switch req.Credential.Kind {
	case protocol.CredentialUsernamePassword:
		c.loginUsernamePassword(requestID, req.Credential)
	case protocol.CredentialPlatformTicket:
		c.loginPlatformTicket(requestID, req.Credential)
	default:
		c.sendResult(requestID, &protocol.LoginResult{Error: "Unsupported credential"})
	}
}

func (c *Conn) loginUsernamePassword(requestID int64, cred protocol.Credential) {
	if cred.Username == "" {
		c.sendResult(requestID, &protocol.LoginResult{Error: "Username must not be empty"})
		return
	}
	// Placeholder auth, anyone whose password matches their username
	// gets in.
	if cred.Username != cred.Password {
		c.sendResult(requestID, &protocol.LoginResult{Error: "Wrong password"})
		return
	}

	id := newUserID()
	c.addUser(id)
	c.logger.Debug().Str("username", cred.Username).Uint64("user_id", id).Msg("login succeeded")
	c.sendResult(requestID, &protocol.LoginResult{UserID: id})
}

// loginPlatformTicket verifies the ticket against the external service
// without blocking the reader goroutine. The connection may already be
// gone when the verdict arrives; sendResult tolerates that.
func (c *Conn) loginPlatformTicket(requestID int64, cred protocol.Credential) {
	verifier := c.server.verifier
	if verifier == nil {
		c.sendResult(requestID, &protocol.LoginResult{Error: "Platform login is not available"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		verdict, err := verifier.Verify(ctx, []byte(cred.Ticket))
		if err != nil {
			c.logger.Warn().Err(err).Msg("ticket verification failed")
			c.sendResult(requestID, &protocol.LoginResult{Error: "Ticket verification failed"})
			return
		}
		if !verdict.OK {
			reason := verdict.Reason
			if reason == "" {
				reason = "Invalid ticket"
			}
			c.sendResult(requestID, &protocol.LoginResult{Error: reason})
			return
		}

		id := newUserID()
		c.addUser(id)
		c.logger.Debug().
			Str("external_id", verdict.ExternalID).
			Uint64("user_id", id).
			Msg("platform login succeeded")
		c.sendResult(requestID, &protocol.LoginResult{UserID: id})
	}()
}

// handleLogout removes the user and everything attached to them: their
// session and the connection's pending matchmaking request.
func (c *Conn) handleLogout(requestID int64, req *protocol.LogoutRequest) {
	success := c.removeUser(req.UserID)
	if success {
		c.server.matchmaker.RemoveSession(req.UserID)
		if c.server.matchmaker.Cancel(c.matchmakingToken()) {
			c.clearMatchmakingToken()
		}
	}
	c.sendResult(requestID, &protocol.LogoutResult{Success: success})
}

func (c *Conn) handleCreateSession(requestID int64, req *protocol.CreateSessionRequest) {
	success := c.hasUser(req.OwningUserID) &&
		c.server.matchmaker.CreateSession(req.OwningUserID, req.SessionInfo)
	c.sendResult(requestID, &protocol.CreateSessionResult{Success: success})
}

func (c *Conn) handleUpdateSession(requestID int64, req *protocol.UpdateSessionRequest) {
	success := c.hasUser(req.OwningUserID) &&
		c.server.matchmaker.UpdateSession(req.OwningUserID, req.UpdatableInfo)
	c.sendResult(requestID, &protocol.UpdateSessionResult{Success: success})
}

func (c *Conn) handleDestroySession(requestID int64, req *protocol.DestroySessionRequest) {
	success := c.hasUser(req.OwningUserID) &&
		c.server.matchmaker.RemoveSession(req.OwningUserID)
	c.sendResult(requestID, &protocol.DestroySessionResult{Success: success})
}

// handleFindSessions answers with an empty list rather than an error
// when the searcher is not authenticated.
func (c *Conn) handleFindSessions(requestID int64, req *protocol.FindSessionsRequest) {
	var sessions []protocol.SessionInfo
	if c.hasUser(req.SearchingUserID) {
		sessions = c.server.matchmaker.FindSessions(int32(c.userCount()), req.Params, req.MaxResults)
		c.logger.Debug().Int("found", len(sessions)).Int32("search_id", req.SearchID).Msg("sessions found")
	}
	c.sendResult(requestID, &protocol.FindSessionsResult{
		SearchID: req.SearchID,
		Sessions: sessions,
	})
}

func (c *Conn) handleStartMatchmaking(requestID int64, req *protocol.StartMatchmakingRequest) {
	if fail := c.validateMatchmakingParty(req.Users); fail != "" {
		c.logger.Debug().Str("error", fail).Msg("matchmaking rejected")
		c.sendResult(requestID, &protocol.StartMatchmakingResult{
			Outcome: protocol.MatchmakingFailed,
			Error:   fail,
		})
		return
	}

	token, outcome := c.server.matchmaker.Enqueue(int32(len(req.Users)), req)
	if !c.takeMatchmakingToken(token) {
		c.server.matchmaker.Cancel(token)
		c.sendResult(requestID, &protocol.StartMatchmakingResult{
			Outcome: protocol.MatchmakingFailed,
			Error:   "Already in matchmaking queue",
		})
		return
	}

	// The wait may take minutes; the reader goroutine moves on while
	// this goroutine delivers the eventual outcome.
	go func() {
		result := <-outcome
		c.clearMatchmakingToken()
		c.logger.Debug().Stringer("outcome", result.Outcome).Msg("matchmaking finished")
		c.sendResult(requestID, &result)
	}()
}

// validateMatchmakingParty checks that the whole local party, and only
// it, enters matchmaking. Returns an error string, empty when valid.
func (c *Conn) validateMatchmakingParty(users []uint64) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.users) == 0 {
		return "Not authenticated"
	}
	if len(c.users) != len(users) {
		return "All connected users must enter matchmaking"
	}
	for _, id := range users {
		if _, ok := c.users[id]; !ok {
			return fmt.Sprintf("User %016x is not logged in", id)
		}
	}
	if c.mmToken != uuid.Nil {
		return "Already in matchmaking queue"
	}
	return ""
}

func (c *Conn) handleCancelMatchmaking(requestID int64, req *protocol.CancelMatchmakingRequest) {
	success := false
	if c.hasUser(req.UserID) {
		if c.server.matchmaker.Cancel(c.matchmakingToken()) {
			c.clearMatchmakingToken()
			success = true
		}
	}
	c.sendResult(requestID, &protocol.CancelMatchmakingResult{Success: success})
}
