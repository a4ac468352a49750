package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/climalink/climalink-core/internal/auth"
)

// wsTicketTTL is how long a WebSocket ticket stays valid after issue.
const wsTicketTTL = 30 * time.Second

// ticketCleanupInterval is how often expired tickets are swept.
const ticketCleanupInterval = time.Minute

type ticketEntry struct {
	userID  string
	role    auth.Role
	expires time.Time
}

type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin verifies credentials and returns a session with access and
// refresh tokens.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleRefresh exchanges a refresh token for a new session.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	sess, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleLogout revokes a refresh token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}
	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}
	if s.users == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"id":    claims.Subject,
			"email": claims.Email,
			"role":  claims.Role,
		})
		return
	}

	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleWSTicket issues a short-lived single-use ticket that authenticates
// the subsequent WebSocket upgrade. Browsers cannot set an Authorization
// header on WebSocket connections, so the token moves out-of-band.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		writeInternalError(w, "ticket generation failed")
		return
	}
	ticket := hex.EncodeToString(buf)

	s.tickets.mu.Lock()
	s.tickets.tickets[ticket] = ticketEntry{
		userID:  claims.Subject,
		role:    claims.Role,
		expires: time.Now().Add(wsTicketTTL),
	}
	s.tickets.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// validateTicket consumes a ticket. Tickets are single-use.
func (s *Server) validateTicket(ticket string) (ticketEntry, bool) {
	s.tickets.mu.Lock()
	defer s.tickets.mu.Unlock()

	entry, ok := s.tickets.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(s.tickets.tickets, ticket)
	if time.Now().After(entry.expires) {
		return ticketEntry{}, false
	}
	return entry, true
}

// cleanTicketsLoop periodically drops expired tickets that were never used.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			s.tickets.mu.Lock()
			for t, entry := range s.tickets.tickets {
				if now.After(entry.expires) {
					delete(s.tickets.tickets, t)
				}
			}
			s.tickets.mu.Unlock()
		}
	}
}
