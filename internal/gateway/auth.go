package gateway

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Alexandru89754/TestPV-V2/internal/identity"
	"github.com/Alexandru89754/TestPV-V2/internal/remote"
	"github.com/Alexandru89754/TestPV-V2/internal/store"
)

// SetParticipant normalizes and stores a participant code as the active
// identity for anonymous chat flows.
// POST /api/participant
func (s *Server) SetParticipant(c echo.Context) error {
	var payload struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	code, err := identity.Normalize(payload.Code)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid participant code"})
	}
	if err := s.store.Set(store.ParticipantKey(), code); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store participant"})
	}
	return c.JSON(http.StatusOK, map[string]string{"participant": code})
}

// Login exchanges credentials for a token and installs it locally.
// POST /api/auth/login
func (s *Server) Login(c echo.Context) error {
	return s.authenticate(c, s.backend.Login)
}

// Register creates an account and installs its first token.
// POST /api/auth/register
func (s *Server) Register(c echo.Context) error {
	return s.authenticate(c, s.backend.Register)
}

func (s *Server) authenticate(c echo.Context, call func(context.Context, remote.Credentials) (*remote.TokenResponse, error)) error {
	var creds remote.Credentials
	if err := c.Bind(&creds); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if creds.Email == "" || creds.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email and password are required"})
	}

	resp, err := call(c.Request().Context(), creds)
	if err != nil {
		return s.remoteError(c, err)
	}

	if err := s.store.Set(store.TokenKey(), resp.AccessToken); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store token"})
	}
	if err := s.store.Set(store.UserEmailKey(), creds.Email); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to store email"})
	}
	s.backend.SetToken(resp.AccessToken)

	return c.JSON(http.StatusOK, map[string]string{"access_token": resp.AccessToken})
}

// Logout tears the local session down. The remote call is best effort; the
// active identity's storage keys and the auth scalars always go.
// POST /api/auth/logout
func (s *Server) Logout(c echo.Context) error {
	if id, ok := s.activeIdentity(); ok {
		mgr, _, err := s.registry.Get(id)
		if err == nil {
			if err := mgr.Logout(c.Request().Context()); err != nil {
				s.log.Error().Err(err).Msg("logout failed")
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to log out"})
			}
		}
		s.registry.Drop(id)
	} else {
		// No identity resolved; still drop whatever auth scalars exist.
		for _, key := range []string{store.TokenKey(), store.UserEmailKey(), store.ParticipantKey(), store.ActiveTabKey()} {
			_ = s.store.Remove(key)
		}
	}
	s.backend.SetToken("")
	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

// Me proxies the token check to the backend.
// GET /api/auth/me
func (s *Server) Me(c echo.Context) error {
	id, err := s.backend.Me(c.Request().Context())
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, id)
}
