package gateway

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Alexandru89754/TestPV-V2/internal/identity"
	"github.com/Alexandru89754/TestPV-V2/internal/policy"
	"github.com/Alexandru89754/TestPV-V2/internal/store"
)

// Route surfaces for the access policy.
const (
	surfacePublic  = "public"
	surfaceChat    = "chat"
	surfaceAccount = "account"
)

// authGuard verifies that the request carries the auth material its surface
// needs. It only checks presence; token validity is the backend's problem.
func (s *Server) authGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		surface := surfaceFor(c.Request().URL.Path)
		if surface == surfacePublic {
			return next(c)
		}

		state := s.authState()
		input := policy.Input{
			Surface:        surface,
			HasToken:       state.token != "",
			HasParticipant: state.participant != "",
		}

		decision, err := s.policy.Evaluate(c.Request().Context(), input)
		if err != nil {
			s.log.Error().Err(err).Msg("policy evaluation failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "policy evaluation failed"})
		}

		if decision != policy.DecisionAllow {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":    "login required",
				"redirect": "/login",
			})
		}
		return next(c)
	}
}

// surfaceFor classifies a path. Session close and everything social is
// account-scoped; the chat itself also accepts participant-code flows.
func surfaceFor(path string) string {
	switch {
	case path == "/health",
		path == "/api/participant",
		strings.HasPrefix(path, "/api/auth/"):
		return surfacePublic
	case path == "/api/chat/end",
		strings.HasPrefix(path, "/api/forum"),
		strings.HasPrefix(path, "/api/friends"),
		strings.HasPrefix(path, "/api/profile"),
		path == "/api/upload-video":
		return surfaceAccount
	case strings.HasPrefix(path, "/api/chat"), path == "/ws/chat":
		return surfaceChat
	default:
		return surfacePublic
	}
}

type authState struct {
	token       string
	email       string
	participant string
}

func (s *Server) authState() authState {
	token, _ := s.store.Get(store.TokenKey())
	email, _ := s.store.Get(store.UserEmailKey())
	participant, _ := s.store.Get(store.ParticipantKey())
	return authState{token: token, email: email, participant: participant}
}

// activeIdentity resolves the identity the chat surface is scoped to.
func (s *Server) activeIdentity() (string, bool) {
	state := s.authState()
	return identity.Resolve(identity.AuthState{
		ParticipantCode: state.participant,
		AccountEmail:    state.email,
	})
}
