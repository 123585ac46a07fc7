package gateway

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Alexandru89754/TestPV-V2/internal/chat"
	"github.com/Alexandru89754/TestPV-V2/internal/remote"
	"github.com/Alexandru89754/TestPV-V2/internal/session"
)

// Chat sends one user message through the session manager and returns the
// reply together with the updated transcript.
// POST /api/chat
func (s *Server) Chat(c echo.Context) error {
	var payload struct {
		Message string `json:"message"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	mgr, err := s.managerFor(c)
	if err != nil {
		return err
	}

	before := len(mgr.Messages())
	if err := mgr.Send(c.Request().Context(), payload.Message); err != nil {
		if errors.Is(err, session.ErrSendInFlight) {
			return c.JSON(http.StatusConflict, map[string]string{"error": "a message is already being sent"})
		}
		s.log.Error().Err(err).Msg("send failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to send message"})
	}

	messages := mgr.Messages()
	resp := map[string]interface{}{
		"status":   mgr.Status(),
		"messages": messages,
	}
	// Send is a no-op on empty input; only report a reply when the
	// transcript moved.
	if len(messages) > before {
		resp["reply"] = lastBotText(messages)
	}
	return c.JSON(http.StatusOK, resp)
}

// History returns the active identity's transcript.
// GET /api/chat/history
func (s *Server) History(c echo.Context) error {
	mgr, err := s.managerFor(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"identity":   mgr.Identity(),
		"session_id": mgr.SessionID(),
		"status":     mgr.Status(),
		"messages":   mgr.Messages(),
	})
}

// ClearChat resets the transcript to the "cleared" seed. The session id is
// untouched.
// POST /api/chat/clear
func (s *Server) ClearChat(c echo.Context) error {
	mgr, err := s.managerFor(c)
	if err != nil {
		return err
	}
	if err := mgr.Clear(); err != nil {
		s.log.Error().Err(err).Msg("clear failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to clear chat"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": mgr.Messages()})
}

// SetAnxiety records the pre-chat anxiety rating attached to the first
// message of the session.
// POST /api/chat/anxiety
func (s *Server) SetAnxiety(c echo.Context) error {
	var payload struct {
		Level int `json:"level"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	mgr, err := s.managerFor(c)
	if err != nil {
		return err
	}
	if err := mgr.SetAnxietyLevel(payload.Level); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

// EndChat archives the session to the backend and resets the transcript
// under a fresh session id.
// POST /api/chat/end
func (s *Server) EndChat(c echo.Context) error {
	mgr, err := s.managerFor(c)
	if err != nil {
		return err
	}

	if err := mgr.CloseSession(c.Request().Context()); err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyTranscript):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "nothing to save"})
		case errors.Is(err, session.ErrNoSessionID):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "no session id"})
		default:
			return s.remoteError(c, err)
		}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "archived",
		"session_id": mgr.SessionID(),
		"messages":   mgr.Messages(),
	})
}

// managerFor returns the session manager for the active identity, or
// writes the 401 the browser clients expect when none is resolvable.
func (s *Server) managerFor(c echo.Context) (*session.Manager, error) {
	id, ok := s.activeIdentity()
	if !ok {
		return nil, c.JSON(http.StatusUnauthorized, map[string]string{
			"error":    "no identity",
			"redirect": "/login",
		})
	}
	mgr, _, err := s.registry.Get(id)
	if err != nil {
		s.log.Error().Err(err).Str("identity", id).Msg("failed to open session")
		return nil, c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open session"})
	}
	return mgr, nil
}

// remoteError maps a backend failure onto the gateway response: backend
// statuses pass through with their detail, transport failures become 502.
func (s *Server) remoteError(c echo.Context, err error) error {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) {
		detail := apiErr.Detail
		if detail == "" {
			detail = http.StatusText(apiErr.Status)
		}
		return c.JSON(apiErr.Status, map[string]string{"error": detail})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": "backend unreachable"})
}

func lastBotText(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleBot {
			return messages[i].Text
		}
	}
	return ""
}
