// Package gateway exposes the chat session manager over the REST surface
// the browser pages consumed, plus a websocket channel for live rendering.
// It proxies auth, upload and the social endpoints to the remote backend.
package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/Alexandru89754/TestPV-V2/internal/config"
	"github.com/Alexandru89754/TestPV-V2/internal/policy"
	"github.com/Alexandru89754/TestPV-V2/internal/remote"
	"github.com/Alexandru89754/TestPV-V2/internal/session"
	"github.com/Alexandru89754/TestPV-V2/internal/store"
)

// Server wires the gateway's handlers together. It serves one browser
// profile: the auth scalars in the store play the role localStorage played.
type Server struct {
	cfg      *config.Config
	store    store.Store
	backend  *remote.Client
	policy   *policy.Engine
	registry *Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a gateway server.
func NewServer(cfg *config.Config, st store.Store, backend *remote.Client, eng *policy.Engine, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		backend: backend,
		policy:  eng,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Local companion service; the browser pages are served
				// from arbitrary origins.
				return true
			},
		},
	}
	s.registry = NewRegistry(func(identity string, sink session.Sink) (*session.Manager, error) {
		return session.NewManager(identity, session.Options{
			Store:    st,
			Backend:  backend,
			Sink:     sink,
			Logger:   log,
			Greeting: cfg.GreetingText,
			Cleared:  cfg.ClearedText,
		})
	})
	return s
}

// Echo builds the configured echo server.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(s.requestLogger)
	e.Use(s.authGuard)

	e.GET("/health", s.Health)

	e.POST("/api/participant", s.SetParticipant)
	e.POST("/api/auth/login", s.Login)
	e.POST("/api/auth/register", s.Register)
	e.POST("/api/auth/logout", s.Logout)
	e.GET("/api/auth/me", s.Me)

	e.POST("/api/chat", s.Chat)
	e.GET("/api/chat/history", s.History)
	e.POST("/api/chat/clear", s.ClearChat)
	e.POST("/api/chat/anxiety", s.SetAnxiety)
	e.POST("/api/chat/end", s.EndChat)
	e.GET("/ws/chat", s.ChatSocket)

	e.POST("/api/upload-video", s.UploadVideo)

	e.GET("/api/forum/posts", s.ListPosts)
	e.POST("/api/forum/posts", s.CreatePost)
	e.GET("/api/forum/posts/:post_id/comments", s.ListComments)
	e.POST("/api/forum/posts/:post_id/comments", s.CreateComment)

	e.GET("/api/friends", s.ListFriends)
	e.GET("/api/friends/requests/incoming", s.IncomingRequests)
	e.GET("/api/friends/requests/outgoing", s.OutgoingRequests)
	e.POST("/api/friends/request/:user_id", s.SendFriendRequest)
	e.POST("/api/friends/accept/:request_id", s.AcceptFriendRequest)
	e.POST("/api/friends/decline/:request_id", s.DeclineFriendRequest)

	e.GET("/api/profile/me", s.MyProfile)
	e.PUT("/api/profile/me", s.UpdateProfile)
	e.GET("/api/profile/search", s.SearchProfile)

	return e
}

// Health returns health status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "2.0.0",
	})
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		s.log.Debug().
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Msg("request")
		return err
	}
}
