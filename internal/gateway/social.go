package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Alexandru89754/TestPV-V2/internal/remote"
)

// Thin passthroughs to the backend's forum, friends and profile surfaces.
// The gateway adds nothing here beyond the auth guard and error mapping.

// ListPosts GET /api/forum/posts
func (s *Server) ListPosts(c echo.Context) error {
	posts, err := s.backend.ListPosts(c.Request().Context())
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, posts)
}

// CreatePost POST /api/forum/posts
func (s *Server) CreatePost(c echo.Context) error {
	var payload struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if payload.Title == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}
	if err := s.backend.CreatePost(c.Request().Context(), payload.Title, payload.Body); err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "created"})
}

// ListComments GET /api/forum/posts/:post_id/comments
func (s *Server) ListComments(c echo.Context) error {
	postID, err := pathID(c, "post_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid post id"})
	}
	comments, err := s.backend.ListComments(c.Request().Context(), postID)
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, comments)
}

// CreateComment POST /api/forum/posts/:post_id/comments
func (s *Server) CreateComment(c echo.Context) error {
	postID, err := pathID(c, "post_id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid post id"})
	}
	var payload struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if payload.Body == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "body is required"})
	}
	if err := s.backend.CreateComment(c.Request().Context(), postID, payload.Body); err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "created"})
}

// ListFriends GET /api/friends
func (s *Server) ListFriends(c echo.Context) error {
	friends, err := s.backend.ListFriends(c.Request().Context())
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, friends)
}

// IncomingRequests GET /api/friends/requests/incoming
func (s *Server) IncomingRequests(c echo.Context) error {
	reqs, err := s.backend.IncomingRequests(c.Request().Context())
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

// OutgoingRequests GET /api/friends/requests/outgoing
func (s *Server) OutgoingRequests(c echo.Context) error {
	reqs, err := s.backend.OutgoingRequests(c.Request().Context())
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

// SendFriendRequest POST /api/friends/request/:user_id
func (s *Server) SendFriendRequest(c echo.Context) error {
	return s.friendAction(c, "user_id", s.backend.SendFriendRequest)
}

// AcceptFriendRequest POST /api/friends/accept/:request_id
func (s *Server) AcceptFriendRequest(c echo.Context) error {
	return s.friendAction(c, "request_id", s.backend.AcceptFriendRequest)
}

// DeclineFriendRequest POST /api/friends/decline/:request_id
func (s *Server) DeclineFriendRequest(c echo.Context) error {
	return s.friendAction(c, "request_id", s.backend.DeclineFriendRequest)
}

func (s *Server) friendAction(c echo.Context, param string, call func(context.Context, int64) error) error {
	id, err := pathID(c, param)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	if err := call(c.Request().Context(), id); err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// MyProfile GET /api/profile/me
func (s *Server) MyProfile(c echo.Context) error {
	p, err := s.backend.MyProfile(c.Request().Context())
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// UpdateProfile PUT /api/profile/me
func (s *Server) UpdateProfile(c echo.Context) error {
	var p remote.Profile
	if err := c.Bind(&p); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := s.backend.UpdateProfile(c.Request().Context(), p); err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

// SearchProfile GET /api/profile/search?email=...
func (s *Server) SearchProfile(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "email is required"})
	}
	p, err := s.backend.SearchProfile(c.Request().Context(), email)
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func pathID(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
