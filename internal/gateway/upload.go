package gateway

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// UploadVideo forwards an already-encoded recording to the backend. The
// gateway never touches the media itself.
// POST /api/upload-video
func (s *Server) UploadVideo(c echo.Context) error {
	id, ok := s.activeIdentity()
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "no identity"})
	}

	fileHeader, err := c.FormFile("video")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "video file is required"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "failed to read video"})
	}
	defer file.Close()

	result, err := s.backend.UploadVideo(c.Request().Context(), id, fileHeader.Filename, file)
	if err != nil {
		return s.remoteError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
