package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/extraction"
)

// statusOf maps the error taxonomy onto HTTP statuses.
func statusOf(err error) int {
	var failed *extraction.FailedError
	switch {
	case errors.As(err, &failed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case apperr.Degraded(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, log *zap.SugaredLogger, err error) {
	status := statusOf(err)
	body := gin.H{"error": err.Error()}

	var failed *extraction.FailedError
	if errors.As(err, &failed) {
		body["raw"] = failed.Raw
	}
	if status == http.StatusInternalServerError {
		log.Errorw("request failed", "request_id", c.GetString(requestIDKey), "path", c.FullPath(), "error", err)
		body["error"] = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}
