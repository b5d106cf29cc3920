package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillscope/skillscope/internal/pipeline"
	"github.com/skillscope/skillscope/internal/store"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// respondFailure maps pipeline errors to status codes.
func respondFailure(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, pipeline.ErrNotConfigured):
		respondError(c, http.StatusServiceUnavailable, "not_configured", err.Error())
	case errors.Is(err, store.ErrUnavailable):
		respondError(c, http.StatusServiceUnavailable, "store_unavailable", "storage is unavailable")
	case c.Request.Context().Err() != nil:
		respondError(c, http.StatusRequestTimeout, "cancelled", "request cancelled")
	default:
		respondError(c, http.StatusInternalServerError, "internal", "unexpected server error")
	}
}
