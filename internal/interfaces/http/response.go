package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/coop-approvals/internal/domain/apperr"
)

// Response is the envelope of single-item responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed call. Retryable is true only for stale state:
// refetch the request and try again.
type ErrorBody struct {
	Kind      apperr.Kind `json:"kind"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindStaleState:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindDomainSyncFailure:
		return http.StatusUnprocessableEntity
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorBody{
			Kind:      kind,
			Message:   msg,
			Retryable: apperr.Retryable(err),
		},
	})
}

func (h *Handlers) badRequest(c *gin.Context, format string, args ...any) {
	h.fail(c, apperr.Validation("http", format, args...))
}
