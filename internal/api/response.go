package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fracreserve/banksim/internal/platform/apperr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError maps err onto its status code and writes the error envelope.
// Errors without a kind are internal.
func RespondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(apperr.HTTPStatus(kind), ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    string(kind),
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
