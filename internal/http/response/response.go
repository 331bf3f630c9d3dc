package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr maps err onto the envelope through apierr.Classify. Internal
// errors never leak their message.
func RespondErr(c *gin.Context, err error) {
	status, code := apierr.Classify(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, apierr.ErrUpstreamUnavailable) {
		_ = c.Error(err)
		err = errors.New("internal server error")
	}
	RespondError(c, status, code, err)
}

// AbortErr is RespondErr for middleware.
func AbortErr(c *gin.Context, err error) {
	RespondErr(c, err)
	c.Abort()
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
