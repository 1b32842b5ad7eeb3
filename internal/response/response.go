package response

import (
	"errors"
	"net/http"

	apperrors "ai-video-cutter/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response is the standard API response structure
type Response struct {
	Error  int32  `json:"error"`            // Error code (0 = success)
	Msg    string `json:"msg"`              // Human-readable message
	Detail string `json:"detail,omitempty"` // Additional error details
	Data   any    `json:"data"`             // Response payload
}

// R sends a JSON response
func R(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Success returns a success response with data
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Error: 0,
		Msg:   "Success",
		Data:  data,
	})
}

// Error returns an error response with code and message
func Error(c *gin.Context, code int, msg string) {
	c.JSON(http.StatusOK, Response{
		Error: int32(code),
		Msg:   msg,
		Data:  nil,
	})
}

// FromError converts an error to a Response. AppErrors keep their code,
// message and detail; anything else becomes CodeUnknown.
func FromError(err error) Response {
	if err == nil {
		return Response{
			Error: 0,
			Msg:   "Success",
		}
	}

	code := apperrors.GetCode(err)
	msg := apperrors.GetMessage(err)

	var detail string
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		detail = appErr.Detail
	} else {
		msg = err.Error()
	}

	return Response{
		Error:  int32(code),
		Msg:    msg,
		Detail: detail,
		Data:   nil,
	}
}

// ErrorResponse sends an error response from an error
func ErrorResponse(c *gin.Context, err error) {
	c.JSON(http.StatusOK, FromError(err))
}

// NotFound answers with a 404 status, used where the body is a file.
func NotFound(c *gin.Context, err error) {
	c.JSON(http.StatusNotFound, FromError(err))
}
