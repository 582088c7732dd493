// Package apperror carries an HTTP status alongside an error message so
// handlers don't each re-derive status codes the way spec.md §7 maps them.
package apperror

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error is a status-carrying error returned by any layer that already
// knows how it should be reported over HTTP.
type Error struct {
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

func (e *Error) Unwrap() error { return e.cause }

func newErr(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

// Wrap attaches a status to an existing error, keeping it unwrappable.
func Wrap(status int, msg string, cause error) *Error {
	return &Error{Status: status, Message: msg, cause: cause}
}

func Unauthorized(msg string) *Error      { return newErr(http.StatusUnauthorized, msg) }
func BadRequest(msg string) *Error        { return newErr(http.StatusBadRequest, msg) }
func NotFound(msg string) *Error          { return newErr(http.StatusNotFound, msg) }
func NotImplemented(msg string) *Error    { return newErr(http.StatusNotImplemented, msg) }
func MethodNotAllowed(msg string) *Error  { return newErr(http.StatusMethodNotAllowed, msg) }
func Internal(msg string) *Error          { return newErr(http.StatusInternalServerError, msg) }
func BadGateway(msg string) *Error        { return newErr(http.StatusBadGateway, msg) }

// As extracts an *Error from err, falling back to a 500 for anything that
// wasn't already status-typed.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := err.(*Error); ok {
		return ae
	}
	return Internal(err.Error())
}

// Render writes err to c as gin.H{"error": msg} at its carried status,
// defaulting untyped errors to 500 via As. This is the single place every
// admin handler funnels its failures through.
func Render(c *gin.Context, err error) {
	ae := As(err)
	c.JSON(ae.Status, gin.H{"error": ae.Message})
}
