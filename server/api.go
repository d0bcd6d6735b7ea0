package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cyp0633/libschedule/schedule"
	"github.com/cyp0633/libschedule/service"
	"github.com/cyp0633/libschedule/storage"
)

// Error is an API failure rendered as {"error": Message} with status Code.
type Error struct {
	Code    int
	Message string
}

// HandlerFunc is a JSON endpoint: the result is rendered with 200 unless an
// error is returned.
type HandlerFunc func(ctx *gin.Context) (any, *Error)

// DocumentFunc is an endpoint that renders a non-JSON body.
type DocumentFunc func(ctx *gin.Context) (contentType string, body []byte, apiErr *Error)

func ResolveEndpoint(h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, apiErr := h(ctx)
		if apiErr != nil {
			ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}

		ctx.JSON(http.StatusOK, result)
	}
}

func ResolveDocument(h DocumentFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		contentType, body, apiErr := h(ctx)
		if apiErr != nil {
			ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}

		ctx.Data(http.StatusOK, contentType, body)
	}
}

// errorFrom maps domain errors onto statuses. Anything unknown is a 500
// with a generic message; the cause is logged by the caller.
func errorFrom(err error) *Error {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		return &Error{Code: http.StatusNotFound, Message: err.Error()}
	case errors.Is(err, service.ErrForbidden):
		return &Error{Code: http.StatusForbidden, Message: "forbidden"}
	case errors.Is(err, schedule.ErrInvalidEvent), errors.Is(err, schedule.ErrInvalidDateInput):
		return &Error{Code: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, schedule.ErrAmbiguousCalendarLookup),
		errors.Is(err, &storage.Error{Type: storage.ErrAlreadyExists}):
		return &Error{Code: http.StatusConflict, Message: err.Error()}
	case errors.Is(err, &storage.Error{Type: storage.ErrInvalidInput}):
		return &Error{Code: http.StatusBadRequest, Message: err.Error()}
	}
	return &Error{Code: http.StatusInternalServerError, Message: "internal error"}
}

func badRequest(msg string) *Error {
	return &Error{Code: http.StatusBadRequest, Message: msg}
}
