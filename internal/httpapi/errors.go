package httpapi

import (
	"errors"
	"net/http"

	"advent/internal/db"
	"advent/internal/storage"
)

// statusFor maps an error onto the response status and the short message
// clients see. Anything unrecognised is a 500 with a generic message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad request"
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict, "already exists"
	case errors.Is(err, storage.ErrEscape):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, storage.ErrRoot):
		return http.StatusForbidden, "root cannot be modified"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, storage.ErrExists):
		return http.StatusConflict, "already exists"
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest, "invalid name"
	case errors.Is(err, storage.ErrNotDir):
		return http.StatusBadRequest, "not a directory"
	case errors.Is(err, storage.ErrIsDir):
		return http.StatusBadRequest, "is a directory"
	case errors.Is(err, storage.ErrNotEmpty):
		return http.StatusBadRequest, "directory not empty"
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "file too large"
	default:
		return http.StatusInternalServerError, "server error"
	}
}

// fail turns err into an error Response and logs it. Server errors log at
// error; escapes log as security events with the requesting uid.
func (s *Server) fail(c *call, op string, err error) Response {
	status, msg := statusFor(err)
	ctx := c.r.Context()
	switch {
	case status >= 500:
		s.log.ErrorContext(ctx, op+" failed", "uid", c.uid, "request_id", requestID(ctx), "err", err)
	case errors.Is(err, storage.ErrEscape):
		s.log.WarnContext(ctx, "storage escape refused", "event", "security.path_escape", "op", op, "uid", c.uid,
			"path", c.r.URL.Query().Get("path"), "request_id", requestID(ctx), "err", err)
	default:
		s.log.DebugContext(ctx, op+" rejected", "uid", c.uid, "err", err)
	}
	return errorResponse(status, msg)
}

func badRequest(msg string) Response {
	return errorResponse(http.StatusBadRequest, msg)
}

func forbidden(msg string) Response {
	return errorResponse(http.StatusForbidden, msg)
}
