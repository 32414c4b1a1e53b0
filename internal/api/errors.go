package api

import (
	"errors"
	"net/http"

	"github.com/cuappdev/clicker-backend/internal/models"
	"github.com/cuappdev/clicker-backend/internal/repositories"
	"github.com/cuappdev/clicker-backend/internal/session"
	"github.com/cuappdev/clicker-backend/internal/utils"
)

var (
	errForbidden   = errors.New("admin role required")
	errNotInGroup  = errors.New("not a member of this group")
	errBadFrame    = errors.New("malformed frame")
	errUnknownType = errors.New("unknown frame type")
	errNoSession   = errors.New("no live session for this group")
)

// classify maps an error to an HTTP status and a stable code shared with
// websocket error frames.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errForbidden), errors.Is(err, errNotInGroup):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errBadFrame), errors.Is(err, models.ErrInvalidDraft):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, errUnknownType):
		return http.StatusBadRequest, "unknown_type"
	case errors.Is(err, errNoSession):
		return http.StatusNotFound, "no_session"
	case errors.Is(err, repositories.ErrGroupNotFound):
		return http.StatusNotFound, "group_not_found"
	case errors.Is(err, repositories.ErrPollNotFound):
		return http.StatusNotFound, "poll_not_found"
	case errors.Is(err, repositories.ErrDraftNotFound):
		return http.StatusNotFound, "draft_not_found"
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict, session.ErrorCode(err)
	case errors.Is(err, session.ErrNoActivePoll):
		return http.StatusNotFound, session.ErrorCode(err)
	case errors.Is(err, session.ErrInvalidChoice):
		return http.StatusBadRequest, session.ErrorCode(err)
	case errors.Is(err, session.ErrPersistenceFailure):
		return http.StatusBadGateway, session.ErrorCode(err)
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	utils.JSON(w, status, models.ErrorResponse{Code: code, Message: msg})
}

func errFrame(err error) models.WSFrame {
	_, code := classify(err)
	return models.WSFrame{Type: "error", Data: models.ErrorNotice{Code: code, Message: err.Error()}}
}
