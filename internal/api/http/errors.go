package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/httpx"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

var errBadJSON = httpx.NewError(http.StatusBadRequest, "bad_json", errors.New("bad json"))

// statusFor maps domain errors onto HTTP status and error code.
func statusFor(err error) (int, string) {
	var apiErr *httpx.Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Status, apiErr.Code
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, quiz.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, backend.ErrConflict), errors.Is(err, quiz.ErrAlreadyReported):
		return http.StatusConflict, "conflict"
	case errors.Is(err, quiz.ErrNotFinishable):
		return http.StatusConflict, "not_finishable"
	case errors.Is(err, quiz.ErrFinishPending):
		return http.StatusConflict, "finish_pending"
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, backend.ErrPendingApproval):
		return http.StatusForbidden, "pending_approval"
	case errors.Is(err, backend.ErrForbidden), errors.Is(err, quiz.ErrNotOwner):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, quiz.ErrNoQuestions):
		return http.StatusUnprocessableEntity, "no_questions"
	case errors.Is(err, backend.ErrInvalid), errors.Is(err, quiz.ErrInvalidConfig), errors.Is(err, storage.ErrBadKey):
		return http.StatusBadRequest, "invalid"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= 500 {
		LoggerFrom(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	httpx.WriteError(w, status, code, msg)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errBadJSON
	}
	return nil
}
