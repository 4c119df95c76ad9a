package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/httpx"
)

// GET /scores  the caller's own quiz history.
func ListMyScoresHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scores, err := be.ListScores(r.Context(), principal(r).UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, scores)
	}
}

// GET /reports?status=open|resolved
func ListReportsHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := backend.ReportStatus(r.URL.Query().Get("status"))
		switch status {
		case "", backend.ReportOpen, backend.ReportResolved:
		default:
			httpx.WriteError(w, http.StatusBadRequest, "invalid", "status must be open or resolved")
			return
		}
		reps, err := be.ListReports(r.Context(), status)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, reps)
	}
}

// POST /reports/{reportID}/resolve
func ResolveReportHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := be.ResolveReport(r.Context(), chi.URLParam(r, "reportID"), principal(r).UserID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, rep)
	}
}

// GET /admin/pending
func ListPendingAdminsHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := be.ListPendingAdmins(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, users)
	}
}

// POST /admin/{userID}/approve and /admin/{userID}/reject
func DecideAdminHandler(be backend.Client, approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if err := be.DecideAdmin(r.Context(), userID, approve); err != nil {
			writeError(w, r, err)
			return
		}
		LoggerFrom(r.Context()).Info("admin decision", "target", userID, "approved", approve, "by", principal(r).UserID)
		w.WriteHeader(http.StatusNoContent)
	}
}
