package http

import (
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/httpx"
	"github.com/mind-engage/mindengage-quiz/internal/search"
)

func ListSubjectsHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := be.ListSubjects(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, subs)
	}
}

func CreateSubjectHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req backend.Subject
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		s, err := be.CreateSubject(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, s)
	}
}

// GET /categories?subject_id=
func ListCategoriesHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats, err := be.ListCategories(r.Context(), r.URL.Query().Get("subject_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, cats)
	}
}

func CreateCategoryHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req backend.Category
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		c, err := be.CreateCategory(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, c)
	}
}

// GET /keywords?q=&subject_id=&category_id=
func ListKeywordsHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kws, err := be.ListKeywords(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		q := r.URL.Query()
		httpx.WriteJSON(w, http.StatusOK, search.Filter(kws, q.Get("q"), structuralFrom(q.Get)))
	}
}

func CreateKeywordHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req backend.Keyword
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		k, err := be.CreateKeyword(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, k)
	}
}

func structuralFrom(get func(string) string) search.Structural {
	return search.Structural{SubjectID: get("subject_id"), CategoryID: get("category_id")}
}
