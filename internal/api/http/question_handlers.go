package http

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/httpx"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/search"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

const maxImageBytes = 10 << 20

var checker = rbac.NewChecker(nil)

// GET /questions?q=&subject_id=&category_id=&type=
// Answers are only included for roles that manage questions.
func SearchQuestionsHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		qs, err := be.ListQuestions(r.Context(), backend.QuestionFilter{
			SubjectID: q.Get("subject_id"),
			Types:     q["type"],
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		query := search.Parse(q.Get("q"))
		out := search.FilterQuery(qs, query, structuralFrom(q.Get))
		LoggerFrom(r.Context()).Debug("question search",
			"query", query.String(), "terms", len(query.Terms()), "hits", len(out), "fetched", len(qs))
		if !checker.Has(principal(r).Role, "question:manage") {
			hidden := make([]quiz.Question, len(out))
			for i, qq := range out {
				hidden[i] = qq.WithoutAnswer()
			}
			out = hidden
		}
		httpx.WriteJSON(w, http.StatusOK, out)
	}
}

func CreateQuestionHandler(be backend.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req quiz.Question
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		qq, err := be.CreateQuestion(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, qq)
	}
}

var imageExt = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// POST /questions/{questionID}/images  (multipart, field "file")
func UploadQuestionImageHandler(be backend.Client, bs storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID := chi.URLParam(r, "questionID")
		r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, httpx.NewError(http.StatusBadRequest, "invalid", errors.New("file required")))
			return
		}
		defer f.Close()

		ext := strings.ToLower(path.Ext(hdr.Filename))
		if !imageExt[ext] {
			writeError(w, r, httpx.NewError(http.StatusBadRequest, "invalid", fmt.Errorf("unsupported image type %q", ext)))
			return
		}
		key, err := bs.Put("questions/"+questionID+"/"+uuid.NewString()+ext, f)
		if err != nil {
			writeError(w, r, err)
			return
		}
		qq, err := be.AttachQuestionImage(r.Context(), questionID, storage.URL(key))
		if err != nil {
			if derr := bs.Delete(key); derr != nil {
				LoggerFrom(r.Context()).Warn("orphan image not removed", "key", key, "error", derr)
			}
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, qq)
	}
}
