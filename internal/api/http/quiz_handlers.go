package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/httpx"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

const fetchConcurrency = 4

// choiceGrader only accepts multiple-choice responses that are one of the
// offered choices.
var choiceGrader = grading.NewDefaultGrader(grading.WithStrictChoices(true))

type sessionResponse struct {
	ID        string      `json:"id"`
	StartedAt time.Time   `json:"started_at"`
	Config    quiz.Config `json:"config"`
	View      quiz.View   `json:"view"`
}

func respondSession(w http.ResponseWriter, status int, e *quiz.Entry) {
	var v quiz.View
	e.Do(func(s *quiz.Session) { v = s.View() })
	httpx.WriteJSON(w, status, sessionResponse{ID: e.ID, StartedAt: e.StartedAt, Config: e.Config, View: v})
}

// fetchPool loads the candidate questions for cfg, one backend call per
// selected category in parallel.
func fetchPool(ctx context.Context, be backend.Client, cfg quiz.Config) ([]quiz.Question, error) {
	if len(cfg.CategoryIDs) == 0 {
		return be.ListQuestions(ctx, backend.QuestionFilter{SubjectID: cfg.SubjectID, Types: cfg.QuestionTypes})
	}
	parts := make([][]quiz.Question, len(cfg.CategoryIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, catID := range cfg.CategoryIDs {
		g.Go(func() error {
			qs, err := be.ListQuestions(gctx, backend.QuestionFilter{
				SubjectID:   cfg.SubjectID,
				CategoryIDs: []string{catID},
				Types:       cfg.QuestionTypes,
			})
			parts[i] = qs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var pool []quiz.Question
	for _, p := range parts {
		pool = append(pool, p...)
	}
	return pool, nil
}

// POST /quiz/sessions  body: quiz.Config
func StartQuizHandler(be backend.Client, reg *quiz.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg quiz.Config
		if err := decodeJSON(r, &cfg); err != nil {
			writeError(w, r, err)
			return
		}
		if err := cfg.Validate(); err != nil {
			writeError(w, r, err)
			return
		}
		pool, err := fetchPool(r.Context(), be, cfg)
		if err != nil {
			writeError(w, r, err)
			return
		}
		qs, err := quiz.Build(pool, cfg, nil)
		if err != nil {
			writeError(w, r, err)
			return
		}
		e := reg.Start(principal(r).UserID, cfg, qs, quiz.WithGrader(choiceGrader))
		LoggerFrom(r.Context()).Info("quiz started", "session", e.ID, "questions", len(qs), "mode", cfg.AnswerMode)
		respondSession(w, http.StatusCreated, e)
	}
}

func entryFor(reg *quiz.Registry, r *http.Request) (*quiz.Entry, error) {
	return reg.Get(chi.URLParam(r, "sessionID"), principal(r).UserID)
}

// GET /quiz/sessions/{sessionID}
func GetQuizHandler(reg *quiz.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := entryFor(reg, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondSession(w, http.StatusOK, e)
	}
}

// mutate wraps the simple session actions: decode the optional body, apply
// it under the entry lock, and answer with the fresh view.
func mutate[T any](reg *quiz.Registry, apply func(s *quiz.Session, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := entryFor(reg, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req T
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, r, err)
				return
			}
		}
		e.Do(func(s *quiz.Session) { err = apply(s, req) })
		if err != nil {
			writeError(w, r, err)
			return
		}
		respondSession(w, http.StatusOK, e)
	}
}

type navigateRequest struct {
	Direction string `json:"direction"` // next|previous
	Index     *int   `json:"index,omitempty"`
}

var errBadDirection = httpx.NewError(http.StatusBadRequest, "invalid", errors.New("direction must be next or previous, or give an index"))

// POST /quiz/sessions/{sessionID}/navigate
func NavigateQuizHandler(reg *quiz.Registry) http.HandlerFunc {
	return mutate(reg, func(s *quiz.Session, req navigateRequest) error {
		switch {
		case req.Index != nil:
			s.GoTo(*req.Index)
		case req.Direction == "next":
			s.Navigate(quiz.Next)
		case req.Direction == "previous" || req.Direction == "prev":
			s.Navigate(quiz.Previous)
		default:
			return errBadDirection
		}
		return nil
	})
}

type answerRequest struct {
	Answer *string `json:"answer"`
}

// POST /quiz/sessions/{sessionID}/answer
func AnswerQuizHandler(reg *quiz.Registry) http.HandlerFunc {
	return mutate(reg, func(s *quiz.Session, req answerRequest) error {
		if req.Answer == nil {
			return httpx.NewError(http.StatusBadRequest, "invalid", errors.New("answer required"))
		}
		s.SelectAnswer(*req.Answer)
		return nil
	})
}

// POST /quiz/sessions/{sessionID}/clear
func ClearQuizAnswerHandler(reg *quiz.Registry) http.HandlerFunc {
	return mutate(reg, func(s *quiz.Session, _ struct{}) error {
		s.ClearAnswer()
		return nil
	})
}

type bookmarkRequest struct {
	Index *int `json:"index,omitempty"` // defaults to the current question
}

// POST /quiz/sessions/{sessionID}/bookmark
func BookmarkQuizHandler(reg *quiz.Registry) http.HandlerFunc {
	return mutate(reg, func(s *quiz.Session, req bookmarkRequest) error {
		i := s.Index()
		if req.Index != nil {
			i = *req.Index
		}
		s.ToggleBookmark(i)
		return nil
	})
}

// POST /quiz/sessions/{sessionID}/submit
func SubmitQuizAnswerHandler(reg *quiz.Registry) http.HandlerFunc {
	return mutate(reg, func(s *quiz.Session, _ struct{}) error {
		s.SubmitCurrent()
		return nil
	})
}

type reportRequest struct {
	Reason string `json:"reason"`
}

// POST /quiz/sessions/{sessionID}/report  reports the current question.
func ReportQuizQuestionHandler(be backend.Client, reg *quiz.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := entryFor(reg, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req reportRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		idx, q, err := e.BeginReport()
		if err != nil {
			writeError(w, r, err)
			return
		}
		rep, err := be.CreateReport(r.Context(), backend.Report{
			QuestionID: q.ID,
			UserID:     principal(r).UserID,
			Reason:     req.Reason,
		})
		e.EndReport(idx, err == nil)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, rep)
	}
}

type finishResponse struct {
	Summary quiz.Summary  `json:"summary"`
	Score   backend.Score `json:"score"`
}

// POST /quiz/sessions/{sessionID}/finish
// The summary is handed to the backend once; the live session is dropped only
// after the score is stored, so a failed save can be retried. A finish that
// overlaps a save in flight gets 409, one that arrives after it gets the
// stored score.
func FinishQuizHandler(be backend.Client, reg *quiz.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := entryFor(reg, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		sum, took, receipt, err := e.BeginFinish()
		if err != nil {
			writeError(w, r, err)
			return
		}
		if sc, ok := receipt.(backend.Score); ok {
			httpx.WriteJSON(w, http.StatusOK, finishResponse{Summary: sum, Score: sc})
			return
		}
		sc, err := be.SaveScore(r.Context(), backend.Score{
			UserID:       e.OwnerID,
			SubjectID:    e.Config.SubjectID,
			CategoryIDs:  e.Config.CategoryIDs,
			AnswerMode:   e.Config.AnswerMode,
			Score:        sum.Score,
			FullScore:    sum.FullScore,
			TimeTakenSec: int(took / time.Second),
			Results:      sum.Results,
		})
		if err != nil {
			e.EndFinish(nil)
			LoggerFrom(r.Context()).Warn("save score failed", "session", e.ID, "error", err)
			writeError(w, r, err)
			return
		}
		e.EndFinish(sc)
		reg.Delete(e.ID)
		LoggerFrom(r.Context()).Info("quiz finished", "session", e.ID, "score", sum.Score, "full_score", sum.FullScore)
		httpx.WriteJSON(w, http.StatusOK, finishResponse{Summary: sum, Score: sc})
	}
}

// DELETE /quiz/sessions/{sessionID}  abandons the quiz.
func AbandonQuizHandler(reg *quiz.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := entryFor(reg, r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		reg.Delete(e.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}
