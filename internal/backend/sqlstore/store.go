// Package sqlstore is the offline stand-in for the quiz data service. It
// implements backend.Client over database/sql on sqlite or postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type Store struct {
	db         *sql.DB
	driver     Driver
	bcryptCost int
}

type Option func(*Store)

// WithBcryptCost overrides the password hashing cost (tests use bcrypt.MinCost).
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.bcryptCost = cost }
}

func NewStore(db *sql.DB, driver Driver, opts ...Option) *Store {
	s := &Store{db: db, driver: driver, bcryptCost: bcryptCost}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ backend.Client = (*Store)(nil)

/* ---------- catalog ---------- */

func (s *Store) ListSubjects(ctx context.Context) ([]backend.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM subjects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()
	out := []backend.Subject{}
	for rows.Next() {
		var sub backend.Subject
		if err := rows.Scan(&sub.ID, &sub.Name); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) CreateSubject(ctx context.Context, sub backend.Subject) (backend.Subject, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	if sub.Name == "" {
		return backend.Subject{}, fmt.Errorf("%w: subject name required", backend.ErrInvalid)
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM subjects WHERE name=$1`, sub.Name).Scan(&exists)
	if err == nil {
		return backend.Subject{}, fmt.Errorf("%w: subject %q exists", backend.ErrConflict, sub.Name)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return backend.Subject{}, err
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO subjects (id, name, created_at) VALUES ($1,$2,$3)`,
		sub.ID, sub.Name, time.Now().Unix())
	if err != nil {
		return backend.Subject{}, fmt.Errorf("insert subject: %w", err)
	}
	return sub, nil
}

// ListCategories lists the categories of one subject, or all of them when
// subjectID is empty.
func (s *Store) ListCategories(ctx context.Context, subjectID string) ([]backend.Category, error) {
	q := `SELECT id, subject_id, name FROM categories`
	var args []any
	if subjectID != "" {
		q += ` WHERE subject_id=$1`
		args = append(args, subjectID)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	out := []backend.Category{}
	for rows.Next() {
		var c backend.Category
		if err := rows.Scan(&c.ID, &c.SubjectID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, c backend.Category) (backend.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || c.SubjectID == "" {
		return backend.Category{}, fmt.Errorf("%w: category name and subject_id required", backend.ErrInvalid)
	}
	if err := s.subjectExists(ctx, c.SubjectID); err != nil {
		return backend.Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, subject_id, name, created_at) VALUES ($1,$2,$3,$4)`,
		c.ID, c.SubjectID, c.Name, time.Now().Unix())
	if err != nil {
		return backend.Category{}, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (s *Store) subjectExists(ctx context.Context, id string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM subjects WHERE id=$1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: unknown subject %q", backend.ErrInvalid, id)
	}
	return err
}

func (s *Store) categoryInSubject(ctx context.Context, id, subjectID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM categories WHERE id=$1 AND subject_id=$2`, id, subjectID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: category %q not in subject %q", backend.ErrInvalid, id, subjectID)
	}
	return err
}

/* ---------- questions ---------- */

const questionCols = `id, subject_id, category_id, type, question, choices_json, answer, keywords_json, images_json, explanation`

func (s *Store) ListQuestions(ctx context.Context, f backend.QuestionFilter) ([]quiz.Question, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.SubjectID != "" {
		where = append(where, "subject_id="+arg(f.SubjectID))
	}
	if len(f.CategoryIDs) > 0 {
		ph := make([]string, len(f.CategoryIDs))
		for i, id := range f.CategoryIDs {
			ph[i] = arg(id)
		}
		where = append(where, "category_id IN ("+strings.Join(ph, ",")+")")
	}
	if len(f.Types) > 0 {
		ph := make([]string, len(f.Types))
		for i, t := range f.Types {
			ph[i] = arg(t)
		}
		where = append(where, "type IN ("+strings.Join(ph, ",")+")")
	}
	q := `SELECT ` + questionCols + ` FROM questions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	out := []quiz.Question{}
	for rows.Next() {
		qq, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qq)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (quiz.Question, error) {
	var (
		q                      quiz.Question
		choices, kws, imgsJSON string
	)
	if err := r.Scan(&q.ID, &q.SubjectID, &q.CategoryID, &q.Type, &q.Text, &choices, &q.Answer, &kws, &imgsJSON, &q.Explanation); err != nil {
		return quiz.Question{}, err
	}
	if err := unmarshalList(choices, &q.Choices); err != nil {
		return quiz.Question{}, fmt.Errorf("question %s choices: %w", q.ID, err)
	}
	if err := unmarshalList(kws, &q.Keywords); err != nil {
		return quiz.Question{}, fmt.Errorf("question %s keywords: %w", q.ID, err)
	}
	if err := unmarshalList(imgsJSON, &q.Images); err != nil {
		return quiz.Question{}, fmt.Errorf("question %s images: %w", q.ID, err)
	}
	return q, nil
}

func (s *Store) getQuestion(ctx context.Context, id string) (quiz.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionCols+` FROM questions WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.Question{}, backend.ErrNotFound
	}
	return q, err
}

func (s *Store) CreateQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error) {
	if err := validateQuestion(q); err != nil {
		return quiz.Question{}, err
	}
	if err := s.subjectExists(ctx, q.SubjectID); err != nil {
		return quiz.Question{}, err
	}
	if err := s.categoryInSubject(ctx, q.CategoryID, q.SubjectID); err != nil {
		return quiz.Question{}, err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		q.ID, q.SubjectID, q.CategoryID, q.Type, q.Text,
		marshalList(q.Choices), q.Answer, marshalList(q.Keywords), marshalList(q.Images),
		q.Explanation, time.Now().UnixNano())
	if err != nil {
		return quiz.Question{}, fmt.Errorf("insert question: %w", err)
	}
	return q, nil
}

func validateQuestion(q quiz.Question) error {
	if q.SubjectID == "" || q.CategoryID == "" {
		return fmt.Errorf("%w: subject_id and category_id required", backend.ErrInvalid)
	}
	if strings.TrimSpace(q.Text) == "" || strings.TrimSpace(q.Answer) == "" {
		return fmt.Errorf("%w: question and answer required", backend.ErrInvalid)
	}
	switch q.Type {
	case grading.TypeShortAnswer:
	case grading.TypeMultipleChoice:
		if len(q.Choices) < 2 {
			return fmt.Errorf("%w: multiple choice needs at least two choices", backend.ErrInvalid)
		}
		found := false
		for _, c := range q.Choices {
			if c == q.Answer {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: answer must be one of the choices", backend.ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown question type %q", backend.ErrInvalid, q.Type)
	}
	return nil
}

func (s *Store) AttachQuestionImage(ctx context.Context, questionID, url string) (quiz.Question, error) {
	if url == "" {
		return quiz.Question{}, fmt.Errorf("%w: image url required", backend.ErrInvalid)
	}
	q, err := s.getQuestion(ctx, questionID)
	if err != nil {
		return quiz.Question{}, err
	}
	q.Images = append(q.Images, url)
	_, err = s.db.ExecContext(ctx, `UPDATE questions SET images_json=$1 WHERE id=$2`, marshalList(q.Images), q.ID)
	if err != nil {
		return quiz.Question{}, fmt.Errorf("attach image: %w", err)
	}
	return q, nil
}

/* ---------- keywords ---------- */

func (s *Store) ListKeywords(ctx context.Context) ([]backend.Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, category_id, name, aliases_json, notes FROM keywords ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()
	out := []backend.Keyword{}
	for rows.Next() {
		var (
			k       backend.Keyword
			aliases string
		)
		if err := rows.Scan(&k.ID, &k.SubjectID, &k.CategoryID, &k.Name, &aliases, &k.Notes); err != nil {
			return nil, err
		}
		if err := unmarshalList(aliases, &k.Aliases); err != nil {
			return nil, fmt.Errorf("keyword %s aliases: %w", k.ID, err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) CreateKeyword(ctx context.Context, k backend.Keyword) (backend.Keyword, error) {
	k.Name = strings.TrimSpace(k.Name)
	if k.Name == "" || k.SubjectID == "" || k.CategoryID == "" {
		return backend.Keyword{}, fmt.Errorf("%w: keyword name, subject_id and category_id required", backend.ErrInvalid)
	}
	if err := s.categoryInSubject(ctx, k.CategoryID, k.SubjectID); err != nil {
		return backend.Keyword{}, err
	}
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (id, subject_id, category_id, name, aliases_json, notes, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		k.ID, k.SubjectID, k.CategoryID, k.Name, marshalList(k.Aliases), k.Notes, time.Now().Unix())
	if err != nil {
		return backend.Keyword{}, fmt.Errorf("insert keyword: %w", err)
	}
	return k, nil
}

/* ---------- scores ---------- */

func (s *Store) SaveScore(ctx context.Context, sc backend.Score) (backend.Score, error) {
	if sc.UserID == "" || sc.SubjectID == "" {
		return backend.Score{}, fmt.Errorf("%w: user_id and subject_id required", backend.ErrInvalid)
	}
	if sc.FullScore <= 0 || sc.Score < 0 || sc.Score > sc.FullScore {
		return backend.Score{}, fmt.Errorf("%w: score %d/%d out of range", backend.ErrInvalid, sc.Score, sc.FullScore)
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	if sc.CreatedAt == 0 {
		sc.CreatedAt = time.Now().Unix()
	}
	results, err := json.Marshal(sc.Results)
	if err != nil {
		return backend.Score{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO scores
		(id, user_id, subject_id, category_ids_json, answer_mode, score, full_score, time_taken_sec, results_json, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sc.ID, sc.UserID, sc.SubjectID, marshalList(sc.CategoryIDs), string(sc.AnswerMode),
		sc.Score, sc.FullScore, sc.TimeTakenSec, string(results), sc.CreatedAt)
	if err != nil {
		return backend.Score{}, fmt.Errorf("insert score: %w", err)
	}
	return sc, nil
}

// ListScores returns a user's scores, newest first.
func (s *Store) ListScores(ctx context.Context, userID string) ([]backend.Score, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, subject_id, category_ids_json, answer_mode,
		score, full_score, time_taken_sec, results_json, created_at
		FROM scores WHERE user_id=$1 ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()
	out := []backend.Score{}
	for rows.Next() {
		var (
			sc          backend.Score
			mode        string
			cats, rjson string
		)
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.SubjectID, &cats, &mode,
			&sc.Score, &sc.FullScore, &sc.TimeTakenSec, &rjson, &sc.CreatedAt); err != nil {
			return nil, err
		}
		sc.AnswerMode = quiz.AnswerMode(mode)
		if err := unmarshalList(cats, &sc.CategoryIDs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rjson), &sc.Results); err != nil {
			return nil, fmt.Errorf("score %s results: %w", sc.ID, err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

/* ---------- reports ---------- */

func (s *Store) CreateReport(ctx context.Context, r backend.Report) (backend.Report, error) {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.QuestionID == "" || r.UserID == "" || r.Reason == "" {
		return backend.Report{}, fmt.Errorf("%w: question_id, user_id and reason required", backend.ErrInvalid)
	}
	if _, err := s.getQuestion(ctx, r.QuestionID); err != nil {
		return backend.Report{}, err
	}
	r.ID = uuid.NewString()
	r.Status = backend.ReportOpen
	r.ResolvedBy = ""
	r.CreatedAt = time.Now().Unix()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (id, question_id, user_id, reason, status, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.QuestionID, r.UserID, r.Reason, string(r.Status), r.CreatedAt)
	if err != nil {
		return backend.Report{}, fmt.Errorf("insert report: %w", err)
	}
	return r, nil
}

// ListReports lists reports with the given status, or all when status is empty.
func (s *Store) ListReports(ctx context.Context, status backend.ReportStatus) ([]backend.Report, error) {
	q := `SELECT id, question_id, user_id, reason, status, resolved_by, created_at FROM reports`
	var args []any
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, string(status))
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	out := []backend.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReport(r rowScanner) (backend.Report, error) {
	var (
		rep    backend.Report
		status string
	)
	err := r.Scan(&rep.ID, &rep.QuestionID, &rep.UserID, &rep.Reason, &status, &rep.ResolvedBy, &rep.CreatedAt)
	rep.Status = backend.ReportStatus(status)
	return rep, err
}

func (s *Store) ResolveReport(ctx context.Context, id, resolvedBy string) (backend.Report, error) {
	rep, err := scanReport(s.db.QueryRowContext(ctx,
		`SELECT id, question_id, user_id, reason, status, resolved_by, created_at FROM reports WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return backend.Report{}, backend.ErrNotFound
	}
	if err != nil {
		return backend.Report{}, err
	}
	if rep.Status == backend.ReportResolved {
		return backend.Report{}, fmt.Errorf("%w: report already resolved", backend.ErrConflict)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE reports SET status=$1, resolved_by=$2, resolved_at=$3 WHERE id=$4`,
		string(backend.ReportResolved), resolvedBy, time.Now().Unix(), id)
	if err != nil {
		return backend.Report{}, fmt.Errorf("resolve report: %w", err)
	}
	rep.Status = backend.ReportResolved
	rep.ResolvedBy = resolvedBy
	return rep, nil
}

/* ---------- helpers ---------- */

func marshalList(v []string) string {
	if v == nil {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalList(s string, dst *[]string) error {
	if s == "" || s == "[]" {
		*dst = nil
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}
