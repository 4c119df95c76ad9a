// Package backend is the gateway's view of the quiz data service: the domain
// records it serves and the Client contract both the remote REST backend and
// the offline SQL stand-in implement.
package backend

import (
	"context"
	"errors"

	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalid         = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrPendingApproval = errors.New("account awaiting approval")
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      Role   `json:"role"`
	Approved  bool   `json:"approved"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Registration struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"` // user (default) | admin
}

// AuthResult is a successful login. Token is the backend's own bearer
// token; the offline store leaves it empty.
type AuthResult struct {
	User  User   `json:"user"`
	Token string `json:"token,omitempty"`
}

type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID        string `json:"id"`
	SubjectID string `json:"subject_id"`
	Name      string `json:"name"`
}

type Keyword struct {
	ID         string   `json:"id"`
	SubjectID  string   `json:"subject_id"`
	CategoryID string   `json:"category_id"`
	Name       string   `json:"name"`
	Aliases    []string `json:"aliases,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

func (k Keyword) SearchText() string    { return k.Name }
func (k Keyword) SearchTerms() []string { return k.Aliases }
func (k Keyword) SubjectRef() string    { return k.SubjectID }
func (k Keyword) CategoryRef() string   { return k.CategoryID }

// QuestionFilter narrows a question fetch. Empty fields do not constrain.
type QuestionFilter struct {
	SubjectID   string
	CategoryIDs []string
	Types       []string
}

type Score struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	SubjectID    string          `json:"subject_id"`
	CategoryIDs  []string        `json:"category_ids,omitempty"`
	AnswerMode   quiz.AnswerMode `json:"answer_mode"`
	Score        int             `json:"score"`
	FullScore    int             `json:"full_score"`
	TimeTakenSec int             `json:"time_taken_sec"`
	Results      []quiz.Result   `json:"results,omitempty"`
	CreatedAt    int64           `json:"created_at,omitempty"`
}

type ReportStatus string

const (
	ReportOpen     ReportStatus = "open"
	ReportResolved ReportStatus = "resolved"
)

type Report struct {
	ID         string       `json:"id"`
	QuestionID string       `json:"question_id"`
	UserID     string       `json:"user_id"`
	Reason     string       `json:"reason"`
	Status     ReportStatus `json:"status"`
	ResolvedBy string       `json:"resolved_by,omitempty"`
	CreatedAt  int64        `json:"created_at,omitempty"`
}

// Client is everything the gateway reads from or writes to the data service.
type Client interface {
	Login(ctx context.Context, c Credentials) (AuthResult, error)
	Register(ctx context.Context, r Registration) (User, error)

	ListSubjects(ctx context.Context) ([]Subject, error)
	CreateSubject(ctx context.Context, s Subject) (Subject, error)
	ListCategories(ctx context.Context, subjectID string) ([]Category, error)
	CreateCategory(ctx context.Context, c Category) (Category, error)

	ListQuestions(ctx context.Context, f QuestionFilter) ([]quiz.Question, error)
	CreateQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error)
	AttachQuestionImage(ctx context.Context, questionID, url string) (quiz.Question, error)

	ListKeywords(ctx context.Context) ([]Keyword, error)
	CreateKeyword(ctx context.Context, k Keyword) (Keyword, error)

	SaveScore(ctx context.Context, s Score) (Score, error)
	ListScores(ctx context.Context, userID string) ([]Score, error)

	CreateReport(ctx context.Context, r Report) (Report, error)
	ListReports(ctx context.Context, status ReportStatus) ([]Report, error)
	ResolveReport(ctx context.Context, id, resolvedBy string) (Report, error)

	ListPendingAdmins(ctx context.Context) ([]User, error)
	DecideAdmin(ctx context.Context, userID string, approve bool) error
}

type ctxKey struct{}

// WithToken attaches the caller's backend bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, ctxKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
