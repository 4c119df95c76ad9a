// Package rest is the online backend.Client: a JSON-over-HTTP client for the
// external quiz data service.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/logger"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
}

var _ backend.Client = (*Client)(nil)

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("backend base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		log:        log.With("client", "BackendREST"),
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// do sends in as JSON (when non-nil) and decodes the response into out
// (when non-nil). The caller's backend token travels as a bearer.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := backend.TokenFromContext(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("backend request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("backend %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode >= 300 {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s %s: decode: %w", method, path, err)
	}
	return nil
}

func decodeError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var eb errorBody
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &eb) == nil && eb.Error.Message != "" {
		msg = eb.Error.Message
	}
	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = backend.ErrNotFound
	case http.StatusConflict:
		sentinel = backend.ErrConflict
	case http.StatusUnauthorized:
		sentinel = backend.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = backend.ErrForbidden
		if eb.Error.Code == "pending_approval" {
			sentinel = backend.ErrPendingApproval
		}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = backend.ErrInvalid
	}
	if sentinel != nil {
		if msg == "" {
			return sentinel
		}
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("backend %s %s: status %d: %s", method, path, resp.StatusCode, msg)
}

/* ---------- auth ---------- */

func (c *Client) Login(ctx context.Context, cr backend.Credentials) (backend.AuthResult, error) {
	var out backend.AuthResult
	err := c.do(ctx, http.MethodPost, "/auth/login", nil, cr, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, r backend.Registration) (backend.User, error) {
	var out backend.User
	err := c.do(ctx, http.MethodPost, "/auth/register", nil, r, &out)
	return out, err
}

func (c *Client) ListPendingAdmins(ctx context.Context) ([]backend.User, error) {
	var out []backend.User
	err := c.do(ctx, http.MethodGet, "/admin/pending", nil, nil, &out)
	return out, err
}

func (c *Client) DecideAdmin(ctx context.Context, userID string, approve bool) error {
	action := "reject"
	if approve {
		action = "approve"
	}
	return c.do(ctx, http.MethodPost, "/admin/"+url.PathEscape(userID)+"/"+action, nil, nil, nil)
}

/* ---------- catalog ---------- */

func (c *Client) ListSubjects(ctx context.Context) ([]backend.Subject, error) {
	var out []backend.Subject
	err := c.do(ctx, http.MethodGet, "/subjects", nil, nil, &out)
	return out, err
}

func (c *Client) CreateSubject(ctx context.Context, s backend.Subject) (backend.Subject, error) {
	var out backend.Subject
	err := c.do(ctx, http.MethodPost, "/subjects", nil, s, &out)
	return out, err
}

func (c *Client) ListCategories(ctx context.Context, subjectID string) ([]backend.Category, error) {
	q := url.Values{}
	if subjectID != "" {
		q.Set("subject_id", subjectID)
	}
	var out []backend.Category
	err := c.do(ctx, http.MethodGet, "/categories", q, nil, &out)
	return out, err
}

func (c *Client) CreateCategory(ctx context.Context, cat backend.Category) (backend.Category, error) {
	var out backend.Category
	err := c.do(ctx, http.MethodPost, "/categories", nil, cat, &out)
	return out, err
}

func (c *Client) ListKeywords(ctx context.Context) ([]backend.Keyword, error) {
	var out []backend.Keyword
	err := c.do(ctx, http.MethodGet, "/keywords", nil, nil, &out)
	return out, err
}

func (c *Client) CreateKeyword(ctx context.Context, k backend.Keyword) (backend.Keyword, error) {
	var out backend.Keyword
	err := c.do(ctx, http.MethodPost, "/keywords", nil, k, &out)
	return out, err
}

/* ---------- questions ---------- */

func (c *Client) ListQuestions(ctx context.Context, f backend.QuestionFilter) ([]quiz.Question, error) {
	q := url.Values{}
	if f.SubjectID != "" {
		q.Set("subject_id", f.SubjectID)
	}
	for _, id := range f.CategoryIDs {
		q.Add("category_id", id)
	}
	for _, t := range f.Types {
		q.Add("type", t)
	}
	var out []quiz.Question
	err := c.do(ctx, http.MethodGet, "/questions", q, nil, &out)
	return out, err
}

func (c *Client) CreateQuestion(ctx context.Context, qq quiz.Question) (quiz.Question, error) {
	var out quiz.Question
	err := c.do(ctx, http.MethodPost, "/questions", nil, qq, &out)
	return out, err
}

func (c *Client) AttachQuestionImage(ctx context.Context, questionID, imageURL string) (quiz.Question, error) {
	var out quiz.Question
	in := map[string]string{"url": imageURL}
	err := c.do(ctx, http.MethodPost, "/questions/"+url.PathEscape(questionID)+"/images", nil, in, &out)
	return out, err
}

/* ---------- scores & reports ---------- */

func (c *Client) SaveScore(ctx context.Context, s backend.Score) (backend.Score, error) {
	var out backend.Score
	err := c.do(ctx, http.MethodPost, "/scores", nil, s, &out)
	return out, err
}

func (c *Client) ListScores(ctx context.Context, userID string) ([]backend.Score, error) {
	var out []backend.Score
	err := c.do(ctx, http.MethodGet, "/scores", url.Values{"user_id": {userID}}, nil, &out)
	return out, err
}

func (c *Client) CreateReport(ctx context.Context, r backend.Report) (backend.Report, error) {
	var out backend.Report
	err := c.do(ctx, http.MethodPost, "/reports", nil, r, &out)
	return out, err
}

func (c *Client) ListReports(ctx context.Context, status backend.ReportStatus) ([]backend.Report, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", string(status))
	}
	var out []backend.Report
	err := c.do(ctx, http.MethodGet, "/reports", q, nil, &out)
	return out, err
}

func (c *Client) ResolveReport(ctx context.Context, id, resolvedBy string) (backend.Report, error) {
	var out backend.Report
	in := map[string]string{"resolved_by": resolvedBy}
	err := c.do(ctx, http.MethodPost, "/reports/"+url.PathEscape(id)+"/resolve", nil, in, &out)
	return out, err
}

// Ping checks the backend's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("backend unhealthy", "error", err)
	}
	return err
}
