package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

const (
	TypeShortAnswer    = grading.TypeShortAnswer
	TypeMultipleChoice = grading.TypeMultipleChoice
)

type Question struct {
	ID          string   `json:"id"`
	SubjectID   string   `json:"subject_id"`
	CategoryID  string   `json:"category_id"`
	Type        string   `json:"type"` // short_answer | multiple_choice
	Text        string   `json:"question"`
	Choices     []string `json:"choices,omitempty"`
	Answer      string   `json:"answer,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Images      []string `json:"images,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

func (q Question) SearchText() string { return q.Text }

func (q Question) SearchTerms() []string {
	out := make([]string, 0, len(q.Choices)+len(q.Keywords))
	out = append(out, q.Choices...)
	return append(out, q.Keywords...)
}

func (q Question) SubjectRef() string  { return q.SubjectID }
func (q Question) CategoryRef() string { return q.CategoryID }

// WithoutAnswer returns a copy safe to show before the answer is revealed.
func (q Question) WithoutAnswer() Question {
	q.Answer = ""
	q.Explanation = ""
	return q
}

type AnswerMode string

const (
	RevealAtEnd     AnswerMode = "reveal_at_end"
	RevealAfterEach AnswerMode = "reveal_after_each"
)

// ParseAnswerMode accepts the canonical names plus the older
// "all-at-once"/"one-by-one" spellings.
func ParseAnswerMode(s string) (AnswerMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reveal_at_end", "reveal-at-end", "all-at-once":
		return RevealAtEnd, true
	case "reveal_after_each", "reveal-after-each", "one-by-one":
		return RevealAfterEach, true
	}
	return "", false
}

func (m *AnswerMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*m = ""
		return nil
	}
	mode, ok := ParseAnswerMode(s)
	if !ok {
		return fmt.Errorf("unknown answer mode %q", s)
	}
	*m = mode
	return nil
}

// Config is what the quiz setup screen collects before a session starts.
type Config struct {
	AnswerMode    AnswerMode `json:"answer_mode"`
	QuestionCount int        `json:"question_count"`
	QuestionTypes []string   `json:"question_types"`
	SubjectID     string     `json:"subject_id"`
	CategoryIDs   []string   `json:"category_ids"`
}

var ErrInvalidConfig = errors.New("invalid quiz config")

func (c Config) Validate() error {
	switch c.AnswerMode {
	case RevealAtEnd, RevealAfterEach:
	default:
		return fmt.Errorf("%w: answer_mode required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.SubjectID) == "" {
		return fmt.Errorf("%w: subject_id required", ErrInvalidConfig)
	}
	if c.QuestionCount <= 0 {
		return fmt.Errorf("%w: question_count must be positive", ErrInvalidConfig)
	}
	if len(c.QuestionTypes) == 0 {
		return fmt.Errorf("%w: select at least one question type", ErrInvalidConfig)
	}
	for _, t := range c.QuestionTypes {
		if !grading.IsKnownType(t) {
			return fmt.Errorf("%w: unknown question type %q", ErrInvalidConfig, t)
		}
	}
	return nil
}

// Result is one row of a finished session.
type Result struct {
	QuestionID     string  `json:"question_id"`
	SelectedAnswer *string `json:"selected_answer"`
	IsCorrect      bool    `json:"is_correct"`
	IsBookmarked   bool    `json:"is_bookmarked"`
}

// Summary is the immutable outcome handed to persistence.
type Summary struct {
	Score     int      `json:"score"`
	FullScore int      `json:"full_score"`
	Results   []Result `json:"results"`
}
