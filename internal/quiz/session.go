package quiz

import "github.com/mind-engage/mindengage-quiz/internal/grading"

type Direction int

const (
	Previous Direction = iota
	Next
)

type State string

const (
	StateInProgress State = "in_progress"
	StateSummary    State = "summary"
)

// Item is the mutable per-question state of a session.
type Item struct {
	SelectedAnswer *string `json:"selected_answer"`
	IsAnswered     bool    `json:"is_answered"`
	IsSubmitted    bool    `json:"is_submitted"`
	IsCorrect      *bool   `json:"is_correct"`
	IsBookmarked   bool    `json:"is_bookmarked"`
	IsReported     bool    `json:"is_reported"`
}

// Session is an in-progress quiz attempt. It is not safe for concurrent use;
// Registry serialises access per entry.
//
// Every operation is total: bad indices wrap, and changes to a submitted
// question or to a finished session are ignored. IsSubmitted is never
// cleared, so a question can add to the score at most once.
type Session struct {
	questions []Question
	items     []Item
	current   int
	score     int
	mode      AnswerMode
	state     State
	grader    grading.Grader
	summary   Summary
}

type SessionOption func(*Session)

func WithGrader(g grading.Grader) SessionOption {
	return func(s *Session) { s.grader = g }
}

// NewSession starts a session over a non-empty, already materialised
// question list. The list is copied and never reordered.
func NewSession(questions []Question, mode AnswerMode, opts ...SessionOption) *Session {
	qs := make([]Question, len(questions))
	copy(qs, questions)
	s := &Session{
		questions: qs,
		items:     make([]Item, len(qs)),
		mode:      mode,
		state:     StateInProgress,
	}
	for _, o := range opts {
		o(s)
	}
	if s.grader == nil {
		s.grader = grading.NewDefaultGrader()
	}
	return s
}

func (s *Session) Len() int               { return len(s.questions) }
func (s *Session) Index() int             { return s.current }
func (s *Session) Score() int             { return s.score }
func (s *Session) State() State           { return s.state }
func (s *Session) AnswerMode() AnswerMode { return s.mode }

func (s *Session) Current() Question { return s.questions[s.current] }

func (s *Session) Question(i int) Question { return s.questions[s.wrap(i)] }

func (s *Session) Item(i int) Item { return s.items[s.wrap(i)] }

func (s *Session) wrap(i int) int {
	n := len(s.questions)
	return ((i % n) + n) % n
}

// Navigate moves one question back or forward, wrapping at both ends.
// Answer state is untouched; navigation stays available after the summary
// so results can be reviewed.
func (s *Session) Navigate(d Direction) {
	if d == Previous {
		s.current = s.wrap(s.current - 1)
		return
	}
	s.current = s.wrap(s.current + 1)
}

// GoTo jumps to question i (wrapped).
func (s *Session) GoTo(i int) { s.current = s.wrap(i) }

func (s *Session) editable() bool {
	return s.state == StateInProgress && !s.items[s.current].IsSubmitted
}

func (s *Session) SelectAnswer(choice string) {
	if !s.editable() {
		return
	}
	it := &s.items[s.current]
	it.SelectedAnswer = &choice
	it.IsAnswered = true
}

func (s *Session) ClearAnswer() {
	if !s.editable() {
		return
	}
	it := &s.items[s.current]
	it.SelectedAnswer = nil
	it.IsAnswered = false
	it.IsCorrect = nil
}

// ToggleBookmark flips the bookmark of question i regardless of its
// submission state.
func (s *Session) ToggleBookmark(i int) {
	if s.state != StateInProgress {
		return
	}
	it := &s.items[s.wrap(i)]
	it.IsBookmarked = !it.IsBookmarked
}

// MarkReported records that question i was reported so the report action
// can be disabled.
func (s *Session) MarkReported(i int) {
	s.items[s.wrap(i)].IsReported = true
}

// SubmitCurrent grades the current question. An unanswered question is
// recorded as incorrect.
func (s *Session) SubmitCurrent() {
	if s.state != StateInProgress {
		return
	}
	s.submit(s.current)
}

func (s *Session) submit(i int) {
	it := &s.items[i]
	if it.IsSubmitted {
		return
	}
	correct := false
	if it.SelectedAnswer != nil {
		q := s.questions[i]
		correct = s.grader.Correct(grading.Q{Type: q.Type, Answer: q.Answer, Choices: q.Choices}, *it.SelectedAnswer)
	}
	it.IsCorrect = &correct
	it.IsSubmitted = true
	if correct {
		s.score++
	}
}

func (s *Session) AllAnswered() bool {
	for _, it := range s.items {
		if !it.IsAnswered {
			return false
		}
	}
	return true
}

func (s *Session) AllSubmitted() bool {
	for _, it := range s.items {
		if !it.IsSubmitted {
			return false
		}
	}
	return true
}

// CanFinish reports whether Finish would succeed.
func (s *Session) CanFinish() bool {
	if s.state == StateSummary {
		return true
	}
	switch s.mode {
	case RevealAfterEach:
		return s.AllSubmitted()
	case RevealAtEnd:
		return s.AllAnswered()
	}
	return false
}

// Finish moves the session to the summary state and returns the final
// score pair. In reveal-at-end mode the pending questions are graded here.
// It returns false, changing nothing, while the session is incomplete.
// Calling it again after success returns the same summary.
func (s *Session) Finish() (Summary, bool) {
	if s.state == StateSummary {
		return s.Summary(), true
	}
	if !s.CanFinish() {
		return Summary{}, false
	}
	for i := range s.items {
		s.submit(i)
	}
	results := make([]Result, len(s.questions))
	for i, q := range s.questions {
		it := s.items[i]
		results[i] = Result{
			QuestionID:     q.ID,
			SelectedAnswer: it.SelectedAnswer,
			IsCorrect:      it.IsCorrect != nil && *it.IsCorrect,
			IsBookmarked:   it.IsBookmarked,
		}
	}
	s.summary = Summary{Score: s.score, FullScore: len(s.questions), Results: results}
	s.state = StateSummary
	return s.Summary(), true
}

// Summary returns a copy of the final result; zero until Finish succeeds.
func (s *Session) Summary() Summary {
	out := s.summary
	if s.summary.Results != nil {
		out.Results = make([]Result, len(s.summary.Results))
		copy(out.Results, s.summary.Results)
	}
	return out
}
