package grading

import "strings"

const (
	TypeShortAnswer    = "short_answer"
	TypeMultipleChoice = "multiple_choice"
)

// Q is the part of a question needed to check a response.
type Q struct {
	Type    string
	Answer  string
	Choices []string
}

// Strategy checks a single response for one question type.
type Strategy interface {
	Correct(q Q, response string) bool
}

// Grader routes by question type to the matching Strategy.
type Grader interface {
	Correct(q Q, response string) bool
}

type defaultGrader struct {
	strategies map[string]Strategy
}

func (g *defaultGrader) Correct(q Q, response string) bool {
	s, ok := g.strategies[q.Type]
	if !ok {
		return false
	}
	return s.Correct(q, response)
}

type Option func(*config)

type config struct {
	strategies map[string]Strategy
	strictMCQ  bool
}

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(questionType string, s Strategy) Option {
	return func(c *config) { c.strategies[questionType] = s }
}

// WithStrictChoices rejects multiple-choice responses that are not one of the
// question's listed choices, even when they equal the answer.
func WithStrictChoices(b bool) Option { return func(c *config) { c.strictMCQ = b } }

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{strategies: map[string]Strategy{}}
	for _, o := range opts {
		o(cfg)
	}
	strategies := map[string]Strategy{
		TypeShortAnswer:    shortAnswerStrategy{},
		TypeMultipleChoice: singleChoiceStrategy{strict: cfg.strictMCQ},
	}
	for t, s := range cfg.strategies {
		strategies[t] = s
	}
	return &defaultGrader{strategies: strategies}
}

// --- Strategies ---

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Correct(q Q, response string) bool {
	r := normalize(response)
	return r != "" && r == normalize(q.Answer)
}

type singleChoiceStrategy struct{ strict bool }

func (s singleChoiceStrategy) Correct(q Q, response string) bool {
	r := normalize(response)
	if r == "" || r != normalize(q.Answer) {
		return false
	}
	if !s.strict {
		return true
	}
	for _, c := range q.Choices {
		if normalize(c) == r {
			return true
		}
	}
	return false
}

// IsKnownType reports whether the default grader can check the type.
func IsKnownType(t string) bool {
	switch strings.TrimSpace(t) {
	case TypeShortAnswer, TypeMultipleChoice:
		return true
	}
	return false
}
