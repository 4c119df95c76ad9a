package quiz

import (
	"errors"
	"math/rand"
	"slices"
	"time"
)

var ErrNoQuestions = errors.New("no questions match the quiz config")

// Build materialises the question list for a new session from a fetched
// pool: it keeps questions of the configured subject, types and categories,
// drops duplicate ids, shuffles, and truncates to QuestionCount. A nil rng
// is seeded from the clock.
func Build(pool []Question, cfg Config, rng *rand.Rand) ([]Question, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	seen := make(map[string]struct{}, len(pool))
	out := make([]Question, 0, len(pool))
	for _, q := range pool {
		if cfg.SubjectID != "" && q.SubjectID != cfg.SubjectID {
			continue
		}
		if len(cfg.QuestionTypes) > 0 && !slices.Contains(cfg.QuestionTypes, q.Type) {
			continue
		}
		if len(cfg.CategoryIDs) > 0 && !slices.Contains(cfg.CategoryIDs, q.CategoryID) {
			continue
		}
		if _, dup := seen[q.ID]; dup {
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, ErrNoQuestions
	}
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if cfg.QuestionCount > 0 && cfg.QuestionCount < len(out) {
		out = out[:cfg.QuestionCount]
	}
	return out, nil
}
