package search

// Record is anything the filter can project: a text field, a collection of
// secondary strings (choices, keywords, aliases) and its subject/category refs.
type Record interface {
	SearchText() string
	SearchTerms() []string
	SubjectRef() string
	CategoryRef() string
}

// Structural holds exact-match constraints. Empty fields do not constrain.
type Structural struct {
	SubjectID  string
	CategoryID string
}

func (s Structural) IsZero() bool { return s.SubjectID == "" && s.CategoryID == "" }

func (s Structural) Allows(r Record) bool {
	if s.SubjectID != "" && r.SubjectRef() != s.SubjectID {
		return false
	}
	if s.CategoryID != "" && r.CategoryRef() != s.CategoryID {
		return false
	}
	return true
}

// Filter returns the records that pass both the structural filters and the
// parsed query, in input order. With no terms and no structural filter the
// input slice itself is returned.
func Filter[T Record](records []T, raw string, f Structural) []T {
	return FilterQuery(records, Parse(raw), f)
}

func FilterQuery[T Record](records []T, q Query, f Structural) []T {
	hasTerms := q.HasTerms()
	if !hasTerms && f.IsZero() {
		return records
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		if !f.Allows(r) {
			continue
		}
		if hasTerms && !q.Match(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}
