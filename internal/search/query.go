package search

import (
	"strings"
	"unicode"
)

type Operator int

const (
	OpNone Operator = iota
	OpAnd
	OpOr
	OpNot
)

func (o Operator) String() string {
	switch o {
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpNot:
		return "not"
	default:
		return ""
	}
}

// Token is either an operator or a lower-cased term.
type Token struct {
	Op   Operator
	Term string
}

func (t Token) IsOperator() bool { return t.Op != OpNone }

type Query []Token

// closers lists the runes that may close a quoted group opened by the key.
var closers = map[rune]string{
	'"': "\"”“",
	'“': "”\"“",
	'”': "”\"“",
	'„': "“”\"",
	'«': "»",
	'‘': "’",
}

// Parse splits raw into terms and operators, left to right. Quoted groups are
// single terms even when they contain spaces; an unterminated quote runs to
// the end of the input.
func Parse(raw string) Query {
	var (
		q    Query
		word strings.Builder
	)
	flush := func() {
		if word.Len() == 0 {
			return
		}
		q = append(q, wordToken(word.String()))
		word.Reset()
	}

	rs := []rune(raw)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		if end, ok := closers[r]; ok && word.Len() == 0 {
			j := i + 1
			for j < len(rs) && !strings.ContainsRune(end, rs[j]) {
				j++
			}
			if term := strings.TrimSpace(string(rs[i+1 : min(j, len(rs))])); term != "" {
				q = append(q, Token{Term: strings.ToLower(term)})
			}
			i = j
			continue
		}
		if unicode.IsSpace(r) {
			flush()
			continue
		}
		word.WriteRune(r)
	}
	flush()
	return q
}

func wordToken(w string) Token {
	lw := strings.ToLower(w)
	switch lw {
	case "and":
		return Token{Op: OpAnd}
	case "or":
		return Token{Op: OpOr}
	case "not":
		return Token{Op: OpNot}
	}
	return Token{Term: lw}
}

func (q Query) HasTerms() bool {
	for _, t := range q {
		if !t.IsOperator() {
			return true
		}
	}
	return false
}

func (q Query) Terms() []string {
	out := make([]string, 0, len(q))
	for _, t := range q {
		if !t.IsOperator() {
			out = append(out, t.Term)
		}
	}
	return out
}

func (q Query) String() string {
	parts := make([]string, 0, len(q))
	for _, t := range q {
		if t.IsOperator() {
			parts = append(parts, t.Op.String())
			continue
		}
		parts = append(parts, `"`+t.Term+`"`)
	}
	return strings.Join(parts, " ")
}

// Match folds the query over r. The first term sets the running value; each
// later term combines with it using the most recent operator, "or" until one
// is seen. A query without terms matches nothing.
func (q Query) Match(r Record) bool {
	text := strings.ToLower(r.SearchText())
	var terms []string
	if ts := r.SearchTerms(); len(ts) > 0 {
		terms = make([]string, len(ts))
		for i, t := range ts {
			terms[i] = strings.ToLower(t)
		}
	}

	var include, seen bool
	op := OpOr
	for _, tok := range q {
		if tok.IsOperator() {
			op = tok.Op
			continue
		}
		m := containsTerm(text, terms, tok.Term)
		if !seen {
			include, seen = m, true
			continue
		}
		switch op {
		case OpAnd:
			include = include && m
		case OpNot:
			include = include && !m
		default:
			include = include || m
		}
	}
	return include
}

func containsTerm(text string, terms []string, term string) bool {
	if strings.Contains(text, term) {
		return true
	}
	for _, t := range terms {
		if strings.Contains(t, term) {
			return true
		}
	}
	return false
}
