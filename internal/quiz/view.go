package quiz

// View is a read-only rendering of a session. Answers stay hidden until
// they are revealed: after each submission in reveal-after-each mode, and
// only at the summary in reveal-at-end mode.
type View struct {
	State        State          `json:"state"`
	AnswerMode   AnswerMode     `json:"answer_mode"`
	Index        int            `json:"index"`
	Total        int            `json:"total"`
	Score        int            `json:"score"`
	AllAnswered  bool           `json:"all_answered"`
	AllSubmitted bool           `json:"all_submitted"`
	CanFinish    bool           `json:"can_finish"`
	Questions    []QuestionView `json:"questions"`
	Summary      *Summary       `json:"summary,omitempty"`
}

type QuestionView struct {
	Question Question `json:"question"`
	Item     Item     `json:"item"`
	Revealed bool     `json:"revealed"`
}

func (s *Session) revealed(i int) bool {
	if s.state == StateSummary {
		return true
	}
	return s.mode == RevealAfterEach && s.items[i].IsSubmitted
}

func (s *Session) View() View {
	v := View{
		State:        s.state,
		AnswerMode:   s.mode,
		Index:        s.current,
		Total:        len(s.questions),
		AllAnswered:  s.AllAnswered(),
		AllSubmitted: s.AllSubmitted(),
		CanFinish:    s.CanFinish(),
		Questions:    make([]QuestionView, len(s.questions)),
	}
	if s.mode == RevealAfterEach || s.state == StateSummary {
		v.Score = s.score
	}
	for i, q := range s.questions {
		it := s.items[i]
		rev := s.revealed(i)
		if !rev {
			q = q.WithoutAnswer()
			// grading results are part of the reveal
			it.IsCorrect = nil
		}
		v.Questions[i] = QuestionView{Question: q, Item: it, Revealed: rev}
	}
	if s.state == StateSummary {
		sum := s.Summary()
		v.Summary = &sum
	}
	return v
}
