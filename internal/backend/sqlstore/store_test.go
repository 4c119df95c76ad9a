package sqlstore_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/backend/sqlstore"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

var dbSeq atomic.Int64

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:sqlstore_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlstore.NewStore(db, sqlstore.DriverSQLite, sqlstore.WithBcryptCost(bcrypt.MinCost))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), "mysql", ""); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	u, err := s.Register(ctx, backend.Registration{Username: "ana", Password: "pw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Role != backend.RoleUser || !u.Approved {
		t.Fatalf("user = %+v", u)
	}
	if _, err := s.Register(ctx, backend.Registration{Username: "ana", Password: "x"}); !errors.Is(err, backend.ErrConflict) {
		t.Fatalf("duplicate register err = %v", err)
	}
	if _, err := s.Register(ctx, backend.Registration{Username: "root", Password: "x", Role: backend.RoleSuperAdmin}); !errors.Is(err, backend.ErrInvalid) {
		t.Fatalf("super-admin register err = %v", err)
	}

	res, err := s.Login(ctx, backend.Credentials{Username: "ana", Password: "pw"})
	if err != nil || res.User.ID != u.ID {
		t.Fatalf("login = %+v, %v", res, err)
	}
	if _, err := s.Login(ctx, backend.Credentials{Username: "ana", Password: "nope"}); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("bad password err = %v", err)
	}
	if _, err := s.Login(ctx, backend.Credentials{Username: "ghost", Password: "pw"}); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("unknown user err = %v", err)
	}
}

func TestAdminApproval(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	admin, err := s.Register(ctx, backend.Registration{Username: "dr-lee", Password: "pw", Role: backend.RoleAdmin})
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	if admin.Approved {
		t.Fatalf("admin approved on registration")
	}
	if _, err := s.Login(ctx, backend.Credentials{Username: "dr-lee", Password: "pw"}); !errors.Is(err, backend.ErrPendingApproval) {
		t.Fatalf("pending login err = %v", err)
	}
	pending, err := s.ListPendingAdmins(ctx)
	if err != nil || len(pending) != 1 || pending[0].ID != admin.ID {
		t.Fatalf("pending = %+v, %v", pending, err)
	}
	if err := s.DecideAdmin(ctx, admin.ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := s.DecideAdmin(ctx, admin.ID, true); !errors.Is(err, backend.ErrConflict) {
		t.Fatalf("second approve err = %v", err)
	}
	res, err := s.Login(ctx, backend.Credentials{Username: "dr-lee", Password: "pw"})
	if err != nil || res.User.Role != backend.RoleAdmin {
		t.Fatalf("login after approval = %+v, %v", res, err)
	}

	other, _ := s.Register(ctx, backend.Registration{Username: "dr-kim", Password: "pw", Role: backend.RoleAdmin})
	if err := s.DecideAdmin(ctx, other.ID, false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := s.Login(ctx, backend.Credentials{Username: "dr-kim", Password: "pw"}); !errors.Is(err, backend.ErrUnauthorized) {
		t.Fatalf("rejected admin still exists: %v", err)
	}
	if err := s.DecideAdmin(ctx, "missing", true); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("missing user err = %v", err)
	}
}

func TestEnsureSuperAdmin(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	for i := 0; i < 2; i++ {
		if err := s.EnsureSuperAdmin(ctx, "root", "secret"); err != nil {
			t.Fatalf("ensure #%d: %v", i, err)
		}
	}
	res, err := s.Login(ctx, backend.Credentials{Username: "root", Password: "secret"})
	if err != nil || res.User.Role != backend.RoleSuperAdmin {
		t.Fatalf("login = %+v, %v", res, err)
	}
}

func seedCatalog(t *testing.T, s *sqlstore.Store) (backend.Subject, backend.Category, backend.Category) {
	t.Helper()
	ctx := context.Background()
	sub, err := s.CreateSubject(ctx, backend.Subject{Name: "Parasitology"})
	if err != nil {
		t.Fatalf("subject: %v", err)
	}
	nema, err := s.CreateCategory(ctx, backend.Category{SubjectID: sub.ID, Name: "Nematodes"})
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	proto, err := s.CreateCategory(ctx, backend.Category{SubjectID: sub.ID, Name: "Protozoa"})
	if err != nil {
		t.Fatalf("category: %v", err)
	}
	return sub, nema, proto
}

func TestCatalog(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sub, nema, _ := seedCatalog(t, s)

	if _, err := s.CreateSubject(ctx, backend.Subject{Name: "Parasitology"}); !errors.Is(err, backend.ErrConflict) {
		t.Fatalf("duplicate subject err = %v", err)
	}
	if _, err := s.CreateCategory(ctx, backend.Category{SubjectID: "nope", Name: "X"}); !errors.Is(err, backend.ErrInvalid) {
		t.Fatalf("category for unknown subject err = %v", err)
	}
	subs, err := s.ListSubjects(ctx)
	if err != nil || len(subs) != 1 || subs[0].ID != sub.ID {
		t.Fatalf("subjects = %+v, %v", subs, err)
	}
	cats, err := s.ListCategories(ctx, sub.ID)
	if err != nil || len(cats) != 2 || cats[0].ID != nema.ID {
		t.Fatalf("categories = %+v, %v", cats, err)
	}
	if cats, _ := s.ListCategories(ctx, "other"); len(cats) != 0 {
		t.Fatalf("categories for other subject = %+v", cats)
	}

	kw, err := s.CreateKeyword(ctx, backend.Keyword{SubjectID: sub.ID, CategoryID: nema.ID, Name: "Larva currens", Aliases: []string{"racing larva"}})
	if err != nil {
		t.Fatalf("keyword: %v", err)
	}
	kws, err := s.ListKeywords(ctx)
	if err != nil || len(kws) != 1 || kws[0].ID != kw.ID || kws[0].Aliases[0] != "racing larva" {
		t.Fatalf("keywords = %+v, %v", kws, err)
	}
}

func TestQuestions(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sub, nema, proto := seedCatalog(t, s)

	short, err := s.CreateQuestion(ctx, quiz.Question{
		SubjectID: sub.ID, CategoryID: nema.ID, Type: quiz.TypeShortAnswer,
		Text: "Strongyloides larvae penetrate?", Answer: "skin", Keywords: []string{"strongyloides"},
	})
	if err != nil {
		t.Fatalf("short: %v", err)
	}
	if _, err := s.CreateQuestion(ctx, quiz.Question{
		SubjectID: sub.ID, CategoryID: proto.ID, Type: quiz.TypeMultipleChoice,
		Text: "Malaria vector?", Choices: []string{"Anopheles", "Aedes"}, Answer: "Anopheles",
	}); err != nil {
		t.Fatalf("mcq: %v", err)
	}

	bad := []quiz.Question{
		{SubjectID: sub.ID, CategoryID: nema.ID, Type: quiz.TypeMultipleChoice, Text: "x", Choices: []string{"a", "b"}, Answer: "c"},
		{SubjectID: sub.ID, CategoryID: nema.ID, Type: "essay", Text: "x", Answer: "y"},
		{SubjectID: sub.ID, CategoryID: "nope", Type: quiz.TypeShortAnswer, Text: "x", Answer: "y"},
		{SubjectID: sub.ID, CategoryID: nema.ID, Type: quiz.TypeShortAnswer, Text: "", Answer: "y"},
	}
	for i, q := range bad {
		if _, err := s.CreateQuestion(ctx, q); !errors.Is(err, backend.ErrInvalid) {
			t.Fatalf("bad question %d err = %v", i, err)
		}
	}

	tests := []struct {
		name string
		f    backend.QuestionFilter
		want int
	}{
		{name: "all", f: backend.QuestionFilter{}, want: 2},
		{name: "subject", f: backend.QuestionFilter{SubjectID: sub.ID}, want: 2},
		{name: "category", f: backend.QuestionFilter{SubjectID: sub.ID, CategoryIDs: []string{nema.ID}}, want: 1},
		{name: "types", f: backend.QuestionFilter{Types: []string{quiz.TypeMultipleChoice}}, want: 1},
		{name: "both categories short only", f: backend.QuestionFilter{CategoryIDs: []string{nema.ID, proto.ID}, Types: []string{quiz.TypeShortAnswer}}, want: 1},
		{name: "other subject", f: backend.QuestionFilter{SubjectID: "micro"}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListQuestions(ctx, tc.f)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("got %d questions, want %d", len(got), tc.want)
			}
		})
	}

	q, err := s.AttachQuestionImage(ctx, short.ID, "/assets/questions/a.png")
	if err != nil || len(q.Images) != 1 {
		t.Fatalf("attach = %+v, %v", q, err)
	}
	got, _ := s.ListQuestions(ctx, backend.QuestionFilter{CategoryIDs: []string{nema.ID}})
	if len(got[0].Images) != 1 || got[0].Keywords[0] != "strongyloides" || got[0].Answer != "skin" {
		t.Fatalf("stored question = %+v", got[0])
	}
	if _, err := s.AttachQuestionImage(ctx, "missing", "/assets/x.png"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("attach to missing err = %v", err)
	}
}

func TestScores(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sel := "skin"
	sc := backend.Score{
		UserID: "u1", SubjectID: "para", CategoryIDs: []string{"nema"},
		AnswerMode: quiz.RevealAtEnd, Score: 1, FullScore: 2, TimeTakenSec: 42,
		Results: []quiz.Result{{QuestionID: "q1", SelectedAnswer: &sel, IsCorrect: true}, {QuestionID: "q2"}},
		CreatedAt: 100,
	}
	if _, err := s.SaveScore(ctx, sc); err != nil {
		t.Fatalf("save: %v", err)
	}
	sc.CreatedAt = 200
	sc.Score = 2
	if _, err := s.SaveScore(ctx, sc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.SaveScore(ctx, backend.Score{UserID: "u1", SubjectID: "para", Score: 3, FullScore: 2}); !errors.Is(err, backend.ErrInvalid) {
		t.Fatalf("out of range err = %v", err)
	}

	got, err := s.ListScores(ctx, "u1")
	if err != nil || len(got) != 2 {
		t.Fatalf("scores = %+v, %v", got, err)
	}
	if got[0].Score != 2 || got[0].TimeTakenSec != 42 || got[0].AnswerMode != quiz.RevealAtEnd {
		t.Fatalf("newest score = %+v", got[0])
	}
	if r := got[1].Results; len(r) != 2 || *r[0].SelectedAnswer != "skin" || r[1].SelectedAnswer != nil {
		t.Fatalf("results = %+v", r)
	}
	if other, _ := s.ListScores(ctx, "u2"); len(other) != 0 {
		t.Fatalf("other user's scores = %+v", other)
	}
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	sub, nema, _ := seedCatalog(t, s)
	q, err := s.CreateQuestion(ctx, quiz.Question{SubjectID: sub.ID, CategoryID: nema.ID, Type: quiz.TypeShortAnswer, Text: "t", Answer: "a"})
	if err != nil {
		t.Fatalf("question: %v", err)
	}

	if _, err := s.CreateReport(ctx, backend.Report{QuestionID: "missing", UserID: "u1", Reason: "typo"}); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("report on missing question err = %v", err)
	}
	if _, err := s.CreateReport(ctx, backend.Report{QuestionID: q.ID, UserID: "u1", Reason: "  "}); !errors.Is(err, backend.ErrInvalid) {
		t.Fatalf("empty reason err = %v", err)
	}
	rep, err := s.CreateReport(ctx, backend.Report{QuestionID: q.ID, UserID: "u1", Reason: "answer is wrong"})
	if err != nil || rep.Status != backend.ReportOpen {
		t.Fatalf("report = %+v, %v", rep, err)
	}

	open, _ := s.ListReports(ctx, backend.ReportOpen)
	if len(open) != 1 {
		t.Fatalf("open reports = %+v", open)
	}
	res, err := s.ResolveReport(ctx, rep.ID, "admin1")
	if err != nil || res.Status != backend.ReportResolved || res.ResolvedBy != "admin1" {
		t.Fatalf("resolve = %+v, %v", res, err)
	}
	if _, err := s.ResolveReport(ctx, rep.ID, "admin1"); !errors.Is(err, backend.ErrConflict) {
		t.Fatalf("second resolve err = %v", err)
	}
	if _, err := s.ResolveReport(ctx, "missing", "admin1"); !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("resolve missing err = %v", err)
	}
	if open, _ := s.ListReports(ctx, backend.ReportOpen); len(open) != 0 {
		t.Fatalf("open after resolve = %+v", open)
	}
	if all, _ := s.ListReports(ctx, ""); len(all) != 1 {
		t.Fatalf("all reports = %+v", all)
	}
}
