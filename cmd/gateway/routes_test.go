package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/auth"
	"github.com/mind-engage/mindengage-quiz/internal/backend"
	"github.com/mind-engage/mindengage-quiz/internal/backend/cached"
	"github.com/mind-engage/mindengage-quiz/internal/backend/sqlstore"
	"github.com/mind-engage/mindengage-quiz/internal/logger"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

var dbSeq atomic.Int64

type fixture struct {
	srv     *httptest.Server
	store   *sqlstore.Store
	blobDir string
	sub   backend.Subject
	nema  backend.Category
	proto backend.Category
	// answers by question id
	answers map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:gateway_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	dbh, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	store := sqlstore.NewStore(dbh, sqlstore.DriverSQLite, sqlstore.WithBcryptCost(bcrypt.MinCost))
	if err := store.EnsureSuperAdmin(ctx, "root", "rootpw"); err != nil {
		t.Fatalf("super-admin: %v", err)
	}

	f := &fixture{store: store, answers: map[string]string{}}
	f.sub, _ = store.CreateSubject(ctx, backend.Subject{Name: "Parasitology"})
	f.nema, _ = store.CreateCategory(ctx, backend.Category{SubjectID: f.sub.ID, Name: "Nematodes"})
	f.proto, _ = store.CreateCategory(ctx, backend.Category{SubjectID: f.sub.ID, Name: "Protozoa"})
	for _, q := range []quiz.Question{
		{CategoryID: f.nema.ID, Type: quiz.TypeShortAnswer, Text: "Strongyloides filariform larvae penetrate the?", Answer: "skin", Keywords: []string{"larva currens"}},
		{CategoryID: f.nema.ID, Type: quiz.TypeShortAnswer, Text: "Hookworm anemia is of which type?", Answer: "iron deficiency"},
		{CategoryID: f.proto.ID, Type: quiz.TypeMultipleChoice, Text: "Vector of malaria?", Choices: []string{"Anopheles", "Aedes"}, Answer: "Anopheles"},
	} {
		q.SubjectID = f.sub.ID
		created, err := store.CreateQuestion(ctx, q)
		if err != nil {
			t.Fatalf("question: %v", err)
		}
		f.answers[created.ID] = created.Answer
	}

	f.blobDir = t.TempDir()
	bs, err := storage.NewFSStore(f.blobDir)
	if err != nil {
		t.Fatal(err)
	}
	r := newRouter(deps{
		log:         logger.Nop(),
		backend:     cached.New(store, cached.NewMemoryCache(), time.Minute, nil),
		auth:        auth.NewAuthService("test-secret", time.Hour),
		registry:    quiz.NewRegistry(),
		blobs:       bs,
		corsOrigins: []string{"http://localhost:3000"},
		readiness:   map[string]api.Pinger{"db": api.PingFunc(dbh.PingContext)},
	})
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, f.srv.URL+path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func (f *fixture) login(t *testing.T, user, pass string) string {
	t.Helper()
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if code := f.do(t, http.MethodPost, "/auth/login", "", backend.Credentials{Username: user, Password: pass}, &out); code != http.StatusOK {
		t.Fatalf("login %s: status %d", user, code)
	}
	return out.AccessToken
}

func (f *fixture) registerUser(t *testing.T, name string) string {
	t.Helper()
	if code := f.do(t, http.MethodPost, "/auth/register", "", backend.Registration{Username: name, Password: "pw"}, nil); code != http.StatusCreated {
		t.Fatalf("register %s: status %d", name, code)
	}
	return f.login(t, name, "pw")
}

type sessionBody struct {
	ID   string    `json:"id"`
	View quiz.View `json:"view"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	if code := f.do(t, http.MethodGet, "/healthz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("healthz = %d", code)
	}
	if code := f.do(t, http.MethodGet, "/readyz", "", nil, nil); code != http.StatusOK {
		t.Fatalf("readyz = %d", code)
	}
	var eb errorBody
	if code := f.do(t, http.MethodGet, "/subjects", "", nil, &eb); code != http.StatusUnauthorized || eb.Error.Code != "unauthorized" {
		t.Fatalf("anonymous subjects = %d %+v", code, eb)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	tok := f.registerUser(t, "ana")

	var qs []quiz.Question
	if code := f.do(t, http.MethodGet, "/questions?q=larva+currens+or+malaria", tok, nil, &qs); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	for _, q := range qs {
		if q.Answer != "" {
			t.Fatalf("answer leaked to a plain user: %+v", q)
		}
	}

	if code := f.do(t, http.MethodGet, "/questions?q=&category_id="+f.nema.ID, tok, nil, &qs); code != http.StatusOK || len(qs) != 2 {
		t.Fatalf("category filter = %d, %d questions", code, len(qs))
	}
	if code := f.do(t, http.MethodGet, `/questions?q=%22vector+of%22+not+aedes`, tok, nil, &qs); code != http.StatusOK || len(qs) != 0 {
		t.Fatalf("phrase not = %d, %d questions", code, len(qs))
	}

	root := f.login(t, "root", "rootpw")
	f.do(t, http.MethodGet, "/questions?q=malaria", root, nil, &qs)
	if len(qs) != 1 || qs[0].Answer != "Anopheles" {
		t.Fatalf("manager should see answers: %+v", qs)
	}

	if code := f.do(t, http.MethodPost, "/keywords", root, backend.Keyword{SubjectID: f.sub.ID, CategoryID: f.nema.ID, Name: "Ground itch", Aliases: []string{"hookworm dermatitis"}}, nil); code != http.StatusCreated {
		t.Fatalf("create keyword = %d", code)
	}
	var kws []backend.Keyword
	f.do(t, http.MethodGet, "/keywords?q=dermatitis", tok, nil, &kws)
	if len(kws) != 1 || kws[0].Name != "Ground itch" {
		t.Fatalf("keywords = %+v", kws)
	}
}

func TestQuizFlow_RevealAfterEach(t *testing.T) {
	f := newFixture(t)
	tok := f.registerUser(t, "ana")
	cfg := map[string]any{
		"answer_mode":    "one-by-one",
		"question_count": 5,
		"question_types": []string{quiz.TypeShortAnswer},
		"subject_id":     f.sub.ID,
		"category_ids":   []string{f.nema.ID},
	}
	var s sessionBody
	if code := f.do(t, http.MethodPost, "/quiz/sessions", tok, cfg, &s); code != http.StatusCreated {
		t.Fatalf("start = %d", code)
	}
	if s.View.Total != 2 || s.View.AnswerMode != quiz.RevealAfterEach {
		t.Fatalf("view = %+v", s.View)
	}
	base := "/quiz/sessions/" + s.ID

	// other users cannot drive it
	other := f.registerUser(t, "ben")
	if code := f.do(t, http.MethodGet, base, other, nil, nil); code != http.StatusForbidden {
		t.Fatalf("foreign access = %d", code)
	}

	var eb errorBody
	if code := f.do(t, http.MethodPost, base+"/finish", tok, nil, &eb); code != http.StatusConflict || eb.Error.Code != "not_finishable" {
		t.Fatalf("early finish = %d %+v", code, eb)
	}

	for i := 0; i < 2; i++ {
		cur := s.View.Questions[s.View.Index].Question
		if cur.Answer != "" {
			t.Fatalf("answer visible before submission")
		}
		ans := f.answers[cur.ID]
		if i == 1 {
			ans = "wrong"
		}
		f.do(t, http.MethodPost, base+"/answer", tok, map[string]string{"answer": strings.ToUpper(ans)}, &s)
		f.do(t, http.MethodPost, base+"/submit", tok, nil, &s)
		if !s.View.Questions[s.View.Index].Revealed {
			t.Fatalf("submitted question not revealed")
		}
		f.do(t, http.MethodPost, base+"/navigate", tok, map[string]string{"direction": "next"}, &s)
	}
	if s.View.Score != 1 || !s.View.CanFinish {
		t.Fatalf("view before finish = %+v", s.View)
	}

	f.do(t, http.MethodPost, base+"/bookmark", tok, map[string]int{"index": 1}, &s)
	if !s.View.Questions[1].Item.IsBookmarked {
		t.Fatalf("bookmark not set")
	}

	var fin struct {
		Summary quiz.Summary  `json:"summary"`
		Score   backend.Score `json:"score"`
	}
	if code := f.do(t, http.MethodPost, base+"/finish", tok, nil, &fin); code != http.StatusOK {
		t.Fatalf("finish = %d", code)
	}
	if fin.Summary.Score != 1 || fin.Summary.FullScore != 2 || fin.Score.ID == "" {
		t.Fatalf("finish = %+v", fin)
	}
	if code := f.do(t, http.MethodGet, base, tok, nil, nil); code != http.StatusNotFound {
		t.Fatalf("session still live after finish: %d", code)
	}

	var scores []backend.Score
	f.do(t, http.MethodGet, "/scores", tok, nil, &scores)
	if len(scores) != 1 || scores[0].Score != 1 || scores[0].FullScore != 2 || len(scores[0].Results) != 2 {
		t.Fatalf("scores = %+v", scores)
	}
	f.do(t, http.MethodGet, "/scores", other, nil, &scores)
	if len(scores) != 0 {
		t.Fatalf("other user sees scores: %+v", scores)
	}
}

func TestQuizFlow_RevealAtEndAndAbandon(t *testing.T) {
	f := newFixture(t)
	tok := f.registerUser(t, "ana")
	cfg := quiz.Config{
		AnswerMode:    quiz.RevealAtEnd,
		QuestionCount: 1,
		QuestionTypes: []string{quiz.TypeMultipleChoice},
		SubjectID:     f.sub.ID,
	}
	var s sessionBody
	if code := f.do(t, http.MethodPost, "/quiz/sessions", tok, cfg, &s); code != http.StatusCreated {
		t.Fatalf("start = %d", code)
	}
	base := "/quiz/sessions/" + s.ID
	f.do(t, http.MethodPost, base+"/answer", tok, map[string]string{"answer": "Anopheles"}, &s)
	if s.View.Score != 0 || s.View.Questions[0].Item.IsCorrect != nil {
		t.Fatalf("reveal-at-end leaked grading: %+v", s.View)
	}
	if code := f.do(t, http.MethodDelete, base, tok, nil, nil); code != http.StatusNoContent {
		t.Fatalf("abandon = %d", code)
	}
	if code := f.do(t, http.MethodPost, base+"/finish", tok, nil, nil); code != http.StatusNotFound {
		t.Fatalf("finish after abandon = %d", code)
	}

	var eb errorBody
	cfg.CategoryIDs = []string{"nowhere"}
	if code := f.do(t, http.MethodPost, "/quiz/sessions", tok, cfg, &eb); code != http.StatusUnprocessableEntity || eb.Error.Code != "no_questions" {
		t.Fatalf("empty pool = %d %+v", code, eb)
	}
	if code := f.do(t, http.MethodPost, "/quiz/sessions", tok, map[string]any{"answer_mode": "sometimes"}, nil); code != http.StatusBadRequest {
		t.Fatalf("bad mode = %d", code)
	}
}

func TestReportsAndRoles(t *testing.T) {
	f := newFixture(t)
	tok := f.registerUser(t, "ana")

	if code := f.do(t, http.MethodPost, "/subjects", tok, backend.Subject{Name: "Virology"}, nil); code != http.StatusForbidden {
		t.Fatalf("user created subject: %d", code)
	}

	var s sessionBody
	f.do(t, http.MethodPost, "/quiz/sessions", tok, quiz.Config{
		AnswerMode: quiz.RevealAtEnd, QuestionCount: 1, QuestionTypes: []string{quiz.TypeShortAnswer}, SubjectID: f.sub.ID,
	}, &s)
	base := "/quiz/sessions/" + s.ID
	var rep backend.Report
	if code := f.do(t, http.MethodPost, base+"/report", tok, map[string]string{"reason": "answer is wrong"}, &rep); code != http.StatusCreated {
		t.Fatalf("report = %d", code)
	}
	if code := f.do(t, http.MethodPost, base+"/report", tok, map[string]string{"reason": "again"}, nil); code != http.StatusConflict {
		t.Fatalf("second report = %d", code)
	}
	if code := f.do(t, http.MethodGet, "/reports", tok, nil, nil); code != http.StatusForbidden {
		t.Fatalf("user listed reports: %d", code)
	}

	// admin registration needs approval
	if code := f.do(t, http.MethodPost, "/auth/register", "", backend.Registration{Username: "dr-lee", Password: "pw", Role: backend.RoleAdmin}, nil); code != http.StatusCreated {
		t.Fatalf("register admin = %d", code)
	}
	var eb errorBody
	if code := f.do(t, http.MethodPost, "/auth/login", "", backend.Credentials{Username: "dr-lee", Password: "pw"}, &eb); code != http.StatusForbidden || eb.Error.Code != "pending_approval" {
		t.Fatalf("pending login = %d %+v", code, eb)
	}
	root := f.login(t, "root", "rootpw")
	var pending []backend.User
	f.do(t, http.MethodGet, "/admin/pending", root, nil, &pending)
	if len(pending) != 1 {
		t.Fatalf("pending = %+v", pending)
	}
	if code := f.do(t, http.MethodPost, "/admin/"+pending[0].ID+"/approve", tok, nil, nil); code != http.StatusForbidden {
		t.Fatalf("user approved an admin: %d", code)
	}
	if code := f.do(t, http.MethodPost, "/admin/"+pending[0].ID+"/approve", root, nil, nil); code != http.StatusNoContent {
		t.Fatalf("approve = %d", code)
	}
	admin := f.login(t, "dr-lee", "pw")

	var open []backend.Report
	f.do(t, http.MethodGet, "/reports?status=open", admin, nil, &open)
	if len(open) != 1 || open[0].ID != rep.ID {
		t.Fatalf("open reports = %+v", open)
	}
	if code := f.do(t, http.MethodPost, "/reports/"+rep.ID+"/resolve", admin, nil, &rep); code != http.StatusOK || rep.Status != backend.ReportResolved {
		t.Fatalf("resolve = %d %+v", code, rep)
	}
	if code := f.do(t, http.MethodPost, "/reports/"+rep.ID+"/resolve", admin, nil, nil); code != http.StatusConflict {
		t.Fatalf("second resolve = %d", code)
	}

	var subs []backend.Subject
	if code := f.do(t, http.MethodPost, "/subjects", admin, backend.Subject{Name: "Virology"}, nil); code != http.StatusCreated {
		t.Fatalf("admin create subject = %d", code)
	}
	f.do(t, http.MethodGet, "/subjects", tok, nil, &subs)
	if len(subs) != 2 {
		t.Fatalf("subjects after create = %+v", subs)
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	tok := f.registerUser(t, "ana")
	if code := f.do(t, http.MethodPost, "/auth/logout", tok, nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout = %d", code)
	}
	if code := f.do(t, http.MethodGet, "/subjects", tok, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("token still valid after logout: %d", code)
	}
}

func TestQuestionImageUpload(t *testing.T) {
	f := newFixture(t)
	root := f.login(t, "root", "rootpw")
	var qid string
	for id := range f.answers {
		qid = id
		break
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "slide.png")
	_, _ = fw.Write([]byte("fake-png"))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/questions/"+qid+"/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+root)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var q quiz.Question
	_ = json.NewDecoder(resp.Body).Decode(&q)
	if resp.StatusCode != http.StatusCreated || len(q.Images) != 1 || !strings.HasPrefix(q.Images[0], "/assets/questions/"+qid+"/") {
		t.Fatalf("upload = %d %+v", resp.StatusCode, q)
	}

	img, err := http.Get(f.srv.URL + q.Images[0])
	if err != nil {
		t.Fatal(err)
	}
	defer img.Body.Close()
	body, _ := io.ReadAll(img.Body)
	if img.StatusCode != http.StatusOK || string(body) != "fake-png" || img.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("asset = %d %q %s", img.StatusCode, body, img.Header.Get("Content-Type"))
	}
}

func TestQuestionImageUpload_UnknownQuestionLeavesNoFile(t *testing.T) {
	f := newFixture(t)
	root := f.login(t, "root", "rootpw")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "slide.png")
	_, _ = fw.Write([]byte("fake-png"))
	_ = mw.Close()

	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/questions/missing/images", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+root)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("upload = %d, want 404", resp.StatusCode)
	}
	entries, err := os.ReadDir(filepath.Join(f.blobDir, "questions", "missing"))
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("orphan blobs left: %v", entries)
	}
}
