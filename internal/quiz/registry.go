package quiz

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("quiz session not found")
	ErrNotOwner        = errors.New("quiz session belongs to another user")
	ErrNotFinishable   = errors.New("quiz cannot be finished yet")
	ErrFinishPending   = errors.New("quiz result is already being saved")
	ErrAlreadyReported = errors.New("question already reported")
)

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 2 * time.Hour

// Entry is one live session plus what the host needs to persist it.
type Entry struct {
	ID        string
	OwnerID   string
	Config    Config
	StartedAt time.Time

	mu         sync.Mutex
	session    *Session
	now        func() time.Time
	touched    time.Time
	finishedAt time.Time
	saving     bool
	receipt    any
	reporting  map[int]bool
}

// Do runs fn with exclusive access to the session.
func (e *Entry) Do(fn func(s *Session)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = e.now()
	fn(e.session)
}

// BeginFinish finishes the session and claims the hand-off of its summary.
// The elapsed time is frozen at the first success so retries of a failed
// hand-off report the same value.
//
// Exactly one caller at a time holds the claim; others get ErrFinishPending.
// Once EndFinish recorded a receipt, later calls return it and must not save
// again.
func (e *Entry) BeginFinish() (sum Summary, took time.Duration, receipt any, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	e.touched = now
	if e.receipt != nil {
		return e.session.Summary(), e.finishedAt.Sub(e.StartedAt), e.receipt, nil
	}
	if e.saving {
		return Summary{}, 0, nil, ErrFinishPending
	}
	sum, ok := e.session.Finish()
	if !ok {
		return Summary{}, 0, nil, ErrNotFinishable
	}
	if e.finishedAt.IsZero() {
		e.finishedAt = now
	}
	e.saving = true
	return sum, e.finishedAt.Sub(e.StartedAt), nil, nil
}

// EndFinish releases the claim taken by BeginFinish. A nil receipt means the
// save failed and the summary may be handed off again.
func (e *Entry) EndFinish(receipt any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.saving = false
	if receipt != nil {
		e.receipt = receipt
	}
}

// BeginReport claims the current question for a report.
func (e *Entry) BeginReport() (int, Question, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.touched = e.now()
	i := e.session.Index()
	if e.session.Item(i).IsReported || e.reporting[i] {
		return 0, Question{}, ErrAlreadyReported
	}
	if e.reporting == nil {
		e.reporting = map[int]bool{}
	}
	e.reporting[i] = true
	return i, e.session.Current(), nil
}

// EndReport releases the claim on question i, marking it reported when ok.
func (e *Entry) EndReport(i int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.reporting, i)
	if ok {
		e.session.MarkReported(i)
	}
}

// idle reports whether the entry was last touched before cutoff. Entries in
// the middle of a hand-off are never idle.
func (e *Entry) idle(cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.saving && len(e.reporting) == 0 && e.touched.Before(cutoff)
}

// Registry holds the live sessions of this process. Sessions are dropped
// when abandoned, after their summary is handed off, or once left idle for
// longer than the idle TTL; nothing is persisted.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	now     func() time.Time
	idleTTL time.Duration
}

type RegistryOption func(*Registry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithIdleTTL sets how long a session may go untouched. Zero or less keeps
// DefaultIdleTTL.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTTL = d
		}
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{entries: map[string]*Entry{}, now: time.Now, idleTTL: DefaultIdleTTL}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Now() time.Time { return r.now() }

// Start registers a new session. Idle sessions are swept on each call.
func (r *Registry) Start(ownerID string, cfg Config, questions []Question, opts ...SessionOption) *Entry {
	now := r.now()
	e := &Entry{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Config:    cfg,
		StartedAt: now,
		session:   NewSession(questions, cfg.AnswerMode, opts...),
		now:       r.now,
		touched:   now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(now)
	r.entries[e.ID] = e
	return e
}

func (r *Registry) sweepLocked(now time.Time) {
	cutoff := now.Add(-r.idleTTL)
	for id, e := range r.entries {
		if e.idle(cutoff) {
			delete(r.entries, id)
		}
	}
}

// Get returns the owner's live session. A session idle past the TTL is
// dropped and reported as not found.
func (r *Registry) Get(id, ownerID string) (*Entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if e.idle(r.now().Add(-r.idleTTL)) {
		r.Delete(id)
		return nil, ErrSessionNotFound
	}
	if e.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return e, nil
}

func (r *Registry) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
