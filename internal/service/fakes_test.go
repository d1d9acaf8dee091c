package service

import (
	"context"
	"sync"
	"time"

	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/core"
)

// memRunStore mimics the SQLite store's single-flight admission.
type memRunStore struct {
	mu   sync.Mutex
	runs map[core.RunID]*core.Run
	seq  []core.RunID
}

func newMemRunStore() *memRunStore {
	return &memRunStore{runs: make(map[core.RunID]*core.Run)}
}

func cloneRun(r *core.Run) *core.Run {
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	c.ToolCalls = append([]core.ToolCallRecord(nil), r.ToolCalls...)
	return &c
}

func (m *memRunStore) CreateRun(_ context.Context, run *core.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.runs {
		if existing.Status == core.RunStatusRunning {
			return core.ErrAlreadyRunning(existing.ID)
		}
	}
	m.runs[run.ID] = cloneRun(run)
	m.seq = append(m.seq, run.ID)
	return nil
}

func (m *memRunStore) GetRun(_ context.Context, id core.RunID) (*core.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, core.ErrRunNotFound(id)
	}
	return cloneRun(r), nil
}

func (m *memRunStore) FindActiveRun(_ context.Context) (*core.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Status == core.RunStatusRunning {
			return cloneRun(r), nil
		}
	}
	return nil, nil
}

func (m *memRunStore) UpdateRun(_ context.Context, id core.RunID, patch core.RunPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return core.ErrRunNotFound(id)
	}
	if patch.Status != nil {
		r.Status = *patch.Status
	}
	if patch.Phase != nil {
		r.Phase = *patch.Phase
	}
	if patch.Error != nil {
		r.Error = *patch.Error
	}
	if patch.CompletedAt != nil {
		t := *patch.CompletedAt
		r.CompletedAt = &t
	}
	if patch.ToolCalls != nil {
		r.ToolCalls = append([]core.ToolCallRecord(nil), patch.ToolCalls...)
	}
	return nil
}

func (m *memRunStore) ListRuns(_ context.Context, limit int) ([]*core.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	var out []*core.Run
	for i := len(m.seq) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneRun(m.runs[m.seq[i]]))
	}
	return out, nil
}

func (m *memRunStore) ListStuckRuns(_ context.Context, cutoff time.Time) ([]*core.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.Run
	for _, id := range m.seq {
		r := m.runs[id]
		if r.Status == core.RunStatusRunning && r.StartedAt.Before(cutoff) {
			out = append(out, cloneRun(r))
		}
	}
	return out, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries []core.CreditEntry
}

func (m *memLedger) AppendCredit(_ context.Context, e core.CreditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return nil
}

func (m *memLedger) ListCredits(_ context.Context, since time.Time) ([]core.CreditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.CreditEntry
	for _, e := range m.entries {
		if !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memLedger) ListRunCredits(_ context.Context, runID core.RunID) ([]core.CreditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.CreditEntry
	for _, e := range m.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*core.ScheduledJob
}

func newMemJobStore(jobs ...*core.ScheduledJob) *memJobStore {
	m := &memJobStore{jobs: make(map[string]*core.ScheduledJob)}
	for _, j := range jobs {
		c := *j
		m.jobs[j.ID] = &c
	}
	return m
}

func (m *memJobStore) ListJobs(context.Context) ([]*core.ScheduledJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.ScheduledJob
	for _, j := range m.jobs {
		c := *j
		out = append(out, &c)
	}
	return out, nil
}

func (m *memJobStore) UpsertJob(_ context.Context, job *core.ScheduledJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *job
	m.jobs[job.ID] = &c
	return nil
}

func (m *memJobStore) RescheduleJob(_ context.Context, id string, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		j.NextRunAt = nextRunAt
	}
	return nil
}

type memPersonaStore struct {
	personas map[string]*core.Persona
	active   string
}

func (m *memPersonaStore) GetPersona(_ context.Context, id string) (*core.Persona, error) {
	if p, ok := m.personas[id]; ok {
		return p, nil
	}
	return nil, core.ErrPersonaNotFound(id)
}

func (m *memPersonaStore) FindActivePersona(context.Context) (*core.Persona, error) {
	if m.active == "" {
		return nil, nil
	}
	return m.personas[m.active], nil
}

func (m *memPersonaStore) SavePersona(_ context.Context, p *core.Persona) error {
	m.personas[p.ID] = p
	return nil
}

type memDraftStore struct {
	mu     sync.Mutex
	drafts []*core.Draft
}

func (m *memDraftStore) SaveDraft(_ context.Context, d *core.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts = append(m.drafts, d)
	return nil
}

func (m *memDraftStore) ListDrafts(_ context.Context, personaID string) ([]*core.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.Draft
	for _, d := range m.drafts {
		if d.PersonaID == personaID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDraftStore) MarkPosted(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.drafts {
		if d.ID == id {
			d.Status = core.DraftStatusPosted
			d.PostedAt = &at
		}
	}
	return nil
}

// scriptedModel replays responses, then signals completion.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*core.ModelResponse
	calls     int
}

func (m *scriptedModel) Complete(context.Context, core.ModelRequest) (*core.ModelResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls >= len(m.responses) {
		return &core.ModelResponse{Message: core.ModelMessage{Role: "assistant", Content: "done"}, Done: true}, nil
	}
	r := m.responses[m.calls]
	m.calls++
	return r, nil
}

type stubSearch struct{}

func (stubSearch) Search(_ context.Context, query string, _ int) ([]core.SearchResult, error) {
	return []core.SearchResult{{Title: query, URL: "https://example.com"}}, nil
}

type stubSocial struct {
	mu        sync.Mutex
	published []string
}

func (s *stubSocial) Publish(_ context.Context, content string) (*core.PostReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, content)
	return &core.PostReceipt{PostID: "post-1", PublishedAt: time.Now().UTC()}, nil
}

func watcherWith(enabled bool) *config.Watcher {
	cfg := &config.Config{}
	cfg.Autonomy.Enabled = enabled
	cfg.Workflow = config.WorkflowConfig{
		TopicCount:   3,
		MaxPosts:     1,
		MaxTurns:     8,
		ModelTimeout: time.Second,
		ToolTimeout:  time.Second,
	}
	return config.NewWatcher(nil, cfg, nil)
}
