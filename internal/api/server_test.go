package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/service"
)

type fakeWorkflow struct {
	triggerErr error
	triggered  []service.TriggerRequest
	report     *service.StatusReport
}

func (f *fakeWorkflow) Trigger(_ context.Context, req service.TriggerRequest) (*service.TriggerResult, error) {
	f.triggered = append(f.triggered, req)
	if f.triggerErr != nil {
		return nil, f.triggerErr
	}
	return &service.TriggerResult{RunID: "run-42", PersonaName: "TechVoice"}, nil
}

func (f *fakeWorkflow) Status(context.Context, int) (*service.StatusReport, error) {
	if f.report != nil {
		return f.report, nil
	}
	return &service.StatusReport{
		Enabled:      true,
		CurrentPhase: core.PhaseIdle,
		CreditUsage:  &core.CreditSummary{},
	}, nil
}

type fakeStuck struct {
	runs     []*core.Run
	swept    []core.RunID
	clearErr error
	cleared  []core.RunID
}

func (f *fakeStuck) ListStuck(context.Context, time.Duration) ([]*core.Run, error) {
	return f.runs, nil
}

func (f *fakeStuck) Sweep(context.Context) ([]core.RunID, error) {
	return f.swept, nil
}

func (f *fakeStuck) Clear(_ context.Context, id core.RunID) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeScheduler struct {
	status service.SchedulerStatus
}

func (f *fakeScheduler) Status(context.Context) (*service.SchedulerStatus, error) {
	s := f.status
	return &s, nil
}

func testWatcher(cronSecret string) *config.Watcher {
	cfg := &config.Config{}
	cfg.Autonomy.Enabled = true
	cfg.Cron.Secret = cronSecret
	cfg.Workflow.StuckThreshold = 5 * time.Minute
	return config.NewWatcher(nil, cfg, nil)
}

func newTestServer(wf *fakeWorkflow, stuck *fakeStuck, sched *fakeScheduler, cronSecret string) *Server {
	if wf == nil {
		wf = &fakeWorkflow{}
	}
	if stuck == nil {
		stuck = &fakeStuck{}
	}
	if sched == nil {
		sched = &fakeScheduler{}
	}
	return NewServer(wf, stuck, sched, testWatcher(cronSecret), nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestTriggerEndpoint_Success(t *testing.T) {
	wf := &fakeWorkflow{}
	s := newTestServer(wf, nil, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/workflow/trigger",
		map[string]interface{}{"personaId": "p1", "topicCount": 3, "maxPosts": 1})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-42", body["runId"])
	assert.Equal(t, "TechVoice", body["personaName"])

	require.Len(t, wf.triggered, 1)
	assert.Equal(t, "p1", wf.triggered[0].PersonaID)
	require.NotNil(t, wf.triggered[0].TopicCount)
	assert.Equal(t, 3, *wf.triggered[0].TopicCount)
}

func TestTriggerEndpoint_ErrorMapping(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"conflict", core.ErrAlreadyRunning("run-9"), http.StatusConflict, core.CodeAlreadyRunning},
		{"forbidden", core.ErrAutonomyDisabled(), http.StatusForbidden, core.CodeAutonomyDisabled},
		{"not found", core.ErrPersonaNotFound("ghost"), http.StatusNotFound, core.CodePersonaNotFound},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(&fakeWorkflow{triggerErr: tc.err}, nil, nil, "")

			rec, body := doJSON(t, s.Handler(), http.MethodPost, "/workflow/trigger",
				map[string]interface{}{"personaId": "p1"})

			assert.Equal(t, tc.status, rec.Code)
			errObj := body["error"].(map[string]interface{})
			assert.Equal(t, tc.code, errObj["code"])
		})
	}
}

func TestTriggerEndpoint_ConflictCarriesRunID(t *testing.T) {
	s := newTestServer(&fakeWorkflow{triggerErr: core.ErrAlreadyRunning("run-9")}, nil, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/workflow/trigger", map[string]interface{}{})

	require.Equal(t, http.StatusConflict, rec.Code)
	errObj := body["error"].(map[string]interface{})
	details := errObj["details"].(map[string]interface{})
	assert.Equal(t, "run-9", details["run_id"])
}

func TestTriggerEndpoint_RejectsNegativeBudgets(t *testing.T) {
	wf := &fakeWorkflow{}
	s := newTestServer(wf, nil, nil, "")

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/workflow/trigger",
		map[string]interface{}{"maxPosts": -1})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, wf.triggered)
}

func TestStatusEndpoint(t *testing.T) {
	now := time.Now().UTC()
	run := core.NewRun("run-7", "p1", 3, 1)
	run.Phase = core.PhaseDrafting
	wf := &fakeWorkflow{report: &service.StatusReport{
		Enabled:      true,
		CurrentPhase: core.PhaseDrafting,
		ActiveRun:    run,
		RecentRuns:   []*core.Run{run},
		CreditUsage: &core.CreditSummary{
			Total:      4.5,
			ByCategory: map[core.CreditCategory]float64{core.CreditSearchQuery: 4.5},
			Trend:      []core.DailyCredit{{Day: now.Format("2006-01-02"), Amount: 4.5}},
		},
	}}
	s := newTestServer(wf, nil, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/workflow/status?limit=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["enabled"])
	assert.Equal(t, "drafting", body["currentPhase"])
	active := body["activeRun"].(map[string]interface{})
	assert.Equal(t, "run-7", active["id"])
	assert.Len(t, body["recentRuns"], 1)
	usage := body["creditUsage"].(map[string]interface{})
	assert.InDelta(t, 4.5, usage["total"].(float64), 1e-9)
}

func TestStuckEndpoint(t *testing.T) {
	run := core.NewRun("stuck-1", "p1", 3, 1)
	s := newTestServer(nil, &fakeStuck{runs: []*core.Run{run}}, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/workflow/stuck?minutes=10", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["stuckCount"])
	assert.Equal(t, float64(10), body["minutesThreshold"])
	assert.Len(t, body["runs"], 1)
}

func TestClearStuckEndpoint_SingleRun(t *testing.T) {
	stuck := &fakeStuck{}
	s := newTestServer(nil, stuck, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/workflow/clear-stuck",
		map[string]interface{}{"runId": "run-3"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["cleared"])
	assert.Equal(t, []core.RunID{"run-3"}, stuck.cleared)
}

func TestClearStuckEndpoint_SweepAll(t *testing.T) {
	stuck := &fakeStuck{swept: []core.RunID{"a", "b"}}
	s := newTestServer(nil, stuck, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/workflow/clear-stuck", map[string]interface{}{})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["cleared"])
	assert.ElementsMatch(t, []interface{}{"a", "b"}, body["runs"])
}

func TestClearStuckEndpoint_UnknownRun(t *testing.T) {
	stuck := &fakeStuck{clearErr: core.ErrRunNotFound("missing")}
	s := newTestServer(nil, stuck, nil, "")

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/workflow/clear-stuck",
		map[string]interface{}{"runId": "missing"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCronEndpoint_SecretValidation(t *testing.T) {
	wf := &fakeWorkflow{}
	s := newTestServer(wf, nil, nil, "hunter2")

	rec, _ := doJSON(t, s.Handler(), http.MethodGet, "/cron/daily-content?secret=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, wf.triggered, "bad secret must not create a run")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/cron/daily-content?secret=hunter2&personaId=p1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	require.Len(t, wf.triggered, 1)
	assert.Equal(t, "p1", wf.triggered[0].PersonaID)
}

func TestCronEndpoint_Unconfigured(t *testing.T) {
	wf := &fakeWorkflow{}
	s := newTestServer(wf, nil, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/cron/daily-content?secret=any", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	errObj := body["error"].(map[string]interface{})
	assert.Equal(t, core.CodeCronUnconfigured, errObj["code"])
	assert.Empty(t, wf.triggered)
}

func TestCronEndpoint_AdmissionLossIsSkip(t *testing.T) {
	for _, err := range []error{
		core.ErrAlreadyRunning("run-1"),
		core.ErrAutonomyDisabled(),
		core.ErrPersonaNotFound("p1"),
	} {
		s := newTestServer(&fakeWorkflow{triggerErr: err}, nil, nil, "hunter2")

		rec, body := doJSON(t, s.Handler(), http.MethodGet, "/cron/daily-content?secret=hunter2", nil)

		require.Equal(t, http.StatusOK, rec.Code, "admission loss must not be an http error: %v", err)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, true, body["skipped"])
		assert.NotEmpty(t, body["message"])
	}
}

func TestSchedulerJobsEndpoint_OrderedByNextRun(t *testing.T) {
	now := time.Now().UTC()
	sched := &fakeScheduler{status: service.SchedulerStatus{
		Initialized: true,
		JobsCount:   2,
		Jobs: []*core.ScheduledJob{
			{ID: "late", PersonaID: "p1", Cadence: "daily@09:00", NextRunAt: now.Add(2 * time.Hour)},
			{ID: "soon", PersonaID: "p1", Cadence: "every:1h", NextRunAt: now.Add(30 * time.Minute)},
		},
	}}
	s := newTestServer(nil, nil, sched, "")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/scheduler/jobs", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	jobs := body["jobs"].([]interface{})
	require.Len(t, jobs, 2)
	assert.Equal(t, "soon", jobs[0].(map[string]interface{})["id"])
	assert.Equal(t, "late", jobs[1].(map[string]interface{})["id"])
}

func TestSchedulerStatusEndpoint(t *testing.T) {
	run := core.NewRun("run-1", "p1", 3, 1)
	wf := &fakeWorkflow{report: &service.StatusReport{
		Enabled:      true,
		CurrentPhase: run.Phase,
		ActiveRun:    run,
		CreditUsage:  &core.CreditSummary{},
	}}
	sched := &fakeScheduler{status: service.SchedulerStatus{Initialized: true, JobsCount: 1}}
	s := newTestServer(wf, nil, sched, "")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/scheduler/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["initialized"])
	assert.Equal(t, float64(1), body["jobsCount"])
	running := body["runningWorkflow"].(map[string]interface{})
	assert.Equal(t, "run-1", running["id"])
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(nil, nil, nil, "")

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}
