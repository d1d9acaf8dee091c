package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/core"
)

func toolTurn(calls ...core.ModelToolCall) *core.ModelResponse {
	return &core.ModelResponse{
		Message:   core.ModelMessage{Role: "assistant", ToolCalls: calls},
		TokensIn:  100,
		TokensOut: 40,
	}
}

func call(name string, args map[string]interface{}) core.ModelToolCall {
	return core.ModelToolCall{ID: "call-" + name, Name: name, Arguments: args}
}

func intPtr(v int) *int { return &v }

type orchFixture struct {
	orch     *Orchestrator
	runs     *memRunStore
	ledger   *memLedger
	personas *memPersonaStore
	drafts   *memDraftStore
	social   *stubSocial
}

func newOrchFixture(t *testing.T, watcher *config.Watcher, model core.ModelClient) *orchFixture {
	t.Helper()
	f := &orchFixture{
		runs:   newMemRunStore(),
		ledger: &memLedger{},
		personas: &memPersonaStore{
			personas: map[string]*core.Persona{
				"p1": {ID: "p1", Name: "TechVoice", Active: true},
			},
			active: "p1",
		},
		drafts: &memDraftStore{},
		social: &stubSocial{},
	}
	credits := NewCreditService(f.ledger, config.CreditsConfig{
		PerThousandTokens: 1.0,
		PerSearch:         0.5,
		PerPost:           2.0,
	}, nil)
	f.orch = NewOrchestrator(watcher, f.runs, f.personas, f.drafts, model, stubSearch{}, f.social, credits, nil)
	t.Cleanup(func() { f.orch.Close(time.Second) })
	return f
}

func TestTrigger_AutonomyDisabled(t *testing.T) {
	f := newOrchFixture(t, watcherWith(false), &scriptedModel{})

	_, err := f.orch.Trigger(context.Background(), TriggerRequest{})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeAutonomyDisabled))
	assert.True(t, core.IsCategory(err, core.ErrCatForbidden))
}

func TestTrigger_PersonaNotFound(t *testing.T) {
	f := newOrchFixture(t, watcherWith(true), &scriptedModel{})

	_, err := f.orch.Trigger(context.Background(), TriggerRequest{PersonaID: "ghost"})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodePersonaNotFound))
}

func TestTrigger_NoActivePersona(t *testing.T) {
	f := newOrchFixture(t, watcherWith(true), &scriptedModel{})
	f.personas.active = ""

	_, err := f.orch.Trigger(context.Background(), TriggerRequest{})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodePersonaNotFound))
}

func TestTrigger_SingleFlightConflict(t *testing.T) {
	f := newOrchFixture(t, watcherWith(true), &scriptedModel{})

	blocker := core.NewRun("blocker", "p1", 3, 1)
	require.NoError(t, f.runs.CreateRun(context.Background(), blocker))

	_, err := f.orch.Trigger(context.Background(), TriggerRequest{})
	require.Error(t, err)
	assert.True(t, core.IsCode(err, core.CodeAlreadyRunning))

	var domErr *core.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "blocker", domErr.Details["run_id"])
}

func TestTrigger_RunsToCompletion(t *testing.T) {
	model := &scriptedModel{responses: []*core.ModelResponse{
		toolTurn(call("research_topic", map[string]interface{}{"query": "golang"})),
		toolTurn(call("save_draft", map[string]interface{}{"content": "a fine post"})),
	}}
	f := newOrchFixture(t, watcherWith(true), model)

	res, err := f.orch.Trigger(context.Background(), TriggerRequest{})
	require.NoError(t, err)
	assert.Equal(t, "TechVoice", res.PersonaName)

	require.Eventually(t, func() bool {
		run, err := f.runs.GetRun(context.Background(), res.RunID)
		return err == nil && run.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	run, err := f.runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, run.Status)
	assert.Empty(t, run.Error)
	assert.NotNil(t, run.CompletedAt)
	require.Len(t, run.ToolCalls, 2)
	assert.Equal(t, "research_topic", run.ToolCalls[0].Tool)

	// Usage was accounted: model turns plus one search.
	entries, err := f.ledger.ListRunCredits(context.Background(), res.RunID)
	require.NoError(t, err)
	var cats []core.CreditCategory
	for _, e := range entries {
		cats = append(cats, e.Category)
	}
	assert.Contains(t, cats, core.CreditModelInference)
	assert.Contains(t, cats, core.CreditSearchQuery)
}

func TestTrigger_ExplicitZeroMaxPostsHonored(t *testing.T) {
	f := newOrchFixture(t, watcherWith(true), &scriptedModel{})

	res, err := f.orch.Trigger(context.Background(), TriggerRequest{MaxPosts: intPtr(0), TopicCount: intPtr(1)})
	require.NoError(t, err)

	run, err := f.runs.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Zero(t, run.MaxPosts)
	assert.Equal(t, 1, run.TopicCount)
}

func TestTrigger_FailedRunReleasesSlot(t *testing.T) {
	// Turn budget exhaustion without artifacts fails the run and frees
	// admission for the next trigger.
	model := &scriptedModel{responses: []*core.ModelResponse{
		toolTurn(call("get_settings", nil)),
		toolTurn(call("get_settings", nil)),
		toolTurn(call("get_settings", nil)),
		toolTurn(call("get_settings", nil)),
		toolTurn(call("get_settings", nil)),
		toolTurn(call("get_settings", nil)),
		toolTurn(call("get_settings", nil)),
		toolTurn(call("get_settings", nil)),
	}}
	f := newOrchFixture(t, watcherWith(true), model)

	res, err := f.orch.Trigger(context.Background(), TriggerRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		run, err := f.runs.GetRun(context.Background(), res.RunID)
		return err == nil && run.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	run, _ := f.runs.GetRun(context.Background(), res.RunID)
	assert.Equal(t, core.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "TURN_BUDGET_EXCEEDED")

	_, err = f.orch.Trigger(context.Background(), TriggerRequest{})
	require.NoError(t, err)
}

func TestStatus_Idle(t *testing.T) {
	f := newOrchFixture(t, watcherWith(true), &scriptedModel{})

	report, err := f.orch.Status(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, report.Enabled)
	assert.Equal(t, core.PhaseIdle, report.CurrentPhase)
	assert.Nil(t, report.ActiveRun)
	assert.Empty(t, report.RecentRuns)
	require.NotNil(t, report.CreditUsage)
	assert.Zero(t, report.CreditUsage.Total)
}
