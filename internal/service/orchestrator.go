// Package service hosts the workflow orchestrator, scheduler and the
// background maintenance loops around them.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feedforge/feedforge/internal/agent"
	"github.com/feedforge/feedforge/internal/config"
	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/logging"
)

// TriggerRequest asks for a new workflow run. Nil budgets fall back to
// the configured defaults; an explicit zero is honored.
type TriggerRequest struct {
	PersonaID  string
	TopicCount *int
	MaxPosts   *int
}

// TriggerResult identifies the admitted run.
type TriggerResult struct {
	RunID       core.RunID
	PersonaName string
}

// StatusReport is the dashboard read model for the workflow surface.
type StatusReport struct {
	Enabled      bool
	CurrentPhase core.Phase
	ActiveRun    *core.Run
	RecentRuns   []*core.Run
	CreditUsage  *core.CreditSummary
}

// Orchestrator admits workflow runs and executes them in the
// background. Admission is the only gate: the run store's single-flight
// constraint decides races, not the orchestrator.
type Orchestrator struct {
	cfg      *config.Watcher
	runs     core.RunStore
	personas core.PersonaStore
	drafts   core.DraftStore
	model    core.ModelClient
	search   core.SearchClient
	social   core.SocialClient
	credits  *CreditService
	logger   *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	cfg *config.Watcher,
	runs core.RunStore,
	personas core.PersonaStore,
	drafts core.DraftStore,
	model core.ModelClient,
	search core.SearchClient,
	social core.SocialClient,
	credits *CreditService,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		runs:     runs,
		personas: personas,
		drafts:   drafts,
		model:    model,
		search:   search,
		social:   social,
		credits:  credits,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Trigger admits and starts a run. It returns as soon as the run row is
// created; execution continues in the background. The autonomy flag is
// re-read here from the live config snapshot so a toggle-off beats any
// trigger that arrives after it.
func (o *Orchestrator) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if !o.cfg.AutonomyEnabled() {
		return nil, core.ErrAutonomyDisabled()
	}

	persona, err := o.resolvePersona(ctx, req.PersonaID)
	if err != nil {
		return nil, err
	}

	wf := o.cfg.Current().Workflow
	topicCount := wf.TopicCount
	if req.TopicCount != nil {
		topicCount = *req.TopicCount
	}
	maxPosts := wf.MaxPosts
	if req.MaxPosts != nil {
		maxPosts = *req.MaxPosts
	}

	run := core.NewRun(core.RunID(uuid.NewString()), persona.ID, topicCount, maxPosts)
	if err := o.runs.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	o.logger.WithRun(string(run.ID)).Info("run admitted",
		"persona", persona.ID,
		"topic_count", topicCount,
		"max_posts", maxPosts,
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(o.ctx, run, persona)
	}()

	return &TriggerResult{RunID: run.ID, PersonaName: persona.Name}, nil
}

func (o *Orchestrator) resolvePersona(ctx context.Context, id string) (*core.Persona, error) {
	if id != "" {
		return o.personas.GetPersona(ctx, id)
	}
	persona, err := o.personas.FindActivePersona(ctx)
	if err != nil {
		return nil, err
	}
	if persona == nil {
		return nil, core.ErrPersonaNotFound("active")
	}
	return persona, nil
}

// execute drives the agent loop for an admitted run and finalizes the
// run row whatever happens.
func (o *Orchestrator) execute(ctx context.Context, run *core.Run, persona *core.Persona) {
	logger := o.logger.WithRun(string(run.ID))

	registry, err := agent.Toolset{
		Persona: persona,
		Search:  o.search,
		Social:  o.social,
		Drafts:  o.drafts,
	}.BuildRegistry()
	if err != nil {
		o.finalizeFailed(ctx, run, fmt.Errorf("building toolset: %w", err), logger)
		return
	}

	wf := o.cfg.Current().Workflow
	loop := agent.NewLoop(o.model, registry, agent.LoopConfig{
		TopicCount:   run.TopicCount,
		MaxPosts:     run.MaxPosts,
		MaxTurns:     wf.MaxTurns,
		ModelTimeout: wf.ModelTimeout,
		ToolTimeout:  wf.ToolTimeout,
	}, agent.Callbacks{
		OnPhase: func(ctx context.Context, phase core.Phase, calls []core.ToolCallRecord) {
			o.persistProgress(ctx, run, phase, calls, logger)
		},
		OnModelUsage: func(ctx context.Context, tokensIn, tokensOut int) {
			o.credits.RecordModelUsage(ctx, run.ID, tokensIn, tokensOut)
		},
		OnToolUse: func(ctx context.Context, tool string) {
			switch tool {
			case "research_topic":
				o.credits.RecordSearch(ctx, run.ID)
			case "post_now":
				o.credits.RecordPost(ctx, run.ID)
			}
		},
	}, logger)

	res, err := loop.Run(ctx, persona)
	if err != nil {
		o.finalizeFailed(ctx, run, err, logger)
		return
	}

	if err := run.Complete(res.PartialError); err != nil {
		logger.Error("completing run", "error", err)
		return
	}
	run.ToolCalls = res.ToolCalls
	o.persistTerminal(ctx, run, logger)
	logger.Info("run completed",
		"topics", res.Topics,
		"drafts", res.Drafts,
		"posts", res.Posts,
		"turns", res.Turns,
		"partial_error", res.PartialError != "",
	)
}

func (o *Orchestrator) persistProgress(ctx context.Context, run *core.Run, phase core.Phase, calls []core.ToolCallRecord, logger *logging.Logger) {
	_ = run.TransitionPhase(phase)
	run.ToolCalls = calls
	patch := core.RunPatch{Phase: &phase, ToolCalls: calls}
	if err := o.runs.UpdateRun(ctx, run.ID, patch); err != nil {
		logger.Warn("persisting run progress failed", "phase", phase, "error", err)
	}
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, run *core.Run, cause error, logger *logging.Logger) {
	run.Fail(cause)
	o.persistTerminal(ctx, run, logger)
	logger.Error("run failed", "error", cause)
}

func (o *Orchestrator) persistTerminal(ctx context.Context, run *core.Run, logger *logging.Logger) {
	// The terminal write must land even when the run was canceled by
	// shutdown, or the row would hold the single-flight slot forever.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	patch := core.RunPatch{
		Status:      &run.Status,
		Phase:       &run.Phase,
		Error:       &run.Error,
		CompletedAt: run.CompletedAt,
		ToolCalls:   run.ToolCalls,
	}
	if err := o.runs.UpdateRun(ctx, run.ID, patch); err != nil {
		logger.Error("persisting terminal run state failed", "error", err)
	}
}

// Status assembles the dashboard read model.
func (o *Orchestrator) Status(ctx context.Context, limit int) (*StatusReport, error) {
	active, err := o.runs.FindActiveRun(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := o.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	usage, err := o.credits.Summary(ctx, 7)
	if err != nil {
		return nil, err
	}

	phase := core.PhaseIdle
	if active != nil {
		phase = active.Phase
	}
	return &StatusReport{
		Enabled:      o.cfg.AutonomyEnabled(),
		CurrentPhase: phase,
		ActiveRun:    active,
		RecentRuns:   recent,
		CreditUsage:  usage,
	}, nil
}

// ActiveRun exposes the current single-flight holder, nil when idle.
func (o *Orchestrator) ActiveRun(ctx context.Context) (*core.Run, error) {
	return o.runs.FindActiveRun(ctx)
}

// Close cancels in-flight runs and waits for them to finalize, up to
// the given grace period.
func (o *Orchestrator) Close(grace time.Duration) {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		o.logger.Warn("shutdown grace period elapsed with runs still in flight")
	}
}
