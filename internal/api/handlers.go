package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/service"
)

type runDTO struct {
	ID          string                `json:"id"`
	Status      string                `json:"status"`
	Phase       string                `json:"phase"`
	PersonaID   string                `json:"personaId"`
	TopicCount  int                   `json:"topicCount"`
	MaxPosts    int                   `json:"maxPosts"`
	ToolCalls   []core.ToolCallRecord `json:"toolCalls,omitempty"`
	StartedAt   time.Time             `json:"startedAt"`
	CompletedAt *time.Time            `json:"completedAt,omitempty"`
	Error       string                `json:"error,omitempty"`
}

func toRunDTO(r *core.Run) *runDTO {
	if r == nil {
		return nil
	}
	return &runDTO{
		ID:          string(r.ID),
		Status:      string(r.Status),
		Phase:       string(r.Phase),
		PersonaID:   r.PersonaID,
		TopicCount:  r.TopicCount,
		MaxPosts:    r.MaxPosts,
		ToolCalls:   r.ToolCalls,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Error:       r.Error,
	}
}

func toRunDTOs(runs []*core.Run) []*runDTO {
	out := make([]*runDTO, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunDTO(r))
	}
	return out
}

type jobDTO struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"personaId"`
	Cadence   string    `json:"cadence"`
	NextRunAt time.Time `json:"nextRunAt"`
}

func toJobDTOs(jobs []*core.ScheduledJob) []jobDTO {
	out := make([]jobDTO, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobDTO{ID: j.ID, PersonaID: j.PersonaID, Cadence: j.Cadence, NextRunAt: j.NextRunAt})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].NextRunAt.Before(out[k].NextRunAt) })
	return out
}

type triggerRequest struct {
	PersonaID  string `json:"personaId"`
	TopicCount *int   `json:"topicCount"`
	MaxPosts   *int   `json:"maxPosts"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body", nil)
		return
	}
	if req.TopicCount != nil && *req.TopicCount < 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "topicCount cannot be negative", nil)
		return
	}
	if req.MaxPosts != nil && *req.MaxPosts < 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "maxPosts cannot be negative", nil)
		return
	}

	res, err := s.workflow.Trigger(r.Context(), service.TriggerRequest{
		PersonaID:  req.PersonaID,
		TopicCount: req.TopicCount,
		MaxPosts:   req.MaxPosts,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runId":       string(res.RunID),
		"personaName": res.PersonaName,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	report, err := s.workflow.Status(r.Context(), limit)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"enabled":      report.Enabled,
		"currentPhase": string(report.CurrentPhase),
		"activeRun":    toRunDTO(report.ActiveRun),
		"recentRuns":   toRunDTOs(report.RecentRuns),
		"creditUsage":  report.CreditUsage,
	})
}

func (s *Server) handleListStuck(w http.ResponseWriter, r *http.Request) {
	defaultMinutes := int(s.cfg.Current().Workflow.StuckThreshold.Minutes())
	if defaultMinutes <= 0 {
		defaultMinutes = 5
	}
	minutes := queryInt(r, "minutes", defaultMinutes)
	if minutes <= 0 {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "minutes must be positive", nil)
		return
	}

	runs, err := s.stuck.ListStuck(r.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"stuckCount":       len(runs),
		"minutesThreshold": minutes,
		"runs":             toRunDTOs(runs),
	})
}

type clearStuckRequest struct {
	RunID string `json:"runId"`
}

func (s *Server) handleClearStuck(w http.ResponseWriter, r *http.Request) {
	var req clearStuckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "malformed request body", nil)
		return
	}

	var cleared []core.RunID
	if req.RunID != "" {
		if err := s.stuck.Clear(r.Context(), core.RunID(req.RunID)); err != nil {
			respondDomainError(w, err)
			return
		}
		cleared = []core.RunID{core.RunID(req.RunID)}
	} else {
		var err error
		cleared, err = s.stuck.Sweep(r.Context())
		if err != nil {
			respondDomainError(w, err)
			return
		}
	}

	ids := make([]string, 0, len(cleared))
	for _, id := range cleared {
		ids = append(ids, string(id))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": len(ids),
		"runs":    ids,
	})
}

// handleCronFire is the external cron entry point. Admission losses are
// reported as skips, not errors, so a cron service never sees a cascade
// of failures from normal single-flight behavior.
func (s *Server) handleCronFire(w http.ResponseWriter, r *http.Request) {
	configured := s.cfg.Current().Cron.Secret
	if configured == "" {
		respondError(w, http.StatusInternalServerError, core.CodeCronUnconfigured,
			"cron secret is not configured", nil)
		return
	}
	if r.URL.Query().Get("secret") != configured {
		respondError(w, http.StatusUnauthorized, core.CodeCronSecretInvalid,
			"cron secret does not match", nil)
		return
	}

	res, err := s.workflow.Trigger(r.Context(), service.TriggerRequest{
		PersonaID: r.URL.Query().Get("personaId"),
	})
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "workflow started",
			"runId":   string(res.RunID),
		})
	case core.IsCode(err, core.CodeAlreadyRunning),
		core.IsCode(err, core.CodeAutonomyDisabled),
		core.IsCode(err, core.CodePersonaNotFound):
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"skipped": true,
			"message": err.Error(),
		})
	default:
		respondDomainError(w, err)
	}
}

func (s *Server) handleSchedulerJobs(w http.ResponseWriter, r *http.Request) {
	status, err := s.scheduler.Status(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": toJobDTOs(status.Jobs),
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.scheduler.Status(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	report, err := s.workflow.Status(r.Context(), 1)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"initialized":     status.Initialized,
		"jobsCount":       status.JobsCount,
		"lastTickAt":      status.LastTickAt,
		"runningWorkflow": toRunDTO(report.ActiveRun),
		"jobs":            toJobDTOs(status.Jobs),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			health["rssMB"] = mem.RSS / (1 << 20)
		}
	}
	respondJSON(w, http.StatusOK, health)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
