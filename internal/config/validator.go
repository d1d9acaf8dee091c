package config

import (
	"fmt"
	"time"
)

// Validate checks configuration invariants. It runs after every load,
// including watcher reloads, so a bad edit never replaces a good
// snapshot.
func Validate(cfg *Config) error {
	if cfg.Workflow.TopicCount < 0 {
		return fmt.Errorf("workflow.topic_count cannot be negative")
	}
	if cfg.Workflow.MaxPosts < 0 {
		return fmt.Errorf("workflow.max_posts cannot be negative")
	}
	if cfg.Workflow.MaxTurns < 1 {
		return fmt.Errorf("workflow.max_turns must be at least 1")
	}
	if cfg.Workflow.StuckThreshold < time.Minute {
		return fmt.Errorf("workflow.stuck_threshold must be at least 1m")
	}
	if cfg.Workflow.ModelTimeout <= 0 || cfg.Workflow.ToolTimeout <= 0 {
		return fmt.Errorf("workflow timeouts must be positive")
	}
	if cfg.Scheduler.TickInterval < time.Second {
		return fmt.Errorf("scheduler.tick_interval must be at least 1s")
	}
	if cfg.Credits.PerThousandTokens < 0 || cfg.Credits.PerSearch < 0 || cfg.Credits.PerPost < 0 {
		return fmt.Errorf("credit rates cannot be negative")
	}
	return nil
}
