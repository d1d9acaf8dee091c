// Package config loads and watches the engine configuration.
package config

import "time"

// Config is the root configuration for the engine.
type Config struct {
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Autonomy  AutonomyConfig  `mapstructure:"autonomy" yaml:"autonomy"`
	Cron      CronConfig      `mapstructure:"cron" yaml:"cron"`
	Workflow  WorkflowConfig  `mapstructure:"workflow" yaml:"workflow"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Model     ModelConfig     `mapstructure:"model" yaml:"model"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Social    SocialConfig    `mapstructure:"social" yaml:"social"`
	Credits   CreditsConfig   `mapstructure:"credits" yaml:"credits"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DatabaseConfig configures persistence.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AutonomyConfig holds the global autonomous-mode switch. The engine
// re-reads it at run admission, so toggling the file off closes the
// race with an in-flight trigger.
type AutonomyConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// CronConfig configures the external cron trigger endpoint.
type CronConfig struct {
	Secret string `mapstructure:"secret" yaml:"secret"`
}

// WorkflowConfig bounds a single run.
type WorkflowConfig struct {
	TopicCount     int           `mapstructure:"topic_count" yaml:"topic_count"`
	MaxPosts       int           `mapstructure:"max_posts" yaml:"max_posts"`
	MaxTurns       int           `mapstructure:"max_turns" yaml:"max_turns"`
	ModelTimeout   time.Duration `mapstructure:"model_timeout" yaml:"model_timeout"`
	ToolTimeout    time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	StuckThreshold time.Duration `mapstructure:"stuck_threshold" yaml:"stuck_threshold"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval" yaml:"reaper_interval"`
}

// SchedulerConfig configures the in-process scheduler loop.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
}

// ModelConfig configures the model-reasoning capability.
type ModelConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SearchConfig configures the research capability.
type SearchConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SocialConfig configures the downstream posting network.
type SocialConfig struct {
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	TokenURL     string        `mapstructure:"token_url" yaml:"token_url"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string        `mapstructure:"client_secret" yaml:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// CreditsConfig converts raw usage into credits.
type CreditsConfig struct {
	PerThousandTokens float64 `mapstructure:"per_thousand_tokens" yaml:"per_thousand_tokens"`
	PerSearch         float64 `mapstructure:"per_search" yaml:"per_search"`
	PerPost           float64 `mapstructure:"per_post" yaml:"per_post"`
}
