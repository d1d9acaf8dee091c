package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "FEEDFORGE",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "FEEDFORGE",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// ConfigFileUsed returns the resolved config file path, empty if none.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (FEEDFORGE_*)
// 3. Project config (.feedforge.yaml in current directory)
// 4. User config (~/.config/feedforge/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".feedforge")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "feedforge"))
		}
	}

	// Missing config file is fine, everything has a default.
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("server.addr", ":8420")
	l.v.SetDefault("database.path", ".feedforge/feedforge.db")

	l.v.SetDefault("autonomy.enabled", false)
	l.v.SetDefault("cron.secret", "")

	l.v.SetDefault("workflow.topic_count", 3)
	l.v.SetDefault("workflow.max_posts", 1)
	l.v.SetDefault("workflow.max_turns", 24)
	l.v.SetDefault("workflow.model_timeout", "120s")
	l.v.SetDefault("workflow.tool_timeout", "60s")
	l.v.SetDefault("workflow.stuck_threshold", "5m")
	l.v.SetDefault("workflow.reaper_interval", "1m")

	l.v.SetDefault("scheduler.tick_interval", "30s")

	l.v.SetDefault("model.base_url", "https://api.openai.com/v1")
	l.v.SetDefault("model.model", "gpt-4o-mini")
	l.v.SetDefault("model.max_tokens", 4096)
	l.v.SetDefault("model.temperature", 0.7)
	l.v.SetDefault("model.timeout", "120s")

	l.v.SetDefault("search.timeout", "30s")
	l.v.SetDefault("social.timeout", "30s")

	l.v.SetDefault("credits.per_thousand_tokens", 1.0)
	l.v.SetDefault("credits.per_search", 0.5)
	l.v.SetDefault("credits.per_post", 0.25)
}
