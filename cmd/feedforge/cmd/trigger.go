package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/feedforge/feedforge/internal/config"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Trigger a workflow run on a running engine",
	Long: `Trigger a workflow run against a running 'feedforge serve' instance.

Examples:
  # Fire the pipeline for the active persona
  feedforge trigger

  # Fire for a specific persona with custom budgets
  feedforge trigger --persona p1 --topics 3 --max-posts 1`,
	RunE: runTrigger,
}

var (
	triggerPersona  string
	triggerTopics   int
	triggerMaxPosts int
	triggerServer   string
)

func init() {
	rootCmd.AddCommand(triggerCmd)

	triggerCmd.Flags().StringVar(&triggerPersona, "persona", "",
		"persona id (default: the active persona)")
	triggerCmd.Flags().IntVar(&triggerTopics, "topics", -1,
		"topic budget (default: server configuration)")
	triggerCmd.Flags().IntVar(&triggerMaxPosts, "max-posts", -1,
		"post budget (default: server configuration)")
	triggerCmd.Flags().StringVar(&triggerServer, "server", "",
		"engine base URL (default: derived from server.addr)")
}

func runTrigger(cmd *cobra.Command, _ []string) error {
	baseURL := triggerServer
	if baseURL == "" {
		loader := config.NewLoaderWithViper(viper.GetViper())
		if cfgFile != "" {
			loader.WithConfigFile(cfgFile)
		}
		cfg, err := loader.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		addr := cfg.Server.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		baseURL = "http://" + addr
	}

	payload := map[string]interface{}{}
	if triggerPersona != "" {
		payload["personaId"] = triggerPersona
	}
	if triggerTopics >= 0 {
		payload["topicCount"] = triggerTopics
	}
	if triggerMaxPosts >= 0 {
		payload["maxPosts"] = triggerMaxPosts
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(baseURL+"/workflow/trigger", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("calling engine at %s: %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("trigger rejected (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		RunID       string `json:"runId"`
		PersonaName string `json:"personaName"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	cmd.Printf("run %s started for persona %s\n", out.RunID, out.PersonaName)
	return nil
}
