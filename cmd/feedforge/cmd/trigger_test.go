package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTriggerCommand_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/workflow/trigger", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "p1", body["personaId"])
		assert.Equal(t, float64(2), body["topicCount"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"runId": "run-55", "personaName": "TechVoice"}`))
	}))
	defer srv.Close()

	out, err := execute(t, "trigger", "--server", srv.URL, "--persona", "p1", "--topics", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "run-55")
	assert.Contains(t, out, "TechVoice")
}

func TestTriggerCommand_Rejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error": {"code": "ALREADY_RUNNING", "message": "a workflow run is already active"}}`))
	}))
	defer srv.Close()

	_, err := execute(t, "trigger", "--server", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "ALREADY_RUNNING")
}

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-03-10")
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "1.2.3")
	assert.Contains(t, out, "abc123")
}
