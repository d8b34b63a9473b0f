package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/loginbench/pkg/condition"
	"github.com/thesyncim/loginbench/pkg/results"
	"github.com/thesyncim/loginbench/pkg/telemetry"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(context.Background(), append([]string{"loginbench"}, args...))
	return out.String(), err
}

func TestConditionsCommand(t *testing.T) {
	out, err := runApp(t, "conditions")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 1+len(condition.Labels()))
	assert.Contains(t, out, "fast3g+medium-cpu")
	assert.Contains(t, out, "209715") // fast3g download, 1.6 Mbit/s in bytes
}

func TestRunCommand_ValidatesBeforeLaunching(t *testing.T) {
	for _, name := range []string{"VUE_APP_URL", "ANGULAR_APP_URL", "REACT_APP_URL", "DOCTOR_USERNAME", "PASSWORD", "APP_TYPE"} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	dir := t.TempDir()

	_, err := runApp(t, "--config", filepath.Join(dir, "none.yaml"), "--env-file", filepath.Join(dir, "none.env"), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apps.vue")
}

func TestSummarizeCommand(t *testing.T) {
	t.Setenv("APP_TYPE", "vue")
	dir := t.TempDir()

	w := results.NewWriter(dir, "login")
	ms := 420.0
	_, err := w.Write("vue", "no-throttling", results.KindMetrics, &telemetry.MetricsRecord{
		Application:      "vue",
		Condition:        "no-throttling",
		LoginSuccessful:  true,
		FormSubmissionMs: &ms,
	})
	require.NoError(t, err)

	out, err := runApp(t, "--config", filepath.Join(dir, "none.yaml"), "--env-file", filepath.Join(dir, "none.env"),
		"summarize", "--results", dir)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1+len(condition.DefaultMatrix()))
	assert.True(t, strings.HasPrefix(lines[1], "vue,no-throttling,"))
	assert.Contains(t, lines[1], "420")
}

func TestSummarizeCommand_OutcomesFollowResultsDir(t *testing.T) {
	t.Setenv("APP_TYPE", "vue")
	dir := t.TempDir()

	ledger, err := results.OpenLedger(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, ledger.Record(context.Background(), results.Entry{
		RunID:       "run-42",
		Application: "vue",
		Condition:   "slow3g",
		Stage:       "written",
		Status:      "ok",
		StartedAt:   time.Unix(1700000000, 0),
		Duration:    2 * time.Second,
	}))
	require.NoError(t, ledger.Close())

	out, err := runApp(t, "--config", filepath.Join(dir, "none.yaml"), "--env-file", filepath.Join(dir, "none.env"),
		"summarize", "--results", dir, "--outcomes")
	require.NoError(t, err)

	assert.Contains(t, out, "run run-42")
	assert.Contains(t, out, "slow3g")
}
