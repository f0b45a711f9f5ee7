package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/dataroom/query"
)

// offlineConfig writes a configuration that never calls the embedding service.
func offlineConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ai:\n  disable_embeddings: true\n"), 0o644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"dataroom"}, args...))
	return out.String(), err
}

func TestIngestAndQueryOffline(t *testing.T) {
	cfgPath := offlineConfig(t)
	dbPath := filepath.Join(t.TempDir(), "db")
	docDir := t.TempDir()

	acme := filepath.Join(docDir, "acme.txt")
	require.NoError(t, os.WriteFile(acme, []byte("ACME Corp revenue was 5 million dollars in fiscal 2024."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docDir, "acme.fields.json"), []byte(`{"revenue": "5M"}`), 0o644))

	out, err := runApp(t, "--config", cfgPath, "--db", dbPath, "ingest", "--task", "deal", "--file", acme, "--doc-id", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested acme.txt as acme into task deal: 1 text chunks, 1 field chunks, 0 embedded")

	t.Run("duplicate document is rejected", func(t *testing.T) {
		_, err := runApp(t, "--config", cfgPath, "--db", dbPath, "ingest", "--task", "deal", "--file", acme, "--doc-id", "acme")
		assert.ErrorContains(t, err, "already")
	})

	t.Run("tasks lists chunk counts", func(t *testing.T) {
		out, err := runApp(t, "--config", cfgPath, "--db", dbPath, "tasks")
		require.NoError(t, err)
		assert.Equal(t, "deal\t2 chunks\n", out)
	})

	t.Run("context finds the revenue sentence", func(t *testing.T) {
		out, err := runApp(t, "--config", cfgPath, "--db", dbPath, "context", "--task", "deal", "ACME", "revenue")
		require.NoError(t, err)
		assert.Contains(t, out, "[Source 1] ACME Corp revenue was 5 million dollars in fiscal 2024.")
		assert.Contains(t, out, "acme.txt#0 keyword")
	})

	t.Run("context on unknown task", func(t *testing.T) {
		out, err := runApp(t, "--config", cfgPath, "--db", dbPath, "context", "--task", "other", "revenue")
		require.NoError(t, err)
		assert.Equal(t, "No matching excerpts.\n", out)
	})
}

func TestTasksEmptyDatabase(t *testing.T) {
	out, err := runApp(t, "--config", offlineConfig(t), "--db", filepath.Join(t.TempDir(), "db"), "tasks")
	require.NoError(t, err)
	assert.Equal(t, "No tasks indexed.\n", out)
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "ask requires task", args: []string{"ask", "What was revenue?"}, want: "task"},
		{name: "ingest requires file", args: []string{"ingest", "--task", "deal"}, want: "file"},
		{name: "watch requires dir", args: []string{"watch", "--task", "deal"}, want: "dir"},
		{name: "context requires a query", args: []string{"context", "--task", "deal"}, want: "query is required"},
		{name: "reembed batch size", args: []string{"reembed", "--batch-size", "0"}, want: "batch-size"},
		{name: "reembed report interval", args: []string{"reembed", "--report-interval", "0"}, want: "report-interval"},
		{name: "reembed max retries", args: []string{"reembed", "--max-retries", "0"}, want: "max-retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runApp(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("ask requires a question", func(t *testing.T) {
		_, err := runApp(t, "ask", "--task", "deal")
		assert.ErrorIs(t, err, query.ErrEmptyQuestion)
	})

	t.Run("reembed refuses when embeddings are disabled", func(t *testing.T) {
		_, err := runApp(t, "--config", offlineConfig(t), "--db", filepath.Join(t.TempDir(), "db"), "reembed")
		assert.ErrorContains(t, err, "embeddings are disabled")
	})

	t.Run("invalid configuration", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: sqlite\n"), 0o644))
		_, err := runApp(t, "--config", path, "tasks")
		assert.ErrorContains(t, err, "sqlite")
	})
}

func TestReembedFlagDefaults(t *testing.T) {
	var reembed *cli.Command
	for _, cmd := range newApp().Commands {
		if cmd.Name == "reembed" {
			reembed = cmd
		}
	}
	require.NotNil(t, reembed)

	defaults := map[string]any{}
	for _, flag := range reembed.Flags {
		switch f := flag.(type) {
		case *cli.IntFlag:
			defaults[f.Name] = f.Value
		case *cli.BoolFlag:
			defaults[f.Name] = f.Value
		}
	}
	assert.Equal(t, map[string]any{
		"all":             false,
		"batch-size":      100,
		"report-interval": 100,
		"max-retries":     3,
	}, defaults)
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"WaRn", slog.LevelWarn},
			{"ERROR", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
				assert.True(t, slog.Default().Enabled(t.Context(), tc.expected))
				if tc.expected > slog.LevelDebug {
					assert.False(t, slog.Default().Enabled(t.Context(), tc.expected-1))
				}
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		_, err := runApp(t, "--log-level", "invalid", "tasks")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}
