// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/dataroom"
	"github.com/poiesic/dataroom/config"
	"github.com/poiesic/dataroom/storage/postgres"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dataroom",
		Usage: "Answer due-diligence questions over data room documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "dataroom.yaml",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides storage.path)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file with provider API keys",
				Value: ".env",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest a text file into a task",
				ArgsUsage: " ",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "task",
						Aliases:  []string{"t"},
						Usage:    "Task the document belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Text or markdown file to ingest",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "doc-id",
						Usage: "Document ID (random when omitted)",
					},
					&cli.StringFlag{
						Name:  "fields",
						Usage: "JSON file of structured fields (defaults to the file's .fields.json sidecar)",
					},
					&cli.StringFlag{
						Name:  "filename",
						Usage: "Filename recorded in citations (defaults to the file's base name)",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question about a task's documents",
				ArgsUsage: "QUESTION...",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "task",
						Aliases:  []string{"t"},
						Usage:    "Task to search",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "structured",
						Usage: "JSON object of structured financial data",
					},
					&cli.StringFlag{
						Name:  "metrics",
						Usage: "JSON object of computed metrics",
					},
					&cli.StringSliceFlag{
						Name:  "insight",
						Usage: "Key insight to include (repeatable)",
					},
				},
			},
			{
				Name:      "context",
				Usage:     "Print the retrieval context for a single query",
				ArgsUsage: "QUERY...",
				Action:    contextCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "task",
						Aliases:  []string{"t"},
						Usage:    "Task to search",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Maximum number of excerpts (defaults to retrieval.top_k)",
					},
				},
			},
			{
				Name:   "tasks",
				Usage:  "List indexed tasks and their chunk counts",
				Action: tasksCommand,
			},
			{
				Name:   "reembed",
				Usage:  "Embed stored chunks that have no embedding",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Reembed every chunk, not only chunks without an embedding",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "watch",
				Usage:  "Ingest files appearing in a directory until interrupted",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "task",
						Aliases:  []string{"t"},
						Usage:    "Task the files belong to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dir",
						Usage:    "Directory to watch",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "metrics-listen",
						Usage: "Address for the Prometheus /metrics endpoint (defaults to metrics.listen)",
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "How long writes must settle before a file is ingested",
						Value: 500 * time.Millisecond,
					},
				},
			},
		},
	}
}

func setup(c *cli.Context) error {
	if err := setupLogger(c); err != nil {
		return err
	}
	// A missing dotenv file is not an error.
	_ = godotenv.Load(c.String("env-file"))
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// loadConfig reads the configuration file and applies command line overrides.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if db := c.String("db"); db != "" {
		cfg.Storage.Backend = config.BackendBadger
		cfg.Storage.Path = db
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDatabase opens the configured chunk store and rebuilds the index from it.
func openDatabase(ctx context.Context, cfg *config.AppConfig) (*dataroom.Database, error) {
	opts := []dataroom.Option{dataroom.WithAIConfig(cfg.AIConfig())}

	if cfg.Storage.Backend == config.BackendPostgres {
		repo, err := postgres.NewChunkRepository(ctx, postgres.Config{DSN: cfg.Storage.PostgresDSN})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres chunk store: %w", err)
		}
		opts = append(opts, dataroom.WithChunkRepository(repo))
	}

	db, err := dataroom.Open(cfg.Storage.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
