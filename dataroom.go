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

// Package dataroom wires the chunk store, AI provider and per-task index
// together for ingesting data room documents and answering questions about them.
package dataroom

import (
	"context"
	"io"
	"log/slog"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/ai/gemini"
	"github.com/poiesic/dataroom/ai/openai"
	"github.com/poiesic/dataroom/index"
	"github.com/poiesic/dataroom/ingestion"
	"github.com/poiesic/dataroom/query"
	"github.com/poiesic/dataroom/reembed"
	"github.com/poiesic/dataroom/storage"
	"github.com/poiesic/dataroom/storage/badger"
)

type Database struct {
	backend  *badger.Backend
	repo     storage.ChunkRepository
	registry *index.Registry
	provider ai.AIProvider
	logger   *slog.Logger
}

// Option configures a Database.
type Option func(*databaseOptions)

type databaseOptions struct {
	aiConfig *ai.Config
	provider ai.AIProvider
	repo     storage.ChunkRepository
	inMemory bool
	logger   *slog.Logger
}

// WithAIConfig sets the configuration used to build the AI provider.
func WithAIConfig(config *ai.Config) Option {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider supplies a ready AI provider. The Database closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithChunkRepository supplies the chunk store instead of opening BadgerDB.
// The Database closes it.
func WithChunkRepository(repo storage.ChunkRepository) Option {
	return func(o *databaseOptions) {
		o.repo = repo
	}
}

// WithInMemory keeps the BadgerDB store in memory. The path is ignored.
func WithInMemory() Option {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewProvider builds the provider named by config.Provider.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	if config.Provider == ai.ProviderGemini {
		return gemini.NewProvider(ctx, config)
	}
	return openai.NewProvider(config)
}

// Open opens the chunk store at path, builds the AI provider and loads every
// stored chunk into the index.
func Open(path string, opts ...Option) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	db := &Database{
		repo:     options.repo,
		provider: options.provider,
		logger:   logger.With("component", "dataroom"),
	}

	if db.repo == nil {
		backend, err := badger.OpenBackend(path, options.inMemory)
		if err != nil {
			return nil, err
		}
		db.backend = backend

		repo, err := badger.NewChunkRepository(backend)
		if err != nil {
			backend.Close()
			return nil, err
		}
		db.repo = repo
	}

	if db.provider == nil {
		provider, err := NewProvider(context.Background(), options.aiConfig)
		if err != nil {
			db.closeStore()
			return nil, err
		}
		db.provider = provider
	}

	registry, err := index.NewRegistry(db.provider.Embedder(), index.WithLogger(logger))
	if err != nil {
		db.Close()
		return nil, err
	}
	db.registry = registry

	if _, err := db.Rebuild(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Rebuild reloads the index from the chunk store and returns the number of chunks loaded.
func (db *Database) Rebuild(ctx context.Context) (int, error) {
	return db.registry.Rebuild(ctx, db.repo)
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	return db.closeStore()
}

func (db *Database) closeStore() error {
	if err := db.repo.Close(); err != nil {
		db.logger.Error("error closing chunk repository", "err", err)
		return err
	}
	if db.backend == nil {
		return nil
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) Registry() *index.Registry {
	return db.registry
}

func (db *Database) ChunkRepository() storage.ChunkRepository {
	return db.repo
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// NewIngestionPipeline creates a pipeline that persists to the chunk store and feeds the index.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{ingestion.WithChunkRepository(db.repo)}, opts...)
	return ingestion.NewPipeline(db.registry, db.provider.Embedder(), opts...)
}

// NewQueryEngine creates a question answering engine over the index.
func (db *Database) NewQueryEngine(opts ...query.Option) (*query.Engine, error) {
	return query.NewEngine(db.registry, db.provider.LanguageModel(), opts...)
}

// NewReembedder creates a reembedder over the chunk store. Progress is written to progress.
// Call Rebuild afterwards to load the new vectors into the index.
func (db *Database) NewReembedder(config *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	return reembed.NewReembedder(db.repo, db.provider.Embedder(), config, progress)
}
