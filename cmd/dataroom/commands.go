package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/ingestion"
	"github.com/poiesic/dataroom/query"
	"github.com/poiesic/dataroom/reembed"
	"github.com/poiesic/dataroom/status"
)

func ingestCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	docID := c.String("doc-id")
	if docID == "" {
		docID = uuid.NewString()
	}
	doc, err := ingestion.DocumentFromFile(c.String("task"), docID, c.String("file"))
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	if fieldsPath := c.String("fields"); fieldsPath != "" {
		fields, err := ingestion.ReadFieldsFile(fieldsPath)
		if err != nil {
			return fmt.Errorf("failed to read fields: %w", err)
		}
		doc.StructuredFields = fields
	}
	if filename := c.String("filename"); filename != "" {
		doc.Metadata[core.MetadataFilename] = filename
	}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	pipeline, err := db.NewIngestionPipeline(cfg.IngestionOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	result, err := pipeline.Ingest(ctx, doc)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Ingested %s as %s into task %s: %d text chunks, %d field chunks, %d embedded (%v)\n",
		result.Filename, result.DocID, result.TaskID, result.TextChunks, result.FieldChunks,
		result.Embedded, result.Duration.Round(time.Millisecond))
	return nil
}

func askCommand(c *cli.Context) error {
	ctx := c.Context

	question := strings.Join(c.Args().Slice(), " ")
	req := query.Request{
		TaskID:   c.String("task"),
		Question: question,
		Insights: c.StringSlice("insight"),
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if path := c.String("structured"); path != "" {
		data, err := ingestion.ReadFieldsFile(path)
		if err != nil {
			return fmt.Errorf("failed to read structured data: %w", err)
		}
		req.StructuredData = data
	}
	if path := c.String("metrics"); path != "" {
		metrics, err := readMetrics(path)
		if err != nil {
			return fmt.Errorf("failed to read metrics: %w", err)
		}
		req.Metrics = metrics
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewQueryEngine(cfg.QueryOptions()...)
	if err != nil {
		return fmt.Errorf("failed to create query engine: %w", err)
	}
	defer engine.Release()

	requestID := uuid.NewString()
	tracker := status.NewTracker()
	answer, err := engine.AskWithMonitor(ctx, req, tracker.Monitor(requestID))
	if st, ok := tracker.Get(requestID); ok {
		slog.Debug("request finished", "id", requestID, "stage", st.Stage, "message", st.Message)
	}
	if err != nil {
		return fmt.Errorf("question failed: %w", err)
	}

	printAnswer(c.App.Writer, answer)
	return nil
}

func printAnswer(w io.Writer, answer *core.Answer) {
	fmt.Fprintln(w, answer.Answer)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Status: %s\n", answer.Status)

	if answer.NumSubQueries() > 0 {
		fmt.Fprintf(w, "\nSub-questions (%d):\n", answer.NumSubQueries())
		for _, sq := range answer.SubQueries {
			fmt.Fprintf(w, "  %d. %s\n", sq.Ordinal, sq.Text)
		}
	}
	if answer.NumCitations() > 0 {
		fmt.Fprintf(w, "\nCitations (%d):\n", answer.NumCitations())
		for _, citation := range answer.Citations {
			fmt.Fprintf(w, "  %s#%d (sub-question %d, score %.3f)\n",
				citation.DocumentFilename, citation.ChunkIndex, citation.SubQueryOrdinal, citation.Score)
		}
	}
}

func readMetrics(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var metrics map[string]float64
	if err := json.Unmarshal(data, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func contextCommand(c *cli.Context) error {
	ctx := c.Context

	queryText := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(queryText) == "" {
		return errors.New("query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	topK := c.Int("top-k")
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}
	rag, err := db.Registry().Context(ctx, c.String("task"), queryText, topK)
	if err != nil {
		return err
	}
	if len(rag.Sources) == 0 {
		fmt.Fprintln(c.App.Writer, "No matching excerpts.")
		return nil
	}

	fmt.Fprintln(c.App.Writer, rag.Context)
	fmt.Fprintln(c.App.Writer)
	for i, source := range rag.Sources {
		fmt.Fprintf(c.App.Writer, "[Source %d] %s#%d %s %.3f\n", i+1, source.Filename, source.ChunkIndex, source.ScoreType, source.Score)
	}
	return nil
}

func tasksCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tasks := db.Registry().Tasks()
	if len(tasks) == 0 {
		fmt.Fprintln(c.App.Writer, "No tasks indexed.")
		return nil
	}
	for _, task := range tasks {
		fmt.Fprintf(c.App.Writer, "%s\t%d chunks\n", task, db.Registry().Len(task))
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	// Create reembedding config
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		All:            c.Bool("all"),
	}

	// Validate config
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.AI.DisableEmbeddings {
		return errors.New("embeddings are disabled in the configuration")
	}
	db, err := openDatabase(c.Context, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reembedder, err := db.NewReembedder(reembedConfig, os.Stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Storage: %s %s\n", cfg.Storage.Backend, cfg.Storage.Path)
	fmt.Fprintf(os.Stderr, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(os.Stderr)

	if _, err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
