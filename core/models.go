package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkKind identifies how a chunk was produced.
type ChunkKind string

const (
	// ChunkKindText is a window of a document's raw text produced by the chunker.
	ChunkKindText ChunkKind = "text_chunk"
	// ChunkKindField is a single extracted structured field rendered as "field: value".
	ChunkKindField ChunkKind = "structured_field"
)

// MetadataFilename is the metadata key holding a document's source filename.
const MetadataFilename = "filename"

// MetadataPath is the metadata key holding the path a document was loaded from.
const MetadataPath = "path"

// MetadataField is the chunk metadata key holding the structured field name.
const MetadataField = "field"

// UnknownFilename is used for citations when a document carries no filename.
const UnknownFilename = "unknown"

// Document is a single uploaded file after extraction.
// It is owned by the ingestion collaborator and immutable after creation.
type Document struct {
	TaskID           string
	DocID            string
	RawText          string
	StructuredFields map[string]string
	Metadata         map[string]any
}

// Filename returns the document's filename metadata, or UnknownFilename.
func (d *Document) Filename() string {
	if d == nil || d.Metadata == nil {
		return UnknownFilename
	}
	if name, ok := d.Metadata[MetadataFilename].(string); ok && name != "" {
		return name
	}
	return UnknownFilename
}

// Chunk is the unit of retrieval: a piece of a document plus an optional embedding.
type Chunk struct {
	Id         ID
	TaskID     string
	DocID      string
	ChunkID    string
	Index      int // position within the document, used as chunk_index in citations
	Kind       ChunkKind
	Text       string
	Embedding  []float32         // empty when the embedder was unavailable
	Metadata   map[string]string // source metadata copied from the document
	InsertedAt time.Time
}

// ChunkIDFor builds the per-document chunk identifier.
func ChunkIDFor(docID string, index int) string {
	return docID + "#" + strconv.Itoa(index)
}

// ChunkContentID computes the storage ID of a chunk from its identity.
func ChunkContentID(taskID, docID, chunkID string) ID {
	return IDFromContent(taskID + "\x00" + docID + "\x00" + chunkID)
}

// Filename returns the chunk's source filename, or UnknownFilename.
func (c *Chunk) Filename() string {
	if c.Metadata != nil {
		if name := c.Metadata[MetadataFilename]; name != "" {
			return name
		}
	}
	return UnknownFilename
}

// HasEmbedding reports whether the chunk carries an embedding vector.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// SubQuery is one decomposed question. Ordinals start at 1 and preserve
// generation order; the "no evidence" placeholder uses ordinal 0.
type SubQuery struct {
	Text    string
	Ordinal int
}

// CitationKey identifies a cited chunk within a single answer.
type CitationKey struct {
	DocumentFilename string
	ChunkIndex       int
}

// Citation links answer text back to the chunk that supported it.
type Citation struct {
	DocumentFilename string
	ChunkIndex       int
	SubQuery         string
	SubQueryOrdinal  int
	Score            float64
}

// Key returns the deduplication key of the citation.
func (c Citation) Key() CitationKey {
	return CitationKey{DocumentFilename: c.DocumentFilename, ChunkIndex: c.ChunkIndex}
}

// RetrievalResult holds the context gathered for one sub-query.
// Citations only contains the entries this sub-query owns after deduplication.
type RetrievalResult struct {
	SubQuery    SubQuery
	ContextText string
	Citations   []Citation
}

// SynthesisInput aggregates everything handed to the answer synthesizer.
type SynthesisInput struct {
	Question       string
	SubQueries     []SubQuery
	Results        []RetrievalResult
	StructuredData map[string]string
	Metrics        map[string]float64
	Insights       []string
}

// AnswerStatus distinguishes how an answer was produced.
type AnswerStatus string

const (
	// AnswerStatusAnswered means synthesis succeeded over retrieved evidence.
	AnswerStatusAnswered AnswerStatus = "answered"
	// AnswerStatusNoEvidence means the task has documents but nothing matched.
	AnswerStatusNoEvidence AnswerStatus = "no_evidence"
	// AnswerStatusNoDocuments means the task has no indexed chunks at all.
	AnswerStatusNoDocuments AnswerStatus = "no_documents"
	// AnswerStatusSynthesisFailed means the final model call failed.
	AnswerStatusSynthesisFailed AnswerStatus = "synthesis_failed"
)

// Answer is the result of asking a question against a task.
type Answer struct {
	Answer     string
	SubQueries []SubQuery
	Citations  []Citation
	Reasoning  []string
	Context    string
	Status     AnswerStatus
}

// NumSubQueries returns the number of sub-queries analyzed.
func (a *Answer) NumSubQueries() int {
	return len(a.SubQueries)
}

// NumCitations returns the number of distinct citations.
func (a *Answer) NumCitations() int {
	return len(a.Citations)
}

// Source describes one chunk contributing to a single-query RAG context.
type Source struct {
	Filename   string
	ChunkIndex int
	Score      float64
	ScoreType  string
}

// RAGContext is the formatted context and provenance for a single query.
type RAGContext struct {
	Context string
	Sources []Source
}
